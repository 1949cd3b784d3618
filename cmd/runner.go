package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gofrs/flock"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ymd/internal/download"
	"github.com/desertthunder/ymd/internal/ledger"
	"github.com/desertthunder/ymd/internal/organizer"
	"github.com/desertthunder/ymd/internal/repositories"
	"github.com/desertthunder/ymd/internal/services"
	"github.com/desertthunder/ymd/internal/shared"
	"github.com/desertthunder/ymd/internal/tagger"
	"github.com/desertthunder/ymd/internal/tasks"
	"github.com/desertthunder/ymd/internal/ui"
)

// PickFunc shows a multi-select list and returns the confirmed choices.
type PickFunc func(title string, load func() ([]ui.Choice, error)) ([]ui.Choice, error)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	configPath  string
	loadConfig  bool
	config      *shared.Config
	catalog     services.Catalog
	fetcher     download.Fetcher
	tagger      tagger.Tagger
	httpClient  *http.Client
	logger      *log.Logger
	output      io.Writer
	input       io.Reader
	interactive func() bool
	pick        PickFunc
	now         func() time.Time
}

// RunnerOpts contains configuration options for creating a Runner.
//
// Catalog, Fetcher and Tagger replace the real YouTube Music client, yt-dlp and the ID3
// writer when set. A nil Config is loaded from ConfigPath before the first command runs.
type RunnerOpts struct {
	ConfigPath  string
	Config      *shared.Config
	Catalog     services.Catalog
	Fetcher     download.Fetcher
	Tagger      tagger.Tagger
	HTTPClient  *http.Client
	Logger      *log.Logger
	Output      io.Writer
	Input       io.Reader
	Interactive func() bool
	Pick        PickFunc
	Now         func() time.Time
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	loadConfig := opts.Config == nil
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.ConfigPath == "" {
		opts.ConfigPath = defaultConfigPath
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	if opts.Tagger == nil {
		opts.Tagger = tagger.NewID3Tagger()
	}
	if opts.Interactive == nil {
		opts.Interactive = isTerminal
	}
	if opts.Pick == nil {
		opts.Pick = ui.RunPicker
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Runner{
		configPath:  opts.ConfigPath,
		loadConfig:  loadConfig,
		config:      opts.Config,
		catalog:     opts.Catalog,
		fetcher:     opts.Fetcher,
		tagger:      opts.Tagger,
		httpClient:  opts.HTTPClient,
		logger:      opts.Logger,
		output:      opts.Output,
		input:       opts.Input,
		interactive: opts.Interactive,
		pick:        opts.Pick,
		now:         opts.Now,
	}
}

// isTerminal reports whether both stdin and stdout are attached to a terminal.
func isTerminal() bool {
	tty := func(fd uintptr) bool { return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) }
	return tty(os.Stdin.Fd()) && tty(os.Stdout.Fd())
}

// before applies the global flags: log level and the configuration file.
func (r *Runner) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	switch {
	case cmd.Bool("verbose"):
		shared.SetLogLevel(r.logger, log.DebugLevel)
	case cmd.Bool("quiet"):
		shared.SetLogLevel(r.logger, log.ErrorLevel)
	}

	if cmd.IsSet("config") {
		r.configPath = cmd.String("config")
		r.loadConfig = true
	}
	if !r.loadConfig {
		return ctx, nil
	}

	config, err := shared.LoadOrDefault(r.configPath)
	if err != nil {
		return ctx, err
	}
	r.config = config
	r.loadConfig = false
	r.logger.Debug("configuration loaded", "path", r.configPath, "download_dir", config.Download.Dir)
	return ctx, nil
}

// applyOutputDir points the library at --output-dir when the flag is given.
func (r *Runner) applyOutputDir(cmd *cli.Command) {
	if dir := cmd.String("output-dir"); dir != "" {
		r.config.Download.Dir = shared.ExpandPath(dir)
	}
}

// catalogClient returns the injected catalog or builds the YouTube Music client from config.
//
// With OAuth client credentials configured the stored token is required. Without them the
// proxy is called directly and expected to hold its own session.
func (r *Runner) catalogClient(ctx context.Context) (services.Catalog, error) {
	if r.catalog != nil {
		return r.catalog, nil
	}

	yt := r.config.Credentials.YouTube
	opts := []services.Option{services.WithLogger(r.logger)}

	client := r.httpClient
	oauthConfig, err := services.OAuthConfig(yt)
	switch {
	case client != nil:
	case err != nil:
		r.logger.Debug("no OAuth client configured, calling proxy without a token", "error", err)
		client, err = services.NewHTTPClient(ctx, nil, nil, r.logger)
		if err != nil {
			return nil, err
		}
		if _, statErr := os.Stat(yt.TokenPath); statErr == nil {
			opts = append(opts, services.WithAuthFile(yt.TokenPath))
		}
	default:
		client, err = services.NewHTTPClient(ctx, oauthConfig, services.NewTokenStore(yt.TokenPath), r.logger)
		if err != nil {
			return nil, err
		}
	}
	opts = append(opts, services.WithHTTPClient(client))

	r.catalog = services.NewYouTubeService(yt.ProxyURL, opts...)
	return r.catalog, nil
}

// openRuns opens the run history database. History is optional: failures are logged and
// a nil repository is returned.
func (r *Runner) openRuns() (*repositories.RunRepository, func()) {
	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		r.logger.Warn("run history unavailable", "path", r.config.Database.Path, "error", err)
		return nil, func() {}
	}
	return repositories.NewRunRepository(db), func() { db.Close() }
}

// newEngine wires the download engine, organizer and tagger around led.
func (r *Runner) newEngine(catalog services.Catalog, led *ledger.Ledger, runs *repositories.RunRepository) *tasks.SyncEngine {
	cfg := r.config

	fetcher := r.fetcher
	if fetcher == nil {
		fetcher = &download.YTDLPFetcher{Executable: cfg.Download.YTDLPPath, Logger: r.logger}
	}
	downloader := download.NewDownloader(fetcher, download.OptionsFromConfig(cfg.Download), r.logger)
	dispatcher := download.NewDispatcher(downloader, download.DispatcherOpts{
		Workers:   cfg.Download.MaxConcurrent,
		RateLimit: cfg.Download.RateLimit,
	}, r.logger)

	opts := tasks.EngineOpts{
		Catalog:    catalog,
		Ledger:     led,
		Dispatcher: dispatcher,
		Organizer:  organizer.New(cfg.Download.Dir, organizer.OptionsFromConfig(cfg.Organize), r.logger),
		Tagger:     r.tagger,
		TempDir:    cfg.TempDir(),
		Logger:     r.logger,
	}
	if runs != nil {
		opts.Runs = runs
	}
	return tasks.NewSyncEngine(opts)
}

// lockLibrary takes the advisory lock on the download directory. A held lock is
// [shared.ErrLocked]; the returned func releases it.
func (r *Runner) lockLibrary() (func(), error) {
	if err := os.MkdirAll(r.config.Download.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}

	lock := flock.New(r.config.LockFile())
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrLocked, lock.Path())
	}

	return func() {
		if err := lock.Unlock(); err != nil {
			r.logger.Warn("failed to release library lock", "path", lock.Path(), "error", err)
		}
	}, nil
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		syncCommand, cleanCommand, statusCommand, historyCommand, exportCommand,
		searchCommand, authCommand, configCommand, doctorCommand, setupCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
