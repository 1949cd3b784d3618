package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/ymd/internal/shared"
)

const (
	DefaultMaxRetries  = 3
	DefaultBackoffBase = 2
)

// ExtensionPriority is the probe order for the file a fetch produced.
var ExtensionPriority = []string{"mp3", "m4a", "opus", "webm", "ogg"}

// Side files a fetch leaves next to the audio. Never returned as the result.
var ignoredExtensions = []string{".part", ".ytdl", ".tmp", ".temp", ".jpg", ".jpeg", ".png", ".webp", ".json"}

// Options configures a [Downloader].
type Options struct {
	AudioFormat    string
	FallbackFormat string
	// MaxRetries is the number of attempts after the first. Negative means none.
	MaxRetries int
	// BackoffUnit is one time unit of the 2, 4, 8 ... wait sequence. Zero means one second.
	BackoffUnit time.Duration
}

// OptionsFromConfig maps the [download] config section onto Options.
func OptionsFromConfig(c shared.DownloadConfig) Options {
	return Options{
		AudioFormat:    c.AudioFormat,
		FallbackFormat: c.FallbackFormat,
		MaxRetries:     c.MaxRetries,
	}
}

// Downloader fetches a single item with classified retry.
type Downloader struct {
	fetcher Fetcher
	opts    Options
	logger  *log.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewDownloader wraps fetcher with the retry policy in opts.
func NewDownloader(fetcher Fetcher, opts Options, logger *log.Logger) *Downloader {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.BackoffUnit <= 0 {
		opts.BackoffUnit = time.Second
	}
	if logger == nil {
		logger = shared.DiscardLogger()
	}
	return &Downloader{fetcher: fetcher, opts: opts, logger: logger, sleep: sleepContext}
}

// Backoff is the wait before the retry that follows the given 1-based attempt.
func (d *Downloader) Backoff(attempt int) time.Duration {
	wait := d.opts.BackoffUnit
	for i := 0; i < attempt; i++ {
		wait *= DefaultBackoffBase
	}
	return wait
}

// Download fetches id into dir and returns the path of the produced file.
//
// Retryable failures are retried up to MaxRetries times, waiting [Downloader.Backoff]
// between attempts. A permanent failure returns at once. Terminal failures are
// [*shared.DownloadError]. Files left in dir after a failure are not removed.
func (d *Downloader) Download(ctx context.Context, id, dir string) (string, error) {
	if id == "" {
		return "", &shared.DownloadError{Err: shared.ErrMissingID}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", &shared.DownloadError{ID: id, Err: fmt.Errorf("failed to create download directory: %w", err)}
	}

	req := Request{ID: id, Dir: dir, AudioFormat: d.opts.AudioFormat, FallbackFormat: d.opts.FallbackFormat}
	maxAttempts := d.opts.MaxRetries + 1

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := d.fetcher.Fetch(ctx, req)
		if err == nil {
			path, err := Locate(dir, id)
			if err != nil {
				return "", &shared.DownloadError{ID: id, Attempts: attempt, Err: err}
			}
			d.logger.Debug("downloaded", "id", id, "path", path, "attempt", attempt)
			return path, nil
		}
		lastErr = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", &shared.DownloadError{ID: id, Attempts: attempt, Err: ctxErr}
		}
		if Classify(err) != ClassRetryable || attempt == maxAttempts {
			return "", &shared.DownloadError{ID: id, Attempts: attempt, Err: lastErr}
		}

		wait := d.Backoff(attempt)
		d.logger.Warn("download attempt failed, retrying",
			"id", id, "attempt", attempt, "of", maxAttempts, "wait", wait, "error", err)
		if err := d.sleep(ctx, wait); err != nil {
			return "", &shared.DownloadError{ID: id, Attempts: attempt, Err: errors.Join(lastErr, err)}
		}
	}
	return "", &shared.DownloadError{ID: id, Attempts: maxAttempts, Err: lastErr}
}

// Locate finds the file a fetch produced for id in dir: first by the known extensions
// in priority order, then by any regular file whose stem is id.
func Locate(dir, id string) (string, error) {
	for _, ext := range ExtensionPriority {
		candidate := filepath.Join(dir, id+"."+ext)
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
			return candidate, nil
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrFileNotFound, err)
	}
	for _, entry := range entries {
		name := entry.Name()
		ext := filepath.Ext(name)
		if !entry.Type().IsRegular() || slices.Contains(ignoredExtensions, strings.ToLower(ext)) {
			continue
		}
		if strings.TrimSuffix(name, ext) == id {
			return filepath.Join(dir, name), nil
		}
	}
	return "", fmt.Errorf("%w for %s in %s", shared.ErrFileNotFound, id, dir)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
