package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ymd/internal/services"
	"github.com/desertthunder/ymd/internal/shared"
	"github.com/desertthunder/ymd/internal/ui"
)

// ErrChecksFailed is returned by doctor when any check fails.
var ErrChecksFailed = errors.New("health checks failed")

// lookPath is exec.LookPath, replaced in tests.
var lookPath = exec.LookPath

type check struct {
	name string
	run  func(ctx context.Context) (string, error)
}

// healthChecker is implemented by catalog clients that can probe their backend.
type healthChecker interface {
	Health(ctx context.Context) (bool, error)
}

// Doctor runs environment checks and reports each result.
func (r *Runner) Doctor(ctx context.Context, cmd *cli.Command) error {
	checks := []check{
		{"Configuration", r.checkConfig},
		{"OAuth credentials", r.checkCredentials},
		{"OAuth token", r.checkToken},
		{"yt-dlp", r.checkYTDLP},
		{"ffmpeg", checkFFmpeg},
		{"Download directory", r.checkDownloadDir},
	}
	if !cmd.Bool("skip-api") {
		checks = append(checks, check{"API connection", r.checkAPI})
	}

	r.writePlainHeader("ymd doctor")
	passed := 0
	for _, c := range checks {
		detail, err := c.run(ctx)
		if err != nil {
			r.writePlain("%s %s: %v\n", ui.Error("✗"), c.name, err)
			continue
		}
		passed++
		r.writePlain("%s %s: %s\n", ui.Success("✓"), c.name, detail)
	}
	if cmd.Bool("skip-api") {
		r.writePlain("%s\n", ui.Muted("Skipping API connection check (--skip-api)"))
	}

	if passed != len(checks) {
		r.writePlainln("%s", ui.Error(fmt.Sprintf("%d check(s) failed (%d/%d passed)", len(checks)-passed, passed, len(checks))))
		return ErrChecksFailed
	}
	return r.writePlainln("%s", ui.Success(fmt.Sprintf("All checks passed (%d/%d)", passed, len(checks))))
}

func (r *Runner) checkConfig(ctx context.Context) (string, error) {
	if _, err := os.Stat(r.configPath); err != nil {
		return fmt.Sprintf("%s not found, using defaults (run 'ymd config init')", r.configPath), nil
	}
	if _, err := shared.LoadConfig(r.configPath); err != nil {
		return "", err
	}
	return r.configPath + " is valid", nil
}

func (r *Runner) checkCredentials(ctx context.Context) (string, error) {
	if _, err := services.OAuthConfig(r.config.Credentials.YouTube); err != nil {
		return "", fmt.Errorf("%w (set credentials.youtube.client_id/client_secret or YMD_CLIENT_ID/YMD_CLIENT_SECRET)", err)
	}
	return "client id and secret configured", nil
}

func (r *Runner) checkToken(ctx context.Context) (string, error) {
	store := services.NewTokenStore(r.config.Credentials.YouTube.TokenPath)
	tok, err := store.Load()
	if err != nil {
		return "", err
	}
	if !tok.Valid() && tok.RefreshToken != "" {
		return store.Path() + " present (expired, will refresh on next use)", nil
	}
	return store.Path() + " present", nil
}

func (r *Runner) checkYTDLP(ctx context.Context) (string, error) {
	name := r.config.Download.YTDLPPath
	if name == "" {
		name = "yt-dlp"
	}
	path, err := lookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s not found in PATH", name)
	}
	return path, nil
}

func checkFFmpeg(ctx context.Context) (string, error) {
	path, err := lookPath("ffmpeg")
	if err != nil {
		return "", errors.New("ffmpeg not found in PATH, required for audio conversion")
	}
	return path, nil
}

// checkDownloadDir passes for a writable directory or one that does not exist yet.
func (r *Runner) checkDownloadDir(ctx context.Context) (string, error) {
	dir := r.config.Download.Dir
	info, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) {
		return dir + " does not exist yet (created on first sync)", nil
	}
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s exists but is not a directory", dir)
	}

	probe := filepath.Join(dir, ".ymd_write_test")
	if err := os.WriteFile(probe, []byte("ok"), 0644); err != nil {
		return "", fmt.Errorf("%s is not writable: %w", dir, err)
	}
	os.Remove(probe)
	return dir + " is writable", nil
}

func (r *Runner) checkAPI(ctx context.Context) (string, error) {
	catalog, err := r.catalogClient(ctx)
	if err != nil {
		return "", err
	}

	session := ""
	if hc, ok := catalog.(healthChecker); ok {
		authenticated, err := hc.Health(ctx)
		if err != nil {
			return "", err
		}
		if !authenticated {
			session = ", proxy reports no stored session"
		}
	}

	// Listing playlists is the call that actually needs a valid session.
	segments, err := catalog.ListSegments(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s reachable (%d playlists%s)", catalog.Name(), len(segments), session), nil
}
