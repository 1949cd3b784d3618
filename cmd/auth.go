package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ymd/internal/services"
	"github.com/desertthunder/ymd/internal/shared"
	"github.com/desertthunder/ymd/internal/ui"
)

// Auth runs the OAuth device flow and saves the token to credentials.youtube.token_path.
func (r *Runner) Auth(ctx context.Context, cmd *cli.Command) error {
	yt := r.config.Credentials.YouTube
	oauthConfig, err := services.OAuthConfig(yt)
	if err != nil {
		return err
	}

	login := &services.DeviceLogin{
		Config:     oauthConfig,
		Store:      services.NewTokenStore(yt.TokenPath),
		HTTPClient: r.httpClient,
	}
	if login.HTTPClient == nil {
		login.HTTPClient = services.NewRetryClient(r.logger, 3).StandardClient()
	}

	r.writePlainHeader("YouTube Music Authentication")
	r.logger.Info("requesting device code")

	da, err := login.Start(ctx)
	if err != nil {
		return err
	}

	url := da.VerificationURI
	if da.VerificationURIComplete != "" {
		url = da.VerificationURIComplete
	}
	r.writePlain("1. Open %s\n", url)
	r.writePlain("2. Enter the code: %s\n", ui.Success(da.UserCode))
	r.writePlain("Waiting for approval...\n")

	if !cmd.Bool("no-browser") {
		if err := shared.OpenBrowser(url); err != nil {
			r.logger.Warn("could not open browser", "error", err)
		}
	}

	if _, err := login.Wait(ctx, da); err != nil {
		return err
	}

	r.logger.Info("token saved", "path", yt.TokenPath)
	r.writePlain("%s\n", ui.Success("✓ Authentication complete!"))
	return r.writePlain("Token saved to: %s\nYou can now use 'ymd sync' to download music.\n", yt.TokenPath)
}
