package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ymd/internal/shared"
)

const redacted = "********"

// ConfigShow prints the effective configuration as TOML with the client secret masked.
func (r *Runner) ConfigShow(ctx context.Context, cmd *cli.Command) error {
	shown := *r.config
	if shown.Credentials.YouTube.ClientSecret != "" {
		shown.Credentials.YouTube.ClientSecret = redacted
	}

	r.writePlain("# %s\n", r.configPath)
	if err := toml.NewEncoder(r.output).Encode(shown); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ConfigInit writes the default configuration file.
func (r *Runner) ConfigInit(ctx context.Context, cmd *cli.Command) error {
	if err := shared.CreateConfigFile(r.configPath); err != nil {
		return err
	}
	r.logger.Info("config file created", "path", r.configPath)
	return r.writePlain("✓ Created default config at %s\n", r.configPath)
}

// ConfigSet applies key=value pairs to the configuration file, creating it when missing.
func (r *Runner) ConfigSet(ctx context.Context, cmd *cli.Command) error {
	pairs := cmd.Args().Slice()
	if len(pairs) == 0 {
		return fmt.Errorf("%w: key=value (see 'ymd config keys')", shared.ErrMissingArgument)
	}

	config, err := shared.LoadConfigFile(r.configPath)
	if errors.Is(err, shared.ErrMissingConfig) {
		config, err = shared.DefaultConfig(), nil
	}
	if err != nil {
		return err
	}

	for _, kv := range pairs {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("%w: %q (use key=value)", shared.ErrInvalidArgument, kv)
		}
		if err := config.Set(key, value); err != nil {
			return err
		}
	}
	if err := config.Validate(); err != nil {
		return &shared.ConfigError{Path: r.configPath, Err: err}
	}
	if err := config.Save(r.configPath); err != nil {
		return err
	}

	r.logger.Info("configuration updated", "path", r.configPath, "keys", len(pairs))
	return r.writePlain("✓ Configuration updated (%s)\n", r.configPath)
}

// ConfigKeys lists the keys accepted by config set.
func (r *Runner) ConfigKeys(ctx context.Context, cmd *cli.Command) error {
	for _, key := range shared.Keys() {
		r.writePlain("%s\n", key)
	}
	return nil
}
