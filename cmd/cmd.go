// submodule cmd contains command definitions
package main

import (
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ymd/internal/formatter"
	"github.com/desertthunder/ymd/internal/repositories"
)

func outputDirFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "output-dir",
		Aliases: []string{"o"},
		Usage:   "Library directory (overrides download.dir)",
	}
}

// syncCommand mirrors favorites and playlists into the library
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Download new tracks from liked songs and playlists",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "liked",
				Aliases: []string{"l"},
				Usage:   "Sync liked songs",
			},
			&cli.StringSliceFlag{
				Name:    "playlist-id",
				Aliases: []string{"p"},
				Usage:   "Playlist ID to sync (repeatable)",
			},
			&cli.BoolFlag{
				Name:    "force",
				Aliases: []string{"f"},
				Usage:   "Download every track, including ones already in the library",
			},
			outputDirFlag(),
		},
		Action: r.Sync,
	}
}

// cleanCommand removes files that left every synced source
func cleanCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "clean",
		Usage: "Remove tracks that are no longer in your liked songs or playlists",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "dry-run",
				Aliases: []string{"n"},
				Usage:   "Only show what would be removed",
			},
			&cli.BoolFlag{
				Name:    "yes",
				Aliases: []string{"y"},
				Usage:   "Skip confirmation prompt",
			},
			outputDirFlag(),
		},
		Action: r.Clean,
	}
}

// statusCommand summarizes the library
func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show last sync, library size, synced playlists and recent runs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "format",
				Usage: "Output format: table, json or csv",
				Value: formatter.FormatTable,
			},
			&cli.IntFlag{
				Name:  "runs",
				Usage: "Number of recent runs to show",
				Value: 5,
			},
			outputDirFlag(),
		},
		Action: r.Status,
	}
}

// historyCommand lists stored runs or shows one run's failures
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List recent sync and clean runs, or show one run in detail",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "id"},
		},
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of runs to list",
				Value: repositories.DefaultListLimit,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.History,
	}
}

// exportCommand writes the ledger's records to a file
func exportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export the list of downloaded tracks as CSV or JSON",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "format",
				Usage: "Export format: csv or json",
				Value: formatter.FormatCSV,
			},
			&cli.StringFlag{
				Name:  "file",
				Usage: "Destination file (default: library.<format> in the working directory)",
			},
			outputDirFlag(),
		},
		Action: r.Export,
	}
}

// searchCommand searches the catalog and optionally downloads results
func searchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "search",
		Usage: "Search YouTube Music and optionally download results",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "query"},
		},
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of results",
				Value: 20,
			},
			&cli.BoolFlag{
				Name:    "download",
				Aliases: []string{"d"},
				Usage:   "Pick results to download into the library",
			},
			&cli.IntSliceFlag{
				Name:  "select",
				Usage: "Result numbers to download without the picker (with --download)",
			},
			outputDirFlag(),
		},
		Action: r.Search,
	}
}

// authCommand runs the OAuth device login
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authenticate with YouTube Music using a device code",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-browser",
				Usage: "Print the verification URL without opening a browser",
			},
		},
		Action: r.Auth,
	}
}

// configCommand views and edits the configuration file
func configCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "View or edit configuration",
		Commands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Print the effective configuration",
				Action: r.ConfigShow,
			},
			{
				Name:   "init",
				Usage:  "Create a default configuration file",
				Action: r.ConfigInit,
			},
			{
				Name:      "set",
				Usage:     "Set one or more values (key=value)",
				ArgsUsage: "key=value [key=value...]",
				Action:    r.ConfigSet,
			},
			{
				Name:   "keys",
				Usage:  "List settable keys",
				Action: r.ConfigKeys,
			},
		},
	}
}

// doctorCommand checks the local environment
func doctorCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "doctor",
		Usage: "Run system health checks",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "skip-api",
				Usage: "Skip API connection check (offline mode)",
			},
		},
		Action: r.Doctor,
	}
}

// setupCommand handles setup operations for the run history database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Initialize the run history database and run migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the most recent database migration",
				Action: r.RollbackDatabase,
			},
		},
	}
}
