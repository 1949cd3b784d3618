package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ymd/internal/formatter"
	"github.com/desertthunder/ymd/internal/ledger"
	"github.com/desertthunder/ymd/internal/models"
	"github.com/desertthunder/ymd/internal/repositories"
	"github.com/desertthunder/ymd/internal/shared"
)

// Status prints the ledger summary and the most recent runs.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	r.applyOutputDir(cmd)

	led := ledger.Load(r.config.StateFile(), r.logger)
	status := formatter.Status{
		DownloadDir: r.config.Download.Dir,
		LastSync:    led.LastSync(),
		TotalItems:  led.TotalItems(),
		Segments:    led.Segments(),
	}

	if limit := int(cmd.Int("runs")); limit > 0 && r.historyExists() {
		runs, closeRuns := r.openRuns()
		defer closeRuns()
		if runs != nil {
			recent, err := runs.List(limit)
			if err != nil {
				r.logger.Warn("could not read run history", "error", err)
			}
			status.Runs = recent
		}
	}

	return formatter.WriteStatus(r.output, status, cmd.String("format"), r.now())
}

// historyExists reports whether the run history database has been created. Read-only
// commands do not create it.
func (r *Runner) historyExists() bool {
	path := r.config.Database.Path
	if path == ":memory:" {
		return true
	}
	_, err := os.Stat(path)
	return err == nil
}

// History lists stored runs, or shows one run and its failures when an id is given.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	if !r.historyExists() {
		return r.writePlain("No run history yet. Run 'ymd sync' or 'ymd setup database' first.\n")
	}

	runs, closeRuns := r.openRuns()
	defer closeRuns()
	if runs == nil {
		return fmt.Errorf("%w: run history database could not be opened", shared.ErrServiceUnavailable)
	}

	if id := cmd.StringArg("id"); id != "" {
		run, err := runs.Get(id)
		if errors.Is(err, repositories.ErrNotFound) {
			return fmt.Errorf("%w: run %s", shared.ErrInvalidArgument, id)
		}
		if err != nil {
			return err
		}
		if cmd.Bool("json") {
			return r.writeJSON(run, true)
		}
		return r.printRun(run)
	}

	list, err := runs.List(int(cmd.Int("limit")))
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(list, true)
	}
	if len(list) == 0 {
		return r.writePlain("No runs recorded\n")
	}
	return r.writePlain("%s\n", formatter.RunsTable(list, r.now()))
}

func (r *Runner) printRun(run *models.SyncRun) error {
	r.writePlainHeader(fmt.Sprintf("%s run %s", run.Kind, run.ID))
	r.writePlain("Library:    %s\n", run.DownloadDir)
	r.writePlain("Started:    %s (%s)\n", run.StartedAt.Local().Format(time.DateTime), formatter.RelativeTime(&run.StartedAt, r.now()))
	if run.FinishedAt != nil {
		r.writePlain("Duration:   %s\n", run.Duration().Round(time.Millisecond))
	}
	switch run.Kind {
	case models.RunKindClean:
		r.writePlain("Removed:    %d of %d\n", run.Removed, run.Total)
	default:
		r.writePlain("Result:     total=%d downloaded=%d skipped=%d failed=%d\n", run.Total, run.Downloaded, run.Skipped, run.Failed)
	}
	if run.Error != "" {
		r.writePlain("Error:      %s\n", run.Error)
	}
	if len(run.Failures) > 0 {
		return r.writePlainln("%s", formatter.FailuresTable(run.Failures))
	}
	return nil
}

// Export writes every ledger record to a CSV or JSON file.
func (r *Runner) Export(ctx context.Context, cmd *cli.Command) error {
	r.applyOutputDir(cmd)

	format := cmd.String("format")
	path := cmd.String("file")
	if path == "" {
		path = "library." + format
	}

	led := ledger.Load(r.config.StateFile(), r.logger)
	records := led.Records()
	written, err := formatter.WriteRecordsExport(records, format, path)
	if err != nil {
		return err
	}
	r.logger.Info("exported library", "records", len(records), "path", written)
	return r.writePlain("✓ Exported %d track(s) to %s\n", len(records), written)
}
