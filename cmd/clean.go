package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ymd/internal/formatter"
	"github.com/desertthunder/ymd/internal/ledger"
	"github.com/desertthunder/ymd/internal/tasks"
	"github.com/desertthunder/ymd/internal/ui"
)

// Clean removes library files whose items left every synced source.
func (r *Runner) Clean(ctx context.Context, cmd *cli.Command) error {
	r.applyOutputDir(cmd)
	dryRun := cmd.Bool("dry-run")

	led := ledger.Load(r.config.StateFile(), r.logger)
	if led.TotalItems() == 0 {
		return r.writePlain("%s\n", ui.Warning("No sync state found. Run 'ymd sync' first."))
	}

	catalog, err := r.catalogClient(ctx)
	if err != nil {
		return err
	}

	unlock, err := r.lockLibrary()
	if err != nil {
		return err
	}
	defer unlock()

	runs, closeRuns := r.openRuns()
	defer closeRuns()

	// Reload under the lock so a sync that finished meanwhile is seen.
	led = ledger.Load(r.config.StateFile(), r.logger)
	engine := r.newEngine(catalog, led, runs)

	r.writePlainHeader("Checking for orphaned tracks")
	updates := make(chan tasks.ProgressUpdate, progressBuffer)
	done := newProgressView(r.output, false).watch(updates)
	orphans, err := engine.FindOrphans(ctx, updates)
	close(updates)
	<-done
	if err != nil {
		return err
	}

	if len(orphans) == 0 {
		return r.writePlainln("%s", ui.Success("✓ No orphaned tracks found. Everything is in sync!"))
	}

	r.writePlainln("%s\n%s", ui.Warning(fmt.Sprintf("Found %d orphaned track(s):", len(orphans))), formatter.RecordsTable(orphans))

	if dryRun {
		return r.writePlainln("Dry run - no files were removed")
	}
	if !cmd.Bool("yes") && !ui.Confirm(r.input, r.output, fmt.Sprintf("Remove %d orphaned track(s)?", len(orphans))) {
		return r.writePlain("Cancelled\n")
	}

	report, err := engine.RemoveOrphans(ctx, orphans, nil)
	if report != nil {
		for _, e := range report.Errors {
			r.writePlain("%s\n", ui.Error("✗ "+e.Error()))
		}
		r.writePlainln("%s", ui.Success(fmt.Sprintf("✓ Removed %d file(s)", report.Removed)))
	}
	return err
}
