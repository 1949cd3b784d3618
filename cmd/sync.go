package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ymd/internal/formatter"
	"github.com/desertthunder/ymd/internal/ledger"
	"github.com/desertthunder/ymd/internal/models"
	"github.com/desertthunder/ymd/internal/services"
	"github.com/desertthunder/ymd/internal/shared"
	"github.com/desertthunder/ymd/internal/tasks"
	"github.com/desertthunder/ymd/internal/ui"
)

// Sync downloads everything new in the selected sources.
//
// Without --liked or --playlist-id the user picks sources interactively; a non-interactive
// session must name them.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	r.applyOutputDir(cmd)

	catalog, err := r.catalogClient(ctx)
	if err != nil {
		return err
	}

	req := tasks.SyncRequest{
		Favorites:  cmd.Bool("liked"),
		SegmentIDs: cmd.StringSlice("playlist-id"),
		Force:      cmd.Bool("force"),
	}
	if !req.Favorites && len(req.SegmentIDs) == 0 {
		if !r.interactive() {
			return fmt.Errorf("%w: pass --liked or --playlist-id", shared.ErrMissingArgument)
		}
		if req, err = r.pickSources(ctx, catalog, req.Force); err != nil {
			if errors.Is(err, ui.ErrCancelled) {
				return r.writePlain("No playlists selected\n")
			}
			return err
		}
	}

	unlock, err := r.lockLibrary()
	if err != nil {
		return err
	}
	defer unlock()

	runs, closeRuns := r.openRuns()
	defer closeRuns()

	led := ledger.Load(r.config.StateFile(), r.logger)
	engine := r.newEngine(catalog, led, runs)

	r.writePlainHeader("Syncing to " + r.config.Download.Dir)
	if req.Force {
		r.writePlain("Force mode: every track will be downloaded again\n")
	}

	updates := make(chan tasks.ProgressUpdate, progressBuffer)
	done := newProgressView(r.output, r.interactive()).watch(updates)
	report, err := engine.Sync(ctx, req, updates)
	close(updates)
	<-done

	if report != nil {
		r.printSyncReport(report)
	}
	return err
}

// pickSources lists favorites and playlists in the picker and turns the selection into a request.
func (r *Runner) pickSources(ctx context.Context, catalog services.Catalog, force bool) (tasks.SyncRequest, error) {
	req := tasks.SyncRequest{Force: force}

	choices, err := r.pick("Select playlists to sync", func() ([]ui.Choice, error) {
		segments, err := catalog.ListSegments(ctx)
		if err != nil {
			return nil, err
		}
		choices := []ui.Choice{{ID: models.FavoritesSegmentID, Label: "Liked Music", Description: "Your liked songs"}}
		for _, s := range segments {
			if s.ID == models.FavoritesSegmentID {
				continue
			}
			choices = append(choices, ui.Choice{
				ID:          s.ID,
				Label:       s.Title,
				Description: fmt.Sprintf("%s tracks", humanize.Comma(int64(s.ItemCount))),
			})
		}
		return choices, nil
	})
	if err != nil {
		return req, err
	}
	if len(choices) == 0 {
		return req, ui.ErrCancelled
	}

	for _, c := range choices {
		if c.ID == models.FavoritesSegmentID {
			req.Favorites = true
			continue
		}
		req.SegmentIDs = append(req.SegmentIDs, c.ID)
	}
	return req, nil
}

func (r *Runner) printSyncReport(report *tasks.SyncReport) {
	for _, err := range report.SegmentErrors {
		r.writePlain("%s\n", ui.Warning("⚠ "+err.Error()))
	}
	if report.Total > 0 && report.Total == report.Skipped {
		r.writePlainln("%s", ui.Success("✓ Everything is up to date!"))
	}
	if len(report.Failures) > 0 {
		r.writePlainln("Failed tracks\n%s", formatter.FailuresTable(report.Failures))
	}
	r.writePlainln("%s", ui.Summary(report.Total, report.Downloaded, report.Skipped, report.Failed))
}
