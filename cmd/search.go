package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ymd/internal/formatter"
	"github.com/desertthunder/ymd/internal/ledger"
	"github.com/desertthunder/ymd/internal/models"
	"github.com/desertthunder/ymd/internal/shared"
	"github.com/desertthunder/ymd/internal/tasks"
	"github.com/desertthunder/ymd/internal/ui"
)

// Search queries the catalog for songs and, with --download, fetches the chosen results
// into the library. Search downloads are placed like synced items but not recorded.
func (r *Runner) Search(ctx context.Context, cmd *cli.Command) error {
	r.applyOutputDir(cmd)

	query := strings.TrimSpace(cmd.StringArg("query"))
	if query == "" {
		return fmt.Errorf("%w: search query", shared.ErrMissingArgument)
	}

	catalog, err := r.catalogClient(ctx)
	if err != nil {
		return err
	}

	r.logger.Info("searching youtube music", "query", query)
	results, err := catalog.Search(ctx, query, int(cmd.Int("limit")))
	if err != nil {
		return err
	}

	var downloadable []models.CatalogItem
	for _, item := range results {
		if item.ID != "" {
			downloadable = append(downloadable, item)
		}
	}
	if len(downloadable) == 0 {
		return r.writePlain("%s\n", ui.Warning(fmt.Sprintf("No results found for %q", query)))
	}

	r.writePlain("%s\n", formatter.ItemsTable(downloadable))
	if !cmd.Bool("download") {
		return nil
	}

	selected, err := r.selectResults(downloadable, cmd.IntSlice("select"))
	if errors.Is(err, ui.ErrCancelled) || (err == nil && len(selected) == 0) {
		return r.writePlain("No tracks selected\n")
	}
	if err != nil {
		return err
	}

	// Reuses the ledger's directory for temp files; the ledger itself is not written.
	led := ledger.New(r.config.StateFile(), r.logger)
	engine := r.newEngine(catalog, led, nil)

	updates := make(chan tasks.ProgressUpdate, progressBuffer)
	done := newProgressView(r.output, false).watch(updates)
	report := engine.Acquire(ctx, selected, updates)
	close(updates)
	<-done

	for _, p := range report.Placed {
		r.writePlain("%s\n", ui.Success("Saved: "+p.Path))
	}
	if len(report.Failures) > 0 {
		r.writePlainln("Failed tracks\n%s", formatter.FailuresTable(report.Failures))
	}
	return r.writePlainln("%s", ui.Summary(report.Total, report.Downloaded, report.Skipped, report.Failed))
}

// selectResults picks results by their 1-based table numbers or, without numbers on an
// interactive terminal, through the picker.
func (r *Runner) selectResults(results []models.CatalogItem, numbers []int) ([]models.CatalogItem, error) {
	if len(numbers) > 0 {
		selected := make([]models.CatalogItem, 0, len(numbers))
		for _, n := range numbers {
			if n < 1 || n > len(results) {
				return nil, fmt.Errorf("%w: --select %d (results are numbered 1-%d)", shared.ErrInvalidArgument, n, len(results))
			}
			selected = append(selected, results[n-1])
		}
		return selected, nil
	}

	if !r.interactive() {
		return nil, fmt.Errorf("%w: pass --select to choose results without a terminal", shared.ErrMissingArgument)
	}

	byID := make(map[string]models.CatalogItem, len(results))
	choices := make([]ui.Choice, 0, len(results))
	for _, item := range results {
		byID[item.ID] = item
		desc := item.Album
		if item.Duration != "" {
			desc = strings.TrimSpace(desc + " · " + item.Duration)
		}
		choices = append(choices, ui.Choice{ID: item.ID, Label: item.Label(), Description: desc})
	}

	picked, err := r.pick("Select tracks to download", func() ([]ui.Choice, error) { return choices, nil })
	if err != nil {
		return nil, err
	}
	selected := make([]models.CatalogItem, 0, len(picked))
	for _, c := range picked {
		selected = append(selected, byID[c.ID])
	}
	return selected, nil
}
