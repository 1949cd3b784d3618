package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/desertthunder/ymd/internal/ledger"
	"github.com/desertthunder/ymd/internal/models"
	"github.com/desertthunder/ymd/internal/shared"
)

// orphanSources lists every segment that can vouch for a record: favorites, every segment
// with a sync record, and every segment named in record provenance.
func (e *SyncEngine) orphanSources() []source {
	sources := []source{{id: models.FavoritesSegmentID, name: favoritesName}}
	seen := map[string]bool{models.FavoritesSegmentID: true}

	for _, seg := range e.ledger.Segments() {
		if !seen[seg.ID] {
			seen[seg.ID] = true
			sources = append(sources, source{id: seg.ID, name: seg.Name})
		}
	}

	var extra []string
	for _, rec := range e.ledger.Records() {
		for _, id := range rec.Segments {
			if !seen[id] {
				seen[id] = true
				extra = append(extra, id)
			}
		}
	}
	slices.Sort(extra)
	for _, id := range extra {
		sources = append(sources, source{id: id, name: id})
	}
	return sources
}

// FindOrphans returns the ledger records no longer present in the remote catalog.
//
// A segment whose listing fails is unknown: records acquired through it are never reported,
// and while any segment is unknown neither are records with no provenance. When every
// listing fails the error is returned.
func (e *SyncEngine) FindOrphans(ctx context.Context, progress chan<- ProgressUpdate) ([]ledger.Record, error) {
	sources := e.orphanSources()
	live := map[string]struct{}{}
	unknown := map[string]bool{}
	var errs []error

	for i, src := range sources {
		e.sendProgress(progress, findOrphansUpdate(i+1, len(sources), src.name))

		items, err := e.fetch(ctx, src)
		if err != nil {
			e.logger.Warn("segment unavailable, its items are kept", "segment", src.id, "error", err)
			unknown[src.id] = true
			errs = append(errs, &shared.CatalogSegmentError{SegmentID: src.id, Err: err})
			continue
		}
		for _, item := range items {
			if item.ID != "" {
				live[item.ID] = struct{}{}
			}
		}
	}

	if len(errs) == len(sources) {
		err := errors.Join(errs...)
		if allAuthErrors(errs) {
			return nil, &shared.AuthenticationError{Err: err}
		}
		return nil, fmt.Errorf("%w: no catalog segment could be listed: %v", shared.ErrServiceUnavailable, err)
	}

	var orphans []ledger.Record
	for _, rec := range e.ledger.FindOrphans(live) {
		if len(unknown) > 0 && len(rec.Segments) == 0 {
			continue
		}
		if slices.ContainsFunc(rec.Segments, func(id string) bool { return unknown[id] }) {
			continue
		}
		orphans = append(orphans, rec)
	}
	return orphans, nil
}

// RemoveOrphans deletes each orphan's file and record, persisting the ledger after every
// removal. A file that is already gone still has its record removed. Empty directories left
// behind are pruned up to the library root.
//
// Per-file errors are collected in the report; a ledger write failure stops the run.
func (e *SyncEngine) RemoveOrphans(ctx context.Context, orphans []ledger.Record, progress chan<- ProgressUpdate) (*CleanReport, error) {
	run := &models.SyncRun{
		ID:          shared.GenerateID(),
		Kind:        models.RunKindClean,
		DownloadDir: filepath.Dir(e.ledger.Path()),
		StartedAt:   e.now(),
		Total:       len(orphans),
	}
	report := &CleanReport{RunID: run.ID}
	root := filepath.Dir(e.ledger.Path())

	var runErr error
	for i, rec := range orphans {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		err := os.Remove(rec.FilePath)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			err = fmt.Errorf("failed to remove %s: %w", rec.FilePath, err)
			report.Errors = append(report.Errors, err)
			run.Failures = append(run.Failures, models.RunFailure{ItemID: rec.ID, Title: rec.Title, Reason: err.Error()})
			e.logger.Warn("could not remove orphan", "id", rec.ID, "path", rec.FilePath, "error", err)
			e.sendProgress(progress, removeOrphanUpdate(i+1, len(orphans), rec, err))
			continue
		}
		pruneEmptyDirs(filepath.Dir(rec.FilePath), root)

		e.ledger.Remove(rec.ID)
		if err := e.ledger.Persist(); err != nil {
			runErr = fmt.Errorf("removed %s but state was not saved: %w", rec.FilePath, err)
			break
		}
		report.Removed++
		e.sendProgress(progress, removeOrphanUpdate(i+1, len(orphans), rec, nil))
	}

	run.Removed = report.Removed
	run.Failed = len(report.Errors)
	if runErr != nil {
		run.Error = runErr.Error()
	}
	run.Finish(e.now())
	if e.runs != nil {
		if err := e.runs.Create(run); err != nil {
			e.logger.Warn("could not store run history", "run", run.ID, "error", err)
		}
	}
	return report, runErr
}

// pruneEmptyDirs removes dir and its empty parents, stopping at root or the first
// directory that still has entries.
func pruneEmptyDirs(dir, root string) {
	root = filepath.Clean(root)
	for {
		dir = filepath.Clean(dir)
		rel, err := filepath.Rel(root, dir)
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
