package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/ymd/internal/download"
	"github.com/desertthunder/ymd/internal/ledger"
	"github.com/desertthunder/ymd/internal/models"
	"github.com/desertthunder/ymd/internal/organizer"
	"github.com/desertthunder/ymd/internal/services"
	"github.com/desertthunder/ymd/internal/shared"
	"github.com/desertthunder/ymd/internal/tagger"
)

// favoritesName is the display name of the liked-songs segment.
const favoritesName = "Liked Music"

// RunRecorder stores run summaries. [repositories.RunRepository] satisfies it.
type RunRecorder interface {
	Create(run *models.SyncRun) error
}

// SyncRequest selects what [SyncEngine.Sync] mirrors.
type SyncRequest struct {
	Favorites  bool     // include the liked-songs list
	SegmentIDs []string // playlists to include
	Force      bool     // download every item, acquired or not
}

// Placement is one item moved into the library.
type Placement struct {
	ItemID string
	Path   string
}

// SyncReport is the outcome of one [SyncEngine.Sync] or [SyncEngine.Acquire] call.
type SyncReport struct {
	RunID         string
	Total         int
	Downloaded    int
	Skipped       int
	Failed        int
	Failures      []models.RunFailure
	Placed        []Placement
	SegmentErrors []error
}

// CleanReport is the outcome of [SyncEngine.RemoveOrphans].
type CleanReport struct {
	RunID   string
	Removed int
	Errors  []error
}

// EngineOpts wires a [SyncEngine]. Tagger, Runs and Logger are optional.
type EngineOpts struct {
	Catalog    services.Catalog
	Ledger     *ledger.Ledger
	Dispatcher *download.Dispatcher
	Organizer  *organizer.Organizer
	Tagger     tagger.Tagger
	Runs       RunRecorder
	TempDir    string
	Logger     *log.Logger
}

// SyncEngine owns one ledger for the duration of a run. Every ledger and organizer call
// happens on the goroutine that called Sync or RemoveOrphans.
type SyncEngine struct {
	catalog    services.Catalog
	ledger     *ledger.Ledger
	dispatcher *download.Dispatcher
	organizer  *organizer.Organizer
	tagger     tagger.Tagger
	runs       RunRecorder
	tempDir    string
	logger     *log.Logger
	now        func() time.Time
}

// NewSyncEngine creates a SyncEngine from opts.
func NewSyncEngine(opts EngineOpts) *SyncEngine {
	if opts.Logger == nil {
		opts.Logger = shared.DiscardLogger()
	}
	if opts.TempDir == "" && opts.Ledger != nil {
		opts.TempDir = filepath.Join(filepath.Dir(opts.Ledger.Path()), ".tmp")
	}
	return &SyncEngine{
		catalog:    opts.Catalog,
		ledger:     opts.Ledger,
		dispatcher: opts.Dispatcher,
		organizer:  opts.Organizer,
		tagger:     opts.Tagger,
		runs:       opts.Runs,
		tempDir:    opts.TempDir,
		logger:     opts.Logger,
		now:        time.Now,
	}
}

// Ledger is the ledger the engine mutates.
func (e *SyncEngine) Ledger() *ledger.Ledger { return e.ledger }

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (e *SyncEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// source is one catalog listing: the favorites list or a single segment.
type source struct {
	id   string
	name string
}

func (s source) favorites() bool { return s.id == models.FavoritesSegmentID }

// work is the de-duplicated item list gathered from all sources.
type work struct {
	items      []models.CatalogItem
	provenance map[string][]string // item id -> segment ids it was listed in
	layoutName map[string]string   // item id -> name of its first segment
	errs       []error
	fetched    int
}

func (e *SyncEngine) fetch(ctx context.Context, src source) ([]models.CatalogItem, error) {
	if src.favorites() {
		return e.catalog.ListFavorites(ctx)
	}
	return e.catalog.ListItems(ctx, src.id)
}

// resolveSources turns a request into named sources. Segment names come from the catalog's
// segment list; when that listing fails the id doubles as the name.
func (e *SyncEngine) resolveSources(ctx context.Context, req SyncRequest) []source {
	var sources []source
	if req.Favorites {
		sources = append(sources, source{id: models.FavoritesSegmentID, name: favoritesName})
	}
	if len(req.SegmentIDs) == 0 {
		return sources
	}

	names := map[string]string{}
	if segments, err := e.catalog.ListSegments(ctx); err != nil {
		e.logger.Warn("could not list segments, using ids as names", "error", err)
	} else {
		for _, s := range segments {
			names[s.ID] = s.Title
		}
	}

	seen := map[string]bool{}
	for _, id := range req.SegmentIDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] || (req.Favorites && id == models.FavoritesSegmentID) {
			continue
		}
		seen[id] = true
		name := names[id]
		if name == "" {
			name = id
		}
		sources = append(sources, source{id: id, name: name})
	}
	return sources
}

// gather lists every source, skipping the ones that fail, and records a segment sync for
// each one that succeeds.
func (e *SyncEngine) gather(ctx context.Context, sources []source, progress chan<- ProgressUpdate) *work {
	w := &work{provenance: map[string][]string{}, layoutName: map[string]string{}}

	for i, src := range sources {
		e.sendProgress(progress, fetchSegmentUpdate(i+1, len(sources), src.name))

		items, err := e.fetch(ctx, src)
		if err != nil {
			segErr := &shared.CatalogSegmentError{SegmentID: src.id, Err: err}
			e.logger.Warn("skipping segment", "segment", src.id, "name", src.name, "error", err)
			e.sendProgress(progress, segmentFailedUpdate(i+1, len(sources), src.name, err))
			w.errs = append(w.errs, segErr)
			continue
		}
		w.fetched++
		e.ledger.RecordSegmentSync(src.id, src.name, len(items))

		for _, item := range items {
			if item.ID == "" {
				w.items = append(w.items, item)
				continue
			}
			if _, dup := w.provenance[item.ID]; !dup {
				w.items = append(w.items, item)
				w.layoutName[item.ID] = src.name
			}
			w.provenance[item.ID] = append(w.provenance[item.ID], src.id)
		}
	}
	return w
}

func allAuthErrors(errs []error) bool {
	if len(errs) == 0 {
		return false
	}
	for _, err := range errs {
		if !shared.IsAuthError(err) {
			return false
		}
	}
	return true
}

// Sync mirrors the requested catalog sources into the library.
//
// Failed segments are skipped. The run fails only when every source was rejected for
// authentication, or when the ledger cannot be written.
func (e *SyncEngine) Sync(ctx context.Context, req SyncRequest, progress chan<- ProgressUpdate) (*SyncReport, error) {
	if !req.Favorites && len(req.SegmentIDs) == 0 {
		return nil, fmt.Errorf("%w: choose favorites or at least one playlist", shared.ErrMissingArgument)
	}

	run := &models.SyncRun{
		ID:          shared.GenerateID(),
		Kind:        models.RunKindSync,
		DownloadDir: filepath.Dir(e.ledger.Path()),
		StartedAt:   e.now(),
	}
	report := &SyncReport{RunID: run.ID}

	w := e.gather(ctx, e.resolveSources(ctx, req), progress)
	report.SegmentErrors = w.errs
	if w.fetched == 0 && allAuthErrors(w.errs) {
		err := &shared.AuthenticationError{Err: errors.Join(w.errs...)}
		e.recordRun(run, report, err)
		return nil, err
	}

	pending := w.items
	if !req.Force {
		pending = e.ledger.FilterNew(w.items)
	}
	for id, segs := range w.provenance {
		e.ledger.AttachSegments(id, segs...)
	}
	report.Total = len(w.items)
	report.Skipped = report.Total - len(pending)
	e.sendProgress(progress, filterUpdate(pending, report.Total))

	if len(pending) > 0 {
		e.acquire(ctx, pending, w, true, report, progress)
	}

	if w.fetched > 0 {
		e.ledger.TouchGlobalSync()
	}
	e.sendProgress(progress, persistUpdate(e.ledger.Path()))
	if err := e.ledger.Persist(); err != nil {
		e.recordRun(run, report, err)
		return report, fmt.Errorf("sync finished but state was not saved: %w", err)
	}

	e.recordRun(run, report, nil)
	return report, nil
}

// Acquire downloads, tags and places items without touching the ledger. Used for one-off
// search downloads.
func (e *SyncEngine) Acquire(ctx context.Context, items []models.CatalogItem, progress chan<- ProgressUpdate) *SyncReport {
	report := &SyncReport{Total: len(items)}
	if len(items) > 0 {
		e.acquire(ctx, items, nil, false, report, progress)
	}
	return report
}

func (e *SyncEngine) acquire(
	ctx context.Context,
	items []models.CatalogItem,
	w *work,
	record bool,
	report *SyncReport,
	progress chan<- ProgressUpdate,
) {
	if n := organizer.CleanupTempDir(e.tempDir, e.logger); n > 0 {
		e.logger.Info("removed leftovers from an earlier run", "count", n)
	}
	if err := os.MkdirAll(e.tempDir, 0755); err != nil {
		e.logger.Warn("could not create temp dir", "path", e.tempDir, "error", err)
	}

	done := 0
	e.dispatcher.Dispatch(ctx, items, e.tempDir, func(res download.Result) {
		done++
		err := e.settle(res, w, record, report)
		e.sendProgress(progress, downloadUpdate(done, len(items), res, err))
	})

	removed := organizer.CleanupTempDir(e.tempDir, e.logger)
	e.sendProgress(progress, cleanupUpdate(removed))
}

// settle applies the effects of one dispatch result: tag, place, record.
func (e *SyncEngine) settle(res download.Result, w *work, record bool, report *SyncReport) error {
	item := res.Item
	fail := func(err error) error {
		report.Failed++
		report.Failures = append(report.Failures, models.RunFailure{ItemID: item.ID, Title: item.Label(), Reason: err.Error()})
		e.logger.Warn("item failed", "id", item.ID, "title", item.Title, "error", err)
		return err
	}

	if !res.OK() {
		return fail(res.Err)
	}

	meta := item.Metadata()
	if w != nil {
		meta.Segment = w.layoutName[item.ID]
	}

	if e.tagger != nil {
		if err := e.tagger.Tag(res.Path, meta); err != nil {
			e.logger.Warn("could not tag file", "id", item.ID, "title", item.Title, "error", err)
		}
	}

	// A forced re-download replaces the previous copy. If placement then fails the record
	// is dropped so the next run fetches the item again.
	replaced := false
	if record {
		if prev, ok := e.ledger.Get(item.ID); ok {
			if err := os.Remove(prev.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
				e.logger.Warn("could not remove previous copy", "id", item.ID, "path", prev.FilePath, "error", err)
			} else {
				replaced = true
			}
		}
	}

	placed, err := e.organizer.Place(res.Path, meta)
	if err != nil {
		if replaced {
			e.ledger.Remove(item.ID)
		}
		return fail(err)
	}

	if record {
		var segments []string
		if w != nil {
			segments = w.provenance[item.ID]
		}
		e.ledger.Record(item.ID, placed, item.Title, item.Artist, segments...)
	}
	report.Downloaded++
	report.Placed = append(report.Placed, Placement{ItemID: item.ID, Path: placed})
	e.logger.Debug("placed item", "id", item.ID, "path", placed)
	return nil
}

func (e *SyncEngine) recordRun(run *models.SyncRun, report *SyncReport, runErr error) {
	if e.runs == nil {
		return
	}
	run.Total = report.Total
	run.Downloaded = report.Downloaded
	run.Skipped = report.Skipped
	run.Failed = report.Failed
	run.Failures = report.Failures
	if runErr != nil {
		run.Error = runErr.Error()
	}
	run.Finish(e.now())

	if err := e.runs.Create(run); err != nil {
		e.logger.Warn("could not store run history", "run", run.ID, "error", err)
	}
}
