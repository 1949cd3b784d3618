package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/desertthunder/ymd/internal/download"
	"github.com/desertthunder/ymd/internal/ledger"
	"github.com/desertthunder/ymd/internal/models"
	"github.com/desertthunder/ymd/internal/organizer"
	"github.com/desertthunder/ymd/internal/shared"
	testutil "github.com/desertthunder/ymd/internal/testing"
)

// fakeDownloader writes "<dir>/<id>.mp3" unless the id is listed in fail.
type fakeDownloader struct {
	mu    sync.Mutex
	fail  map[string]error
	ghost map[string]bool // report success without writing a file
	calls map[string]int
}

func (f *fakeDownloader) Download(ctx context.Context, id, dir string) (string, error) {
	f.mu.Lock()
	f.calls[id]++
	err := f.fail[id]
	ghost := f.ghost[id]
	f.mu.Unlock()

	if err != nil {
		return "", &shared.DownloadError{ID: id, Attempts: 1, Err: err}
	}
	path := filepath.Join(dir, id+".mp3")
	if ghost {
		return path, nil
	}
	if err := os.WriteFile(path, []byte("audio:"+id), 0644); err != nil {
		return "", err
	}
	return path, nil
}

func (f *fakeDownloader) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

type memoryRuns struct {
	runs []*models.SyncRun
	err  error
}

func (m *memoryRuns) Create(run *models.SyncRun) error {
	if m.err != nil {
		return m.err
	}
	m.runs = append(m.runs, run)
	return nil
}

type fixture struct {
	root       string
	catalog    *testutil.FakeCatalog
	downloader *fakeDownloader
	tagger     *testutil.FakeTagger
	runs       *memoryRuns
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{
		root:       t.TempDir(),
		catalog:    testutil.NewFakeCatalog(),
		downloader: &fakeDownloader{fail: map[string]error{}, ghost: map[string]bool{}, calls: map[string]int{}},
		tagger:     &testutil.FakeTagger{},
		runs:       &memoryRuns{},
	}
}

// engine builds a fresh engine over the ledger document on disk, as a new process would.
func (f *fixture) engine() *SyncEngine {
	l := ledger.Load(filepath.Join(f.root, ledger.FileName), nil)
	return NewSyncEngine(EngineOpts{
		Catalog:    f.catalog,
		Ledger:     l,
		Dispatcher: download.NewDispatcher(f.downloader, download.DispatcherOpts{Workers: 2}, nil),
		Organizer:  organizer.New(f.root, organizer.Options{}, nil),
		Tagger:     f.tagger,
		Runs:       f.runs,
	})
}

func item(id, title, artist string) models.CatalogItem {
	return models.CatalogItem{ID: id, Title: title, Artist: artist}
}

func TestSync(t *testing.T) {
	ctx := context.Background()

	t.Run("downloads new items then skips them", func(t *testing.T) {
		f := newFixture(t)
		f.catalog.Favorites = []models.CatalogItem{item("v1", "Song A", "Artist"), item("v2", "Song B", "Artist")}

		report, err := f.engine().Sync(ctx, SyncRequest{Favorites: true}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.Total != 2 || report.Downloaded != 2 || report.Skipped != 0 || report.Failed != 0 {
			t.Errorf("expected total=2 downloaded=2 skipped=0 failed=0, got %+v", report)
		}

		l := ledger.Load(filepath.Join(f.root, ledger.FileName), nil)
		for _, id := range []string{"v1", "v2"} {
			if !l.IsAcquired(id) {
				t.Errorf("expected %s in ledger", id)
			}
		}
		testutil.AssertFileExists(t, filepath.Join(f.root, "Unknown", "Artist", "Artist - Song A.mp3"))
		testutil.AssertNotExists(t, filepath.Join(f.root, ".tmp"))
		if l.LastSync() == nil {
			t.Error("expected global sync time")
		}
		if segs := l.Segments(); len(segs) != 1 || segs[0].ID != models.FavoritesSegmentID || segs[0].TrackCount != 2 {
			t.Errorf("expected favorites segment sync, got %+v", segs)
		}

		again, err := f.engine().Sync(ctx, SyncRequest{Favorites: true}, nil)
		if err != nil {
			t.Fatalf("unexpected error on rerun: %v", err)
		}
		if again.Downloaded != 0 || again.Skipped != 2 {
			t.Errorf("expected downloaded=0 skipped=2, got %+v", again)
		}
		if n := f.downloader.total(); n != 2 {
			t.Errorf("expected 2 fetches across both runs, got %d", n)
		}
	})

	t.Run("requires a source", func(t *testing.T) {
		f := newFixture(t)
		if _, err := f.engine().Sync(ctx, SyncRequest{}, nil); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("failed item is retried next run", func(t *testing.T) {
		f := newFixture(t)
		f.catalog.Favorites = []models.CatalogItem{item("v1", "A", "X"), item("v2", "B", "X"), item("v3", "C", "X")}
		f.downloader.fail["v2"] = errors.New("video unavailable")

		report, err := f.engine().Sync(ctx, SyncRequest{Favorites: true}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.Downloaded != 2 || report.Failed != 1 {
			t.Errorf("expected 2 downloaded and 1 failed, got %+v", report)
		}
		if len(report.Failures) != 1 || report.Failures[0].ItemID != "v2" {
			t.Errorf("expected v2 failure, got %+v", report.Failures)
		}

		delete(f.downloader.fail, "v2")
		again, err := f.engine().Sync(ctx, SyncRequest{Favorites: true}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if again.Downloaded != 1 || again.Skipped != 2 {
			t.Errorf("expected only v2 fetched, got %+v", again)
		}
	})

	t.Run("skips failing segment", func(t *testing.T) {
		f := newFixture(t)
		f.catalog.AddSegment("PL1", "Road Trip", item("a", "A", "X"))
		f.catalog.AddSegment("PL2", "Broken", item("b", "B", "X"))
		f.catalog.SegmentErrs["PL2"] = errors.New("playlist not found")

		report, err := f.engine().Sync(ctx, SyncRequest{SegmentIDs: []string{"PL1", "PL2"}}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.Downloaded != 1 {
			t.Errorf("expected 1 download, got %d", report.Downloaded)
		}
		if len(report.SegmentErrors) != 1 {
			t.Fatalf("expected 1 segment error, got %v", report.SegmentErrors)
		}
		var segErr *shared.CatalogSegmentError
		if !errors.As(report.SegmentErrors[0], &segErr) || segErr.SegmentID != "PL2" {
			t.Errorf("expected CatalogSegmentError for PL2, got %v", report.SegmentErrors[0])
		}

		l := ledger.Load(filepath.Join(f.root, ledger.FileName), nil)
		segs := l.Segments()
		if len(segs) != 1 || segs[0].Name != "Road Trip" {
			t.Errorf("expected only PL1 recorded with its name, got %+v", segs)
		}
	})

	t.Run("fails when every source is unauthorized", func(t *testing.T) {
		f := newFixture(t)
		f.catalog.FavoritesErr = &shared.AuthenticationError{Err: shared.ErrNotAuthenticated}

		report, err := f.engine().Sync(ctx, SyncRequest{Favorites: true}, nil)
		if !shared.IsAuthError(err) {
			t.Fatalf("expected auth error, got %v", err)
		}
		if report != nil {
			t.Errorf("expected no report, got %+v", report)
		}
		if len(f.runs.runs) != 1 || f.runs.runs[0].Error == "" {
			t.Errorf("expected failed run recorded, got %+v", f.runs.runs)
		}
	})

	t.Run("deduplicates across sources", func(t *testing.T) {
		f := newFixture(t)
		common := item("s", "Shared", "X")
		f.catalog.Favorites = []models.CatalogItem{common}
		f.catalog.AddSegment("PL1", "Mix", common, item("m", "Mine", "X"))

		report, err := f.engine().Sync(ctx, SyncRequest{Favorites: true, SegmentIDs: []string{"PL1"}}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.Total != 2 || report.Downloaded != 2 {
			t.Errorf("expected 2 unique items, got %+v", report)
		}
		if n := f.downloader.total(); n != 2 {
			t.Errorf("expected 2 fetches, got %d", n)
		}

		rec, ok := ledger.Load(filepath.Join(f.root, ledger.FileName), nil).Get("s")
		if !ok {
			t.Fatal("expected shared item recorded")
		}
		if len(rec.Segments) != 2 {
			t.Errorf("expected provenance from both sources, got %v", rec.Segments)
		}
	})

	t.Run("tag failure is not fatal", func(t *testing.T) {
		f := newFixture(t)
		f.tagger.Err = &shared.MetadataError{Path: "x", Err: errors.New("unsupported")}
		f.catalog.Favorites = []models.CatalogItem{item("v1", "A", "X")}

		report, err := f.engine().Sync(ctx, SyncRequest{Favorites: true}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.Downloaded != 1 || report.Failed != 0 {
			t.Errorf("expected untagged file to count as downloaded, got %+v", report)
		}
	})

	t.Run("organize failure is not recorded", func(t *testing.T) {
		f := newFixture(t)
		f.downloader.ghost["v1"] = true
		f.catalog.Favorites = []models.CatalogItem{item("v1", "A", "X")}

		report, err := f.engine().Sync(ctx, SyncRequest{Favorites: true}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.Failed != 1 {
			t.Errorf("expected 1 failure, got %+v", report)
		}
		if ledger.Load(filepath.Join(f.root, ledger.FileName), nil).IsAcquired("v1") {
			t.Error("item that was never placed must not be recorded")
		}
	})

	t.Run("organize failure is reported on the download update", func(t *testing.T) {
		f := newFixture(t)
		f.downloader.ghost["v1"] = true
		f.catalog.Favorites = []models.CatalogItem{item("v1", "A", "X")}

		progress := make(chan ProgressUpdate, 32)
		if _, err := f.engine().Sync(ctx, SyncRequest{Favorites: true}, progress); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		close(progress)

		failed := 0
		for u := range progress {
			if u.Phase == Download && u.Err != nil {
				failed++
			}
		}
		if failed != 1 {
			t.Errorf("expected 1 failed download update, got %d", failed)
		}
	})

	t.Run("missing id counts as failure", func(t *testing.T) {
		f := newFixture(t)
		f.catalog.Favorites = []models.CatalogItem{item("", "Unavailable", "X"), item("v1", "A", "X")}

		report, err := f.engine().Sync(ctx, SyncRequest{Favorites: true}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.Total != 2 || report.Downloaded != 1 || report.Failed != 1 {
			t.Errorf("expected 1 downloaded and 1 failed, got %+v", report)
		}
	})

	t.Run("force replaces previous copy", func(t *testing.T) {
		f := newFixture(t)
		f.catalog.Favorites = []models.CatalogItem{item("v1", "A", "X")}

		if _, err := f.engine().Sync(ctx, SyncRequest{Favorites: true}, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		report, err := f.engine().Sync(ctx, SyncRequest{Favorites: true, Force: true}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.Downloaded != 1 || report.Skipped != 0 {
			t.Errorf("expected forced download, got %+v", report)
		}

		dir := filepath.Join(f.root, "Unknown", "X")
		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatalf("failed to read %s: %v", dir, err)
		}
		if len(entries) != 1 || entries[0].Name() != "X - A.mp3" {
			t.Errorf("expected a single copy named X - A.mp3, got %v", entries)
		}
	})

	t.Run("ledger write failure is surfaced", func(t *testing.T) {
		f := newFixture(t)
		f.catalog.Favorites = []models.CatalogItem{item("v1", "A", "X")}

		blocker := filepath.Join(f.root, "state")
		testutil.MustWriteFile(t, blocker, "not a directory")
		e := f.engine()
		e.ledger = ledger.New(filepath.Join(blocker, ledger.FileName), nil)

		report, err := e.Sync(ctx, SyncRequest{Favorites: true}, nil)
		if err == nil {
			t.Fatal("expected persist error")
		}
		if report == nil || report.Downloaded != 1 {
			t.Errorf("expected report alongside the error, got %+v", report)
		}
	})

	t.Run("records run history", func(t *testing.T) {
		f := newFixture(t)
		f.catalog.Favorites = []models.CatalogItem{item("v1", "A", "X"), item("v2", "B", "X")}
		f.downloader.fail["v2"] = errors.New("not found")

		report, err := f.engine().Sync(ctx, SyncRequest{Favorites: true}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(f.runs.runs) != 1 {
			t.Fatalf("expected 1 run, got %d", len(f.runs.runs))
		}
		run := f.runs.runs[0]
		if run.ID != report.RunID || run.Kind != models.RunKindSync {
			t.Errorf("unexpected run %+v", run)
		}
		if run.Downloaded != 1 || run.Failed != 1 || len(run.Failures) != 1 || run.FinishedAt == nil {
			t.Errorf("run summary does not match report: %+v", run)
		}
	})

	t.Run("run history errors are ignored", func(t *testing.T) {
		f := newFixture(t)
		f.runs.err = errors.New("database is locked")
		f.catalog.Favorites = []models.CatalogItem{item("v1", "A", "X")}

		if _, err := f.engine().Sync(ctx, SyncRequest{Favorites: true}, nil); err != nil {
			t.Errorf("expected run storage failure to be swallowed, got %v", err)
		}
	})

	t.Run("progress never blocks", func(t *testing.T) {
		f := newFixture(t)
		f.catalog.Favorites = []models.CatalogItem{item("v1", "A", "X"), item("v2", "B", "X")}

		progress := make(chan ProgressUpdate)
		if _, err := f.engine().Sync(ctx, SyncRequest{Favorites: true}, progress); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("progress reports phases", func(t *testing.T) {
		f := newFixture(t)
		f.catalog.Favorites = []models.CatalogItem{item("v1", "A", "X")}

		progress := make(chan ProgressUpdate, 32)
		if _, err := f.engine().Sync(ctx, SyncRequest{Favorites: true}, progress); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		close(progress)

		seen := map[Phase]bool{}
		for u := range progress {
			seen[u.Phase] = true
		}
		for _, p := range []Phase{FetchCatalog, FilterItems, Download, Cleanup, Persist} {
			if !seen[p] {
				t.Errorf("expected a %s update", p)
			}
		}
	})

	t.Run("playlist layout uses segment name", func(t *testing.T) {
		f := newFixture(t)
		f.catalog.AddSegment("PL1", "Road Trip", item("a", "A", "X"))

		e := f.engine()
		e.organizer = organizer.New(f.root, organizer.Options{Layout: shared.LayoutPlaylist}, nil)
		if _, err := e.Sync(ctx, SyncRequest{SegmentIDs: []string{"PL1"}}, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		testutil.AssertFileExists(t, filepath.Join(f.root, "Road Trip", "X - A.mp3"))
	})
}

func TestAcquire(t *testing.T) {
	f := newFixture(t)
	e := f.engine()

	report := e.Acquire(context.Background(), []models.CatalogItem{item("s1", "Found", "Y")}, nil)
	if report.Downloaded != 1 || len(report.Placed) != 1 {
		t.Fatalf("expected 1 placed item, got %+v", report)
	}
	testutil.AssertFileExists(t, report.Placed[0].Path)
	if e.Ledger().IsAcquired("s1") {
		t.Error("search downloads must not be recorded")
	}
	if _, ok := f.tagger.Tagged[filepath.Join(e.tempDir, "s1.mp3")]; !ok {
		t.Errorf("expected temp file to be tagged, got %v", f.tagger.Tagged)
	}
}

func TestFindOrphans(t *testing.T) {
	ctx := context.Background()

	// seed writes a ledger with A via favorites, B and C via PL1 and D with no provenance.
	seed := func(f *fixture) {
		l := ledger.New(filepath.Join(f.root, ledger.FileName), nil)
		l.RecordSegmentSync(models.FavoritesSegmentID, "Liked Music", 1)
		l.RecordSegmentSync("PL1", "Mix", 2)
		l.Record("A", filepath.Join(f.root, "A.mp3"), "A", "X", models.FavoritesSegmentID)
		l.Record("B", filepath.Join(f.root, "B.mp3"), "B", "X", "PL1")
		l.Record("C", filepath.Join(f.root, "C.mp3"), "C", "X", "PL1")
		l.Record("D", filepath.Join(f.root, "D.mp3"), "D", "X")
		if err := l.Persist(); err != nil {
			t.Fatalf("failed to persist seed ledger: %v", err)
		}
	}

	ids := func(records []ledger.Record) []string {
		out := make([]string, 0, len(records))
		for _, r := range records {
			out = append(out, r.ID)
		}
		return out
	}

	t.Run("reports records missing remotely", func(t *testing.T) {
		f := newFixture(t)
		seed(f)
		f.catalog.Favorites = []models.CatalogItem{item("A", "A", "X")}
		f.catalog.AddSegment("PL1", "Mix", item("C", "C", "X"))

		orphans, err := f.engine().FindOrphans(ctx, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := fmt.Sprint(ids(orphans)); got != "[B D]" {
			t.Errorf("expected [B D], got %s", got)
		}
	})

	t.Run("failed segment hides its records", func(t *testing.T) {
		f := newFixture(t)
		seed(f)
		f.catalog.Favorites = []models.CatalogItem{}
		f.catalog.AddSegment("PL1", "Mix")
		f.catalog.SegmentErrs["PL1"] = errors.New("service unavailable")

		orphans, err := f.engine().FindOrphans(ctx, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := fmt.Sprint(ids(orphans)); got != "[A]" {
			t.Errorf("expected only [A], got %s", got)
		}
	})

	t.Run("segment known only through provenance is checked", func(t *testing.T) {
		f := newFixture(t)
		l := ledger.New(filepath.Join(f.root, ledger.FileName), nil)
		l.Record("E", filepath.Join(f.root, "E.mp3"), "E", "X", "PL9")
		if err := l.Persist(); err != nil {
			t.Fatal(err)
		}
		f.catalog.AddSegment("PL9", "Hidden", item("E", "E", "X"))

		orphans, err := f.engine().FindOrphans(ctx, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(orphans) != 0 {
			t.Errorf("expected no orphans, got %v", ids(orphans))
		}
	})

	t.Run("every listing failing is an error", func(t *testing.T) {
		f := newFixture(t)
		seed(f)
		f.catalog.FavoritesErr = errors.New("connection refused")
		f.catalog.SegmentErrs["PL1"] = errors.New("connection refused")

		if _, err := f.engine().FindOrphans(ctx, nil); !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})
}

func TestRemoveOrphans(t *testing.T) {
	ctx := context.Background()

	t.Run("removes files, records and empty dirs", func(t *testing.T) {
		f := newFixture(t)
		dir := filepath.Join(f.root, "Rock", "X")
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
		keep := testutil.MustWriteFile(t, filepath.Join(f.root, "Rock", "keep.mp3"), "k")
		gone := testutil.MustWriteFile(t, filepath.Join(dir, "X - B.mp3"), "b")

		l := ledger.New(filepath.Join(f.root, ledger.FileName), nil)
		l.Record("B", gone, "B", "X")
		l.Record("M", filepath.Join(f.root, "missing.mp3"), "M", "X")
		if err := l.Persist(); err != nil {
			t.Fatal(err)
		}

		e := f.engine()
		orphans := e.Ledger().Records()
		report, err := e.RemoveOrphans(ctx, orphans, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.Removed != 2 || len(report.Errors) != 0 {
			t.Errorf("expected 2 removed, got %+v", report)
		}

		testutil.AssertNotExists(t, gone)
		testutil.AssertNotExists(t, dir)
		testutil.AssertFileExists(t, keep)

		reloaded := ledger.Load(filepath.Join(f.root, ledger.FileName), nil)
		if reloaded.TotalItems() != 0 {
			t.Errorf("expected empty ledger on disk, got %d records", reloaded.TotalItems())
		}
		if len(f.runs.runs) != 1 || f.runs.runs[0].Kind != models.RunKindClean || f.runs.runs[0].Removed != 2 {
			t.Errorf("expected clean run recorded, got %+v", f.runs.runs)
		}
	})

	t.Run("cancelled context stops", func(t *testing.T) {
		f := newFixture(t)
		l := ledger.New(filepath.Join(f.root, ledger.FileName), nil)
		l.Record("B", filepath.Join(f.root, "B.mp3"), "B", "X")
		if err := l.Persist(); err != nil {
			t.Fatal(err)
		}

		cctx, cancel := context.WithCancel(ctx)
		cancel()

		e := f.engine()
		report, err := e.RemoveOrphans(cctx, e.Ledger().Records(), nil)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if report.Removed != 0 || !e.Ledger().IsAcquired("B") {
			t.Error("nothing should be removed after cancellation")
		}
	})
}

func TestPruneEmptyDirs(t *testing.T) {
	root := t.TempDir()
	deep := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(deep, 0755); err != nil {
		t.Fatal(err)
	}
	testutil.MustWriteFile(t, filepath.Join(root, "a", "file"), "x")

	pruneEmptyDirs(deep, root)

	testutil.AssertNotExists(t, filepath.Join(root, "a", "b"))
	testutil.AssertDirExists(t, filepath.Join(root, "a"))

	pruneEmptyDirs(root, root)
	testutil.AssertDirExists(t, root)
}
