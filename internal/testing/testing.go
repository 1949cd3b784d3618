// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/desertthunder/ymd/internal/models"
)

// FakeCatalog is a test double for [services.Catalog] backed by in-memory lists.
//
// SegmentErrs and FavoritesErr make individual listings fail.
type FakeCatalog struct {
	mu sync.Mutex

	Segments     []models.Segment
	Items        map[string][]models.CatalogItem
	Favorites    []models.CatalogItem
	SearchResult []models.CatalogItem

	SegmentsErr  error
	SegmentErrs  map[string]error
	FavoritesErr error
	SearchErr    error

	Calls []string
}

// NewFakeCatalog returns an empty FakeCatalog.
func NewFakeCatalog() *FakeCatalog {
	return &FakeCatalog{Items: map[string][]models.CatalogItem{}, SegmentErrs: map[string]error{}}
}

// AddSegment registers a segment and its items.
func (f *FakeCatalog) AddSegment(id, title string, items ...models.CatalogItem) *FakeCatalog {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Segments = append(f.Segments, models.Segment{ID: id, Title: title, ItemCount: len(items)})
	f.Items[id] = items
	return f
}

func (f *FakeCatalog) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, call)
}

func (f *FakeCatalog) ListSegments(ctx context.Context) ([]models.Segment, error) {
	f.record("segments")
	if f.SegmentsErr != nil {
		return nil, f.SegmentsErr
	}
	return append([]models.Segment(nil), f.Segments...), nil
}

func (f *FakeCatalog) ListItems(ctx context.Context, segmentID string) ([]models.CatalogItem, error) {
	f.record("items:" + segmentID)
	if err := f.SegmentErrs[segmentID]; err != nil {
		return nil, err
	}
	items, ok := f.Items[segmentID]
	if !ok {
		return nil, errors.New("playlist not found: " + segmentID)
	}
	return append([]models.CatalogItem(nil), items...), nil
}

func (f *FakeCatalog) ListFavorites(ctx context.Context) ([]models.CatalogItem, error) {
	f.record("favorites")
	if f.FavoritesErr != nil {
		return nil, f.FavoritesErr
	}
	return append([]models.CatalogItem(nil), f.Favorites...), nil
}

func (f *FakeCatalog) Search(ctx context.Context, query string, limit int) ([]models.CatalogItem, error) {
	f.record("search:" + query)
	if f.SearchErr != nil {
		return nil, f.SearchErr
	}
	results := f.SearchResult
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return append([]models.CatalogItem(nil), results...), nil
}

func (f *FakeCatalog) Name() string { return "fake" }

// FakeTagger records tag calls and returns Err for each.
type FakeTagger struct {
	mu     sync.Mutex
	Err    error
	Tagged map[string]models.Metadata
}

func (f *FakeTagger) Tag(path string, meta models.Metadata) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Tagged == nil {
		f.Tagged = map[string]models.Metadata{}
	}
	f.Tagged[path] = meta
	return f.Err
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) *LimitedWriter {
	return &LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MustWriteFile creates path with content, failing the test on error.
func MustWriteFile(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write file %s: %v", path, err)
	}
	return path
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertNotExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err == nil {
		t.Errorf("Path should not exist: %s", path)
	}
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Errorf("Directory does not exist: %s", path)
		return
	}
	if !info.IsDir() {
		t.Errorf("Path is not a directory: %s", path)
	}
}
