// Package ledger persists which catalog items have already been acquired.
//
// A [Ledger] is loaded once at the start of a run, mutated only from the
// orchestrating goroutine, and written back with [Ledger.Persist]. It holds
// no locks.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/ymd/internal/models"
	"github.com/desertthunder/ymd/internal/shared"
)

// Version is the schema version written to new documents.
const Version = 1

// FileName is the ledger document name inside a download directory.
const FileName = ".sync_state.json"

// Record is one acquired item.
type Record struct {
	ID           string    `json:"-"`
	FilePath     string    `json:"filepath"`
	Title        string    `json:"title"`
	Artist       string    `json:"artist"`
	DownloadedAt time.Time `json:"downloaded_at"`
	// Segments the item was acquired or last seen through.
	Segments []string `json:"segments,omitempty"`
}

// SegmentSync is informational state about one catalog segment.
type SegmentSync struct {
	ID         string    `json:"-"`
	Name       string    `json:"name"`
	TrackCount int       `json:"track_count"`
	LastSync   time.Time `json:"last_sync"`
}

type document struct {
	Version   int                     `json:"version"`
	LastSync  *time.Time              `json:"last_sync"`
	Tracks    map[string]*Record      `json:"tracks"`
	Playlists map[string]*SegmentSync `json:"playlists"`
}

// Ledger is the in-memory view of the sync state document.
type Ledger struct {
	path   string
	logger *log.Logger
	now    func() time.Time
	doc    document
}

func newDocument() document {
	return document{
		Version:   Version,
		Tracks:    make(map[string]*Record),
		Playlists: make(map[string]*SegmentSync),
	}
}

// New returns an empty ledger backed by path. Nothing is read from disk.
func New(path string, logger *log.Logger) *Ledger {
	if logger == nil {
		logger = shared.DiscardLogger()
	}
	return &Ledger{
		path:   path,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		doc:    newDocument(),
	}
}

// Load reads the ledger document at path.
//
// A missing document yields a fresh ledger. An unreadable or malformed document is
// logged at warn level and also yields a fresh ledger; Load never fails.
func Load(path string, logger *log.Logger) *Ledger {
	l := New(path, logger)

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			l.logger.Warn("failed to read sync state, starting fresh", "path", path, "error", err)
		}
		return l
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		l.logger.Warn("failed to load sync state, starting fresh", "path", path, "error", err)
		return l
	}

	if doc.Version == 0 {
		doc.Version = Version
	}
	if doc.Tracks == nil {
		doc.Tracks = make(map[string]*Record)
	}
	if doc.Playlists == nil {
		doc.Playlists = make(map[string]*SegmentSync)
	}
	for id, rec := range doc.Tracks {
		if rec == nil {
			delete(doc.Tracks, id)
			continue
		}
		rec.ID = id
	}
	for id, seg := range doc.Playlists {
		if seg == nil {
			delete(doc.Playlists, id)
			continue
		}
		seg.ID = id
	}

	l.doc = doc
	return l
}

// Path is the backing document location.
func (l *Ledger) Path() string { return l.path }

// IsAcquired reports whether id has a record.
func (l *Ledger) IsAcquired(id string) bool {
	_, ok := l.doc.Tracks[id]
	return ok
}

// FilterNew returns the items without a record, in input order.
func (l *Ledger) FilterNew(items []models.CatalogItem) []models.CatalogItem {
	fresh := make([]models.CatalogItem, 0, len(items))
	for _, item := range items {
		if !l.IsAcquired(item.ID) {
			fresh = append(fresh, item)
		}
	}
	return fresh
}

// Record upserts the acquisition record for id with the current time.
// Segment provenance already on the record is kept and merged with segments.
func (l *Ledger) Record(id, path, title, artist string, segments ...string) {
	var prior []string
	if existing, ok := l.doc.Tracks[id]; ok {
		prior = existing.Segments
	}
	l.doc.Tracks[id] = &Record{
		ID:           id,
		FilePath:     path,
		Title:        title,
		Artist:       artist,
		DownloadedAt: l.now(),
		Segments:     mergeSegments(prior, segments),
	}
}

// AttachSegments adds segment provenance to an existing record. Unknown ids are ignored.
func (l *Ledger) AttachSegments(id string, segments ...string) {
	if rec, ok := l.doc.Tracks[id]; ok {
		rec.Segments = mergeSegments(rec.Segments, segments)
	}
}

// Remove deletes the record for id if present.
func (l *Ledger) Remove(id string) {
	delete(l.doc.Tracks, id)
}

// FindOrphans returns the records whose id is not in current, sorted by id.
func (l *Ledger) FindOrphans(current map[string]struct{}) []Record {
	var orphans []Record
	for id, rec := range l.doc.Tracks {
		if _, live := current[id]; !live {
			orphans = append(orphans, rec.clone())
		}
	}
	sort.Slice(orphans, func(i, j int) bool { return orphans[i].ID < orphans[j].ID })
	return orphans
}

// RecordSegmentSync stores the name and item count of a segment as of now.
func (l *Ledger) RecordSegmentSync(id, name string, count int) {
	l.doc.Playlists[id] = &SegmentSync{ID: id, Name: name, TrackCount: count, LastSync: l.now()}
}

// TouchGlobalSync sets the global last-sync timestamp to now.
func (l *Ledger) TouchGlobalSync() {
	now := l.now()
	l.doc.LastSync = &now
}

// Persist writes the whole document next to its final location and renames it into place,
// creating parent directories as needed.
func (l *Ledger) Persist() error {
	data, err := shared.MarshalJSON(l.doc, true)
	if err != nil {
		return fmt.Errorf("failed to encode sync state: %w", err)
	}

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create sync state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".sync_state-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp sync state: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write sync state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to flush sync state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close sync state: %w", err)
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace sync state: %w", err)
	}
	return nil
}

// LastSync is the global last-sync time, nil before the first completed run.
func (l *Ledger) LastSync() *time.Time {
	if l.doc.LastSync == nil {
		return nil
	}
	t := *l.doc.LastSync
	return &t
}

// TotalItems is the number of acquired records.
func (l *Ledger) TotalItems() int { return len(l.doc.Tracks) }

// Get returns a copy of the record for id.
func (l *Ledger) Get(id string) (Record, bool) {
	rec, ok := l.doc.Tracks[id]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// Records returns copies of all records sorted by id.
func (l *Ledger) Records() []Record {
	records := make([]Record, 0, len(l.doc.Tracks))
	for _, rec := range l.doc.Tracks {
		records = append(records, rec.clone())
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records
}

// Segments returns the recorded segment syncs sorted by id.
func (l *Ledger) Segments() []SegmentSync {
	segments := make([]SegmentSync, 0, len(l.doc.Playlists))
	for _, seg := range l.doc.Playlists {
		segments = append(segments, *seg)
	}
	sort.Slice(segments, func(i, j int) bool { return segments[i].ID < segments[j].ID })
	return segments
}

func (r *Record) clone() Record {
	c := *r
	c.Segments = slices.Clone(r.Segments)
	return c
}

func mergeSegments(existing, added []string) []string {
	out := slices.Clone(existing)
	for _, s := range added {
		if s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}
