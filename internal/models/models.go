package models

import (
	"errors"
	"fmt"
	"time"
)

// FavoritesSegmentID is the segment id under which the liked-songs list is tracked.
const FavoritesSegmentID = "LM"

// CatalogItem is one remote media entry.
type CatalogItem struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Album    string `json:"album,omitempty"`
	Genre    string `json:"genre,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// Label is "Artist - Title" for display.
func (c CatalogItem) Label() string {
	switch {
	case c.Artist == "":
		return c.Title
	case c.Title == "":
		return c.Artist
	default:
		return c.Artist + " - " + c.Title
	}
}

// Metadata returns the item's tagging and placement fields.
func (c CatalogItem) Metadata() Metadata {
	return Metadata{Title: c.Title, Artist: c.Artist, Album: c.Album, Genre: c.Genre}
}

// Segment is a named sub-collection of the remote catalog.
type Segment struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	ItemCount int    `json:"item_count"`
}

// Metadata is the normalized subset of a [CatalogItem] written into tags and used to build paths.
// Any field may be empty. Segment is the display name of the segment the item was
// synced through, used by the playlist layout.
type Metadata struct {
	Title   string
	Artist  string
	Album   string
	Genre   string
	Segment string
}

// Run kinds stored in [SyncRun.Kind].
const (
	RunKindSync  = "sync"
	RunKindClean = "clean"
)

var (
	ErrMissingRunID   = errors.New("run id is required")
	ErrInvalidRunKind = errors.New("run kind must be sync or clean")
)

// SyncRun is the persisted summary of one sync or clean invocation.
type SyncRun struct {
	ID          string       `json:"id"`
	Kind        string       `json:"kind"`
	DownloadDir string       `json:"download_dir"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  *time.Time   `json:"finished_at,omitempty"`
	Total       int          `json:"total"`
	Downloaded  int          `json:"downloaded"`
	Skipped     int          `json:"skipped"`
	Failed      int          `json:"failed"`
	Removed     int          `json:"removed"`
	Error       string       `json:"error,omitempty"`
	Failures    []RunFailure `json:"failures,omitempty"`
}

// RunFailure is one item that failed during a run.
type RunFailure struct {
	ItemID string `json:"item_id"`
	Title  string `json:"title"`
	Reason string `json:"reason"`
}

// Validate checks the fields required before a run can be stored.
func (r *SyncRun) Validate() error {
	if r.ID == "" {
		return ErrMissingRunID
	}
	if r.Kind != RunKindSync && r.Kind != RunKindClean {
		return fmt.Errorf("%w: got %q", ErrInvalidRunKind, r.Kind)
	}
	if r.StartedAt.IsZero() {
		return errors.New("run start time is required")
	}
	return nil
}

// Duration is the wall time of a finished run, zero while it is still open.
func (r *SyncRun) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Finish stamps the run with its end time.
func (r *SyncRun) Finish(at time.Time) {
	r.FinishedAt = &at
}
