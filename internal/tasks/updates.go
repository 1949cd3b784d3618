package tasks

import (
	"fmt"

	"github.com/desertthunder/ymd/internal/download"
	"github.com/desertthunder/ymd/internal/ledger"
	"github.com/desertthunder/ymd/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
	Err     error  // Item failure, set on Download updates when the item did not land
}

// Operation phase enumeration
type Phase int

const (
	FetchCatalog Phase = iota
	FilterItems
	Download
	Persist
	Cleanup
	FindOrphans
	RemoveOrphans
)

func (p Phase) String() string {
	switch p {
	case FetchCatalog:
		return "fetch_catalog"
	case FilterItems:
		return "filter_items"
	case Download:
		return "download"
	case Persist:
		return "persist"
	case Cleanup:
		return "cleanup"
	case FindOrphans:
		return "find_orphans"
	case RemoveOrphans:
		return "remove_orphans"
	default:
		return ""
	}
}

func fetchSegmentUpdate(step, total int, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchCatalog,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Fetching %s...", name),
	}
}

func segmentFailedUpdate(step, total int, name string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchCatalog,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("✗ %s: %v", name, err),
	}
}

// filterUpdate carries the work list in Data so the CLI can show it before downloads start.
func filterUpdate(pending []models.CatalogItem, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FilterItems,
		Step:    len(pending),
		Total:   total,
		Message: fmt.Sprintf("%d new of %d items", len(pending), total),
		Data:    pending,
	}
}

func downloadUpdate(step, total int, res download.Result, failure error) ProgressUpdate {
	msg := fmt.Sprintf("[%d/%d] ✓ %s", step, total, res.Item.Label())
	if failure != nil {
		msg = fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, res.Item.Label(), failure)
	}
	return ProgressUpdate{
		Phase:   Download,
		Step:    step,
		Total:   total,
		Message: msg,
		Data:    res,
		Err:     failure,
	}
}

func persistUpdate(path string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Persist,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Saving sync state to %s", path),
	}
}

func cleanupUpdate(removed int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Cleanup,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Removed %d temporary file(s)", removed),
	}
}

func findOrphansUpdate(step, total int, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FindOrphans,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Checking %s...", name),
	}
}

func removeOrphanUpdate(step, total int, rec ledger.Record, err error) ProgressUpdate {
	msg := fmt.Sprintf("[%d/%d] removed %s", step, total, rec.FilePath)
	if err != nil {
		msg = fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, rec.FilePath, err)
	}
	return ProgressUpdate{
		Phase:   RemoveOrphans,
		Step:    step,
		Total:   total,
		Message: msg,
		Data:    rec,
	}
}
