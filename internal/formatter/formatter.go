// package formatter renders library state as tables and exports it as CSV or JSON
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/desertthunder/ymd/internal/ledger"
	"github.com/desertthunder/ymd/internal/models"
	"github.com/desertthunder/ymd/internal/shared"
)

// Output formats accepted by [WriteStatus] and [WriteRecordsExport].
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatCSV   = "csv"
)

// Status is the library summary shown by the status command.
type Status struct {
	DownloadDir string               `json:"download_dir"`
	LastSync    *time.Time           `json:"last_sync"`
	TotalItems  int                  `json:"total_items"`
	Segments    []ledger.SegmentSync `json:"-"`
	Runs        []*models.SyncRun    `json:"-"`
}

type statusSegment struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	TrackCount int       `json:"track_count"`
	LastSync   time.Time `json:"last_sync"`
}

type statusRun struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Total      int        `json:"total"`
	Downloaded int        `json:"downloaded"`
	Skipped    int        `json:"skipped"`
	Failed     int        `json:"failed"`
	Removed    int        `json:"removed"`
	Error      string     `json:"error,omitempty"`
}

// MarshalJSON includes segment ids, which the ledger keeps as map keys.
func (s Status) MarshalJSON() ([]byte, error) {
	type plain Status
	out := struct {
		plain
		Segments []statusSegment `json:"segments"`
		Runs     []statusRun     `json:"runs"`
	}{plain: plain(s), Segments: []statusSegment{}, Runs: []statusRun{}}

	for _, seg := range s.Segments {
		out.Segments = append(out.Segments, statusSegment(seg))
	}
	for _, r := range s.Runs {
		out.Runs = append(out.Runs, statusRun{
			ID: r.ID, Kind: r.Kind, StartedAt: r.StartedAt, FinishedAt: r.FinishedAt,
			Total: r.Total, Downloaded: r.Downloaded, Skipped: r.Skipped, Failed: r.Failed,
			Removed: r.Removed, Error: r.Error,
		})
	}
	return json.Marshal(out)
}

// RelativeTime is "3 hours ago" style text, "never" for nil.
func RelativeTime(t *time.Time, now time.Time) string {
	if t == nil {
		return "never"
	}
	return humanize.RelTime(*t, now, "ago", "from now")
}

// WriteStatus renders s to w in format.
func WriteStatus(w io.Writer, s Status, format string, now time.Time) error {
	switch format {
	case "", FormatTable:
		return writeStatusTable(w, s, now)
	case FormatJSON:
		data, err := shared.MarshalJSON(s, true)
		if err != nil {
			return fmt.Errorf("failed to encode status: %w", err)
		}
		_, err = w.Write(data)
		return err
	case FormatCSV:
		data, err := SegmentsToCSV(s.Segments)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("%w: format %q (want table, json or csv)", shared.ErrInvalidArgument, format)
	}
}

func writeStatusTable(w io.Writer, s Status, now time.Time) error {
	var buf bytes.Buffer

	last := "never"
	if s.LastSync != nil {
		last = fmt.Sprintf("%s (%s)", s.LastSync.Local().Format(time.DateTime), RelativeTime(s.LastSync, now))
	}
	fmt.Fprintf(&buf, "Library:    %s\n", s.DownloadDir)
	fmt.Fprintf(&buf, "Last sync:  %s\n", last)
	fmt.Fprintf(&buf, "Items:      %s\n\n", humanize.Comma(int64(s.TotalItems)))

	if len(s.Segments) > 0 {
		buf.WriteString(SegmentsTable(s.Segments, now))
		buf.WriteString("\n\n")
	}
	if len(s.Runs) > 0 {
		buf.WriteString(RunsTable(s.Runs, now))
		buf.WriteString("\n")
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// ItemsTable lists catalog items with a 1-based index column.
func ItemsTable(items []models.CatalogItem) string {
	rows := make([][]string, 0, len(items))
	for i, item := range items {
		rows = append(rows, []string{strconv.Itoa(i + 1), item.Title, item.Artist, item.Album, item.Duration})
	}
	return renderTable(
		[]string{"#", "Title", "Artist", "Album", "Duration"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight},
	)
}

// SegmentsTable lists synced segments with humanized sync times.
func SegmentsTable(segments []ledger.SegmentSync, now time.Time) string {
	rows := make([][]string, 0, len(segments))
	for _, seg := range segments {
		last := seg.LastSync
		rows = append(rows, []string{seg.Name, seg.ID, strconv.Itoa(seg.TrackCount), RelativeTime(&last, now)})
	}
	return renderTable(
		[]string{"Playlist", "ID", "Tracks", "Last Sync"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
	)
}

// RunsTable lists run history, newest first as given.
func RunsTable(runs []*models.SyncRun, now time.Time) string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		started := r.StartedAt
		status := "ok"
		switch {
		case r.Error != "":
			status = "error"
		case r.FinishedAt == nil:
			status = "running"
		case r.Failed > 0:
			status = "partial"
		}
		rows = append(rows, []string{
			RelativeTime(&started, now),
			r.Kind,
			strconv.Itoa(r.Downloaded),
			strconv.Itoa(r.Skipped),
			strconv.Itoa(r.Failed),
			strconv.Itoa(r.Removed),
			r.Duration().Round(time.Second).String(),
			status,
		})
	}
	return renderTable(
		[]string{"Started", "Kind", "Downloaded", "Skipped", "Failed", "Removed", "Took", "Status"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignLeft},
	)
}

// RecordsTable lists ledger records, used for orphan previews.
func RecordsTable(records []ledger.Record) string {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{rec.ID, rec.Title, rec.Artist, rec.FilePath})
	}
	return renderTable([]string{"ID", "Title", "Artist", "Path"}, rows, nil)
}

// FailuresTable lists failed items of a run.
func FailuresTable(failures []models.RunFailure) string {
	rows := make([][]string, 0, len(failures))
	for _, f := range failures {
		rows = append(rows, []string{f.ItemID, f.Title, f.Reason})
	}
	return renderTable([]string{"ID", "Item", "Reason"}, rows, nil)
}

func writeCSV(headers []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// RecordsToCSV converts ledger records to CSV with columns: ID, Title, Artist, Path, Downloaded At, Segments
func RecordsToCSV(records []ledger.Record) ([]byte, error) {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			rec.ID,
			rec.Title,
			rec.Artist,
			rec.FilePath,
			rec.DownloadedAt.UTC().Format(time.RFC3339),
			strings.Join(rec.Segments, ";"),
		})
	}
	return writeCSV([]string{"ID", "Title", "Artist", "Path", "Downloaded At", "Segments"}, rows)
}

// SegmentsToCSV converts segment syncs to CSV with columns: ID, Name, Tracks, Last Sync
func SegmentsToCSV(segments []ledger.SegmentSync) ([]byte, error) {
	rows := make([][]string, 0, len(segments))
	for _, seg := range segments {
		rows = append(rows, []string{seg.ID, seg.Name, strconv.Itoa(seg.TrackCount), seg.LastSync.UTC().Format(time.RFC3339)})
	}
	return writeCSV([]string{"ID", "Name", "Tracks", "Last Sync"}, rows)
}

// WriteRecordsExport writes records to path as csv or json, creating parent directories.
func WriteRecordsExport(records []ledger.Record, format, path string) (string, error) {
	var (
		data []byte
		err  error
	)

	switch format {
	case FormatCSV:
		data, err = RecordsToCSV(records)
	case "", FormatJSON:
		type exported struct {
			ID string `json:"id"`
			ledger.Record
		}
		out := make([]exported, 0, len(records))
		for _, rec := range records {
			out = append(out, exported{ID: rec.ID, Record: rec})
		}
		data, err = shared.MarshalJSON(out, true)
	default:
		return "", fmt.Errorf("%w: export format %q (want json or csv)", shared.ErrInvalidArgument, format)
	}
	if err != nil {
		return "", fmt.Errorf("failed to encode records: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}
	return path, nil
}
