package download

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/ymd/internal/shared"
)

// scriptedFetcher fails with the queued errors in order, then writes <id>.<ext>.
type scriptedFetcher struct {
	mu       sync.Mutex
	failures []error
	ext      string
	calls    int
}

func (f *scriptedFetcher) Fetch(ctx context.Context, req Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return err
	}
	ext := f.ext
	if ext == "" {
		ext = "m4a"
	}
	return os.WriteFile(filepath.Join(req.Dir, req.ID+"."+ext), []byte("audio"), 0644)
}

type recordingSleeper struct {
	waits []time.Duration
}

func (r *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return ctx.Err()
}

func newTestDownloader(f Fetcher, maxRetries int) (*Downloader, *recordingSleeper) {
	d := NewDownloader(f, Options{AudioFormat: "best", FallbackFormat: "mp3", MaxRetries: maxRetries}, nil)
	s := &recordingSleeper{}
	d.sleep = s.sleep
	return d, s
}

func TestDownloader(t *testing.T) {
	t.Run("403 then success waits once", func(t *testing.T) {
		f := &scriptedFetcher{failures: []error{errors.New("HTTP Error 403: Forbidden")}}
		d, s := newTestDownloader(f, 3)

		path, err := d.Download(context.Background(), "v1", t.TempDir())
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if filepath.Base(path) != "v1.m4a" {
			t.Errorf("unexpected path %s", path)
		}
		if len(s.waits) != 1 {
			t.Fatalf("expected exactly one wait, got %v", s.waits)
		}
		if s.waits[0] != 2*time.Second {
			t.Errorf("expected 2s wait, got %v", s.waits[0])
		}
		if f.calls != 2 {
			t.Errorf("expected 2 fetch calls, got %d", f.calls)
		}
	})

	t.Run("permanent failure never waits", func(t *testing.T) {
		f := &scriptedFetcher{failures: []error{errors.New("video not found")}}
		d, s := newTestDownloader(f, 3)

		_, err := d.Download(context.Background(), "v1", t.TempDir())

		var dlErr *shared.DownloadError
		if !errors.As(err, &dlErr) {
			t.Fatalf("expected DownloadError, got %v", err)
		}
		if dlErr.ID != "v1" || dlErr.Attempts != 1 {
			t.Errorf("unexpected error fields %+v", dlErr)
		}
		if len(s.waits) != 0 {
			t.Errorf("expected no waits, got %v", s.waits)
		}
		if f.calls != 1 {
			t.Errorf("expected one fetch call, got %d", f.calls)
		}
	})

	t.Run("exhausted retries back off 2 4 8", func(t *testing.T) {
		transient := errors.New("connection reset by peer")
		f := &scriptedFetcher{failures: []error{transient, transient, transient, transient, transient}}
		d, s := newTestDownloader(f, 3)

		_, err := d.Download(context.Background(), "v1", t.TempDir())
		if !errors.Is(err, transient) {
			t.Fatalf("expected last error to be carried, got %v", err)
		}

		want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
		if len(s.waits) != len(want) {
			t.Fatalf("expected waits %v, got %v", want, s.waits)
		}
		for i := range want {
			if s.waits[i] != want[i] {
				t.Errorf("wait %d: expected %v, got %v", i, want[i], s.waits[i])
			}
		}
		if f.calls != 4 {
			t.Errorf("expected 4 attempts, got %d", f.calls)
		}
	})

	t.Run("zero retries", func(t *testing.T) {
		f := &scriptedFetcher{failures: []error{Retryable(errors.New("flaky"))}}
		d, s := newTestDownloader(f, 0)

		if _, err := d.Download(context.Background(), "v1", t.TempDir()); err == nil {
			t.Fatal("expected failure")
		}
		if len(s.waits) != 0 || f.calls != 1 {
			t.Errorf("expected a single attempt without waiting, got %d calls %v waits", f.calls, s.waits)
		}
	})

	t.Run("missing output is permanent", func(t *testing.T) {
		d, s := newTestDownloader(FetcherFunc(func(ctx context.Context, req Request) error { return nil }), 3)

		_, err := d.Download(context.Background(), "v1", t.TempDir())
		if !errors.Is(err, shared.ErrFileNotFound) {
			t.Fatalf("expected ErrFileNotFound, got %v", err)
		}
		if len(s.waits) != 0 {
			t.Errorf("expected no waits, got %v", s.waits)
		}
	})

	t.Run("cancellation during backoff", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		f := &scriptedFetcher{failures: []error{errors.New("HTTP Error 429")}}
		d, _ := newTestDownloader(f, 3)
		d.sleep = func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		}

		_, err := d.Download(ctx, "v1", t.TempDir())
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if f.calls != 1 {
			t.Errorf("expected no attempt after cancellation, got %d", f.calls)
		}
	})

	t.Run("missing id", func(t *testing.T) {
		d, _ := newTestDownloader(&scriptedFetcher{}, 3)
		if _, err := d.Download(context.Background(), "", t.TempDir()); !errors.Is(err, shared.ErrMissingID) {
			t.Errorf("expected ErrMissingID, got %v", err)
		}
	})
}

func TestLocate(t *testing.T) {
	touch := func(t *testing.T, dir, name string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}

	t.Run("priority order", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, dir, "v1.webm")
		touch(t, dir, "v1.opus")
		touch(t, dir, "v1.mp3")

		got, err := Locate(dir, "v1")
		if err != nil || filepath.Base(got) != "v1.mp3" {
			t.Errorf("expected v1.mp3, got %s (%v)", got, err)
		}
	})

	t.Run("stem scan skips side files", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, dir, "v1.webp")
		touch(t, dir, "v1.flac.part")
		touch(t, dir, "v1.flac")
		touch(t, dir, "v10.mp3")

		got, err := Locate(dir, "v1")
		if err != nil || filepath.Base(got) != "v1.flac" {
			t.Errorf("expected v1.flac, got %s (%v)", got, err)
		}
	})

	t.Run("nothing produced", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, dir, "v1.jpg")

		if _, err := Locate(dir, "v1"); !errors.Is(err, shared.ErrFileNotFound) {
			t.Errorf("expected ErrFileNotFound, got %v", err)
		}
	})
}

func TestBackoff(t *testing.T) {
	d := NewDownloader(&scriptedFetcher{}, Options{BackoffUnit: time.Millisecond}, nil)
	for attempt, want := range map[int]time.Duration{1: 2 * time.Millisecond, 2: 4 * time.Millisecond, 3: 8 * time.Millisecond} {
		if got := d.Backoff(attempt); got != want {
			t.Errorf("Backoff(%d) = %v, want %v", attempt, got, want)
		}
	}
}
