package organizer

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"unicode/utf8"

	"github.com/desertthunder/ymd/internal/models"
	"github.com/desertthunder/ymd/internal/shared"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

func TestOrganizer(t *testing.T) {
	meta := models.Metadata{Title: "Song A", Artist: "Band", Album: "First", Genre: "Rock"}

	t.Run("TargetDir layouts", func(t *testing.T) {
		base := "/mirror"
		tc := []struct {
			layout string
			meta   models.Metadata
			want   string
		}{
			{layout: shared.LayoutGenreArtist, meta: meta, want: filepath.Join(base, "Rock", "Band")},
			{layout: shared.LayoutArtistAlbum, meta: meta, want: filepath.Join(base, "Band", "First")},
			{layout: shared.LayoutPlaylist, meta: models.Metadata{Segment: "Road Trip"}, want: filepath.Join(base, "Road Trip")},
			{layout: shared.LayoutGenreArtist, meta: models.Metadata{Artist: "Band"}, want: filepath.Join(base, "Pop", "Band")},
			{layout: shared.LayoutArtistAlbum, meta: models.Metadata{}, want: filepath.Join(base, Placeholder, Placeholder)},
			{layout: "unknown", meta: meta, want: filepath.Join(base, "Rock", "Band")},
		}

		for _, tt := range tc {
			t.Run(tt.layout, func(t *testing.T) {
				o := New(base, Options{Layout: tt.layout, DefaultGenre: "Pop"}, nil)
				if got := o.TargetDir(tt.meta); got != tt.want {
					t.Errorf("TargetDir() = %s, want %s", got, tt.want)
				}
			})
		}
	})

	t.Run("Place moves the file", func(t *testing.T) {
		tmp := t.TempDir()
		src := writeFile(t, filepath.Join(tmp, ".tmp"), "v1.mp3", "audio")
		o := New(filepath.Join(tmp, "out"), Options{}, nil)

		got, err := o.Place(src, meta)
		if err != nil {
			t.Fatalf("Place failed: %v", err)
		}

		want := filepath.Join(tmp, "out", "Rock", "Band", "Band - Song A.mp3")
		if got != want {
			t.Errorf("expected %s, got %s", want, got)
		}
		if _, err := os.Stat(src); !errors.Is(err, os.ErrNotExist) {
			t.Error("source should be gone after move")
		}
		data, err := os.ReadFile(got)
		if err != nil || string(data) != "audio" {
			t.Errorf("expected moved content, got %q (%v)", data, err)
		}
	})

	t.Run("collision appends counter", func(t *testing.T) {
		tmp := t.TempDir()
		o := New(filepath.Join(tmp, "out"), Options{}, nil)

		first, err := o.Place(writeFile(t, tmp, "v1.mp3", "one"), meta)
		if err != nil {
			t.Fatalf("first Place failed: %v", err)
		}
		second, err := o.Place(writeFile(t, tmp, "v2.mp3", "two"), meta)
		if err != nil {
			t.Fatalf("second Place failed: %v", err)
		}
		third, err := o.Place(writeFile(t, tmp, "v3.mp3", "three"), meta)
		if err != nil {
			t.Fatalf("third Place failed: %v", err)
		}

		if first == second || second == third {
			t.Fatalf("expected distinct paths, got %s, %s, %s", first, second, third)
		}
		if !strings.HasSuffix(second, "Band - Song A (1).mp3") {
			t.Errorf("expected (1) suffix, got %s", second)
		}
		if !strings.HasSuffix(third, "Band - Song A (2).mp3") {
			t.Errorf("expected (2) suffix, got %s", third)
		}
		for _, p := range []string{first, second, third} {
			if _, err := os.Stat(p); err != nil {
				t.Errorf("expected %s to exist: %v", p, err)
			}
		}
	})

	t.Run("long names keep counter within budget", func(t *testing.T) {
		tmp := t.TempDir()
		long := models.Metadata{Title: strings.Repeat("t", 300), Artist: "Band"}
		o := New(filepath.Join(tmp, "out"), Options{MaxFilenameLength: 40}, nil)

		var paths []string
		for i := 0; i < 3; i++ {
			p, err := o.Place(writeFile(t, tmp, "src.opus", "x"), long)
			if err != nil {
				t.Fatalf("Place %d failed: %v", i, err)
			}
			paths = append(paths, p)
		}

		for i, p := range paths {
			name := filepath.Base(p)
			if n := utf8.RuneCountInString(name); n > 40 {
				t.Errorf("name %q has %d runes, limit 40", name, n)
			}
			if !strings.HasSuffix(name, ".opus") {
				t.Errorf("extension lost in %q", name)
			}
			if i > 0 && !strings.Contains(name, "(") {
				t.Errorf("expected counter in %q", name)
			}
		}
		if paths[1] == paths[2] {
			t.Error("expected distinct paths for colliding long names")
		}
	})

	t.Run("missing source", func(t *testing.T) {
		o := New(t.TempDir(), Options{}, nil)

		_, err := o.Place(filepath.Join(t.TempDir(), "gone.mp3"), meta)
		var orgErr *OrganizationError
		if !errors.As(err, &orgErr) {
			t.Fatalf("expected OrganizationError, got %v", err)
		}
		if !errors.Is(err, shared.ErrSourceMissing) {
			t.Errorf("expected ErrSourceMissing, got %v", err)
		}
	})

	t.Run("cross-device move copies then removes", func(t *testing.T) {
		tmp := t.TempDir()
		src := writeFile(t, tmp, "v1.m4a", "payload")
		o := New(filepath.Join(tmp, "out"), Options{}, nil)
		o.rename = func(oldpath, newpath string) error {
			return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EXDEV}
		}

		got, err := o.Place(src, meta)
		if err != nil {
			t.Fatalf("Place failed: %v", err)
		}
		if _, err := os.Stat(src); !errors.Is(err, os.ErrNotExist) {
			t.Error("source should be removed after copy")
		}
		if data, _ := os.ReadFile(got); string(data) != "payload" {
			t.Errorf("expected copied content, got %q", data)
		}
	})

	t.Run("failed move leaves source in place", func(t *testing.T) {
		tmp := t.TempDir()
		src := writeFile(t, tmp, "v1.mp3", "payload")
		o := New(filepath.Join(tmp, "out"), Options{}, nil)
		o.rename = func(oldpath, newpath string) error {
			return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EACCES}
		}

		_, err := o.Place(src, meta)
		var orgErr *OrganizationError
		if !errors.As(err, &orgErr) || orgErr.Target == "" {
			t.Fatalf("expected OrganizationError with target, got %v", err)
		}
		if _, err := os.Stat(src); err != nil {
			t.Errorf("source should still exist: %v", err)
		}
		if _, err := os.Stat(orgErr.Target); !errors.Is(err, os.ErrNotExist) {
			t.Error("target should not exist after failed move")
		}
	})
}

func TestCleanupTempDir(t *testing.T) {
	t.Run("removes files and empty dir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), ".tmp")
		writeFile(t, dir, "v1.webp", "thumb")
		writeFile(t, dir, "v2.mp3.part", "partial")

		if n := CleanupTempDir(dir, nil); n != 2 {
			t.Errorf("expected 2 files removed, got %d", n)
		}
		if _, err := os.Stat(dir); !errors.Is(err, os.ErrNotExist) {
			t.Error("empty temp dir should be removed")
		}
	})

	t.Run("leaves non-empty dir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), ".tmp")
		writeFile(t, dir, "v1.jpg", "thumb")
		if err := os.MkdirAll(filepath.Join(dir, "nested"), 0755); err != nil {
			t.Fatalf("failed to create nested dir: %v", err)
		}

		CleanupTempDir(dir, nil)

		if _, err := os.Stat(filepath.Join(dir, "nested")); err != nil {
			t.Errorf("nested dir should survive: %v", err)
		}
		if _, err := os.Stat(filepath.Join(dir, "v1.jpg")); !errors.Is(err, os.ErrNotExist) {
			t.Error("regular file should be removed")
		}
	})

	t.Run("absent dir", func(t *testing.T) {
		if n := CleanupTempDir(filepath.Join(t.TempDir(), "nope"), nil); n != 0 {
			t.Errorf("expected 0, got %d", n)
		}
	})
}
