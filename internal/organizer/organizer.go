// Package organizer moves downloaded files into the mirror's directory layout.
package organizer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"unicode/utf8"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/ymd/internal/models"
	"github.com/desertthunder/ymd/internal/shared"
)

// maxCollisionSuffix bounds the " (n)" search for a free target name.
const maxCollisionSuffix = 10000

// Options configures placement. Zero values fall back to package defaults.
type Options struct {
	Layout            string
	MaxFilenameLength int
	MaxDirnameLength  int
	DefaultGenre      string
}

// OptionsFromConfig maps the [organize] config section onto Options.
func OptionsFromConfig(c shared.OrganizeConfig) Options {
	return Options{
		Layout:            c.By,
		MaxFilenameLength: c.MaxFilenameLength,
		MaxDirnameLength:  c.MaxDirnameLength,
		DefaultGenre:      c.DefaultGenre,
	}
}

// Organizer places raw files under a base directory.
// It is not safe for concurrent use; callers serialize placement.
type Organizer struct {
	baseDir string
	opts    Options
	logger  *log.Logger
	rename  func(oldpath, newpath string) error
}

// New creates an Organizer rooted at baseDir.
func New(baseDir string, opts Options, logger *log.Logger) *Organizer {
	if opts.MaxFilenameLength <= 0 {
		opts.MaxFilenameLength = DefaultMaxFilenameLength
	}
	if opts.MaxDirnameLength <= 0 {
		opts.MaxDirnameLength = DefaultMaxDirnameLength
	}
	if opts.DefaultGenre == "" {
		opts.DefaultGenre = Placeholder
	}
	if opts.Layout == "" {
		opts.Layout = shared.LayoutGenreArtist
	}
	if logger == nil {
		logger = shared.DiscardLogger()
	}
	return &Organizer{baseDir: baseDir, opts: opts, logger: logger, rename: os.Rename}
}

// TargetDir is the directory meta is placed into under the configured layout.
func (o *Organizer) TargetDir(meta models.Metadata) string {
	dir := func(s string) string { return SanitizeDirname(s, o.opts.MaxDirnameLength) }

	genre := meta.Genre
	if genre == "" {
		genre = o.opts.DefaultGenre
	}

	switch o.opts.Layout {
	case shared.LayoutArtistAlbum:
		return filepath.Join(o.baseDir, dir(meta.Artist), dir(meta.Album))
	case shared.LayoutPlaylist:
		return filepath.Join(o.baseDir, dir(meta.Segment))
	default:
		return filepath.Join(o.baseDir, dir(genre), dir(meta.Artist))
	}
}

// stem is "<artist> - <title>" before any length budget is applied.
func (o *Organizer) stem(meta models.Metadata) string {
	artist := SanitizeDirname(meta.Artist, o.opts.MaxDirnameLength)
	title := Sanitize(meta.Title, o.opts.MaxFilenameLength)
	return artist + " - " + title
}

// fileName fits stem, an optional collision suffix and ext into the filename budget.
func (o *Organizer) fileName(stem, ext string, n int) string {
	suffix := ""
	if n > 0 {
		suffix = " (" + strconv.Itoa(n) + ")"
	}

	budget := o.opts.MaxFilenameLength - utf8.RuneCountInString(ext) - utf8.RuneCountInString(suffix)
	if budget < 1 {
		budget = 1
	}

	base := truncate(stem, budget)
	if base == "" {
		base = truncate(Placeholder, budget)
	}
	return base + suffix + ext
}

// Place moves src to its organized location and returns the final path.
//
// An existing file at the target is never overwritten: " (1)", " (2)", ... is appended
// to the stem until a free name is found.
func (o *Organizer) Place(src string, meta models.Metadata) (string, error) {
	info, err := os.Stat(src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", &OrganizationError{Source: src, Err: shared.ErrSourceMissing}
		}
		return "", &OrganizationError{Source: src, Err: err}
	}
	if !info.Mode().IsRegular() {
		return "", &OrganizationError{Source: src, Err: fmt.Errorf("%w: not a regular file", shared.ErrSourceMissing)}
	}

	dir := o.TargetDir(meta)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", &OrganizationError{Source: src, Target: dir, Err: err}
	}

	target, err := o.freePath(dir, o.stem(meta), filepath.Ext(src))
	if err != nil {
		return "", &OrganizationError{Source: src, Target: dir, Err: err}
	}

	if err := o.move(src, target, info.Mode().Perm()); err != nil {
		return "", &OrganizationError{Source: src, Target: target, Err: err}
	}

	o.logger.Debug("organized", "path", target)
	return target, nil
}

func (o *Organizer) freePath(dir, stem, ext string) (string, error) {
	for n := 0; n <= maxCollisionSuffix; n++ {
		candidate := filepath.Join(dir, o.fileName(stem, ext, n))
		if _, err := os.Lstat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		} else if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("no free name for %q after %d attempts", stem+ext, maxCollisionSuffix)
}

// move renames src to dst, copying across filesystems when rename cannot.
// On failure at most one of src and dst exists afterwards.
func (o *Organizer) move(src, dst string, perm os.FileMode) error {
	err := o.rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return err
	}

	if err := copyFile(src, dst, perm); err != nil {
		os.Remove(dst)
		return err
	}
	if err := os.Remove(src); err != nil {
		os.Remove(dst)
		return fmt.Errorf("failed to remove source after copy: %w", err)
	}
	return nil
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// CleanupTempDir removes the regular files directly inside dir, then dir itself when it
// is left empty. Failures are logged and swallowed. It returns the number of files removed.
func CleanupTempDir(dir string, logger *log.Logger) int {
	if logger == nil {
		logger = shared.DiscardLogger()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("could not read temp dir", "path", dir, "error", err)
		}
		return 0
	}

	removed := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			logger.Warn("could not remove temp file", "path", path, "error", err)
			continue
		}
		removed++
	}

	// Fails harmlessly when something is left behind.
	_ = os.Remove(dir)
	return removed
}

// OrganizationError is the error type returned by [Organizer.Place].
type OrganizationError = shared.OrganizationError
