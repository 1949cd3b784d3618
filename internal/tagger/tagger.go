// Package tagger writes catalog metadata into downloaded audio files.
package tagger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bogem/id3v2/v2"

	"github.com/desertthunder/ymd/internal/models"
	"github.com/desertthunder/ymd/internal/shared"
)

// ErrUnsupportedFormat is returned for containers the tagger cannot write.
var ErrUnsupportedFormat = errors.New("unsupported audio container")

// Tagger writes metadata into a file in place.
type Tagger interface {
	Tag(path string, meta models.Metadata) error
}

// ID3Tagger writes ID3v2.4 frames into mp3 files.
type ID3Tagger struct{}

// NewID3Tagger returns an ID3Tagger.
func NewID3Tagger() *ID3Tagger { return &ID3Tagger{} }

// Tag sets title, artist, album and genre. Empty title, artist and album are written as
// "Unknown"; an empty genre leaves the frame untouched. Every failure is a [*shared.MetadataError].
func (t *ID3Tagger) Tag(path string, meta models.Metadata) error {
	if _, err := os.Stat(path); err != nil {
		return &shared.MetadataError{Path: path, Err: err}
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".mp3" {
		return &shared.MetadataError{Path: path, Err: fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)}
	}

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return &shared.MetadataError{Path: path, Err: err}
	}
	defer tag.Close()

	tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	tag.SetVersion(4)
	tag.SetTitle(orUnknown(meta.Title))
	tag.SetArtist(orUnknown(meta.Artist))
	tag.SetAlbum(orUnknown(meta.Album))
	if meta.Genre != "" {
		tag.SetGenre(meta.Genre)
	}

	if err := tag.Save(); err != nil {
		return &shared.MetadataError{Path: path, Err: err}
	}
	return nil
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}
