package services

import (
	"context"

	"github.com/desertthunder/ymd/internal/models"
)

// Catalog is the read-only view of a remote music library.
type Catalog interface {
	// ListSegments returns the user's playlists.
	ListSegments(ctx context.Context) ([]models.Segment, error)

	// ListItems returns the items of one segment.
	ListItems(ctx context.Context, segmentID string) ([]models.CatalogItem, error)

	// ListFavorites returns the liked-songs list.
	ListFavorites(ctx context.Context) ([]models.CatalogItem, error)

	// Search returns up to limit song results for query.
	Search(ctx context.Context, query string, limit int) ([]models.CatalogItem, error)

	// Name returns the display name of the service.
	Name() string
}
