// YouTube Music [Catalog] implementation
//
// Communicates with the FastAPI proxy server running on port 8080.
// The proxy wraps the ytmusicapi Python library for YouTube Music operations.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/ymd/internal/models"
	"github.com/desertthunder/ymd/internal/shared"
)

const defaultYTBaseURL string = "http://localhost:8080"

// Limits passed to the proxy for list endpoints.
const (
	maxSegmentItems  = 5000
	maxSegments      = 100
	defaultSearchCap = 20
)

// YouTubeArtist represents an artist in YouTube Music responses.
type YouTubeArtist struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

type youtubeAlbum struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// YouTubeTrack represents a track/video in YouTube Music responses.
type YouTubeTrack struct {
	VideoID  string          `json:"videoId"`
	Title    string          `json:"title"`
	Artists  []YouTubeArtist `json:"artists"`
	Album    *youtubeAlbum   `json:"album"`
	Duration string          `json:"duration"`
	Category string          `json:"category,omitempty"`
}

// Normalize maps a proxy track onto a [models.CatalogItem]. Multiple artists are
// joined with ", "; the search category, when present, becomes the genre.
func (t YouTubeTrack) Normalize() models.CatalogItem {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}

	item := models.CatalogItem{
		ID:       t.VideoID,
		Title:    t.Title,
		Artist:   strings.Join(names, ", "),
		Duration: t.Duration,
		Genre:    t.Category,
	}
	if t.Album != nil {
		item.Album = t.Album.Name
	}
	return item
}

// YouTubePlaylist represents a playlist from YouTube Music.
type YouTubePlaylist struct {
	ID         string         `json:"id"`
	PlaylistID string         `json:"playlistId"`
	Title      string         `json:"title"`
	Count      flexInt        `json:"count"`
	TrackCount flexInt        `json:"trackCount"`
	Tracks     []YouTubeTrack `json:"tracks,omitempty"`
}

// flexInt accepts 12, "12" and "12 songs".
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexInt(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	fields := strings.Fields(strings.ReplaceAll(s, ",", ""))
	if len(fields) == 0 {
		return nil
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil
	}
	*f = flexInt(n)
	return nil
}

// APIError is a non-2xx response from the proxy.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("youtube music API error (status %d): %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("youtube music API error: status %d", e.StatusCode)
}

func (e *APIError) Unwrap() error { return shared.ErrAPIRequest }

// YouTubeService implements [Catalog] for YouTube Music via the proxy.
type YouTubeService struct {
	baseURL    string
	authFile   string
	httpClient *http.Client
	logger     *log.Logger
}

// Option configures a [YouTubeService].
type Option func(*YouTubeService)

// WithHTTPClient sets the client used for proxy calls, normally one from [NewHTTPClient].
func WithHTTPClient(c *http.Client) Option {
	return func(y *YouTubeService) {
		if c != nil {
			y.httpClient = c
		}
	}
}

// WithAuthFile sets the token file path forwarded in the X-Auth-File header.
func WithAuthFile(path string) Option {
	return func(y *YouTubeService) { y.authFile = path }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(y *YouTubeService) {
		if l != nil {
			y.logger = l
		}
	}
}

// NewYouTubeService creates a new YouTube Music service instance.
func NewYouTubeService(baseURL string, opts ...Option) *YouTubeService {
	if baseURL == "" {
		baseURL = defaultYTBaseURL
	}

	y := &YouTubeService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		logger:     shared.DiscardLogger(),
	}
	for _, opt := range opts {
		opt(y)
	}
	return y
}

// Name returns the service name.
func (y *YouTubeService) Name() string {
	return "YouTube Music"
}

// BaseURL is the proxy address.
func (y *YouTubeService) BaseURL() string { return y.baseURL }

func (y *YouTubeService) doRequest(ctx context.Context, method, endpoint string, result any) error {
	req, err := http.NewRequestWithContext(ctx, method, y.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if y.authFile != "" {
		req.Header.Set("X-Auth-File", y.authFile)
	}
	req.Header.Set("Accept", "application/json")

	y.logger.Debug("proxy request", "method", method, "endpoint", endpoint)

	resp, err := y.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, shared.ErrNotAuthenticated) {
			return &shared.AuthenticationError{Err: err}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errResp struct {
			Detail string `json:"detail"`
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if err := json.Unmarshal(body, &errResp); err == nil {
			apiErr.Detail = errResp.Detail
		}

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return &shared.AuthenticationError{Err: apiErr}
		}
		return apiErr
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// Health calls GET /health on the proxy and reports whether it considers itself authenticated.
func (y *YouTubeService) Health(ctx context.Context) (bool, error) {
	var health struct {
		Status        string `json:"status"`
		Authenticated bool   `json:"authenticated"`
	}
	if err := y.doRequest(ctx, http.MethodGet, "/health", &health); err != nil {
		return false, err
	}
	return health.Authenticated, nil
}

// ListSegments retrieves the user's library playlists.
//
// Calls GET /api/library/playlists on the proxy.
func (y *YouTubeService) ListSegments(ctx context.Context) ([]models.Segment, error) {
	var ytPlaylists []YouTubePlaylist
	endpoint := fmt.Sprintf("/api/library/playlists?limit=%d", maxSegments)
	if err := y.doRequest(ctx, http.MethodGet, endpoint, &ytPlaylists); err != nil {
		return nil, err
	}

	segments := make([]models.Segment, 0, len(ytPlaylists))
	for _, p := range ytPlaylists {
		id := p.PlaylistID
		if id == "" {
			id = p.ID
		}
		title := p.Title
		if title == "" {
			title = "Untitled"
		}
		count := int(p.Count)
		if count == 0 {
			count = int(p.TrackCount)
		}
		segments = append(segments, models.Segment{ID: id, Title: title, ItemCount: count})
	}
	return segments, nil
}

// ListItems retrieves the tracks of one playlist.
//
// Calls GET /api/playlists/{id} on the proxy.
func (y *YouTubeService) ListItems(ctx context.Context, segmentID string) ([]models.CatalogItem, error) {
	if segmentID == "" {
		return nil, fmt.Errorf("%w: segment id", shared.ErrMissingArgument)
	}

	var playlist YouTubePlaylist
	endpoint := fmt.Sprintf("/api/playlists/%s?limit=%d", url.PathEscape(segmentID), maxSegmentItems)
	if err := y.doRequest(ctx, http.MethodGet, endpoint, &playlist); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, segmentID)
		}
		return nil, err
	}

	return normalizeAll(playlist.Tracks), nil
}

// ListFavorites retrieves the liked-songs list.
//
// Calls GET /api/library/liked-songs on the proxy, which answers either with a bare
// track array or with a playlist object carrying "tracks".
func (y *YouTubeService) ListFavorites(ctx context.Context) ([]models.CatalogItem, error) {
	var raw json.RawMessage
	endpoint := fmt.Sprintf("/api/library/liked-songs?limit=%d", maxSegmentItems)
	if err := y.doRequest(ctx, http.MethodGet, endpoint, &raw); err != nil {
		return nil, err
	}

	var tracks []YouTubeTrack
	if err := json.Unmarshal(raw, &tracks); err != nil {
		var playlist YouTubePlaylist
		if err := json.Unmarshal(raw, &playlist); err != nil {
			return nil, fmt.Errorf("failed to decode liked songs: %w", err)
		}
		tracks = playlist.Tracks
	}
	return normalizeAll(tracks), nil
}

// Search returns song results for query.
//
// Calls GET /api/search?q={query}&filter=songs&limit={limit} on the proxy.
func (y *YouTubeService) Search(ctx context.Context, query string, limit int) ([]models.CatalogItem, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query", shared.ErrMissingArgument)
	}
	if limit <= 0 {
		limit = defaultSearchCap
	}

	var results []YouTubeTrack
	endpoint := fmt.Sprintf("/api/search?q=%s&filter=songs&limit=%d", url.QueryEscape(query), limit)
	if err := y.doRequest(ctx, http.MethodGet, endpoint, &results); err != nil {
		return nil, err
	}

	items := normalizeAll(results)
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func normalizeAll(tracks []YouTubeTrack) []models.CatalogItem {
	items := make([]models.CatalogItem, 0, len(tracks))
	for _, t := range tracks {
		items = append(items, t.Normalize())
	}
	return items
}
