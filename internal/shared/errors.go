package shared

import (
	"errors"
	"fmt"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrTokenExpired     = fmt.Errorf("access token expired")
	ErrTimeout          = fmt.Errorf("operation timed out")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrPlaylistNotFound   = fmt.Errorf("playlist not found")
	ErrTrackNotFound      = fmt.Errorf("track not found")

	// Pipeline errors
	ErrMissingID     = fmt.Errorf("missing item identifier")
	ErrFileNotFound  = fmt.Errorf("downloaded file not found")
	ErrSourceMissing = fmt.Errorf("source file not found")
	ErrLocked        = fmt.Errorf("download directory is locked by another run")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// AuthenticationError reports that the remote catalog rejected or lacks credentials.
type AuthenticationError struct {
	Err error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication error: %v", e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// CatalogSegmentError reports a single segment that could not be listed.
// Callers skip the segment and continue.
type CatalogSegmentError struct {
	SegmentID string
	Err       error
}

func (e *CatalogSegmentError) Error() string {
	return fmt.Sprintf("segment %s unavailable: %v", e.SegmentID, e.Err)
}

func (e *CatalogSegmentError) Unwrap() error { return e.Err }

// DownloadError is the terminal failure of a single item fetch.
type DownloadError struct {
	ID       string
	Attempts int
	Err      error
}

func (e *DownloadError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("failed to download %s after %d attempt(s): %v", e.ID, e.Attempts, e.Err)
	}
	return fmt.Sprintf("failed to download %s: %v", e.ID, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// MetadataError is a non-fatal tagging failure.
type MetadataError struct {
	Path string
	Err  error
}

func (e *MetadataError) Error() string {
	return fmt.Sprintf("failed to tag %s: %v", e.Path, e.Err)
}

func (e *MetadataError) Unwrap() error { return e.Err }

// OrganizationError is a filesystem failure while placing a file.
type OrganizationError struct {
	Source string
	Target string
	Err    error
}

func (e *OrganizationError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("failed to organize %s: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("failed to move %s to %s: %v", e.Source, e.Target, e.Err)
}

func (e *OrganizationError) Unwrap() error { return e.Err }

// ConfigError reports a malformed configuration file. Fatal to startup.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// IsAuthError reports whether err is, or wraps, an authentication failure.
func IsAuthError(err error) bool {
	var authErr *AuthenticationError
	return errors.As(err, &authErr) || errors.Is(err, ErrAuthFailed) || errors.Is(err, ErrNotAuthenticated)
}
