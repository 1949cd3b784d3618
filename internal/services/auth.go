package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/oauth2"

	"github.com/desertthunder/ymd/internal/shared"
)

// YouTubeScope grants read access to the user's library.
const YouTubeScope = "https://www.googleapis.com/auth/youtube"

// GoogleEndpoint is Google's OAuth endpoint including device authorization.
var GoogleEndpoint = oauth2.Endpoint{
	AuthURL:       "https://accounts.google.com/o/oauth2/auth",
	TokenURL:      "https://oauth2.googleapis.com/token",
	DeviceAuthURL: "https://oauth2.googleapis.com/device/code",
}

// OAuthConfig builds the device-flow client config from the [credentials.youtube] section.
func OAuthConfig(c shared.YouTubeConfig) (*oauth2.Config, error) {
	if c.ClientID == "" || c.ClientSecret == "" {
		return nil, fmt.Errorf("%w: client_id and client_secret are required (create a 'TVs and Limited Input devices' OAuth client)", shared.ErrMissingCredentials)
	}
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint:     GoogleEndpoint,
		Scopes:       []string{YouTubeScope},
	}, nil
}

// TokenStore persists an OAuth token as JSON.
type TokenStore struct {
	path string
}

// NewTokenStore returns a store backed by path.
func NewTokenStore(path string) *TokenStore { return &TokenStore{path: path} }

// Path is the token file location.
func (s *TokenStore) Path() string { return s.path }

// Load reads the stored token. A missing file is [shared.ErrNotAuthenticated].
func (s *TokenStore) Load() (*oauth2.Token, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: run 'ymd auth' first", shared.ErrNotAuthenticated)
		}
		return nil, fmt.Errorf("failed to read token: %w", err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("%w: stored token is malformed: %v", shared.ErrNotAuthenticated, err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, fmt.Errorf("%w: stored token is empty", shared.ErrNotAuthenticated)
	}
	return &tok, nil
}

// Save writes tok with owner-only permissions.
func (s *TokenStore) Save(tok *oauth2.Token) error {
	data, err := shared.MarshalJSON(tok, true)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create token directory: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write token: %w", err)
	}
	return nil
}

// persistingTokenSource saves every token its parent hands out that differs from the last one.
type persistingTokenSource struct {
	mu     sync.Mutex
	src    oauth2.TokenSource
	store  *TokenStore
	last   string
	logger *log.Logger
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := p.src.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrNotAuthenticated, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken != p.last {
		p.last = tok.AccessToken
		if err := p.store.Save(tok); err != nil {
			p.logger.Warn("failed to persist refreshed token", "path", p.store.Path(), "error", err)
		}
	}
	return tok, nil
}

type retryLogger struct {
	l *log.Logger
}

func (r retryLogger) Error(msg string, kv ...interface{}) { r.l.Error(msg, kv...) }
func (r retryLogger) Info(msg string, kv ...interface{})  { r.l.Debug(msg, kv...) }
func (r retryLogger) Debug(msg string, kv ...interface{}) { r.l.Debug(msg, kv...) }
func (r retryLogger) Warn(msg string, kv ...interface{})  { r.l.Warn(msg, kv...) }

// NewRetryClient returns a retrying HTTP client that logs through logger.
func NewRetryClient(logger *log.Logger, retryMax int) *retryablehttp.Client {
	if logger == nil {
		logger = shared.DiscardLogger()
	}
	rc := retryablehttp.NewClient()
	rc.RetryMax = retryMax
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 8 * time.Second
	rc.Logger = retryLogger{l: logger}
	return rc
}

// NewHTTPClient returns a client for catalog calls: retrying transport at the bottom and,
// when cfg is non-nil, an oauth2 transport that adds the stored token and saves refreshes.
func NewHTTPClient(ctx context.Context, cfg *oauth2.Config, store *TokenStore, logger *log.Logger) (*http.Client, error) {
	if logger == nil {
		logger = shared.DiscardLogger()
	}
	base := NewRetryClient(logger, 3).StandardClient()
	if cfg == nil || store == nil {
		return base, nil
	}

	tok, err := store.Load()
	if err != nil {
		return nil, &shared.AuthenticationError{Err: err}
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	src := &persistingTokenSource{
		src:    cfg.TokenSource(ctx, tok),
		store:  store,
		last:   tok.AccessToken,
		logger: logger,
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, src)), nil
}

// DeviceLogin runs the OAuth device authorization grant.
type DeviceLogin struct {
	Config     *oauth2.Config
	Store      *TokenStore
	HTTPClient *http.Client
}

func (d *DeviceLogin) context(ctx context.Context) context.Context {
	if d.HTTPClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, d.HTTPClient)
	}
	return ctx
}

// Start requests a device and user code. The caller shows VerificationURI and UserCode.
func (d *DeviceLogin) Start(ctx context.Context) (*oauth2.DeviceAuthResponse, error) {
	resp, err := d.Config.DeviceAuth(d.context(ctx))
	if err != nil {
		return nil, &shared.AuthenticationError{Err: fmt.Errorf("%w: device authorization: %v", shared.ErrAuthFailed, err)}
	}
	return resp, nil
}

// Wait polls until the user approves or the code expires, then stores the token.
func (d *DeviceLogin) Wait(ctx context.Context, da *oauth2.DeviceAuthResponse) (*oauth2.Token, error) {
	tok, err := d.Config.DeviceAccessToken(d.context(ctx), da)
	if err != nil {
		return nil, &shared.AuthenticationError{Err: fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)}
	}
	if err := d.Store.Save(tok); err != nil {
		return nil, err
	}
	return tok, nil
}
