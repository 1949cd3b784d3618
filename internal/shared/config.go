package shared

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Organization layouts accepted by [OrganizeConfig.By].
const (
	LayoutGenreArtist = "genre_artist"
	LayoutArtistAlbum = "artist_album"
	LayoutPlaylist    = "playlist"
)

// Audio formats accepted by [DownloadConfig.AudioFormat] and [DownloadConfig.FallbackFormat].
var AudioFormats = []string{"best", "mp3", "m4a", "opus"}

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Download    DownloadConfig    `toml:"download"`
	Organize    OrganizeConfig    `toml:"organize"`
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
}

// DownloadConfig controls the download engine.
type DownloadConfig struct {
	Dir            string  `toml:"dir"`
	AudioFormat    string  `toml:"audio_format"`
	FallbackFormat string  `toml:"fallback_format"`
	MaxConcurrent  int     `toml:"max_concurrent"`
	MaxRetries     int     `toml:"max_retries"`
	RateLimit      float64 `toml:"rate_limit"`
	YTDLPPath      string  `toml:"ytdlp_path"`
}

// OrganizeConfig controls the on-disk layout of the mirror.
type OrganizeConfig struct {
	By                string `toml:"by"`
	MaxFilenameLength int    `toml:"max_filename_length"`
	MaxDirnameLength  int    `toml:"max_dirname_length"`
	DefaultGenre      string `toml:"default_genre"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	YouTube YouTubeConfig `toml:"youtube"`
}

// YouTubeConfig contains YouTube Music proxy and OAuth client settings.
type YouTubeConfig struct {
	ProxyURL     string `toml:"proxy_url"`
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	TokenPath    string `toml:"token_path"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep their default values. Environment overrides are applied last.
func LoadConfig(path string) (*Config, error) {
	config, err := LoadConfigFile(path)
	if err != nil {
		return nil, err
	}

	config.applyEnv()
	if err := config.Validate(); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	return config, nil
}

// LoadConfigFile parses path over the defaults without environment overrides or
// validation. Used when editing the file so overrides are not written back.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &ConfigError{Path: path, Err: ErrMissingConfig}
		}
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("failed to read config file: %w", err)}
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("failed to parse config: %w", err)}
	}
	return config, nil
}

// LoadOrDefault loads path when it exists and falls back to [DefaultConfig] otherwise.
// A file that exists but does not parse is still an error.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		config := DefaultConfig()
		config.applyEnv()
		return config, nil
	}
	return LoadConfig(path)
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Save writes the configuration back to path as TOML.
func (c *Config) Save(path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Download.Dir) == "" {
		return fmt.Errorf("%w: download.dir must not be empty", ErrInvalidConfig)
	}
	if !slices.Contains(AudioFormats, c.Download.AudioFormat) {
		return fmt.Errorf("%w: download.audio_format %q (want one of %s)", ErrInvalidConfig, c.Download.AudioFormat, strings.Join(AudioFormats, ", "))
	}
	if !slices.Contains(AudioFormats, c.Download.FallbackFormat) {
		return fmt.Errorf("%w: download.fallback_format %q (want one of %s)", ErrInvalidConfig, c.Download.FallbackFormat, strings.Join(AudioFormats, ", "))
	}
	if c.Download.MaxConcurrent < 1 {
		return fmt.Errorf("%w: download.max_concurrent must be at least 1", ErrInvalidConfig)
	}
	if c.Download.MaxRetries < 0 {
		return fmt.Errorf("%w: download.max_retries must not be negative", ErrInvalidConfig)
	}
	if c.Download.RateLimit < 0 {
		return fmt.Errorf("%w: download.rate_limit must not be negative", ErrInvalidConfig)
	}
	switch c.Organize.By {
	case LayoutGenreArtist, LayoutArtistAlbum, LayoutPlaylist:
	default:
		return fmt.Errorf("%w: organize.by %q (want genre_artist, artist_album or playlist)", ErrInvalidConfig, c.Organize.By)
	}
	if c.Organize.MaxFilenameLength < 16 {
		return fmt.Errorf("%w: organize.max_filename_length must be at least 16", ErrInvalidConfig)
	}
	if c.Organize.MaxDirnameLength < 1 {
		return fmt.Errorf("%w: organize.max_dirname_length must be positive", ErrInvalidConfig)
	}
	return nil
}

// Set assigns a single dotted key such as "download.max_concurrent".
func (c *Config) Set(key, value string) error {
	value = strings.TrimSpace(value)

	setInt := func(dst *int) error {
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: %s expects an integer, got %q", ErrInvalidArgument, key, value)
		}
		*dst = n
		return nil
	}

	switch strings.TrimSpace(key) {
	case "download.dir":
		c.Download.Dir = value
	case "download.audio_format":
		c.Download.AudioFormat = value
	case "download.fallback_format":
		c.Download.FallbackFormat = value
	case "download.max_concurrent":
		return setInt(&c.Download.MaxConcurrent)
	case "download.max_retries":
		return setInt(&c.Download.MaxRetries)
	case "download.rate_limit":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%w: %s expects a number, got %q", ErrInvalidArgument, key, value)
		}
		c.Download.RateLimit = f
	case "download.ytdlp_path":
		c.Download.YTDLPPath = value
	case "organize.by":
		c.Organize.By = value
	case "organize.max_filename_length":
		return setInt(&c.Organize.MaxFilenameLength)
	case "organize.max_dirname_length":
		return setInt(&c.Organize.MaxDirnameLength)
	case "organize.default_genre":
		c.Organize.DefaultGenre = value
	case "credentials.youtube.proxy_url":
		c.Credentials.YouTube.ProxyURL = value
	case "credentials.youtube.client_id":
		c.Credentials.YouTube.ClientID = value
	case "credentials.youtube.client_secret":
		c.Credentials.YouTube.ClientSecret = value
	case "credentials.youtube.token_path":
		c.Credentials.YouTube.TokenPath = value
	case "database.path":
		c.Database.Path = value
	default:
		return fmt.Errorf("%w: unknown config key %q", ErrInvalidArgument, key)
	}
	return nil
}

// Keys lists every key accepted by [Config.Set], in file order.
func Keys() []string {
	return []string{
		"download.dir", "download.audio_format", "download.fallback_format",
		"download.max_concurrent", "download.max_retries", "download.rate_limit", "download.ytdlp_path",
		"organize.by", "organize.max_filename_length", "organize.max_dirname_length", "organize.default_genre",
		"credentials.youtube.proxy_url", "credentials.youtube.client_id",
		"credentials.youtube.client_secret", "credentials.youtube.token_path",
		"database.path",
	}
}

// StateFile is the ledger document inside the download directory.
func (c *Config) StateFile() string {
	return filepath.Join(c.Download.Dir, ".sync_state.json")
}

// TempDir is the working directory for raw downloads.
func (c *Config) TempDir() string {
	return filepath.Join(c.Download.Dir, ".tmp")
}

// LockFile guards a download directory against concurrent runs.
func (c *Config) LockFile() string {
	return filepath.Join(c.Download.Dir, ".sync_state.lock")
}

func (c *Config) applyEnv() {
	if v := os.Getenv("YMD_CLIENT_ID"); v != "" {
		c.Credentials.YouTube.ClientID = v
	}
	if v := os.Getenv("YMD_CLIENT_SECRET"); v != "" {
		c.Credentials.YouTube.ClientSecret = v
	}
	if v := os.Getenv("YMD_DOWNLOAD_DIR"); v != "" {
		c.Download.Dir = v
	}
	c.Download.Dir = ExpandPath(c.Download.Dir)
	c.Credentials.YouTube.TokenPath = ExpandPath(c.Credentials.YouTube.TokenPath)
	c.Database.Path = ExpandPath(c.Database.Path)
}
