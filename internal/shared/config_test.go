package shared

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Download.Dir != "downloads" {
			t.Errorf("expected download dir downloads, got %s", config.Download.Dir)
		}
		if config.Download.MaxConcurrent != 3 {
			t.Errorf("expected max_concurrent 3, got %d", config.Download.MaxConcurrent)
		}
		if config.Download.MaxRetries != 3 {
			t.Errorf("expected max_retries 3, got %d", config.Download.MaxRetries)
		}
		if config.Download.RateLimit != 0 {
			t.Errorf("expected unthrottled downloads by default, got rate_limit %v", config.Download.RateLimit)
		}
		if config.Organize.By != LayoutGenreArtist {
			t.Errorf("expected layout %s, got %s", LayoutGenreArtist, config.Organize.By)
		}
		if config.Organize.MaxFilenameLength != 120 {
			t.Errorf("expected max_filename_length 120, got %d", config.Organize.MaxFilenameLength)
		}
		if config.Credentials.YouTube.ProxyURL != "http://127.0.0.1:8080" {
			t.Errorf("expected proxy URL http://127.0.0.1:8080, got %s", config.Credentials.YouTube.ProxyURL)
		}
		if err := config.Validate(); err != nil {
			t.Errorf("default config should validate: %v", err)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		if _, err := os.Stat(configPath); err != nil {
			t.Fatalf("config file should exist: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		if config.Database.Path != DefaultConfig().Database.Path {
			t.Errorf("created config database path doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		testConfig := `[download]
dir = "/music/mirror"
max_concurrent = 5

[organize]
by = "artist_album"

[credentials.youtube]
client_id = "test_client_id"
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Download.Dir != "/music/mirror" {
			t.Errorf("expected download dir /music/mirror, got %s", config.Download.Dir)
		}
		if config.Download.MaxConcurrent != 5 {
			t.Errorf("expected max_concurrent 5, got %d", config.Download.MaxConcurrent)
		}
		if config.Download.MaxRetries != 3 {
			t.Errorf("unset keys should keep defaults, got max_retries %d", config.Download.MaxRetries)
		}
		if config.Organize.By != LayoutArtistAlbum {
			t.Errorf("expected layout artist_album, got %s", config.Organize.By)
		}
		if config.Credentials.YouTube.ClientID != "test_client_id" {
			t.Errorf("expected client_id test_client_id, got %s", config.Credentials.YouTube.ClientID)
		}
	})

	t.Run("LoadConfig rejects malformed file", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(configPath, []byte("[download\ndir = "), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		_, err := LoadConfig(configPath)
		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("expected ConfigError, got %v", err)
		}
		if cfgErr.Path != configPath {
			t.Errorf("expected path %s, got %s", configPath, cfgErr.Path)
		}
	})

	t.Run("LoadConfig rejects invalid values", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(configPath, []byte("[organize]\nby = \"decade\"\n"), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		_, err := LoadConfig(configPath)
		if !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("LoadConfig missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
		if !errors.Is(err, ErrMissingConfig) {
			t.Errorf("expected ErrMissingConfig, got %v", err)
		}
	})

	t.Run("LoadOrDefault without file", func(t *testing.T) {
		config, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.toml"))
		if err != nil {
			t.Fatalf("expected defaults, got %v", err)
		}
		if config.Download.MaxConcurrent != 3 {
			t.Errorf("expected default max_concurrent, got %d", config.Download.MaxConcurrent)
		}
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("YMD_CLIENT_ID", "env-id")
		t.Setenv("YMD_DOWNLOAD_DIR", "/from/env")

		config, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.toml"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if config.Credentials.YouTube.ClientID != "env-id" {
			t.Errorf("expected env client id, got %s", config.Credentials.YouTube.ClientID)
		}
		if config.Download.Dir != "/from/env" {
			t.Errorf("expected env download dir, got %s", config.Download.Dir)
		}
	})

	t.Run("LoadConfigFile skips environment overrides", func(t *testing.T) {
		t.Setenv("YMD_CLIENT_SECRET", "from-env")
		configPath := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(configPath, []byte("[credentials.youtube]\nclient_secret = \"from-file\"\n"), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfigFile(configPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if config.Credentials.YouTube.ClientSecret != "from-file" {
			t.Errorf("expected file value, got %s", config.Credentials.YouTube.ClientSecret)
		}

		loaded, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if loaded.Credentials.YouTube.ClientSecret != "from-env" {
			t.Errorf("expected env value, got %s", loaded.Credentials.YouTube.ClientSecret)
		}
	})

	t.Run("Set and Save", func(t *testing.T) {
		config := DefaultConfig()

		if err := config.Set("download.max_concurrent", "7"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := config.Set("organize.default_genre", "Misc"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := config.Set("download.max_concurrent", "many"); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for non-integer, got %v", err)
		}
		if err := config.Set("nope.key", "x"); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for unknown key, got %v", err)
		}

		configPath := filepath.Join(t.TempDir(), "config.toml")
		if err := config.Save(configPath); err != nil {
			t.Fatalf("failed to save: %v", err)
		}

		loaded, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to reload: %v", err)
		}
		if loaded.Download.MaxConcurrent != 7 {
			t.Errorf("expected 7, got %d", loaded.Download.MaxConcurrent)
		}
		if loaded.Organize.DefaultGenre != "Misc" {
			t.Errorf("expected Misc, got %s", loaded.Organize.DefaultGenre)
		}
	})

	t.Run("Keys are all settable", func(t *testing.T) {
		config := DefaultConfig()
		for _, key := range Keys() {
			value := "1"
			if err := config.Set(key, value); err != nil {
				t.Errorf("Set(%q) failed: %v", key, err)
			}
		}
	})

	t.Run("derived paths", func(t *testing.T) {
		config := DefaultConfig()
		config.Download.Dir = "/mirror"

		if got := config.StateFile(); got != filepath.Join("/mirror", ".sync_state.json") {
			t.Errorf("unexpected state file %s", got)
		}
		if got := config.TempDir(); got != filepath.Join("/mirror", ".tmp") {
			t.Errorf("unexpected temp dir %s", got)
		}
	})
}
