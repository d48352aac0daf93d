package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BurntSushi/toml"

	"go-civitai-fetch/internal/models"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

// missingConfigPath points at a config file that does not exist, so
// Initialize falls back to pure defaults.
func missingConfigPath(t *testing.T) *string {
	t.Helper()
	return strPtr(filepath.Join(t.TempDir(), "absent.toml"))
}

func TestInitializeDefaults(t *testing.T) {
	cfg, transport, err := Initialize(CliFlags{ConfigFilePath: missingConfigPath(t)})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.SavePath != DefaultSavePath {
		t.Errorf("SavePath = %q, want %q", cfg.SavePath, DefaultSavePath)
	}
	if cfg.CatalogDir != DefaultCatalogDir {
		t.Errorf("CatalogDir = %q, want %q", cfg.CatalogDir, DefaultCatalogDir)
	}
	if cfg.Download.Concurrency != DefaultDownloadConcurrency {
		t.Errorf("Concurrency = %d, want %d", cfg.Download.Concurrency, DefaultDownloadConcurrency)
	}
	if !cfg.Download.SkipExisting {
		t.Error("SkipExisting should default to true")
	}
	if cfg.DatabasePath != filepath.Join(DefaultSavePath, "history.db") {
		t.Errorf("DatabasePath = %q (should derive from SavePath)", cfg.DatabasePath)
	}
	if cfg.IndexPath != filepath.Join(DefaultSavePath, "history.bleve") {
		t.Errorf("IndexPath = %q (should derive from SavePath)", cfg.IndexPath)
	}
	if len(cfg.ModelPaths) == 0 {
		t.Error("ModelPaths should default to the standard mapping")
	}
	if cfg.ModelPaths["other"] == "" {
		t.Error("default ModelPaths must include an 'other' fallback")
	}
	if transport != nil {
		t.Error("transport should be nil when API logging is disabled")
	}
}

func TestInitializeReadsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
SavePath = "/data/models"
ApiKey = "file-key"

[Download]
Concurrency = 9
SkipExisting = false
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, _, err := Initialize(CliFlags{ConfigFilePath: strPtr(path)})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.SavePath != "/data/models" {
		t.Errorf("SavePath = %q", cfg.SavePath)
	}
	if cfg.APIKey != "file-key" {
		t.Errorf("APIKey = %q", cfg.APIKey)
	}
	if cfg.Download.Concurrency != 9 {
		t.Errorf("Concurrency = %d, want 9", cfg.Download.Concurrency)
	}
	if cfg.Download.SkipExisting {
		t.Error("SkipExisting = true, want false from file")
	}
	// Unset keys keep their defaults.
	if cfg.Download.RetryAttempts != DefaultDownloadRetryAttempts {
		t.Errorf("RetryAttempts = %d, want default %d", cfg.Download.RetryAttempts, DefaultDownloadRetryAttempts)
	}
	if cfg.DatabasePath != filepath.Join("/data/models", "history.db") {
		t.Errorf("DatabasePath = %q", cfg.DatabasePath)
	}
}

func TestFlagsBeatConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
SavePath = "/from/file"
ApiKey = "file-key"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, _, err := Initialize(CliFlags{
		ConfigFilePath: strPtr(path),
		SavePath:       strPtr("/from/flag"),
		APIKey:         strPtr("flag-key"),
		APITimeoutSec:  intPtr(77),
	})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.SavePath != "/from/flag" {
		t.Errorf("SavePath = %q, want flag value", cfg.SavePath)
	}
	if cfg.APIKey != "flag-key" {
		t.Errorf("APIKey = %q, want flag value", cfg.APIKey)
	}
	if cfg.APITimeoutSec != 77 {
		t.Errorf("APITimeoutSec = %d, want 77", cfg.APITimeoutSec)
	}
}

func TestInitializeRejectsEmptySavePath(t *testing.T) {
	_, _, err := Initialize(CliFlags{
		ConfigFilePath: missingConfigPath(t),
		SavePath:       strPtr(""),
	})
	if err == nil || !strings.Contains(err.Error(), "SavePath") {
		t.Errorf("err = %v, want SavePath validation error", err)
	}
}

func TestExplicitPathsAreKept(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
DatabasePath = "/elsewhere/my.db"
IndexPath = "/elsewhere/my.bleve"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, _, err := Initialize(CliFlags{ConfigFilePath: strPtr(path)})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DatabasePath != "/elsewhere/my.db" {
		t.Errorf("DatabasePath = %q, want explicit value kept", cfg.DatabasePath)
	}
	if cfg.IndexPath != "/elsewhere/my.bleve" {
		t.Errorf("IndexPath = %q, want explicit value kept", cfg.IndexPath)
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := WriteDefault(path); err != nil {
		t.Fatal(err)
	}

	var cfg models.Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		t.Fatalf("generated config does not parse: %v", err)
	}
	if cfg.SavePath != DefaultSavePath {
		t.Errorf("SavePath = %q", cfg.SavePath)
	}
	if cfg.Download.Concurrency != DefaultDownloadConcurrency {
		t.Errorf("Concurrency = %d", cfg.Download.Concurrency)
	}
	if len(cfg.ModelPaths) == 0 {
		t.Error("ModelPaths missing from generated config")
	}

	// A second write must refuse to clobber.
	if err := WriteDefault(path); err == nil {
		t.Error("WriteDefault over an existing file should error")
	}
}
