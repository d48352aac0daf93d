package config

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"go-civitai-fetch/internal/api"
	"go-civitai-fetch/internal/models"
)

// Default values for configuration
const (
	DefaultSavePath       = "downloads"
	DefaultCatalogDir     = "catalogs"
	DefaultDatabasePath   = "" // derived from SavePath when empty
	DefaultIndexPath      = "" // derived from SavePath when empty
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
	DefaultAPITimeoutSec  = 30
	DefaultLogApiRequests = false
	DefaultConfigFilePath = "config.toml"

	DefaultDownloadConcurrency   = 4
	DefaultDownloadRetryAttempts = 3
	DefaultDownloadTimeoutSec    = 900
	DefaultDownloadSkipExisting  = true
	DefaultDownloadVerifyHashes  = false

	DefaultTorrentOutputDir     = "torrents"
	DefaultTorrentPieceLengthKB = 256
)

// DefaultTorrentTrackers are the announce URLs baked into generated
// metainfo when the config supplies none.
var DefaultTorrentTrackers = []string{
	"udp://tracker.openbittorrent.com:80",
	"udp://tracker.opentrackr.org:1337/announce",
}

// DefaultModelPaths maps lowercased model types to save directories,
// following the Automatic1111 folder layout. The "other" entry is the
// fallback for unrecognized types.
func DefaultModelPaths() map[string]string {
	return map[string]string{
		"checkpoint":        "models/Stable-diffusion",
		"lora":              "models/Lora",
		"locon":             "models/Lora",
		"dora":              "models/Lora",
		"textualinversion":  "embeddings",
		"hypernetwork":      "models/hypernetworks",
		"vae":               "models/VAE",
		"controlnet":        "models/ControlNet",
		"upscaler":          "models/ESRGAN",
		"motionmodule":      "models/MotionModule",
		"aestheticgradient": "models/aesthetic_embeddings",
		"other":             "models/Other",
	}
}

// setViperDefaults configures Viper with the application's default values.
func setViperDefaults(v *viper.Viper) {
	v.SetDefault("apikey", "")
	v.SetDefault("savepath", DefaultSavePath)
	v.SetDefault("catalogdir", DefaultCatalogDir)
	v.SetDefault("databasepath", DefaultDatabasePath)
	v.SetDefault("indexpath", DefaultIndexPath)
	v.SetDefault("loglevel", DefaultLogLevel)
	v.SetDefault("logformat", DefaultLogFormat)
	v.SetDefault("apitimeoutsec", DefaultAPITimeoutSec)
	v.SetDefault("logapirequests", DefaultLogApiRequests)

	v.SetDefault("download.concurrency", DefaultDownloadConcurrency)
	v.SetDefault("download.retryattempts", DefaultDownloadRetryAttempts)
	v.SetDefault("download.timeoutsec", DefaultDownloadTimeoutSec)
	v.SetDefault("download.skipexisting", DefaultDownloadSkipExisting)
	v.SetDefault("download.verifyhashes", DefaultDownloadVerifyHashes)

	v.SetDefault("torrent.outputdir", DefaultTorrentOutputDir)
	v.SetDefault("torrent.trackers", DefaultTorrentTrackers)
	v.SetDefault("torrent.piecelengthkb", DefaultTorrentPieceLengthKB)
	v.SetDefault("torrent.overwrite", false)
	v.SetDefault("torrent.magnetlinks", false)
}

// CliFlags holds pointers to values received from the persistent
// command-line flags. Nil fields indicate the flag was not provided by
// the user. Per-command flags (download concurrency, torrent output and
// so on) are applied by their commands on top of the merged config.
type CliFlags struct {
	ConfigFilePath *string
	LogLevel       *string // --log-level
	LogFormat      *string // --log-format
	LogApiRequests *bool   // --log-api
	SavePath       *string // --save-path
	CatalogDir     *string // --catalog-dir
	APIKey         *string // --api-key
	APITimeoutSec  *int    // --api-timeout
}

// Initialize loads configuration based on defaults, environment, config
// file, and flags. Precedence: Flags > Config File > Env > Defaults.
// The returned RoundTripper wraps API traffic with request logging when
// enabled, and is nil otherwise.
func Initialize(flags CliFlags) (models.Config, http.RoundTripper, error) {
	// A .env file can carry CIVITAI_APIKEY so the key stays out of the
	// config file and shell history. Absence is not an error.
	if err := godotenv.Load(); err == nil {
		log.Debug("Loaded environment overrides from .env")
	}

	v := viper.New()
	v.SetEnvPrefix("CIVITAI")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setViperDefaults(v)

	actualConfigFilePath := DefaultConfigFilePath
	if flags.ConfigFilePath != nil {
		actualConfigFilePath = *flags.ConfigFilePath
	}
	v.SetConfigFile(actualConfigFilePath)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			log.Debugf("Config file '%s' not found, using defaults, environment and flags", actualConfigFilePath)
		} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Debugf("Config file '%s' not found, using defaults, environment and flags", actualConfigFilePath)
		} else {
			log.Warnf("Error reading config file '%s': %v", actualConfigFilePath, err)
		}
	} else {
		log.Debugf("Read config file: %s", v.ConfigFileUsed())
	}

	var cfg models.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return models.Config{}, nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if len(cfg.ModelPaths) == 0 {
		cfg.ModelPaths = DefaultModelPaths()
	}

	applyFlags(&cfg, flags)

	// Derived paths live under SavePath unless set explicitly.
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(cfg.SavePath, "history.db")
	}
	if cfg.IndexPath == "" {
		cfg.IndexPath = filepath.Join(cfg.SavePath, "history.bleve")
	}

	if cfg.SavePath == "" {
		return models.Config{}, nil, fmt.Errorf("SavePath cannot be empty (set via --save-path flag or SavePath in config)")
	}
	if cfg.CatalogDir == "" {
		return models.Config{}, nil, fmt.Errorf("CatalogDir cannot be empty (set via --catalog-dir flag or CatalogDir in config)")
	}

	var transport http.RoundTripper
	if cfg.LogApiRequests {
		logFilePath := "api.log"
		if _, statErr := os.Stat(cfg.SavePath); statErr == nil {
			logFilePath = filepath.Join(cfg.SavePath, logFilePath)
		}
		loggingTransport, err := api.NewLoggingTransport(http.DefaultTransport, logFilePath)
		if err != nil {
			log.WithError(err).Error("Failed to initialize API logging transport, logging disabled")
		} else {
			log.Infof("API request logging to file: %s", logFilePath)
			transport = loggingTransport
		}
	}

	return cfg, transport, nil
}

// applyFlags overrides config fields with any flags the user provided.
func applyFlags(cfg *models.Config, flags CliFlags) {
	if flags.APIKey != nil {
		cfg.APIKey = *flags.APIKey
	}
	if flags.SavePath != nil {
		cfg.SavePath = *flags.SavePath
	}
	if flags.CatalogDir != nil {
		cfg.CatalogDir = *flags.CatalogDir
	}
	if flags.LogLevel != nil {
		cfg.LogLevel = *flags.LogLevel
	}
	if flags.LogFormat != nil {
		cfg.LogFormat = *flags.LogFormat
	}
	if flags.LogApiRequests != nil {
		cfg.LogApiRequests = *flags.LogApiRequests
	}
	if flags.APITimeoutSec != nil {
		cfg.APITimeoutSec = *flags.APITimeoutSec
	}
}

// DefaultConfig returns a fully populated configuration suitable for
// writing as a starter config file.
func DefaultConfig() models.Config {
	return models.Config{
		SavePath:      DefaultSavePath,
		CatalogDir:    DefaultCatalogDir,
		LogLevel:      DefaultLogLevel,
		LogFormat:     DefaultLogFormat,
		APITimeoutSec: DefaultAPITimeoutSec,
		ModelPaths:    DefaultModelPaths(),
		Download: models.DownloadConfig{
			Concurrency:   DefaultDownloadConcurrency,
			RetryAttempts: DefaultDownloadRetryAttempts,
			TimeoutSec:    DefaultDownloadTimeoutSec,
			SkipExisting:  DefaultDownloadSkipExisting,
			VerifyHashes:  DefaultDownloadVerifyHashes,
		},
		Torrent: models.TorrentConfig{
			OutputDir:     DefaultTorrentOutputDir,
			Trackers:      DefaultTorrentTrackers,
			PieceLengthKB: DefaultTorrentPieceLengthKB,
		},
	}
}

// WriteDefault writes a starter config file to path. Refuses to clobber
// an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	f, err := os.Create(path) // #nosec G304 -- path comes from a CLI flag
	if err != nil {
		return fmt.Errorf("failed to create config file %s: %w", path, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(DefaultConfig()); err != nil {
		return fmt.Errorf("failed to encode default config: %w", err)
	}
	log.Infof("Wrote default configuration to %s", path)
	return nil
}
