package cmd

import (
	"fmt"
	"net/http"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-civitai-fetch/internal/api"
	"go-civitai-fetch/internal/config"
	"go-civitai-fetch/internal/models"
)

// Persistent flag storage. Values only apply when the user set the flag.
var (
	cfgFile        string
	logLevelFlag   string
	logFormatFlag  string
	logApiFlag     bool
	savePathFlag   string
	catalogDirFlag string
	apiKeyFlag     string
	apiTimeoutFlag int
)

// globalConfig holds the merged configuration for the running command.
var globalConfig models.Config

// globalHttpTransport wraps API traffic with request logging when enabled.
var globalHttpTransport http.RoundTripper

var rootCmd = &cobra.Command{
	Use:   "civitai-fetch",
	Short: "Resolve Civitai model references and download the files",
	Long: `civitai-fetch turns mixed Civitai model references (page URLs, bare IDs,
model names, download links) into canonical download URLs, keeps them in
CSV catalogs, and downloads the files concurrently.`,
	PersistentPreRunE: loadGlobalConfig,
	SilenceUsage:      true,
}

// Execute runs the root command. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		api.CloseAllLoggingTransports()
		os.Exit(1)
	}
	api.CloseAllLoggingTransports()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Configuration file path (default ./config.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Logging level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", "", "Logging format (text, json)")
	rootCmd.PersistentFlags().BoolVar(&logApiFlag, "log-api", false, "Log API requests/responses to api.log")
	rootCmd.PersistentFlags().StringVar(&savePathFlag, "save-path", "", "Directory to save models (overrides config)")
	rootCmd.PersistentFlags().StringVar(&catalogDirFlag, "catalog-dir", "", "Directory holding catalog CSV files (overrides config)")
	rootCmd.PersistentFlags().StringVar(&apiKeyFlag, "api-key", "", "Civitai API key (overrides config and CIVITAI_APIKEY)")
	rootCmd.PersistentFlags().IntVar(&apiTimeoutFlag, "api-timeout", 0, "Timeout for API requests in seconds (overrides config)")
}

// stringFlag returns a pointer to the flag value when the user set it.
func stringFlag(cmd *cobra.Command, name string, value *string) *string {
	if cmd.Flags().Changed(name) {
		return value
	}
	return nil
}

func boolFlag(cmd *cobra.Command, name string, value *bool) *bool {
	if cmd.Flags().Changed(name) {
		return value
	}
	return nil
}

func intFlag(cmd *cobra.Command, name string, value *int) *int {
	if cmd.Flags().Changed(name) {
		return value
	}
	return nil
}

// loadGlobalConfig merges defaults, environment, config file and flags,
// then configures logging. Runs before every command.
func loadGlobalConfig(cmd *cobra.Command, args []string) error {
	flags := config.CliFlags{
		ConfigFilePath: stringFlag(cmd, "config", &cfgFile),
		LogLevel:       stringFlag(cmd, "log-level", &logLevelFlag),
		LogFormat:      stringFlag(cmd, "log-format", &logFormatFlag),
		LogApiRequests: boolFlag(cmd, "log-api", &logApiFlag),
		SavePath:       stringFlag(cmd, "save-path", &savePathFlag),
		CatalogDir:     stringFlag(cmd, "catalog-dir", &catalogDirFlag),
		APIKey:         stringFlag(cmd, "api-key", &apiKeyFlag),
		APITimeoutSec:  intFlag(cmd, "api-timeout", &apiTimeoutFlag),
	}

	cfg, transport, err := config.Initialize(flags)
	if err != nil {
		return err
	}
	globalConfig = cfg
	globalHttpTransport = transport

	initLogging(cfg.LogLevel, cfg.LogFormat)
	return nil
}

// initLogging applies the configured log level and format.
func initLogging(level, format string) {
	parsed, err := log.ParseLevel(level)
	if err != nil {
		parsed = log.InfoLevel
		log.Warnf("Invalid log level %q, using info", level)
	}
	log.SetLevel(parsed)

	if format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

// newAPIClient builds the gateway client from the global configuration.
func newAPIClient() *api.Client {
	httpClient := &http.Client{}
	if globalConfig.APITimeoutSec > 0 {
		httpClient.Timeout = time.Duration(globalConfig.APITimeoutSec) * time.Second
	} else {
		httpClient.Timeout = 30 * time.Second
	}
	if globalHttpTransport != nil {
		httpClient.Transport = globalHttpTransport
	}
	return api.NewClient(globalConfig.APIKey, httpClient)
}
