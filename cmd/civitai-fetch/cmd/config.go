package cmd

import (
	"os"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-civitai-fetch/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config.toml with default values",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultConfigFilePath
		if cfgFile != "" {
			path = cfgFile
		}
		return config.WriteDefault(path)
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		// globalConfig was already merged by the persistent pre-run. The
		// API key is masked so `show` output is safe to paste around.
		shown := globalConfig
		if shown.APIKey != "" {
			shown.APIKey = "********"
		}
		if err := toml.NewEncoder(os.Stdout).Encode(shown); err != nil {
			log.WithError(err).Error("Failed to encode configuration")
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}
