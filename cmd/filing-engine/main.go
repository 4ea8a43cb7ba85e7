// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the filing-engine CLI.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/filing-engine/internal/logging"
	"github.com/pdiddy/filing-engine/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	// logger is configured from --log-level and --log-format before any subcommand runs.
	logger = zerolog.Nop()

	// loadedSecrets holds API keys loaded from .secrets/ at startup.
	loadedSecrets secrets.Secrets
)

// rootCmd is the base command for the filing-engine CLI.
var rootCmd = &cobra.Command{
	Use:   "filing-engine",
	Short: "Extract structured data and summaries from company filing PDFs",
	Long: `filing-engine reads company filing PDFs such as the ADT-1 auditor
appointment form, asks a language model for the form's fields as JSON,
summarizes any attachments, and writes a short plain-language summary
for each filing.

Processed filings can be indexed into a local catalog for full-text
search and exported to YAML, JSON, or a spreadsheet.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := stringSetting(cmd, "log-level", "log.level")
		format := stringSetting(cmd, "log-format", "log.format")
		l, err := logging.New(logging.Config{Level: level, Format: format})
		if err != nil {
			return err
		}
		logger = l

		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading .env: %w", err)
		}

		s, err := secrets.Load(".secrets/", logger)
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			names := s.Names()
			sort.Strings(names)
			logger.Debug().Strs("secrets", names).Msg("loaded secrets")
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./filing-engine.yaml or ~/.config/filing-engine/filing-engine.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "console", "log format: console or json")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("filing-engine")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "filing-engine"))
		}
	}

	viper.SetEnvPrefix("FILING_ENGINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
