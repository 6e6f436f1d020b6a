// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the trial-extractor CLI.
// Each pipeline stage is a subcommand: convert, extract, batch, store, qc.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/trial-extractor/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets secrets.Set

// logger receives diagnostics; --verbose lowers its level to debug.
var logger = slog.Default()

// rootCmd is the base command for the trial-extractor CLI.
var rootCmd = &cobra.Command{
	Use:   "trial-extractor",
	Short: "Extract structured clinical-trial data from oncology publications",
	Long: `trial-extractor reads clinical-trial publications (PDF, Markdown or text),
asks an LLM for every field of the trial catalog in focused chunks, and writes
one validated record per publication with a row of values per treatment arm.

Stages are subcommands: convert turns PDFs into Markdown, extract and batch
produce records, store keeps them in SQLite, and qc compares them against
curated references.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)

		if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading .env: %w", err)
		}

		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", s.Names())
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./trial-extractor.yaml or ~/.config/trial-extractor/config.yaml)")
	pf.BoolP("verbose", "v", false, "log chunk-level diagnostics")
	pf.String("provider", "", "LLM provider: openai or anthropic")
	pf.String("model", "", "LLM model identifier")
	pf.String("backend", "", "PDF conversion backend: pdfcpu, marker or text")
	pf.String("db", "", "SQLite record store path")
	pf.Bool("registry", false, "enrich records from ClinicalTrials.gov")

	bindFlag("extraction.provider", "provider")
	bindFlag("extraction.model", "model")
	bindFlag("conversion.backend", "backend")
	bindFlag("store.path", "db")
	bindFlag("registry.enabled", "registry")
}

// bindFlag ties a persistent flag to a config key so flags override the
// config file and environment.
func bindFlag(key, flag string) {
	if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("trial-extractor")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "trial-extractor"))
		}
	}

	viper.SetEnvPrefix("TRIAL_EXTRACTOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
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
