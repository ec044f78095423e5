package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"moyuren/internal/app"
	"moyuren/internal/config"
)

const (
	appName = "moyuren"
	version = "v2.0.0"
)

var configPath string

func main() {
	zerolog.TimeFieldFormat = time.RFC3339

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "摸鱼人日历 — daily calendar image service",
		Version: version,
		Long: `moyuren renders the daily 摸鱼人日历 calendar image: date and lunar
almanac, countdown to the next holidays, daily news digest, fun content,
crazy-Thursday copy, and stock indices, published as a JPEG plus a JSON
state document.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (YAML)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and the generation scheduler",
		RunE:  runServe,
	}

	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Run one generation and exit",
		RunE:  runGenerate,
	}
	generateCmd.Flags().String("template", "", "template to render (default from config)")

	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Prune expired cache files and old images",
		RunE:  runCleanup,
	}
	cleanupCmd.Flags().Int("retain-days", 0, "override configured retention window")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Printf("%s %s\n", appName, version)
		},
	}

	rootCmd.AddCommand(serveCmd, generateCmd, cleanupCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadApp reads the configuration, configures logging, and assembles the
// service.
func loadApp() (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Logging.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	return app.New(cfg), nil
}
