package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"submirror/internal/api"
	"submirror/internal/config"
	"submirror/internal/engine"
	"submirror/internal/logging"
	"submirror/internal/mirror"
	"submirror/internal/provider"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	flagListenAddr string
	flagDataDir    string
	flagLogLevel   string
	flagLogFormat  string
	flagEnvFile    string
)

var rootCmd = &cobra.Command{
	Use:     "submirror",
	Short:   "Submirror - subscription state synchronization engine",
	Long:    `Submirror keeps a local entitlement mirror consistent with Stripe via webhook ingestion, plan-change orchestration, and drift reconciliation`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Submirror %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Printf("Built: %s\n", BuildTime)
		}
		if GitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", GitCommit)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagEnvFile, "env-file", "", "Path to .env file to load before reading configuration")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", defaultDataDir(), "Directory for the mirror database")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", envOr("LOG_LEVEL", "info"), "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", envOr("LOG_FORMAT", "auto"), "Log format (auto, json, console)")
	rootCmd.Flags().StringVar(&flagListenAddr, "listen", envOr("SUBMIRROR_LISTEN", ":8080"), "HTTP listen address")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(changePlanCmd)
	rootCmd.AddCommand(cancelCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func defaultDataDir() string {
	if dir := os.Getenv("SUBMIRROR_DATA_DIR"); dir != "" {
		return dir
	}
	return "./data"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// setup loads the environment, initializes logging, and wires the engine.
// Shared by the server and the one-shot operational commands.
func setup() (*engine.Engine, *mirror.SQLiteStore, error) {
	if flagEnvFile != "" {
		if err := godotenv.Load(flagEnvFile); err != nil {
			return nil, nil, fmt.Errorf("load env file %s: %w", flagEnvFile, err)
		}
	} else {
		// Best effort: a missing .env is not an error.
		_ = godotenv.Load()
	}

	logging.Init(logging.Config{
		Format:    flagLogFormat,
		Level:     flagLogLevel,
		Component: "submirror",
	})

	cfg, err := config.FromEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}
	if cfg.Debug && flagLogLevel == "info" {
		logging.Init(logging.Config{
			Format:    flagLogFormat,
			Level:     "debug",
			Component: "submirror",
		})
	}

	store, err := mirror.NewSQLiteStore(flagDataDir, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open mirror store: %w", err)
	}

	eng := engine.New(cfg, provider.NewStripeClient(cfg), store)
	return eng, store, nil
}

func runServer() {
	eng, store, err := setup()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start")
	}
	defer store.Close()

	srv := &http.Server{
		Addr:              flagListenAddr,
		Handler:           api.NewRouter(eng),
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", flagListenAddr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start HTTP server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}
	log.Info().Msg("Server stopped")
}
