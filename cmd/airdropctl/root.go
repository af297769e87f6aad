package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/fairyhunter13/airdrop-analyzer/internal/app"
	"github.com/fairyhunter13/airdrop-analyzer/internal/config"
)

var (
	flagEnvFile string
	flagStore   string
	flagDataDir string
	flagJSON    bool
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:           "airdropctl",
	Short:         "Airdrop analyzer admin CLI",
	Long:          "Manage OpenRouter keys, inspect models and maintain the analysis cache.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the main entry point called from main.go.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "  error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagEnvFile, "env-file", ".env", "Dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().StringVar(&flagStore, "store", "", "Override STORE_BACKEND (file, redis, bolt, memory)")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "Override DATA_DIR for the file backend")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Print JSON instead of tables")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Log runtime setup")
}

// loadConfig reads the environment plus the CLI overrides.
func loadConfig() (config.Config, error) {
	// A missing dotenv file is normal outside development.
	_ = godotenv.Load(flagEnvFile)
	if flagStore != "" {
		if err := os.Setenv("STORE_BACKEND", flagStore); err != nil {
			return config.Config{}, err
		}
	}
	if flagDataDir != "" {
		if err := os.Setenv("DATA_DIR", flagDataDir); err != nil {
			return config.Config{}, err
		}
	}
	return config.Load()
}

// withRuntime opens the shared runtime for the duration of fn.
func withRuntime(ctx context.Context, fn func(ctx context.Context, rt *app.Runtime) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	level := slog.LevelWarn
	if flagVerbose {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	rt, err := app.NewRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()
	return fn(ctx, rt)
}
