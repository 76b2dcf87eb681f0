// Package main is the insightboard command: the dashboard service, a
// development analysis backend and terminal commands over the same job list.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jo-hoe/insightboard/internal/backend"
	appcfg "github.com/jo-hoe/insightboard/internal/config"
	"github.com/jo-hoe/insightboard/internal/jobs"
	"github.com/jo-hoe/insightboard/internal/tracker"
)

var (
	configPath string
	ownerFlag  string
)

var rootCmd = &cobra.Command{
	Use:           "insightboard",
	Short:         "Track recording analyses submitted to the insight backend",
	Long:          "insightboard submits recordings for analysis, keeps a reconciled list of jobs per owner and serves it as JSON.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default $"+appcfg.EnvConfigPath+" or config.yaml)")
	rootCmd.PersistentFlags().StringVar(&ownerFlag, "owner", "", "Owner id overriding backend.ownerId")
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*appcfg.Config, error) {
	cfg, err := appcfg.Load(configPath)
	if err != nil {
		return nil, err
	}
	if o := strings.TrimSpace(ownerFlag); o != "" {
		cfg.Backend.OwnerID = o
	}
	return cfg, nil
}

func newLogger(cfg *appcfg.Config) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)
	return logger
}

// newCLILogger logs to stderr so command output stays parseable.
func newCLILogger(cfg *appcfg.Config) *slog.Logger {
	level := parseLevel(cfg.Server.LogLevel)
	if level < slog.LevelWarn {
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// openDashboard starts a dashboard backed by the configured backend and the
// shared snapshot database. The returned func releases both.
func openDashboard(ctx context.Context, cfg *appcfg.Config, log *slog.Logger) (*tracker.Dashboard, func(), error) {
	store, err := jobs.NewSQLiteStore(cfg.Server.DatabasePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open snapshot store: %w", err)
	}
	d := tracker.NewDashboard(log, backend.New(cfg.Backend), store, tracker.Settings{
		OwnerID:      cfg.Backend.OwnerID,
		PollInterval: cfg.Poll.Interval,
		StaleAfter:   cfg.Poll.StaleAfter,
	})
	if err := d.Start(ctx); err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("start dashboard: %w", err)
	}
	return d, func() {
		d.Shutdown(cfg.Server.ShutdownGrace)
		_ = store.Close()
	}, nil
}
