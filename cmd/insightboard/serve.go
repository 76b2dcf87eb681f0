package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jo-hoe/insightboard/internal/server"
	"github.com/jo-hoe/insightboard/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard API server",
	Long:  "Start an HTTP server exposing the reconciled job list. The list is polled from the backend while the server runs.",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	rootCtx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dash, release, err := openDashboard(rootCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer release()

	view, err := dash.Open(rootCtx)
	if err != nil {
		return err
	}
	defer view.Close()

	httpSrv := server.NewHTTPServer(&server.Service{
		Log:       logger,
		Cfg:       cfg,
		Dashboard: dash,
		Uploader:  storage.NewUploader(cfg.Server.StorageDir),
	})

	g, gctx := errgroup.WithContext(rootCtx)
	g.Go(func() error {
		logger.Info("http server starting", "address", cfg.Server.Addr, "backend", cfg.Backend.BaseURL, "owner", cfg.Backend.OwnerID)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
		defer cancelShutdown()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", "err", err)
		}
		return nil
	})
	err = g.Wait()
	logger.Info("server stopped")
	return err
}
