package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jo-hoe/insightboard/internal/llm/mock"
	"github.com/jo-hoe/insightboard/internal/mockbackend"
	"github.com/jo-hoe/insightboard/internal/storage"
)

var mockBackendCmd = &cobra.Command{
	Use:   "mock-backend",
	Short: "Run a development analysis backend",
	Long:  "Run an in-memory analysis backend that accepts uploads and completes them after mock.processingDelay.",
	Args:  cobra.NoArgs,
	RunE:  runMockBackend,
}

func init() {
	rootCmd.AddCommand(mockBackendCmd)
}

func runMockBackend(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	rootCtx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	b := mockbackend.New(mockbackend.Options{
		Log:           logger,
		Analyzer:      mock.New(cfg.Mock.ProcessingDelay),
		Uploader:      storage.NewUploader(filepath.Join(cfg.Server.StorageDir, "mock")),
		MaxUploadSize: int64(cfg.Server.MaxUploadSize), // #nosec G115 - validated config value
		Workers:       cfg.Mock.WorkerCount,
		FailEvery:     cfg.Mock.FailEvery,
	})
	if err := b.Start(rootCtx); err != nil {
		return err
	}
	defer b.Shutdown(cfg.Server.ShutdownGrace)

	httpSrv := mockbackend.NewHTTPServer(cfg, b)
	g, gctx := errgroup.WithContext(rootCtx)
	g.Go(func() error {
		logger.Info("mock backend starting", "address", cfg.Mock.Addr, "prefix", mockbackend.RoutePrefix)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
		defer cancelShutdown()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
