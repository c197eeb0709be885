package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/MimeLyc/subtitle-batch-translator/internal/config"
	"github.com/MimeLyc/subtitle-batch-translator/internal/httpapi"
	"github.com/MimeLyc/subtitle-batch-translator/internal/jobs"
	"github.com/MimeLyc/subtitle-batch-translator/internal/persistence"
	"github.com/MimeLyc/subtitle-batch-translator/internal/service"
	"github.com/MimeLyc/subtitle-batch-translator/pkg/icron"
	"github.com/MimeLyc/subtitle-batch-translator/pkg/log"
)

const (
	cacheSweepSpec  = "0 30 3 * * *"
	cacheRetention  = 90 * 24 * time.Hour
	shutdownTimeout = 10 * time.Second
)

type scheduler interface {
	Schedule(ctx context.Context) error
}

type cronEngine interface {
	Start()
	Stop() context.Context
}

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

func newServeCommand(ctx *commandContext) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the job queue, the inbox scanner and the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return serve(signalCtx, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides HTTP_ADDR)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	if err := os.MkdirAll(cfg.System.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another instance is already serving %s", cfg.System.DataDir)
	}
	defer func() { _ = lock.Unlock() }()

	store, err := persistence.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		return err
	}
	defer store.Close()

	engine, err := service.NewEngine(cfg, store)
	if err != nil {
		return err
	}
	runner := service.NewRunner(cfg, engine, service.WithCheckpointStore(store))

	// one file at a time; batches of a file already run in parallel
	queue := jobs.NewQueue(1, store)
	queue.Start(service.NewExecutor(runner, queue, store))
	defer queue.Stop()

	c := icron.New()
	if _, err := c.AddFunc(cacheSweepSpec, func() { sweepCache(ctx, store) }); err != nil {
		return fmt.Errorf("schedule cache sweep: %w", err)
	}
	scanner := service.NewInboxScanner(cfg, queue, c)
	go func() {
		if _, err := scanner.Scan(ctx); err != nil {
			log.Warn("Initial inbox scan failed: %v", err)
		}
	}()

	srv := httpapi.NewServer(cfg, queue,
		httpapi.WithScanner(scanner),
		httpapi.WithJobData(store),
	)
	return runWithComponents(ctx, cfg, scanner, c, srv)
}

func sweepCache(ctx context.Context, store *persistence.SQLiteStore) {
	n, err := store.DeleteStaleTranslations(ctx, time.Now().Add(-cacheRetention))
	if err != nil {
		log.Error("Translation cache sweep failed: %v", err)
		return
	}
	if n > 0 {
		log.Info("Removed %d stale cached translations", n)
	}
}

// runWithComponents schedules the scanner, runs the HTTP server and blocks
// until ctx is done or the server fails.
func runWithComponents(ctx context.Context, cfg *config.Config, sched scheduler, c cronEngine, srv httpServer) error {
	if err := sched.Schedule(ctx); err != nil {
		return err
	}
	c.Start()
	defer func() {
		select {
		case <-c.Stop().Done():
		case <-time.After(shutdownTimeout):
			log.Warn("Scheduled tasks still running after %v", shutdownTimeout)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP API listening on %s", cfg.HTTP.Addr)
		err := srv.ListenAndServe(cfg.HTTP.Addr)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return <-errCh
}
