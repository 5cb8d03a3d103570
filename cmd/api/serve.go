package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/serene/backend/internal/config"
	"github.com/zhouzirui/serene/backend/internal/handler"
	chatHandler "github.com/zhouzirui/serene/backend/internal/handler/chat"
	chatService "github.com/zhouzirui/serene/backend/internal/service/chat"
	"github.com/zhouzirui/serene/backend/internal/service/dialogue"
	"github.com/zhouzirui/serene/backend/internal/service/insight"
	"github.com/zhouzirui/serene/backend/internal/service/memory"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and WebSocket server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() { _ = a.logger.Sync() }()

	backend, closeBackend, err := a.openBackend(ctx)
	if err != nil {
		return err
	}
	defer closeBackend()

	gen := a.newGenerator(ctx)

	store, err := memory.NewStore(ctx, backend, gen, memory.Options{
		QueueSize: a.cfg.Memory.QueueSize,
		Logger:    a.logger,
		Metrics:   a.metrics,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	orchestrator, err := dialogue.NewOrchestrator(ctx, dialogue.DefaultStrategies(gen), a.logger, a.metrics)
	if err != nil {
		return err
	}

	router := handler.NewRouter(handler.Deps{
		Chat: chatService.NewService(orchestrator, store, a.logger),
		ChatOptions: chatHandler.Options{
			ChunkSize:  a.cfg.Chat.ChunkSize,
			ChunkDelay: a.cfg.Chat.ChunkDelay,
		},
		Memory:         store,
		Insight:        insight.NewService(gen, a.logger),
		Metrics:        a.metrics.Handler(),
		AllowedOrigins: a.cfg.Server.AllowedOrigins,
		Logger:         a.logger,
	})

	return runWithWorker(ctx, store, func(ctx context.Context) error {
		return startServer(ctx, a.cfg.Server, router, a.logger)
	})
}

// extractionWorker is the background half of the memory store.
type extractionWorker interface {
	Run(ctx context.Context) error
	Close()
}

// runWithWorker runs serve alongside worker. The worker does not see ctx
// cancellation: requests still finishing during graceful shutdown may queue
// extractions, so the queue is closed and drained only once serve returns.
func runWithWorker(ctx context.Context, worker extractionWorker, serve func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(context.WithoutCancel(gctx))
	})
	g.Go(func() error {
		defer worker.Close()
		return serve(gctx)
	})
	return g.Wait()
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("Serene backend listening", zap.String("addr", serverCfg.Addr))
	return runServer(ctx, srv)
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
