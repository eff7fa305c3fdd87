package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"story-o-matic/server/internal/engine"
	"story-o-matic/server/internal/prompts"
	"story-o-matic/server/internal/strategy"
	"story-o-matic/server/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and WebSocket API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, closeStore, err := openRepository(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	loader, err := prompts.NewDefaultLoader()
	if err != nil {
		return err
	}
	strategies := strategy.NewManager(loader)
	if _, err := strategies.CreateStrategy(cfg.Engine.DefaultStrategy); err != nil {
		return err
	}

	completer, err := engine.NewCompleter(ctx, cfg.AI)
	if err != nil {
		return err
	}
	logger.Info("Completion backend ready", zap.String("backend", completer.Name()))

	generator := engine.NewGenerator(completer, strategies, engine.GenerationOptions{
		Temperature:    cfg.AI.Temperature,
		TopP:           cfg.AI.TopP,
		CandidateCount: cfg.AI.CandidateCount,
	}, logger)

	hub := web.NewStoryHub(logger)
	go hub.Run(ctx)

	registry := engine.NewRegistry(func() *engine.StoryManager {
		return engine.NewStoryManager(generator, strategies, repo, logger,
			engine.WithObserver(hub.Broadcast),
			engine.WithMaxDebugEntries(cfg.Engine.MaxDebugEntries),
		)
	}, logger)

	router := web.NewRouter(
		web.NewHandlers(hub, strategies, completer.Name(), logger),
		web.NewStoryHandlers(registry, repo, logger).WithDefaultStrategy(cfg.Engine.DefaultStrategy),
		logger,
	)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("Server shutting down...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	logger.Info("Server stopped")
	return nil
}
