package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	openrouterchat "github.com/MegaGrindStone/openrouter-chat"
	"github.com/MegaGrindStone/openrouter-chat/internal/handlers"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgPath string
		port    string
	)

	cmd := &cobra.Command{
		Use:   "openrouter-chat",
		Short: "Serve a streaming chat UI backed by OpenRouter or another LLM provider",
		// Configuration errors are reported by Execute; usage is only printed for flag errors.
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cfgPath, os.Getenv)
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Port = port
			}

			logger, err := cfg.logger(os.Stderr)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, logger)
		},
	}

	cmd.Flags().StringVar(&cfgPath, "config", "", "path to the YAML config file (default: user config dir)")
	cmd.Flags().StringVar(&port, "port", "", "port to listen on, overrides config and PORT")

	return cmd
}

func run(ctx context.Context, cfg config, logger *slog.Logger) error {
	llm, err := cfg.LLM.llm(cfg.SystemPrompt, logger)
	if err != nil {
		return fmt.Errorf("error creating llm: %w", err)
	}

	m, err := handlers.NewMain(llm, handlers.Options{
		Models:       cfg.Models,
		DefaultModel: cfg.DefaultModel,
		CodeStyle:    cfg.CodeStyle,
		SessionTTL:   cfg.SessionTTL,
	}, logger)
	if err != nil {
		return err
	}

	// Serve static files
	staticFS, err := fs.Sub(openrouterchat.StaticFS, "static")
	if err != nil {
		return err
	}
	fileServer := http.FileServer(http.FS(staticFS))

	mux := http.NewServeMux()
	mux.Handle("/static/", http.StripPrefix("/static/", fileServer))
	mux.HandleFunc("/", m.HandleHome)
	mux.HandleFunc("/chat", m.HandleChat)
	mux.HandleFunc("/clear", m.HandleClear)
	mux.HandleFunc("/ack", m.HandleAck)
	mux.HandleFunc("/transcript", m.HandleTranscript)
	mux.HandleFunc("/sse", m.HandleSSE)
	mux.HandleFunc("/api/chat", m.HandleAPIChat)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv.RegisterOnShutdown(func() {
		if err := m.Shutdown(context.Background()); err != nil {
			logger.Error("Failed to shutdown sse server", slog.String("err", err.Error()))
		}
	})

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		logger.Info("Server starting",
			slog.String("addr", srv.Addr),
			slog.String("provider", providerName(cfg.LLM)),
			slog.String("defaultModel", cfg.DefaultModel))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-ctx.Done()
		logger.Info("Start shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// Gracefully shutdown the server
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Graceful shutdown failed", slog.String("err", err.Error()))
			if err := srv.Close(); err != nil {
				return fmt.Errorf("forcing server close: %w", err)
			}
		}
		return nil
	})

	return eg.Wait()
}

func providerName(llm llmConfig) string {
	switch llm.(type) {
	case *openRouterConfig:
		return "openrouter"
	case *openAIConfig:
		return "openai"
	case *anthropicConfig:
		return "anthropic"
	case *ollamaConfig:
		return "ollama"
	}
	return "unknown"
}
