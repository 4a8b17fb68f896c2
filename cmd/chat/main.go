package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/MegaGrindStone/openrouter-chat/internal/services"
	"github.com/MegaGrindStone/openrouter-chat/internal/session"
	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		endpoint string
		model    string
		apiKey   string
		debug    bool
	)

	cmd := &cobra.Command{
		Use:          "chat",
		Short:        "Chat with an openrouter-chat server from the terminal",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			level := slog.LevelWarn
			if debug {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			transport := services.NewEndpoint(services.Config{
				BaseURL: endpoint,
				APIKey:  apiKey,
			}, logger)

			s := session.New(transport,
				session.WithModel(model),
				session.WithLogger(logger),
			)
			defer s.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			r := newREPL(s, cmd.OutOrStdout(), clipboard.WriteAll)
			return r.run(ctx, cmd.InOrStdin())
		},
	}

	cmd.Flags().StringVar(&endpoint, "endpoint", "http://localhost:8080/api/chat", "URL of the chat API")
	cmd.Flags().StringVar(&model, "model", "", "model id, the server default when empty")
	cmd.Flags().StringVar(&apiKey, "api-key", os.Getenv("CHAT_API_KEY"), "bearer token sent to the endpoint")
	cmd.Flags().BoolVar(&debug, "debug", false, "log requests to stderr")

	return cmd
}

// closeOnDone closes s once ctx is done, canceling a reply in flight.
func closeOnDone(ctx context.Context, s *session.Session) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-done:
		}
	}()
	return func() { close(done) }
}
