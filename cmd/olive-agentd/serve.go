package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newServeCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the agent runner HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, e.cfg, e.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			listener, err := net.Listen("tcp", e.cfg.HTTP.Addr)
			if err != nil {
				return err
			}
			serverCtx, serverCancel := context.WithCancel(context.Background())
			defer serverCancel()

			httpServer := &http.Server{
				Handler:           a.apiServer(time.Now().UTC()).Handler(),
				ReadHeaderTimeout: 5 * time.Second,
				BaseContext: func(_ net.Listener) context.Context {
					return serverCtx
				},
			}

			errCh := make(chan error, 1)
			go func() {
				e.logger.Info().Str("addr", listener.Addr().String()).Str("version", version).Msg("olive-agentd listening")
				if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case <-ctx.Done():
			case err := <-errCh:
				if err != nil {
					return err
				}
			}

			// Streams hold requests open; cancel them before shutting down.
			serverCancel()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				e.logger.Warn().Err(err).Msg("server shutdown")
			}
			e.logger.Info().Msg("olive-agentd stopped")
			return nil
		},
	}
}
