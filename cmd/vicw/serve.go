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

	"github.com/elevend0g/vicw/internal/httpapi"
	"github.com/elevend0g/vicw/internal/orchestrator"
)

// serveCmd wires every component into an HTTP server, grounded on the teacher's cobra subcommand
// factories in itsddvn-goclaw/cmd/config_cmd.go.
func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the VICW HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			loadEnv(cmd)
			logger := newLogger()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			deps := buildDeps(cfg, logger)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go deps.Worker.Run(ctx)

			manager := orchestrator.NewManager(deps)
			server := httpapi.New(manager, cfg.LLMModel, logger)

			httpSrv := &http.Server{Addr: addr, Handler: server}

			go func() {
				logger.Info().Str("addr", addr).Msg("vicw listening")
				if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Fatal().Err(err).Msg("http server failed")
				}
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh

			logger.Info().Msg("shutting down")
			cancel()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			return httpSrv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "address to listen on")
	return cmd
}
