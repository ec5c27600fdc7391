package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MJE43/studio-analyzer/internal/api"
	"github.com/MJE43/studio-analyzer/internal/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			a.cfg.Server.Addr = addr
		}
		logger := logging.New("api")

		token, source, err := secretStore().ResolveToken(a.cfg.Server.Token)
		if err != nil {
			logger.Warn("could not read ingest token; mutating routes are open", "err", err)
		}
		if token == "" {
			logger.Warn("no ingest token configured; mutating routes are open")
		} else {
			logger.Info("ingest token loaded", "source", source)
		}

		srv := api.NewServer(a.tracker, api.Options{
			Addr:           a.cfg.Server.Addr,
			Token:          token,
			AllowedOrigins: a.cfg.Server.AllowedOrigins,
			RequestTimeout: a.cfg.Server.RequestTimeout,
			HistoryLimit:   a.cfg.Server.HistoryLimit,
			IngestRate:     a.cfg.Server.IngestRate,
			IngestBurst:    a.cfg.Server.IngestBurst,
			DB:             a.store,
			Logger:         logger,
		})
		if err := srv.Start(); err != nil {
			return err
		}
		logger.Info("engine ready",
			"forecaster", a.tracker.Engine().ForecasterName(),
			"policy", a.tracker.Engine().PolicyName(),
			"db", a.cfg.Database.Path)

		ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()

		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides STUDIO_ADDR)")
}
