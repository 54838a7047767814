package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"shelf/internal/bot"
	"shelf/internal/metrics"
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the Telegram bot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.RequireBotToken(); err != nil {
			return err
		}
		ctx := cmd.Context()

		log.WithField("storage_driver", cfg.StorageDriver).Info("Configuration loaded successfully")

		p, err := newPipeline(ctx)
		if err != nil {
			return err
		}
		defer p.Close()

		handler, err := bot.NewHandler(cfg.TelegramBotToken, p.ingest, p.repo, log)
		if err != nil {
			return err
		}

		var srv *http.Server
		if cfg.MetricsAddr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler(p.registry))
			srv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
			go func() {
				log.WithField("addr", cfg.MetricsAddr).Info("Serving metrics")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.WithError(err).Error("Metrics server failed")
				}
			}()
		}

		go handler.Start(ctx)
		log.Info("Shelf is running. Press Ctrl+C to exit.")

		<-ctx.Done()
		log.Info("Shutting down Shelf...")

		if srv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.WithError(err).Warn("Metrics server shutdown")
			}
		}
		return nil
	},
}
