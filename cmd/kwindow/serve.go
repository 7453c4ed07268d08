package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	backend "github.com/redis/go-redis/v9"

	"github.com/kwindow/realtime/internal/config"
	"github.com/kwindow/realtime/internal/logging"
	"github.com/kwindow/realtime/internal/server"
	redisadapter "github.com/kwindow/realtime/pkg/adapters/redis"
	"github.com/kwindow/realtime/pkg/ports"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the real-time sync server",
	Long:  `Starts the WebSocket sync endpoint plus the document upload and similarity search API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		addr, _ := cmd.Flags().GetString("addr")

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		if addr != "" {
			cfg.Addr = addr
		}

		var level slog.Level
		if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
			level = slog.LevelInfo
		}
		logger := logging.New(level)

		opts := []server.Option{}

		key, err := cfg.Key()
		if err != nil {
			return err
		}
		if key != nil {
			opts = append(opts, server.WithKeyProvider(ports.StaticKeys{Active: key}))
		}

		if cfg.RedisAddr != "" {
			client := backend.NewClient(&backend.Options{Addr: cfg.RedisAddr})
			store := redisadapter.NewFromClient(client)
			opts = append(opts,
				server.WithWorkflowStore(store),
				server.WithDocumentStore(store.Documents()),
				server.WithBridge(redisadapter.NewBridge(client, logger)),
			)
			logger.Info("using redis persistence", "addr", cfg.RedisAddr)
		}

		srv := server.New(logger, opts...)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		srv.Start(ctx)

		httpSrv := &http.Server{
			Addr:    cfg.Addr,
			Handler: srv.Handler(),
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)

		go func() {
			logger.Info("starting sync server", "addr", cfg.Addr, "encrypted", key != nil)
			serverErrors <- httpSrv.ListenAndServe()
		}()

		// Channel to listen for interrupt or terminate signals.
		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			logger.Info("starting shutdown", "signal", sig.String())

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()

			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				httpSrv.Close()
				return fmt.Errorf("graceful shutdown failed: %w", err)
			}
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
