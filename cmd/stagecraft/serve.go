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

	"github.com/spf13/cobra"

	"github.com/aretw0/stagecraft"
	httpAdapter "github.com/aretw0/stagecraft/pkg/adapters/http"
	natsAdapter "github.com/aretw0/stagecraft/pkg/adapters/nats"
	"github.com/aretw0/stagecraft/pkg/domain"
	"github.com/aretw0/stagecraft/pkg/observability"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP control surface",
	Long: `Starts a task manager behind an HTTP API: submit, query, stop and confirm tasks,
stream their events and scrape Prometheus metrics. Tasks are kept in Redis when
redis.addr is set; events are published to NATS when nats.url is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			s.HTTP.Addr = addr
		}
		logger, err := newLogger(s)
		if err != nil {
			return err
		}

		metrics := observability.NewMetrics()
		streams := httpAdapter.NewStreamManager(logger)
		hooks := []domain.LifecycleHooks{metrics.Hooks(), streams.Hooks()}

		var publisher *natsAdapter.Publisher
		if s.NATS.URL != "" {
			publisher, err = natsAdapter.Connect(s.NATS.URL,
				natsAdapter.WithSubject(s.NATS.Subject),
				natsAdapter.WithLogger(logger),
			)
			if err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			hooks = append(hooks, publisher.Hooks())
		}

		_, storeOpts, closeStore, err := taskStore(s)
		if err != nil {
			return err
		}
		defer closeStore()

		opts := append(storeOpts, stagecraft.WithLifecycleHooks(domain.MergeHooks(hooks...)))
		app, err := newApp(s, logger, opts...)
		if err != nil {
			return fmt.Errorf("failed to initialize stagecraft: %w", err)
		}

		handler := httpAdapter.NewHandler(app.Manager(),
			httpAdapter.WithResolver(app.Confirmations()),
			httpAdapter.WithStreams(streams),
			httpAdapter.WithMetrics(metrics.Handler()),
			httpAdapter.WithVersion(stagecraft.Version),
			httpAdapter.WithLogger(logger),
		)
		srv := &http.Server{
			Addr:              s.HTTP.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("Starting stagecraft server", "addr", srv.Addr, "agents", s.AgentsDir)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(shutdown)

		select {
		case err := <-serverErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}
		case sig := <-shutdown:
			logger.Info("Start shutdown", "signal", sig.String())
		}

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("Graceful shutdown did not complete", "timeout", shutdownTimeout, "err", err)
			_ = srv.Close()
		}
		if err := app.Shutdown(ctx); err != nil {
			logger.Warn("Tasks still running at shutdown", "err", err)
		}
		if publisher != nil {
			if err := publisher.Close(ctx); err != nil {
				logger.Warn("Failed to drain NATS connection", "err", err)
			}
		}
		logger.Info("Stagecraft server stopped gracefully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Address to listen on (overrides http.addr)")
}
