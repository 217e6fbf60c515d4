// Package server implements the medai server subcommand.
package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/drguilhermecapel/medai/internal/analysis"
	api "github.com/drguilhermecapel/medai/internal/api/v2"
	"github.com/drguilhermecapel/medai/internal/classifier"
	"github.com/drguilhermecapel/medai/internal/conf"
	"github.com/drguilhermecapel/medai/internal/datastore"
	"github.com/drguilhermecapel/medai/internal/events"
	"github.com/drguilhermecapel/medai/internal/logging"
	"github.com/drguilhermecapel/medai/internal/notification"
	"github.com/drguilhermecapel/medai/internal/observability/metrics"
)

// Command creates the server subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the analysis pipeline and HTTP API",
		RunE: func(_ *cobra.Command, _ []string) error {
			return run(settings)
		},
	}
	cmd.Flags().StringVar(&settings.WebServer.Port, "port", settings.WebServer.Port, "HTTP listen port")
	return cmd
}

func run(settings *conf.Settings) error {
	// File logging must be installed before any subsystem creates its
	// service logger.
	if settings.Main.Log.Enabled && settings.Main.Log.Path != "" {
		closeLog, err := logging.SetFileOutput(settings.Main.Log.Path, logging.FileLoggerOptions{})
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer func() { _ = closeLog() }()
	}
	logger := logging.ForService("server")

	// Metrics registry shared by all subsystems.
	registry := prometheus.NewRegistry()
	pipelineMetrics, err := metrics.NewPipelineMetrics(registry)
	if err != nil {
		return fmt.Errorf("failed to set up pipeline metrics: %w", err)
	}
	validationMetrics, err := metrics.NewValidationMetrics(registry)
	if err != nil {
		return fmt.Errorf("failed to set up validation metrics: %w", err)
	}

	// Persistence.
	var store datastore.Interface
	if settings.Output.SQLite.Enabled {
		store = datastore.New(settings)
		if err := store.Open(); err != nil {
			return fmt.Errorf("failed to open datastore: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error("failed to close datastore", slog.Any("error", err))
			}
		}()
	}

	// Event bus and the notification consumer.
	bus := events.NewBus(&events.Config{
		BufferSize: settings.Events.BufferSize,
		Workers:    settings.Events.Workers,
	})
	notifier := notification.NewService(settings.Notification)
	if err := bus.RegisterConsumer(notifier); err != nil {
		return fmt.Errorf("failed to register notification consumer: %w", err)
	}
	bus.Start()

	if settings.Notification.MQTT.Enabled {
		publisher := notification.NewPublisher(settings.Notification.MQTT)
		if err := publisher.Connect(); err != nil {
			// The broker being down must not keep analyses from running.
			logger.Warn("mqtt unavailable, notifications stay local", slog.Any("error", err))
		} else {
			notifier.SetPublisher(publisher)
			defer publisher.Disconnect()
		}
	}

	// Pipeline with the rule-based classifier.
	pipeline := analysis.NewPipeline(settings, classifier.NewRuleBased(), bus, store, pipelineMetrics)
	pipeline.Validation().SetMetrics(validationMetrics)
	pipeline.Start()

	controller := api.New(settings, pipeline, store, notifier, registry)
	errCh := make(chan error, 1)
	go func() {
		if err := controller.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("shutting down", slog.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("http server failed", slog.Any("error", err))
	}

	if err := controller.Shutdown(); err != nil {
		logger.Error("http shutdown failed", slog.Any("error", err))
	}
	pipeline.Stop()
	if err := bus.Shutdown(5 * time.Second); err != nil {
		logger.Error("event bus shutdown failed", slog.Any("error", err))
	}
	return nil
}
