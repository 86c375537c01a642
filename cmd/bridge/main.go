// Package main is the entry point for the gimbal bridge service. It wires
// the MQTT adapter, device registry, command dispatcher, status ingest and
// HTTP API together and manages the application lifecycle.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camlink/gimbal-bridge/internal/adapter/config"
	"github.com/camlink/gimbal-bridge/internal/adapter/mqtt"
	"github.com/camlink/gimbal-bridge/internal/api"
	"github.com/camlink/gimbal-bridge/internal/health"
	"github.com/camlink/gimbal-bridge/internal/metrics"
	"github.com/camlink/gimbal-bridge/internal/registry"
	"github.com/camlink/gimbal-bridge/internal/service"
	"github.com/camlink/gimbal-bridge/pkg/logging"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const serviceName = "gimbal-bridge"

var version = "dev"

func main() {
	logger := logging.New(serviceName, "info", "json")
	logger.Info().Str("version", version).Msg("Starting gimbal bridge")

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Rebuild the logger with the configured level and format
	logger = logging.New(serviceName, cfg.Logging.Level, cfg.Logging.Format)
	logger.Info().Str("env", cfg.Service.Environment).Msg("Configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsRegistry := metrics.NewRegistry()

	mqttClient, err := mqtt.NewClient(mqtt.Config{
		BrokerURL:      cfg.MQTT.BrokerURL,
		ClientID:       cfg.MQTT.ClientID,
		Username:       cfg.MQTT.Username,
		Password:       cfg.MQTT.Password,
		QoS:            cfg.MQTT.QoS,
		KeepAlive:      cfg.MQTT.KeepAlive,
		CleanSession:   cfg.MQTT.CleanSession,
		ConnectTimeout: cfg.MQTT.ConnectTimeout,
		PublishTimeout: cfg.MQTT.PublishTimeout,
		ReconnectDelay: cfg.MQTT.ReconnectDelay,
	}, logger, metricsRegistry)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create MQTT client")
	}

	mqttClient.SetConnectionHandler(func(connected bool) {
		logger.Info().Bool("connected", connected).Msg("Broker connection state changed")
	})

	deviceRegistry := registry.New(cfg.Bridge.OfflineTimeout, logger, metricsRegistry)

	dispatcher := service.NewDispatcher(service.DispatcherConfig{
		ControlTopic:     cfg.Bridge.ControlTopic,
		ModeTopic:        cfg.Bridge.ModeTopic,
		DefaultClientID:  cfg.Bridge.DefaultClientID,
		DefaultSpeed:     cfg.Bridge.DefaultSpeed,
		LegacyWireFormat: cfg.Bridge.LegacyWireFormat,
	}, mqttClient, deviceRegistry, logger, metricsRegistry)

	notifier := service.NewNotifier(mqttClient, cfg.Bridge.SystemTopic, logger)

	ingest := service.NewIngest(service.IngestConfig{
		RegisterTopic: cfg.Bridge.RegisterTopic,
		StatusTopic:   cfg.Bridge.StatusTopic,
	}, deviceRegistry, logger, metricsRegistry)
	ingest.SetTransitionHandler(notifier.HandleTransition)

	facade := service.NewFacade(deviceRegistry, logger)
	facade.SetTransitionHandler(notifier.HandleTransition)

	sweeper := service.NewSweeper(deviceRegistry, cfg.Bridge.SweepInterval, logger)
	sweeper.SetTransitionHandler(notifier.HandleTransition)

	// Connect and attach the inbound subscriptions
	if err := mqttClient.Connect(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to MQTT broker")
	}
	defer mqttClient.Disconnect()

	if err := ingest.Start(mqttClient); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start status ingest")
	}

	sweeper.Start(ctx)

	healthChecker := health.NewChecker(mqttClient, deviceRegistry, logger)
	apiHandler := api.NewHandler(dispatcher, facade, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthChecker.HealthHandler)
	mux.HandleFunc("/health/live", healthChecker.LiveHandler)
	mux.HandleFunc("/health/ready", healthChecker.ReadyHandler)
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"service":    serviceName,
			"version":    version,
			"mqtt":       mqttClient.Stats(),
			"registry":   deviceRegistry.Stats(),
			"dispatcher": dispatcher.Stats(),
			"ingest":     ingest.Stats(),
		})
	})
	mux.Handle("/metrics", promhttp.Handler())
	apiHandler.Register(mux)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info().Int("port", cfg.HTTP.Port).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	logger.Info().Msg("Gimbal bridge started successfully")

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Shutdown signal received, stopping services...")

	cancel()
	sweeper.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error stopping HTTP server")
	}

	logger.Info().Msg("Gimbal bridge stopped")
}
