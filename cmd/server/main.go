package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"firewatch/internal/actuator"
	"firewatch/internal/api"
	"firewatch/internal/csvlog"
	"firewatch/internal/database"
	"firewatch/internal/history"
	"firewatch/internal/logger"
	"firewatch/internal/metrics"
	"firewatch/internal/ml"
	"firewatch/internal/models"
	"firewatch/internal/mqtt"
	"firewatch/internal/services"
	"firewatch/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// Load configuration
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logger.ErrorWithCode(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	if err := logger.Init(cfg.LogLevel, cfg.LogPretty); err != nil {
		logger.ErrorWithCode(err).Msg("Failed to initialize logger")
		os.Exit(1)
	}
	logger.Info().Int("port", cfg.Port).Msg("Starting fire telemetry backend")

	// === Metrics ===
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// === Classifier ===
	classifier := loadClassifier(cfg)

	// === Sinks ===
	// The CSV log is always first; the relational sink follows when configured.
	csvSink, err := csvlog.Open(cfg.LogCSV)
	if err != nil {
		logger.ErrorWithCode(err).Str("path", cfg.LogCSV).Msg("Failed to open CSV log")
		os.Exit(1)
	}
	defer csvSink.Close()

	sinks := []services.Sink{csvSink}

	var pinger api.Pinger
	if cfg.RelationalEnabled() {
		relational, err := openRelational(cfg)
		if err != nil {
			logger.ErrorWithCode(err).Str("driver", cfg.DBDriver).Msg("Failed to initialize relational store")
			os.Exit(1)
		}
		defer relational.Close()

		sinks = append(sinks, relational)
		pinger = relational
	} else {
		logger.Warn().Msg("DB_DRIVER not set, relational sink disabled")
	}

	// === Ingestion ===
	ingestConfig := services.DefaultIngestServiceConfig()
	ingestConfig.SinkTimeout = cfg.SinkTimeout

	ingestService := services.NewIngestService(
		classifier,
		history.New(history.DefaultCapacity),
		sinks,
		m,
		logger.Component("ingest"),
		ingestConfig,
	)

	buzzer := actuator.New()
	modes := make([]string, len(models.BuzzerModes))
	for i, mode := range models.BuzzerModes {
		modes[i] = string(mode)
	}
	m.SetBuzzerMode(string(buzzer.Get()), modes)

	// === MQTT (optional) ===
	if cfg.MQTTEnabled() {
		mqttClient, err := mqtt.NewClient(mqtt.ClientConfig{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
		}, logger.Get())
		if err != nil {
			logger.ErrorWithCode(err).Msg("Failed to initialize MQTT client")
			os.Exit(1)
		}
		defer mqttClient.Close()

		subscriberConfig := mqtt.DefaultSubscriberConfig()
		subscriberConfig.ReadingsTopic = cfg.MQTTTopicReadings

		subscriber := mqtt.NewSubscriber(mqttClient.GetNativeClient(), ingestService, subscriberConfig, logger.Get())
		if err := subscriber.Subscribe(); err != nil {
			logger.ErrorWithCode(err).Msg("Failed to subscribe to MQTT topics")
			os.Exit(1)
		}
		defer subscriber.Unsubscribe()
	}

	// === HTTP ===
	serverConfig := api.DefaultServerConfig()
	serverConfig.Addr = cfg.Addr()
	serverConfig.CORSOrigins = cfg.CORSOrigins
	serverConfig.LogPath = csvSink.Path()

	server := api.NewHTTPServer(serverConfig, ingestService, buzzer, pinger, m, logger.Get())

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down gracefully")
	case err := <-serverErr:
		logger.Error().Err(err).Msg("HTTP server failed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	logger.Info().Msg("Service stopped")
}

// loadClassifier loads the forest artifact, creating the sample model when
// bootstrap is enabled. Without a usable artifact the rule classifier is used.
func loadClassifier(cfg *config.Config) ml.Classifier {
	log := logger.Component("ml")

	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) && cfg.ModelBootstrap {
		if err := ml.CreateSampleModel(cfg.ModelPath, log); err != nil {
			logger.ErrorWithCode(err).Str("path", cfg.ModelPath).Msg("Failed to create sample model")
		}
	}

	forest, err := ml.LoadForest(cfg.ModelPath, log)
	if err != nil {
		logger.ErrorWithCode(err).
			Str("path", cfg.ModelPath).
			Msg("Model unavailable, falling back to rule classifier")
		return ml.DefaultRuleClassifier()
	}
	return forest
}

func openRelational(cfg *config.Config) (*database.RelationalSink, error) {
	dialect, err := database.ParseDialect(cfg.DBDriver)
	if err != nil {
		return nil, err
	}

	db, err := database.Open(dialect, cfg.DBDSN)
	if err != nil {
		return nil, err
	}

	if cfg.DBAutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.SinkTimeout)
		defer cancel()
		if err := database.InitSchema(ctx, db, dialect); err != nil {
			db.Close()
			return nil, err
		}
	}

	return database.NewRelationalSink(db, dialect, cfg.SinkTimeout, logger.Component("database")), nil
}
