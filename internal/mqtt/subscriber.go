package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"firewatch/internal/errors"
	"firewatch/internal/models"
	"firewatch/internal/services"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// Ingestor is the part of the ingestion pipeline used by the subscriber
type Ingestor interface {
	Predict(ctx context.Context, raw models.RawInput) (services.IngestResult, error)
	Save(ctx context.Context, raw models.RawInput, status string) (services.IngestResult, error)
}

// SubscriberConfig holds configuration for MQTT subscriber
type SubscriberConfig struct {
	ReadingsTopic  string        // e.g., "fire/+/reading"
	QoS            byte          // subscription QoS
	HandlerTimeout time.Duration // upper bound for one message
}

// DefaultSubscriberConfig returns default configuration
func DefaultSubscriberConfig() SubscriberConfig {
	return SubscriberConfig{
		ReadingsTopic:  "fire/+/reading",
		QoS:            1,
		HandlerTimeout: 10 * time.Second,
	}
}

// Subscriber feeds readings published by devices into the ingestion
// pipeline. A payload carrying a status is saved as is, otherwise it is
// classified.
type Subscriber struct {
	client mqtt.Client
	ingest Ingestor
	config SubscriberConfig
	logger zerolog.Logger
}

// NewSubscriber creates a new MQTT subscriber
func NewSubscriber(client mqtt.Client, ingest Ingestor, config SubscriberConfig, log zerolog.Logger) *Subscriber {
	defaults := DefaultSubscriberConfig()
	if config.ReadingsTopic == "" {
		config.ReadingsTopic = defaults.ReadingsTopic
	}
	if config.HandlerTimeout <= 0 {
		config.HandlerTimeout = defaults.HandlerTimeout
	}

	return &Subscriber{
		client: client,
		ingest: ingest,
		config: config,
		logger: log.With().Str("component", "mqtt_subscriber").Logger(),
	}
}

// Subscribe registers the readings handler
func (s *Subscriber) Subscribe() error {
	token := s.client.Subscribe(s.config.ReadingsTopic, s.config.QoS, s.handleReading)
	if token.Wait() && token.Error() != nil {
		return errors.New().Wrap(errors.ErrUnavailable, token.Error())
	}
	s.logger.Info().Str("topic", s.config.ReadingsTopic).Msg("Subscribed to readings topic")
	return nil
}

// Unsubscribe removes the readings handler
func (s *Subscriber) Unsubscribe() {
	token := s.client.Unsubscribe(s.config.ReadingsTopic)
	token.WaitTimeout(time.Second)
}

// handleReading processes one reading message. Invalid payloads are
// logged and dropped.
func (s *Subscriber) handleReading(_ mqtt.Client, msg mqtt.Message) {
	deviceID := extractDeviceID(msg.Topic())
	log := s.logger.With().Str("topic", msg.Topic()).Str("device_id", deviceID).Logger()

	var payload models.PredictPayload
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		log.Warn().Err(err).Msg("Dropping malformed reading payload")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.config.HandlerTimeout)
	defer cancel()

	var (
		res services.IngestResult
		err error
	)
	if payload.Status != nil {
		res, err = s.ingest.Save(ctx, payload.Raw(), *payload.Status)
	} else {
		res, err = s.ingest.Predict(ctx, payload.Raw())
	}
	if err != nil {
		log.Warn().Err(err).Str("error_code", string(errors.CodeOf(err))).Msg("Dropping reading")
		return
	}

	log.Debug().
		Str("status", res.Reading.Status).
		Bool("persisted", res.Persisted()).
		Msg("Reading received")
}

// extractDeviceID extracts device ID from MQTT topic
// Example: "fire/esp32-kitchen/reading" -> "esp32-kitchen"
func extractDeviceID(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) >= 2 {
		return parts[1]
	}
	return ""
}
