package mqtt

import (
	"time"

	"firewatch/internal/errors"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// Client manages the MQTT connection (low-level connection management only).
// Subscriptions are handled by Subscriber.
type Client struct {
	client mqtt.Client
	config ClientConfig
	logger zerolog.Logger
}

// ClientConfig holds MQTT client configuration
type ClientConfig struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	ConnectTimeout time.Duration
}

// NewClient creates a new MQTT client connection
func NewClient(config ClientConfig, log zerolog.Logger) (*Client, error) {
	log = log.With().Str("component", "mqtt").Str("broker", config.Broker).Logger()
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 10 * time.Second
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(config.ClientID)
	opts.SetUsername(config.Username)
	opts.SetPassword(config.Password)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Info().Msg("MQTT connection established")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	})
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(config.ConnectTimeout)

	client := mqtt.NewClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(config.ConnectTimeout) {
		return nil, errors.New().WithData(errors.ErrUnavailable, "timed out connecting to MQTT broker "+config.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, errors.New().Wrap(errors.ErrUnavailable, err)
	}

	return &Client{
		client: client,
		config: config,
		logger: log,
	}, nil
}

// GetNativeClient returns the underlying paho MQTT client
func (c *Client) GetNativeClient() mqtt.Client {
	return c.client
}

// IsConnected returns whether the client is currently connected
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// Close closes the MQTT client connection
func (c *Client) Close() {
	c.client.Disconnect(250)
	c.logger.Info().Msg("MQTT client disconnected")
}
