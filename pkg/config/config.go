package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"firewatch/internal/errors"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ConfigEnv names the environment variable holding an optional config file path
const ConfigEnv = "FIREWATCH_CONFIG"

// Defaults
const (
	DefaultPort           = 5000
	DefaultLogLevel       = "info"
	DefaultLogCSV         = "/tmp/fire_data.csv"
	DefaultModelPath      = "model/forest.json"
	DefaultSinkTimeout    = 5 * time.Second
	DefaultMQTTClientID   = "firewatch-backend"
	DefaultMQTTTopic      = "fire/+/reading"
	DefaultCORSOrigins    = "*"
	supportedDriverValues = "clickhouse, postgres, sqlite3"
)

type Config struct {
	// HTTP
	Port        int
	CORSOrigins []string

	// Logging
	LogLevel  string
	LogPretty bool

	// Durable log
	LogCSV string

	// Model
	ModelPath      string
	ModelBootstrap bool

	// Relational store; empty driver disables it
	DBDriver      string
	DBDSN         string
	DBAutoMigrate bool
	SinkTimeout   time.Duration

	// MQTT ingest; empty broker disables it
	MQTTBroker        string
	MQTTClientID      string
	MQTTUsername      string
	MQTTPassword      string
	MQTTTopicReadings string
}

// Load reads configuration from defaults, an optional config file, the
// environment (including .env, which never overrides variables already set)
// and command line flags. Precedence, highest first: flags, environment,
// config file, defaults.
func Load(args []string) (*Config, error) {
	errFactory := errors.New()

	// Load .env file if it exists
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	fs := pflag.NewFlagSet("firewatch", pflag.ContinueOnError)
	configPath := fs.String("config", "", "Path to a config file (toml, yaml or env)")
	fs.Int("port", DefaultPort, "HTTP listen port")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warn, error)")
	fs.Bool("log-pretty", false, "Human readable console logs")
	fs.String("log-csv", DefaultLogCSV, "Path of the durable CSV log")
	fs.String("model-path", DefaultModelPath, "Path of the forest model artifact")
	fs.String("db-driver", "", "Relational driver (clickhouse, postgres, sqlite3)")
	fs.String("db-dsn", "", "Relational data source name")
	fs.Duration("sink-timeout", DefaultSinkTimeout, "Upper bound for each sink write")
	fs.String("mqtt-broker", "", "MQTT broker URL")

	if err := fs.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}
	for _, name := range []string{"port", "log-level", "log-pretty", "log-csv", "model-path", "db-driver", "db-dsn", "sink-timeout", "mqtt-broker"} {
		if err := v.BindPFlag(strings.ReplaceAll(name, "-", "_"), fs.Lookup(name)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	path := *configPath
	if path == "" {
		path = os.Getenv(ConfigEnv)
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	cfg := &Config{
		Port:              v.GetInt("port"),
		CORSOrigins:       splitList(v.GetString("cors_origins")),
		LogLevel:          strings.ToLower(v.GetString("log_level")),
		LogPretty:         v.GetBool("log_pretty"),
		LogCSV:            v.GetString("log_csv"),
		ModelPath:         v.GetString("model_path"),
		ModelBootstrap:    v.GetBool("model_bootstrap"),
		DBDriver:          strings.ToLower(strings.TrimSpace(v.GetString("db_driver"))),
		DBDSN:             v.GetString("db_dsn"),
		DBAutoMigrate:     v.GetBool("db_auto_migrate"),
		SinkTimeout:       v.GetDuration("sink_timeout"),
		MQTTBroker:        v.GetString("mqtt_broker"),
		MQTTClientID:      v.GetString("mqtt_client_id"),
		MQTTUsername:      v.GetString("mqtt_username"),
		MQTTPassword:      v.GetString("mqtt_password"),
		MQTTTopicReadings: v.GetString("mqtt_topic_readings"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", DefaultPort)
	v.SetDefault("cors_origins", DefaultCORSOrigins)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("log_pretty", false)
	v.SetDefault("log_csv", DefaultLogCSV)
	v.SetDefault("model_path", DefaultModelPath)
	v.SetDefault("model_bootstrap", true)
	v.SetDefault("db_driver", "")
	v.SetDefault("db_dsn", "")
	v.SetDefault("db_auto_migrate", true)
	v.SetDefault("sink_timeout", DefaultSinkTimeout)
	v.SetDefault("mqtt_broker", "")
	v.SetDefault("mqtt_client_id", DefaultMQTTClientID)
	v.SetDefault("mqtt_username", "")
	v.SetDefault("mqtt_password", "")
	v.SetDefault("mqtt_topic_readings", DefaultMQTTTopic)
}

// Validate checks values that cannot be repaired with a default
func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.Port < 1 || c.Port > 65535 {
		return errFactory.WithData(errors.ErrInvalidConfig, fmt.Sprintf("port %d out of range", c.Port))
	}
	switch c.DBDriver {
	case "", "clickhouse", "postgres", "postgresql", "pgx", "sqlite", "sqlite3":
	default:
		return errFactory.WithData(errors.ErrInvalidConfig,
			fmt.Sprintf("unsupported db driver %q, want one of %s", c.DBDriver, supportedDriverValues))
	}
	if c.DBDriver != "" && c.DBDSN == "" {
		return errFactory.WithData(errors.ErrInvalidConfig, "db dsn is required when a db driver is set")
	}
	if c.SinkTimeout <= 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "sink timeout must be positive")
	}
	if c.LogCSV == "" {
		return errFactory.WithData(errors.ErrInvalidConfig, "csv log path is required")
	}
	return nil
}

// RelationalEnabled reports whether a relational sink is configured
func (c *Config) RelationalEnabled() bool {
	return c.DBDriver != ""
}

// MQTTEnabled reports whether the MQTT transport is configured
func (c *Config) MQTTEnabled() bool {
	return c.MQTTBroker != ""
}

// Addr returns the HTTP listen address on all interfaces
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
