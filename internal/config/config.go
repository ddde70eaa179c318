// Package config defines the notification service configuration and its
// validation rules.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"

	eventdispatcher "github.com/ahrav/notification-service/internal/infra/event_dispatcher"
)

// Transport selects the event bus implementation.
type Transport string

const (
	TransportKafka  Transport = "kafka"
	TransportMemory Transport = "memory"
)

// Storage selects the configuration store implementation.
type Storage string

const (
	StoragePostgres Storage = "postgres"
	StorageMemory   Storage = "memory"
)

// Config is the complete service configuration.
type Config struct {
	Service    ServiceConfig    `mapstructure:"service"`
	Log        LogConfig        `mapstructure:"log"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Transport  Transport        `mapstructure:"transport"`
	Storage    Storage          `mapstructure:"storage"`
	SMTP       SMTPConfig       `mapstructure:"smtp"`
	SMS        SMSConfig        `mapstructure:"sms"`
	Otel       OtelConfig       `mapstructure:"otel"`
}

// ServiceConfig identifies the running service.
type ServiceConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
	// SystemTenant scopes events that belong to no customer, like initialize.
	SystemTenant string `mapstructure:"system_tenant"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// HTTPConfig controls the administrative API and debug servers.
type HTTPConfig struct {
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	IdleTimeout        time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	DebugHost          string        `mapstructure:"debug_host"`
	CORSAllowedOrigins []string      `mapstructure:"cors_allowed_origins"`
}

// Addr returns the API listen address.
func (h HTTPConfig) Addr() string { return fmt.Sprintf("%s:%d", h.Host, h.Port) }

// DatabaseConfig controls the postgres pool.
type DatabaseConfig struct {
	DSN      string `mapstructure:"dsn"`
	MinConns int32  `mapstructure:"min_conns"`
	MaxConns int32  `mapstructure:"max_conns"`
	// Migrate applies pending migrations at startup.
	Migrate bool `mapstructure:"migrate"`
}

// KafkaConfig controls the broker transport.
type KafkaConfig struct {
	Brokers        []string      `mapstructure:"brokers"`
	GroupID        string        `mapstructure:"group_id"`
	ClientID       string        `mapstructure:"client_id"`
	Topic          string        `mapstructure:"topic"`
	CommitInterval time.Duration `mapstructure:"commit_interval"`
	// MaxInFlight bounds unfinished records per partition.
	MaxInFlight int `mapstructure:"max_in_flight"`

	SessionTimeout    time.Duration `mapstructure:"session_timeout"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	// InitialOffset is oldest or newest.
	InitialOffset string `mapstructure:"initial_offset"`
	// Rebalance is round_robin, range or sticky.
	Rebalance string `mapstructure:"rebalance"`
	Version   string `mapstructure:"version"`
}

// RetryConfig controls handler retries.
type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
}

// DispatcherConfig controls envelope dispatch.
type DispatcherConfig struct {
	Workers        int           `mapstructure:"workers"`
	HandlerTimeout time.Duration `mapstructure:"handler_timeout"`
	ShutdownGrace  time.Duration `mapstructure:"shutdown_grace"`
	Policy         string        `mapstructure:"policy"`
	Retry          RetryConfig   `mapstructure:"retry"`
	// RecordEvents subscribes the event recorder to every notification selector.
	RecordEvents bool `mapstructure:"record_events"`
	RecordLimit  int  `mapstructure:"record_limit"`
}

// DispatchPolicy parses Policy.
func (d DispatcherConfig) DispatchPolicy() (eventdispatcher.Policy, error) {
	return eventdispatcher.ParsePolicy(d.Policy)
}

// RetryPolicy converts Retry for the dispatcher.
func (d DispatcherConfig) RetryPolicy() eventdispatcher.RetryConfig {
	return eventdispatcher.RetryConfig{
		MaxAttempts:     d.Retry.MaxAttempts,
		InitialInterval: d.Retry.InitialInterval,
		MaxInterval:     d.Retry.MaxInterval,
		Multiplier:      d.Retry.Multiplier,
	}
}

// SMTPConfig holds mail delivery settings shared by every account.
type SMTPConfig struct {
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// SMSConfig holds SMS gateway settings shared by every account.
type SMSConfig struct {
	APIBaseURL    string        `mapstructure:"api_base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
}

// OtelConfig controls telemetry export.
type OtelConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	Probability float64 `mapstructure:"probability"`
	Insecure    bool    `mapstructure:"insecure"`
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if c.Service.Name == "" {
		add("service.name is required")
	}
	if c.Service.SystemTenant == "" {
		add("service.system_tenant is required")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("log.level %q must be one of debug, info, warn, error", c.Log.Level)
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		add("http.port %d is out of range", c.HTTP.Port)
	}

	switch c.Transport {
	case TransportKafka:
		if len(c.Kafka.Brokers) == 0 {
			add("kafka.brokers is required for the kafka transport")
		}
		if c.Kafka.GroupID == "" {
			add("kafka.group_id is required for the kafka transport")
		}
		if c.Kafka.Topic == "" {
			add("kafka.topic is required for the kafka transport")
		}
		if c.Kafka.HeartbeatInterval >= c.Kafka.SessionTimeout {
			add("kafka.heartbeat_interval %s must be below kafka.session_timeout %s",
				c.Kafka.HeartbeatInterval, c.Kafka.SessionTimeout)
		}
		switch c.Kafka.InitialOffset {
		case "oldest", "newest":
		default:
			add("kafka.initial_offset %q must be oldest or newest", c.Kafka.InitialOffset)
		}
		switch c.Kafka.Rebalance {
		case "round_robin", "range", "sticky":
		default:
			add("kafka.rebalance %q must be round_robin, range or sticky", c.Kafka.Rebalance)
		}
		if _, err := sarama.ParseKafkaVersion(c.Kafka.Version); err != nil {
			add("kafka.version: %w", err)
		}
	case TransportMemory:
	default:
		add("transport %q must be kafka or memory", c.Transport)
	}

	switch c.Storage {
	case StoragePostgres:
		if c.Database.DSN == "" {
			add("database.dsn is required for postgres storage")
		}
		if c.Database.MaxConns > 0 && c.Database.MinConns > c.Database.MaxConns {
			add("database.min_conns %d exceeds database.max_conns %d", c.Database.MinConns, c.Database.MaxConns)
		}
	case StorageMemory:
	default:
		add("storage %q must be postgres or memory", c.Storage)
	}

	if _, err := c.Dispatcher.DispatchPolicy(); err != nil {
		add("dispatcher.policy: %w", err)
	}
	if c.Dispatcher.Workers < 0 {
		add("dispatcher.workers must not be negative")
	}
	if c.Dispatcher.HandlerTimeout < 0 {
		add("dispatcher.handler_timeout must not be negative")
	}
	if c.Dispatcher.Retry.MaxAttempts < 1 {
		add("dispatcher.retry.max_attempts must be at least 1")
	}

	if c.SMS.APIBaseURL == "" {
		add("sms.api_base_url is required")
	}
	if c.SMS.RatePerSecond < 0 {
		add("sms.rate_per_second must not be negative")
	}

	if c.Otel.Enabled && c.Otel.Endpoint == "" {
		add("otel.endpoint is required when otel is enabled")
	}
	if c.Otel.Probability < 0 || c.Otel.Probability > 1 {
		add("otel.probability %v must be within [0, 1]", c.Otel.Probability)
	}

	return errors.Join(errs...)
}
