package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. NOTIFY_HTTP_PORT.
const EnvPrefix = "NOTIFY"

// Loader provides configuration loading capabilities. It abstracts the source
// of configuration to allow for different implementations like files, environment
// variables, or remote configuration services.
type Loader interface {
	// Load retrieves and parses the configuration from the underlying source.
	Load(ctx context.Context) (*Config, error)
}

// ViperLoader reads an optional YAML file, applies NOTIFY_ environment
// overrides on top of defaults, and validates the result.
type ViperLoader struct {
	path string
	v    *viper.Viper
}

var _ Loader = (*ViperLoader)(nil)

// NewViperLoader creates a loader for path. An empty path loads defaults and
// environment only.
func NewViperLoader(path string) *ViperLoader {
	return &ViperLoader{path: path, v: viper.New()}
}

// Load implements Loader.
func (l *ViperLoader) Load(ctx context.Context) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v := l.v
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if l.path != "" {
		v.SetConfigFile(l.path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)
	cfg.HTTP.CORSAllowedOrigins = splitList(cfg.HTTP.CORSAllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// splitList expands comma separated entries, which is how list values
// arrive from the environment.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "notification-service")
	v.SetDefault("service.version", "develop")
	v.SetDefault("service.system_tenant", "system")

	v.SetDefault("log.level", "info")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 2030)
	v.SetDefault("http.read_timeout", 5*time.Second)
	v.SetDefault("http.write_timeout", 10*time.Second)
	v.SetDefault("http.idle_timeout", 120*time.Second)
	v.SetDefault("http.shutdown_timeout", 20*time.Second)
	v.SetDefault("http.debug_host", "0.0.0.0:2031")
	v.SetDefault("http.cors_allowed_origins", []string{})

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.migrate", true)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.group_id", "notification-service")
	v.SetDefault("kafka.client_id", "notification-service")
	v.SetDefault("kafka.topic", "notification-v1")
	v.SetDefault("kafka.commit_interval", time.Second)
	v.SetDefault("kafka.max_in_flight", 256)
	v.SetDefault("kafka.session_timeout", 20*time.Second)
	v.SetDefault("kafka.heartbeat_interval", 6*time.Second)
	v.SetDefault("kafka.initial_offset", "oldest")
	v.SetDefault("kafka.rebalance", "round_robin")
	v.SetDefault("kafka.version", "3.6.0")

	v.SetDefault("dispatcher.workers", 0)
	v.SetDefault("dispatcher.handler_timeout", 10*time.Second)
	v.SetDefault("dispatcher.shutdown_grace", 20*time.Second)
	v.SetDefault("dispatcher.policy", "best_effort")
	v.SetDefault("dispatcher.retry.max_attempts", 3)
	v.SetDefault("dispatcher.retry.initial_interval", 200*time.Millisecond)
	v.SetDefault("dispatcher.retry.max_interval", 2*time.Second)
	v.SetDefault("dispatcher.retry.multiplier", 2.0)
	v.SetDefault("dispatcher.record_events", false)
	v.SetDefault("dispatcher.record_limit", 1000)

	v.SetDefault("transport", string(TransportMemory))
	v.SetDefault("storage", string(StorageMemory))

	v.SetDefault("smtp.dial_timeout", 10*time.Second)

	v.SetDefault("sms.api_base_url", "https://api.twilio.com/2010-04-01")
	v.SetDefault("sms.timeout", 10*time.Second)
	v.SetDefault("sms.rate_per_second", 1.0)
	v.SetDefault("sms.burst", 5)

	v.SetDefault("otel.enabled", false)
	v.SetDefault("otel.endpoint", "")
	v.SetDefault("otel.probability", 0.05)
	v.SetDefault("otel.insecure", true)
}
