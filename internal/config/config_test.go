package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	eventdispatcher "github.com/ahrav/notification-service/internal/infra/event_dispatcher"
)

func TestViperLoader_Defaults(t *testing.T) {
	cfg, err := NewViperLoader("").Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "notification-service", cfg.Service.Name)
	assert.Equal(t, "system", cfg.Service.SystemTenant)
	assert.Equal(t, TransportMemory, cfg.Transport)
	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, "0.0.0.0:2030", cfg.HTTP.Addr())
	assert.Equal(t, 10*time.Second, cfg.Dispatcher.HandlerTimeout)
	assert.Equal(t, 3, cfg.Dispatcher.Retry.MaxAttempts)
	assert.Equal(t, 256, cfg.Kafka.MaxInFlight)
	assert.Equal(t, 20*time.Second, cfg.Kafka.SessionTimeout)
	assert.Equal(t, 6*time.Second, cfg.Kafka.HeartbeatInterval)
	assert.Equal(t, "oldest", cfg.Kafka.InitialOffset)
	assert.Equal(t, "round_robin", cfg.Kafka.Rebalance)
	assert.Equal(t, "3.6.0", cfg.Kafka.Version)

	policy, err := cfg.Dispatcher.DispatchPolicy()
	require.NoError(t, err)
	assert.Equal(t, eventdispatcher.PolicyBestEffort, policy)
}

func TestViperLoader_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
service:
  name: notify-test
transport: kafka
storage: postgres
database:
  dsn: postgres://localhost/notify
kafka:
  brokers: ["a:9092", "b:9092"]
  topic: notifications
  initial_offset: newest
  session_timeout: 30s
dispatcher:
  policy: all_success
  handler_timeout: 3s
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	t.Setenv("NOTIFY_HTTP_PORT", "9090")
	t.Setenv("NOTIFY_DISPATCHER_RETRY_MAX_ATTEMPTS", "5")

	cfg, err := NewViperLoader(path).Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "notify-test", cfg.Service.Name)
	assert.Equal(t, TransportKafka, cfg.Transport)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "notifications", cfg.Kafka.Topic)
	assert.Equal(t, "newest", cfg.Kafka.InitialOffset)
	assert.Equal(t, 30*time.Second, cfg.Kafka.SessionTimeout)
	assert.Equal(t, 3*time.Second, cfg.Dispatcher.HandlerTimeout)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, 5, cfg.Dispatcher.Retry.MaxAttempts)

	policy, err := cfg.Dispatcher.DispatchPolicy()
	require.NoError(t, err)
	assert.Equal(t, eventdispatcher.PolicyAllSuccess, policy)
}

func TestViperLoader_MissingFileIsOptional(t *testing.T) {
	cfg, err := NewViperLoader(filepath.Join(t.TempDir(), "absent.yaml")).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "notification-service", cfg.Service.Name)
}

func TestViperLoader_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewViperLoader("").Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func validConfig() Config {
	return Config{
		Service:    ServiceConfig{Name: "notify", SystemTenant: "system"},
		Log:        LogConfig{Level: "info"},
		HTTP:       HTTPConfig{Port: 2030},
		Transport:  TransportMemory,
		Storage:    StorageMemory,
		Dispatcher: DispatcherConfig{Policy: "best_effort", Retry: RetryConfig{MaxAttempts: 1}},
		SMS:        SMSConfig{APIBaseURL: "http://localhost"},
	}
}

func validKafka() KafkaConfig {
	return KafkaConfig{
		Brokers:           []string{"localhost:9092"},
		GroupID:           "g",
		Topic:             "t",
		SessionTimeout:    20 * time.Second,
		HeartbeatInterval: 6 * time.Second,
		InitialOffset:     "oldest",
		Rebalance:         "round_robin",
		Version:           "3.6.0",
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "kafka without brokers",
			mutate:  func(c *Config) { c.Transport = TransportKafka; c.Kafka.GroupID = "g"; c.Kafka.Topic = "t" },
			wantErr: "kafka.brokers is required",
		},
		{
			name: "kafka heartbeat not below session timeout",
			mutate: func(c *Config) {
				c.Transport = TransportKafka
				c.Kafka = validKafka()
				c.Kafka.HeartbeatInterval = c.Kafka.SessionTimeout
			},
			wantErr: "kafka.heartbeat_interval",
		},
		{
			name: "kafka unknown initial offset",
			mutate: func(c *Config) {
				c.Transport = TransportKafka
				c.Kafka = validKafka()
				c.Kafka.InitialOffset = "latest"
			},
			wantErr: "kafka.initial_offset",
		},
		{
			name: "kafka bad version",
			mutate: func(c *Config) {
				c.Transport = TransportKafka
				c.Kafka = validKafka()
				c.Kafka.Version = "three"
			},
			wantErr: "kafka.version",
		},
		{
			name:   "kafka valid",
			mutate: func(c *Config) { c.Transport = TransportKafka; c.Kafka = validKafka() },
		},
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.Storage = StoragePostgres },
			wantErr: "database.dsn is required",
		},
		{
			name:    "unknown transport",
			mutate:  func(c *Config) { c.Transport = "nats" },
			wantErr: `transport "nats"`,
		},
		{
			name:    "unknown policy",
			mutate:  func(c *Config) { c.Dispatcher.Policy = "quorum" },
			wantErr: "dispatcher.policy",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Log.Level = "trace" },
			wantErr: "log.level",
		},
		{
			name:    "otel enabled without endpoint",
			mutate:  func(c *Config) { c.Otel.Enabled = true },
			wantErr: "otel.endpoint is required",
		},
		{
			name:    "min conns above max",
			mutate:  func(c *Config) { c.Storage = StoragePostgres; c.Database.DSN = "x"; c.Database.MinConns = 5; c.Database.MaxConns = 2 },
			wantErr: "database.min_conns 5 exceeds",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, splitList([]string{"a, b", "c", ""}))
	assert.Nil(t, splitList(nil))
}
