package kafka

import (
	"cmp"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/notification-service/pkg/common/logger"
)

// ClientConfig holds the sarama settings shared by the producer and the
// consumer group. Zero values fall back to the defaults below.
type ClientConfig struct {
	Brokers  []string
	ClientID string

	SessionTimeout    time.Duration
	HeartbeatInterval time.Duration
	// InitialOffset is "oldest" or "newest" and applies to groups without
	// committed offsets.
	InitialOffset string
	// Rebalance is "round_robin", "range" or "sticky".
	Rebalance string
	// Version is the broker protocol version, e.g. "3.6.0".
	Version string
}

const (
	defaultSessionTimeout    = 20 * time.Second
	defaultHeartbeatInterval = 6 * time.Second
	defaultKafkaVersion      = "3.6.0"
)

// NewClient creates and configures a Kafka client with the provided settings.
// It sets up consistent configuration for both producers and consumers.
func NewClient(cfg *ClientConfig) (sarama.Client, error) {
	config, err := newSaramaConfig(cfg)
	if err != nil {
		return nil, err
	}
	return sarama.NewClient(cfg.Brokers, config)
}

func newSaramaConfig(cfg *ClientConfig) (*sarama.Config, error) {
	config := sarama.NewConfig()
	config.ClientID = cfg.ClientID

	version, err := sarama.ParseKafkaVersion(cmp.Or(cfg.Version, defaultKafkaVersion))
	if err != nil {
		return nil, fmt.Errorf("kafka version: %w", err)
	}
	config.Version = version

	rebalance, err := parseRebalance(cfg.Rebalance)
	if err != nil {
		return nil, err
	}
	initial, err := parseInitialOffset(cfg.InitialOffset)
	if err != nil {
		return nil, err
	}

	// Consumer settings
	config.Consumer.Return.Errors = true
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{rebalance}
	config.Consumer.Offsets.Initial = initial
	config.Consumer.Group.Session.Timeout = cmp.Or(cfg.SessionTimeout, defaultSessionTimeout)
	config.Consumer.Group.Heartbeat.Interval = cmp.Or(cfg.HeartbeatInterval, defaultHeartbeatInterval)
	config.Consumer.Group.Member.UserData = []byte(cfg.ClientID)
	// Offsets are committed by the claim handler after records complete.
	config.Consumer.Offsets.AutoCommit.Enable = false

	// Producer settings
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Return.Successes = true
	config.Producer.Partitioner = sarama.NewHashPartitioner

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid kafka client config: %w", err)
	}
	return config, nil
}

func parseRebalance(name string) (sarama.BalanceStrategy, error) {
	switch name {
	case "", "round_robin":
		return sarama.NewBalanceStrategyRoundRobin(), nil
	case "range":
		return sarama.NewBalanceStrategyRange(), nil
	case "sticky":
		return sarama.NewBalanceStrategySticky(), nil
	default:
		return nil, fmt.Errorf("unknown kafka rebalance strategy %q", name)
	}
}

func parseInitialOffset(name string) (int64, error) {
	switch name {
	case "", "oldest":
		return sarama.OffsetOldest, nil
	case "newest":
		return sarama.OffsetNewest, nil
	default:
		return 0, fmt.Errorf("unknown kafka initial offset %q", name)
	}
}

// ConnectEventBus creates an EventBus from client, retrying producer and
// consumer group creation with exponential backoff for up to five minutes.
func ConnectEventBus(
	cfg *EventBusConfig,
	client sarama.Client,
	logger *logger.Logger,
	metrics EventBusMetrics,
	tracer trace.Tracer,
) (*EventBus, error) {
	var eventBus *EventBus

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = 5 * time.Minute
	expBackoff.InitialInterval = 5 * time.Second

	operation := func() error {
		producer, err := sarama.NewSyncProducerFromClient(client)
		if err != nil {
			return fmt.Errorf("creating producer: %w", err)
		}

		consumerGroup, err := sarama.NewConsumerGroupFromClient(cfg.GroupID, client)
		if err != nil {
			producer.Close()
			return fmt.Errorf("creating consumer group: %w", err)
		}

		eventBus, err = NewEventBus(producer, consumerGroup, cfg, logger, metrics, tracer)
		if err != nil {
			producer.Close()
			consumerGroup.Close()
			return backoff.Permanent(fmt.Errorf("creating event bus: %w", err))
		}
		return nil
	}

	if err := backoff.Retry(operation, expBackoff); err != nil {
		return nil, fmt.Errorf("failed to connect event bus after retries: %w", err)
	}

	return eventBus, nil
}
