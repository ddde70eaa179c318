// Package kafka provides a Kafka-based implementation of the event bus for asynchronous messaging.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/notification-service/internal/domain/events"
	"github.com/ahrav/notification-service/internal/infra/eventbus/kafka/tracing"
	"github.com/ahrav/notification-service/pkg/common/logger"
)

// EventBusMetrics defines metrics operations needed to monitor Kafka message handling.
// It enables tracking of successful and failed message publishing/consumption.
type EventBusMetrics interface {
	IncMessagePublished(ctx context.Context, topic string)
	IncMessageConsumed(ctx context.Context, topic string)
	IncMessageSkipped(ctx context.Context, topic string)
	IncPublishError(ctx context.Context, topic string)
	IncConsumeError(ctx context.Context, topic string)
}

// EventBusConfig contains settings for interacting with Kafka brokers.
type EventBusConfig struct {
	// Brokers is a list of Kafka broker addresses to connect to.
	Brokers []string

	// Topic is the destination every notification envelope is written to.
	Topic string

	// GroupID identifies the consumer group for this broker instance.
	GroupID string
	// ClientID uniquely identifies this client to the Kafka cluster.
	ClientID string

	// ServiceType identifies the kind of service using the bus.
	ServiceType string

	// CommitInterval bounds how long marked offsets wait before commit.
	CommitInterval time.Duration

	// MaxInFlight bounds records handed to an async handler per partition
	// that have not completed yet.
	MaxInFlight int
}

const defaultMaxInFlight = 256

var _ events.EventBus = (*EventBus)(nil)

// EventBus implements events.EventBus on a single Kafka topic. Tenant,
// selector and envelope id travel as record headers; the record value is the
// untouched payload.
type EventBus struct {
	producer      sarama.SyncProducer
	consumerGroup sarama.ConsumerGroup

	topic          string
	commitInterval time.Duration
	maxInFlight    int

	logger  *logger.Logger
	tracer  trace.Tracer
	metrics EventBusMetrics
}

// NewEventBus wires an EventBus from an existing producer and consumer group.
func NewEventBus(
	producer sarama.SyncProducer,
	consumerGroup sarama.ConsumerGroup,
	cfg *EventBusConfig,
	logger *logger.Logger,
	metrics EventBusMetrics,
	tracer trace.Tracer,
) (*EventBus, error) {
	if metrics == nil {
		return nil, fmt.Errorf("metrics are required for kafka event bus")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka event bus requires a topic")
	}

	commitInterval := cfg.CommitInterval
	if commitInterval <= 0 {
		commitInterval = time.Second
	}

	maxInFlight := cfg.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = defaultMaxInFlight
	}

	return &EventBus{
		producer:       producer,
		consumerGroup:  consumerGroup,
		topic:          cfg.Topic,
		commitInterval: commitInterval,
		maxInFlight:    maxInFlight,
		logger: logger.With(
			"component", "kafka_event_bus",
			"client_id", cfg.ClientID,
			"group_id", cfg.GroupID,
			"service_type", cfg.ServiceType,
		),
		metrics: metrics,
		tracer:  tracer,
	}, nil
}

// Publish writes env to the bus topic. The partition key defaults to the
// envelope tenant so each tenant's events stay ordered.
func (b *EventBus) Publish(ctx context.Context, env events.EventEnvelope, opts ...events.PublishOption) error {
	ctx, span := tracing.StartProducerSpan(ctx, b.topic, b.tracer)
	defer span.End()

	params := events.PublishParams{Key: env.Tenant}
	for _, opt := range opts {
		opt(&params)
	}
	span.SetAttributes(
		attribute.String("event.key", params.Key),
		attribute.String("selector", env.Selector.String()),
		attribute.String("tenant", env.Tenant),
	)

	msg := &sarama.ProducerMessage{
		Topic:   b.topic,
		Key:     sarama.StringEncoder(params.Key),
		Value:   sarama.ByteEncoder(env.Payload),
		Headers: envelopeHeaders(env, params.Headers),
	}
	if !env.EmittedAt.IsZero() {
		msg.Timestamp = env.EmittedAt
	}

	tracing.InjectTraceContext(ctx, msg)

	partition, offset, err := b.producer.SendMessage(msg)
	if err != nil {
		b.metrics.IncPublishError(ctx, b.topic)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send message")
		return fmt.Errorf("failed to send message to kafka topic %s: %w", b.topic, err)
	}
	b.metrics.IncMessagePublished(ctx, b.topic)

	b.logger.Debug(ctx, "Published message to Kafka",
		"topic", b.topic,
		"partition", partition,
		"offset", offset,
		"selector", env.Selector.String(),
		"tenant", env.Tenant,
		"envelope_id", env.ID,
	)

	return nil
}

func envelopeHeaders(env events.EventEnvelope, extra map[string]string) []sarama.RecordHeader {
	headers := make([]sarama.RecordHeader, 0, 3+len(extra))
	for k, v := range extra {
		headers = append(headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	return append(headers,
		sarama.RecordHeader{Key: []byte(events.HeaderTenant), Value: []byte(env.Tenant)},
		sarama.RecordHeader{Key: []byte(events.HeaderSelector), Value: []byte(env.Selector)},
		sarama.RecordHeader{Key: []byte(events.HeaderEnvelopeID), Value: []byte(env.ID)},
	)
}

// Subscribe starts consuming the bus topic in a separate goroutine. Records
// whose selector header is not in selectors are marked and dropped. The
// handler runs inline, so a slow handler holds up its partition.
func (b *EventBus) Subscribe(ctx context.Context, selectors []events.Selector, handler events.HandlerFunc) error {
	if handler == nil {
		return b.subscribe(ctx, selectors, nil)
	}
	return b.subscribe(ctx, selectors, handler.Async())
}

// SubscribeAsync is Subscribe for handlers that finish after returning. Up
// to MaxInFlight records per partition are outstanding at once; offsets are
// marked up to the highest record whose predecessors have all completed.
func (b *EventBus) SubscribeAsync(ctx context.Context, selectors []events.Selector, handler events.AsyncHandlerFunc) error {
	return b.subscribe(ctx, selectors, handler)
}

func (b *EventBus) subscribe(ctx context.Context, selectors []events.Selector, handler events.AsyncHandlerFunc) error {
	ctx, span := b.tracer.Start(ctx, "kafka_event_bus.subscribe",
		trace.WithAttributes(
			attribute.String("component", "kafka_event_bus"),
			attribute.String("topic", b.topic),
		))
	defer span.End()

	if handler == nil {
		err := errors.New("subscribe: handler must not be nil")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	wanted := make(map[events.Selector]struct{}, len(selectors))
	names := make([]string, 0, len(selectors))
	for _, s := range selectors {
		wanted[s] = struct{}{}
		names = append(names, s.String())
	}
	span.AddEvent("selectors_collected", trace.WithAttributes(attribute.StringSlice("selectors", names)))

	go b.consumeLoop(ctx, []string{b.topic}, b.newClaimHandler(wanted, handler))
	b.logger.Info(ctx, "Subscribed to selectors", "selectors", names, "max_in_flight", b.maxInFlight)

	return nil
}

func (b *EventBus) newClaimHandler(wanted map[events.Selector]struct{}, handler events.AsyncHandlerFunc) *envelopeHandler {
	return &envelopeHandler{
		selectors:      wanted,
		userHandler:    handler,
		commitInterval: b.commitInterval,
		maxInFlight:    b.maxInFlight,
		logger:         b.logger,
		tracer:         b.tracer,
		metrics:        b.metrics,
	}
}

// consumeLoop maintains a continuous consumer group session for processing messages.
func (b *EventBus) consumeLoop(ctx context.Context, topics []string, cgHandler sarama.ConsumerGroupHandler) {
	for {
		if err := b.consumerGroup.Consume(ctx, topics, cgHandler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return
			}
			b.logger.Error(ctx, "Error from consumer group", "error", err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// envelopeHandler implements sarama.ConsumerGroupHandler and turns records
// into envelopes for the user handler.
type envelopeHandler struct {
	selectors      map[events.Selector]struct{}
	userHandler    events.AsyncHandlerFunc
	commitInterval time.Duration
	maxInFlight    int

	logger  *logger.Logger
	tracer  trace.Tracer
	metrics EventBusMetrics
}

func (h *envelopeHandler) Setup(sess sarama.ConsumerGroupSession) error {
	h.logger.Info(sess.Context(),
		"Consumer group session setup",
		"generation_id", sess.GenerationID(),
		"member_id", sess.MemberID(),
	)
	return nil
}

func (h *envelopeHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	h.logger.Info(sess.Context(),
		"Consumer group session cleanup",
		"generation_id", sess.GenerationID(),
		"member_id", sess.MemberID(),
	)
	return nil
}

// ConsumeClaim hands records from one partition to the user handler without
// waiting for earlier ones to finish. Every completed record is marked, even
// when its handler failed, so a failing handler cannot stall the partition.
// A record the handler refuses to accept stops the claim; it and everything
// after it are redelivered in the next session.
func (h *envelopeHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	consumeLogger := h.logger.With("operation", "consume_claim", "partition", claim.Partition())
	consumeLogger.Info(sess.Context(), "Starting to consume from partition", "member_id", sess.MemberID())

	offsets := newOffsetTracker(sess)
	slots := make(chan struct{}, max(h.maxInFlight, 1))
	var inflight sync.WaitGroup

	ticker := time.NewTicker(h.commitInterval)
	defer ticker.Stop()

	defer func() {
		inflight.Wait()
		sess.Commit()
		if n := offsets.outstanding(); n > 0 {
			consumeLogger.Warn(sess.Context(), "Leaving records unmarked for redelivery", "count", n)
		}
	}()

	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			select {
			case slots <- struct{}{}:
			case <-sess.Context().Done():
				return nil
			}
			inflight.Add(1)
			release := func() {
				<-slots
				inflight.Done()
			}

			if !h.handleMessage(sess, msg, offsets, release, consumeLogger) {
				return nil
			}

		case <-ticker.C:
			sess.Commit()

		case <-sess.Context().Done():
			return nil
		}
	}
}

// handleMessage hands msg to the user handler and reports whether it was
// accepted. release is called exactly once, after msg is marked or abandoned.
func (h *envelopeHandler) handleMessage(
	sess sarama.ConsumerGroupSession,
	msg *sarama.ConsumerMessage,
	offsets *offsetTracker,
	release func(),
	log *logger.Logger,
) bool {
	rec := offsets.track(msg)

	msgCtx := tracing.ExtractTraceContext(sess.Context(), msg)
	msgCtx, span := tracing.StartConsumerSpan(msgCtx, msg, h.tracer)

	env := envelopeFromMessage(msg)
	span.SetAttributes(
		attribute.String("selector", env.Selector.String()),
		attribute.String("tenant", env.Tenant),
	)

	if _, ok := h.selectors[env.Selector]; !ok {
		h.metrics.IncMessageSkipped(msgCtx, msg.Topic)
		log.Debug(msgCtx, "Skipping record without subscription",
			"selector", env.Selector.String(),
			"offset", msg.Offset,
		)
		span.End()
		offsets.complete(rec)
		release()
		return true
	}

	log.Debug(msgCtx, "Received Kafka message",
		"topic", msg.Topic,
		"offset", msg.Offset,
		"selector", env.Selector.String(),
		"tenant", env.Tenant,
	)

	var once sync.Once
	done := func(err error) {
		once.Do(func() {
			defer release()
			defer span.End()

			if err != nil {
				h.metrics.IncConsumeError(msgCtx, msg.Topic)
				span.RecordError(err)
				span.SetStatus(codes.Error, "failed to handle message")
				log.Error(msgCtx, "Failed to handle message", "offset", msg.Offset, "error", err)
			} else {
				h.metrics.IncMessageConsumed(msgCtx, msg.Topic)
			}
			offsets.complete(rec)
		})
	}

	if err := h.userHandler(msgCtx, env, done); err != nil {
		h.metrics.IncConsumeError(msgCtx, msg.Topic)
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler did not accept message")
		span.End()
		log.Warn(msgCtx, "Handler did not accept message, stopping claim", "offset", msg.Offset, "error", err)
		release()
		return false
	}
	return true
}

func envelopeFromMessage(msg *sarama.ConsumerMessage) events.EventEnvelope {
	env := events.EventEnvelope{
		Payload:   msg.Value,
		EmittedAt: msg.Timestamp,
		Metadata: events.EventMetadata{
			Partition: msg.Partition,
			Offset:    msg.Offset,
		},
	}

	for _, hdr := range msg.Headers {
		if hdr == nil {
			continue
		}
		switch string(hdr.Key) {
		case events.HeaderTenant:
			env.Tenant = string(hdr.Value)
		case events.HeaderSelector:
			env.Selector = events.Selector(hdr.Value)
		case events.HeaderEnvelopeID:
			env.ID = string(hdr.Value)
		}
	}

	if env.ID == "" {
		env.ID = fmt.Sprintf("%s-%d-%d", msg.Topic, msg.Partition, msg.Offset)
	}
	return env
}

// Close gracefully shuts down the event bus by closing both producer and consumer connections.
func (b *EventBus) Close() error {
	logger := b.logger.With("operation", "close")
	ctx, span := b.tracer.Start(context.Background(), "kafka_event_bus.close")
	defer span.End()

	if err := b.producer.Close(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to close producer")
		logger.Error(ctx, "Failed to close producer", "error", err)
		return err
	}
	if err := b.consumerGroup.Close(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to close consumer group")
		logger.Error(ctx, "Failed to close consumer group", "error", err)
		return err
	}

	span.AddEvent("closed_event_bus")
	span.SetStatus(codes.Ok, "closed event bus")
	logger.Info(ctx, "Closed event bus")

	return nil
}
