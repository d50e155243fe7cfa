// Package events fans call lifecycle events out to Kafka and to connected
// admin WebSocket clients.
package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/lukasbauer/apriori/internal/followup"
	"github.com/lukasbauer/apriori/internal/metrics"
)

// KafkaConfig holds Kafka publisher configuration.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// KafkaPublisher writes lifecycle events to one topic keyed by call id.
// Without brokers it runs in log-only mode.
type KafkaPublisher struct {
	writer  *kafka.Writer
	topic   string
	enabled bool
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewKafkaPublisher creates a publisher. m may be nil.
func NewKafkaPublisher(cfg KafkaConfig, m *metrics.Metrics, logger zerolog.Logger) *KafkaPublisher {
	if m == nil {
		m = metrics.NewNop()
	}
	p := &KafkaPublisher{topic: cfg.Topic, metrics: m, logger: logger}

	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		logger.Info().Msg("Kafka: disabled, using log-only mode")
		return p
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion:   p.completion,
		Transport:    &kafka.Transport{Dial: dialer.DialFunc},
	}
	p.enabled = true

	logger.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", cfg.Topic).
		Msg("Kafka: publisher initialized")
	return p
}

// Enabled reports whether events reach a broker.
func (p *KafkaPublisher) Enabled() bool {
	return p.enabled
}

// Publish implements followup.EventSink. Writes are asynchronous; failures
// are logged and counted.
func (p *KafkaPublisher) Publish(ctx context.Context, ev followup.LifecycleEvent) {
	msg, err := Message(ev)
	if err != nil {
		p.metrics.EventPublishErrors.WithLabelValues("kafka").Inc()
		p.logger.Error().Err(err).Str("event_id", ev.ID).Msg("Kafka: failed to marshal event")
		return
	}

	p.logger.Debug().
		Str("topic", p.topic).
		Str("key", string(msg.Key)).
		RawJSON("payload", msg.Value).
		Msg("Kafka: publishing event")

	if !p.enabled {
		return
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.metrics.EventPublishErrors.WithLabelValues("kafka").Inc()
		p.logger.Error().Err(err).Str("event_id", ev.ID).Msg("Kafka: failed to enqueue event")
	}
}

func (p *KafkaPublisher) completion(messages []kafka.Message, err error) {
	if err == nil {
		return
	}
	p.metrics.EventPublishErrors.WithLabelValues("kafka").Add(float64(len(messages)))
	p.logger.Error().Err(err).Int("messages", len(messages)).Msg("Kafka: failed to write batch")
}

// Close flushes pending writes.
func (p *KafkaPublisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// Message encodes ev as a Kafka message keyed by call id, so one call's
// events stay ordered within a partition.
func Message(ev followup.LifecycleEvent) (kafka.Message, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(strconv.FormatInt(ev.CallID, 10)),
		Value: payload,
		Time:  ev.At,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte("call." + string(ev.To))},
			{Key: "callType", Value: []byte(ev.CallType)},
		},
	}, nil
}
