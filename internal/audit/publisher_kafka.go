package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaPublisher ships audit events to a Kafka topic. Events are keyed by
// subject hash so a subject's trail lands in one partition in order.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
	mu     sync.RWMutex
	closed bool
}

// Ensure KafkaPublisher implements Publisher
var _ Publisher = (*KafkaPublisher)(nil)

// defaultRetries bounds redelivery attempts when the deployment does not
// tune them.
const defaultRetries = 3

// KafkaConfig holds publisher configuration.
type KafkaConfig struct {
	Brokers         string
	Topic           string
	Retries         int
	DeliveryTimeout time.Duration
}

// withDefaults fills unset tuning fields.
func (c KafkaConfig) withDefaults() KafkaConfig {
	if c.Retries <= 0 {
		c.Retries = defaultRetries
	}
	return c
}

// NewKafkaPublisher creates a Kafka-backed audit sink.
func NewKafkaPublisher(cfg KafkaConfig, logger *slog.Logger) (*KafkaPublisher, error) {
	if cfg.Brokers == "" {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka audit topic not configured")
	}
	cfg = cfg.withDefaults()

	opts := []kgo.Opt{
		kgo.SeedBrokers(strings.Split(cfg.Brokers, ",")...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.RecordRetries(cfg.Retries),
		kgo.ProducerLinger(5 * time.Millisecond),
		kgo.AllowAutoTopicCreation(),
	}
	if cfg.DeliveryTimeout > 0 {
		opts = append(opts, kgo.RecordDeliveryTimeout(cfg.DeliveryTimeout))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka audit publisher: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaPublisher{
		client: client,
		topic:  cfg.Topic,
		logger: logger,
	}, nil
}

// Publish buffers the event for delivery. The send is asynchronous; delivery
// failures are logged rather than surfaced, the decision itself must not fail
// because the broker is down.
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return fmt.Errorf("audit publisher is closed")
	}
	p.mu.RUnlock()

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.SubjectHash),
		Value: value,
	}
	p.client.Produce(ctx, record, func(r *kgo.Record, err error) {
		if err != nil {
			p.logger.Error("audit event delivery failed",
				"error", err,
				"action", event.Action,
				"subject_hash", event.SubjectHash,
			)
		}
	})
	return nil
}

// Close flushes buffered events and closes the client.
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.client.Flush(ctx); err != nil {
		p.client.Close()
		return fmt.Errorf("flush audit events: %w", err)
	}
	p.client.Close()
	return nil
}
