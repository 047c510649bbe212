package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"kindergarten/pkg/platform/circuit"
)

// KafkaSink produces events as JSON records keyed by kindergarten name. While
// the broker is failing, a circuit breaker routes events to the fallback sink.
type KafkaSink struct {
	client   *kgo.Client
	topic    string
	breaker  *circuit.Breaker
	fallback Sink
	logger   *slog.Logger
}

// KafkaOption configures a KafkaSink.
type KafkaOption func(*KafkaSink)

// WithFallback sets the sink used while the breaker is open.
func WithFallback(s Sink) KafkaOption {
	return func(k *KafkaSink) { k.fallback = s }
}

// WithBreaker replaces the default breaker.
func WithBreaker(b *circuit.Breaker) KafkaOption {
	return func(k *KafkaSink) { k.breaker = b }
}

// WithKafkaLogger sets the logger for breaker transitions.
func WithKafkaLogger(logger *slog.Logger) KafkaOption {
	return func(k *KafkaSink) { k.logger = logger }
}

// NewKafkaSink connects a producer to brokers.
func NewKafkaSink(brokers []string, topic string, opts ...KafkaOption) (*KafkaSink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	k := &KafkaSink{
		client:   client,
		topic:    topic,
		breaker:  circuit.New("kafka-events", circuit.WithFailureThreshold(3), circuit.WithSuccessThreshold(1)),
		fallback: NewMemorySink(1000),
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k, nil
}

// EnsureTopic creates the topic when missing.
func (k *KafkaSink) EnsureTopic(ctx context.Context, partitions int32, replicationFactor int16) error {
	adm := kadm.NewClient(k.client)
	resp, err := adm.CreateTopic(ctx, partitions, replicationFactor, nil, k.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", k.topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", k.topic, resp.Err)
	}
	return nil
}

// Ping checks broker reachability.
func (k *KafkaSink) Ping(ctx context.Context) error {
	return k.client.Ping(ctx)
}

func (k *KafkaSink) Write(ctx context.Context, e Event) error {
	if !k.breaker.Allow() {
		return k.fallback.Write(ctx, e)
	}

	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	record := &kgo.Record{Topic: k.topic, Key: []byte(e.Key()), Value: value}
	if err := k.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		if _, change := k.breaker.RecordFailure(); change.Opened {
			k.logger.WarnContext(ctx, "event broker circuit opened", "breaker", k.breaker.Name(), "error", err)
		}
		if ferr := k.fallback.Write(ctx, e); ferr != nil {
			return errors.Join(err, ferr)
		}
		return fmt.Errorf("produce event: %w", err)
	}
	if _, change := k.breaker.RecordSuccess(); change.Closed {
		k.logger.InfoContext(ctx, "event broker circuit closed", "breaker", k.breaker.Name())
	}
	return nil
}

// Close flushes buffered records and closes the client.
func (k *KafkaSink) Close(ctx context.Context) error {
	err := k.client.Flush(ctx)
	k.client.Close()
	return err
}
