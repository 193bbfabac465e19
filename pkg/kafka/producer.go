package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Producer publishes JSON or raw payloads through a single kafka.Writer.
type Producer struct {
	writer  *kafka.Writer
	metrics *clientMetrics
}

// Message is one keyed payload for PublishBatch.
type Message struct {
	Key   []byte
	Value interface{}
}

// NewProducer builds a producer. No connection is made until the first write.
func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if err := cfg.prepare(); err != nil {
		return nil, err
	}

	var balancer kafka.Balancer = &kafka.LeastBytes{}
	if cfg.KeyHashing {
		balancer = &kafka.Hash{}
	}
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     balancer,
			RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
			Compression:  compressionCodec(cfg.Compression),
			MaxAttempts:  cfg.MaxAttempts,
			WriteTimeout: cfg.WriteTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			BatchSize:    cfg.BatchSize,
			BatchBytes:   int64(cfg.BatchBytes),
			BatchTimeout: cfg.Linger,
			Async:        cfg.Async,
		},
		metrics: kafkaMetrics(),
	}, nil
}

// Publish writes one message. A trace id on ctx travels as the trace_id header.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	return p.PublishBatch(ctx, topic, []Message{{Key: key, Value: value}})
}

// PublishBatch encodes every message first and then writes them in one call,
// so an encoding failure publishes nothing.
func (p *Producer) PublishBatch(ctx context.Context, topic string, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}
	out := make([]kafka.Message, len(messages))
	size := 0
	for i, m := range messages {
		km, err := newMessage(ctx, topic, m.Key, m.Value)
		if err != nil {
			return err
		}
		out[i] = km
		size += len(km.Value)
	}

	start := time.Now()
	err := p.writer.WriteMessages(ctx, out...)
	p.metrics.observePublish(topic, len(out), size, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("write %d message(s) to %s: %w", len(out), topic, err)
	}
	return nil
}

// PublishMessage writes an unkeyed payload. It satisfies the log collector's
// publisher interface.
func (p *Producer) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.Publish(ctx, topic, nil, payload)
}

// Close flushes pending async writes and releases the writer.
func (p *Producer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func newMessage(ctx context.Context, topic string, key []byte, value interface{}) (kafka.Message, error) {
	km := kafka.Message{Topic: topic, Key: key, Time: time.Now()}
	switch v := value.(type) {
	case []byte:
		km.Value = v
	case string:
		km.Value = []byte(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return kafka.Message{}, fmt.Errorf("encode %s payload: %w", topic, err)
		}
		km.Value = b
	}
	if id := TraceID(ctx); id != "" {
		km.Headers = append(km.Headers, kafka.Header{Key: traceHeader, Value: []byte(id)})
	}
	return km, nil
}
