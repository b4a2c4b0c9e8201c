package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Producer publishes domain events to a single topic. Writes are async;
// delivery failures are logged from the completion callback.
type Producer struct {
	writer *kafkago.Writer
	topic  string
}

func NewProducer(brokers []string, topic string, log *zap.SugaredLogger) *Producer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		Async:        true,
		BatchTimeout: 50 * time.Millisecond,
		Completion: func(msgs []kafkago.Message, err error) {
			if err != nil {
				log.Warnw("kafka write failed", "topic", topic, "count", len(msgs), "err", err)
			}
		},
	}
	return &Producer{writer: w, topic: topic}
}

// Publish encodes v as JSON under key. The hash balancer keeps one key on
// one partition.
func (p *Producer) Publish(ctx context.Context, key string, v any) error {
	msg, err := encode(key, v, time.Now())
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

func encode(key string, v any, at time.Time) (kafkago.Message, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("encode %s event: %w", key, err)
	}
	return kafkago.Message{Key: []byte(key), Value: b, Time: at}, nil
}

// Close flushes pending async writes.
func (p *Producer) Close() error {
	return p.writer.Close()
}
