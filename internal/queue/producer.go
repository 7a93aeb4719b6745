package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
)

var ErrDeliveryTimeout = errors.New("message delivery timed out")

const (
	defaultDeliveryTimeout = 10 * time.Second
	flushTimeoutMs         = 5000
	contentTypeHeader      = "content-type"
	contentTypeJSON        = "application/json"
)

type kafkaProducer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Flush(timeoutMs int) int
	Close()
}

// Producer publishes JSON messages and waits for the broker to acknowledge each one.
type Producer struct {
	p               kafkaProducer
	deliveryTimeout time.Duration
	log             *slog.Logger
}

func NewProducer(brokers string, deliveryTimeout time.Duration, log *slog.Logger) (*Producer, error) {
	if brokers == "" {
		return nil, errors.New("brokers cannot be empty")
	}
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  brokers,
		"acks":               "all",
		"enable.idempotence": true,
	})
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return newProducer(p, deliveryTimeout, log)
}

func newProducer(p kafkaProducer, deliveryTimeout time.Duration, log *slog.Logger) (*Producer, error) {
	if p == nil {
		return nil, errors.New("producer cannot be nil")
	}
	if log == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if deliveryTimeout <= 0 {
		deliveryTimeout = defaultDeliveryTimeout
	}
	return &Producer{
		p:               p,
		deliveryTimeout: deliveryTimeout,
		log:             log,
	}, nil
}

func (p *Producer) Publish(ctx context.Context, topic, key string, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	delivery := make(chan kafka.Event, 1)
	err = p.p.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(key),
		Value:          value,
		Headers:        []kafka.Header{{Key: contentTypeHeader, Value: []byte(contentTypeJSON)}},
	}, delivery)
	if err != nil {
		return fmt.Errorf("produce to %s: %w", topic, err)
	}

	timer := time.NewTimer(p.deliveryTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("produce to %s: %w", topic, ErrDeliveryTimeout)
	case ev := <-delivery:
		m, ok := ev.(*kafka.Message)
		if !ok {
			return fmt.Errorf("produce to %s: unexpected delivery event %v", topic, ev)
		}
		if m.TopicPartition.Error != nil {
			p.log.Error("message delivery failed",
				slog.String("topic", topic),
				slog.String("key", key),
				slog.Any("error", m.TopicPartition.Error),
			)
			return fmt.Errorf("deliver to %s: %w", topic, m.TopicPartition.Error)
		}
		p.log.Debug("message delivered",
			slog.String("topic", topic),
			slog.String("key", key),
			slog.Int("partition", int(m.TopicPartition.Partition)),
		)
		return nil
	}
}

func (p *Producer) Close() {
	if remaining := p.p.Flush(flushTimeoutMs); remaining > 0 {
		p.log.Warn("producer closed with undelivered messages", slog.Int("remaining", remaining))
	}
	p.p.Close()
}
