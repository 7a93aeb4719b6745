package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/confluentinc/confluent-kafka-go/kafka"
)

const defaultPollTimeout = time.Second

// Handler processes one message. A returned error leaves the message uncommitted and
// the handler is retried with backoff until it succeeds or the context ends.
type Handler func(ctx context.Context, key, value []byte) error

type kafkaConsumer interface {
	ReadMessage(timeout time.Duration) (*kafka.Message, error)
	CommitMessage(m *kafka.Message) ([]kafka.TopicPartition, error)
	Close() error
}

type Consumer struct {
	c           kafkaConsumer
	pollTimeout time.Duration
	newBackOff  func() backoff.BackOff
	log         *slog.Logger
}

func NewConsumer(brokers, groupID, topic string, pollTimeout time.Duration, log *slog.Logger) (*Consumer, error) {
	if brokers == "" || groupID == "" || topic == "" {
		return nil, errors.New("brokers, group id and topic are required")
	}
	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  brokers,
		"group.id":           groupID,
		"auto.offset.reset":  "earliest",
		"enable.auto.commit": false,
	})
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	if err := c.SubscribeTopics([]string{topic}, nil); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", topic, err)
	}
	return newConsumer(c, pollTimeout, log)
}

func newConsumer(c kafkaConsumer, pollTimeout time.Duration, log *slog.Logger) (*Consumer, error) {
	if c == nil {
		return nil, errors.New("consumer cannot be nil")
	}
	if log == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if pollTimeout <= 0 {
		pollTimeout = defaultPollTimeout
	}
	return &Consumer{
		c:           c,
		pollTimeout: pollTimeout,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = 0
			return b
		},
		log: log,
	}, nil
}

// Consume reads messages until ctx is done, committing each one after handler succeeds.
func (c *Consumer) Consume(ctx context.Context, handler Handler) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		msg, err := c.c.ReadMessage(c.pollTimeout)
		if err != nil {
			var kerr kafka.Error
			if errors.As(err, &kerr) {
				if kerr.Code() == kafka.ErrTimedOut {
					continue
				}
				if kerr.IsFatal() {
					return fmt.Errorf("read message: %w", err)
				}
			}
			c.log.Warn("failed to read message", slog.Any("error", err))
			continue
		}

		err = backoff.RetryNotify(func() error {
			return handler(ctx, msg.Key, msg.Value)
		}, backoff.WithContext(c.newBackOff(), ctx), func(err error, next time.Duration) {
			c.log.Warn("message handler failed",
				slog.String("key", string(msg.Key)),
				slog.Any("error", err),
				slog.Duration("retry_in", next),
			)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("handle message: %w", err)
		}

		if _, err := c.c.CommitMessage(msg); err != nil {
			c.log.Error("failed to commit message", slog.String("key", string(msg.Key)), slog.Any("error", err))
		}
	}
}

func (c *Consumer) Close() error {
	return c.c.Close()
}
