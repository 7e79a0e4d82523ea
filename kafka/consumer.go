package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

func InitConsumer(brokers []string, logger *zap.Logger) (sarama.Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Return.Errors = true
	config.Consumer.Retry.Backoff = 1 * time.Second

	consumer, err := sarama.NewConsumer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
	}

	logger.Info("Kafka consumer initialized", zap.Strings("brokers", brokers))
	return consumer, nil
}

// HandlerFunc processes one message. ctx carries the producer's trace.
type HandlerFunc func(ctx context.Context, msg *sarama.ConsumerMessage) error

// Consumer reads every partition of one topic and hands messages to a
// handler, retrying failures with a linear backoff.
type Consumer struct {
	consumer   sarama.Consumer
	topic      string
	handler    HandlerFunc
	maxRetries int
	backoff    time.Duration
	logger     *zap.Logger
}

func NewConsumer(consumer sarama.Consumer, topic string, handler HandlerFunc, logger *zap.Logger) *Consumer {
	return &Consumer{
		consumer:   consumer,
		topic:      topic,
		handler:    handler,
		maxRetries: 3,
		backoff:    time.Second,
		logger:     logger,
	}
}

// Run blocks until ctx is cancelled. If a partition cannot be consumed, the
// partitions already started are stopped before Run returns.
func (c *Consumer) Run(ctx context.Context) error {
	partitions, err := c.consumer.Partitions(c.topic)
	if err != nil {
		return fmt.Errorf("failed to list partitions: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for _, partition := range partitions {
		pc, err := c.consumer.ConsumePartition(c.topic, partition, sarama.OffsetNewest)
		if err != nil {
			cancel()
			wg.Wait()
			return fmt.Errorf("failed to consume partition %d: %w", partition, err)
		}

		wg.Add(1)
		go func(pc sarama.PartitionConsumer) {
			defer wg.Done()
			defer pc.Close()
			c.consumePartition(ctx, pc)
		}(pc)
	}

	c.logger.Info("Kafka consumer started", zap.String("topic", c.topic), zap.Int("partitions", len(partitions)))
	wg.Wait()
	return nil
}

func (c *Consumer) consumePartition(ctx context.Context, pc sarama.PartitionConsumer) {
	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-pc.Messages():
			if !ok {
				return
			}
			if err := c.handleWithRetry(ctx, message); err != nil {
				c.logger.Error("Failed to handle message after retries",
					zap.String("topic", message.Topic),
					zap.Int32("partition", message.Partition),
					zap.Int64("offset", message.Offset),
					zap.Error(err),
				)
			}
		case err, ok := <-pc.Errors():
			if !ok {
				return
			}
			c.logger.Error("Kafka consumer error", zap.Error(err))
		}
	}
}

func (c *Consumer) handleWithRetry(ctx context.Context, message *sarama.ConsumerMessage) error {
	msgCtx := otel.GetTextMapPropagator().Extract(ctx, consumerCarrier(message.Headers))
	msgCtx, span := otel.Tracer("retail-service").Start(msgCtx, "ConsumeMessage")
	defer span.End()
	span.SetAttributes(
		attribute.String("messaging.destination", message.Topic),
		attribute.Int64("messaging.offset", message.Offset),
	)

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		err := c.handler(msgCtx, message)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < c.maxRetries {
			backoff := time.Duration(attempt) * c.backoff
			c.logger.Warn("Retrying message handling",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	span.RecordError(lastErr)
	return fmt.Errorf("failed after %d attempts: %w", c.maxRetries, lastErr)
}
