package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"go.uber.org/zap/zaptest"
)

func TestPublisher_Publish(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var got map[string]string
		if err := json.Unmarshal(val, &got); err != nil {
			return err
		}
		if got["event_type"] != "booking_paid" {
			return errors.New("unexpected payload")
		}
		return nil
	})

	p := NewPublisher(producer, zaptest.NewLogger(t))
	err := p.Publish(context.Background(), "shop_events", "b1", map[string]string{"event_type": "booking_paid"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := producer.Close(); err != nil {
		t.Errorf("Expected all messages to be sent, got %v", err)
	}
}

func TestPublisher_PublishFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewPublisher(producer, zaptest.NewLogger(t))
	err := p.Publish(context.Background(), "shop_events", "", map[string]string{})
	if !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Fatalf("Expected ErrOutOfBrokers, got %v", err)
	}
	producer.Close()
}

func TestConsumer_RetriesFailedMessages(t *testing.T) {
	consumer := mocks.NewConsumer(t, nil)
	consumer.SetTopicMetadata(map[string][]int32{"notification_events": {0}})
	pc := consumer.ExpectConsumePartition("notification_events", 0, sarama.OffsetNewest)
	pc.YieldMessage(&sarama.ConsumerMessage{Topic: "notification_events", Value: []byte(`{}`)})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	handler := func(ctx context.Context, msg *sarama.ConsumerMessage) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		cancel()
		return nil
	}

	c := NewConsumer(consumer, "notification_events", handler, zaptest.NewLogger(t))
	c.backoff = time.Millisecond

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Consumer did not stop")
	}
	if calls != 2 {
		t.Errorf("Expected 2 attempts, got %d", calls)
	}
}

func TestConsumer_PartitionFailureStopsStartedPartitions(t *testing.T) {
	consumer := mocks.NewConsumer(t, nil)
	consumer.SetTopicMetadata(map[string][]int32{"notification_events": {0, 1}})
	first := consumer.ExpectConsumePartition("notification_events", 0, sarama.OffsetNewest)
	consumer.ExpectConsumePartition("notification_events", 1, sarama.OffsetNewest)
	// Partition 1 is already taken, so the consumer cannot start it.
	if _, err := consumer.ConsumePartition("notification_events", 1, sarama.OffsetNewest); err != nil {
		t.Fatalf("Failed to take partition 1: %v", err)
	}

	handler := func(ctx context.Context, msg *sarama.ConsumerMessage) error { return nil }
	c := NewConsumer(consumer, "notification_events", handler, zaptest.NewLogger(t))

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Expected an error for the partition that could not be consumed")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Consumer did not return after the partition failure")
	}

	select {
	case _, ok := <-first.Messages():
		if ok {
			t.Error("Expected no message on partition 0")
		}
	default:
		t.Error("Expected partition 0 to be closed before Run returned")
	}
}
