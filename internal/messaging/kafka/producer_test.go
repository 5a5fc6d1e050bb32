package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
)

// mockedProducer собирает Producer поверх sarama mock и следит, чтобы все
// заявленные ожидания были выкуплены к концу теста.
func mockedProducer(t *testing.T) (*Producer, *mocks.SyncProducer) {
	t.Helper()

	mock := mocks.NewSyncProducer(t, nil)
	t.Cleanup(func() {
		if err := mock.Close(); err != nil {
			t.Errorf("close mock producer: %v", err)
		}
	})
	return wrapProducer(mock), mock
}

func TestProducerPublish(t *testing.T) {
	producer, mock := mockedProducer(t)

	mock.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicOrderEvents {
			return fmt.Errorf("unexpected topic %q", msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "ORD-20260315-0001" {
			return fmt.Errorf("unexpected key %q", key)
		}

		raw, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var event OrderEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			return err
		}
		if event.EventType != EventOrderPlaced || event.OrderNumber != "ORD-20260315-0001" {
			return fmt.Errorf("payload distorted: %+v", event)
		}
		if event.EventID == "" {
			return errors.New("event id must be filled")
		}
		return nil
	})

	event := NewOrderEvent(EventOrderPlaced, "ORD-20260315-0001", "completed", map[string]string{
		"customer_email": "olga@example.com",
	})
	if err := producer.Publish(EventOrderPlaced, "ORD-20260315-0001", event); err != nil {
		t.Fatalf("publish: %v", err)
	}
}

func TestProducerPublishContactTopic(t *testing.T) {
	producer, mock := mockedProducer(t)

	mock.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicContactEvents {
			return fmt.Errorf("contact event went to %q", msg.Topic)
		}
		return nil
	})

	event := NewContactEvent(EventContactReceived, "CNT-20260315-0001", "jane@example.com")
	if err := producer.Publish(EventContactReceived, "CNT-20260315-0001", event); err != nil {
		t.Fatalf("publish: %v", err)
	}
}

func TestProducerPublishSendFailure(t *testing.T) {
	producer, mock := mockedProducer(t)
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	event := NewContactEvent(EventContactReceived, "CNT-20260315-0001", "jane@example.com")
	err := producer.Publish(EventContactReceived, "CNT-20260315-0001", event)
	if !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Fatalf("broker error must stay in the chain, got %v", err)
	}
}

func TestProducerPublishUnmarshalablePayload(t *testing.T) {
	producer, _ := mockedProducer(t)

	// Канал не сериализуется в JSON, отправка не должна дойти до брокера.
	if err := producer.Publish(EventOrderPlaced, "ORD-20260315-0001", make(chan int)); err == nil {
		t.Fatal("expected marshal error")
	}
}

func TestTopicFor(t *testing.T) {
	cases := []struct {
		eventType string
		want      string
	}{
		{EventOrderPlaced, TopicOrderEvents},
		{EventOrderPaymentDeclined, TopicOrderEvents},
		{EventReconciliationFailed, TopicOrderEvents},
		{EventNotificationExhausted, TopicOrderEvents},
		{EventContactReceived, TopicContactEvents},
	}

	for _, tc := range cases {
		if got := TopicFor(tc.eventType); got != tc.want {
			t.Fatalf("TopicFor(%s) = %s, want %s", tc.eventType, got, tc.want)
		}
	}
}

func TestNewReconciliationEvent(t *testing.T) {
	event := NewReconciliationEvent("ORD-20260315-0007", "pi_abc", "insert failed")

	if event.EventType != EventReconciliationFailed {
		t.Fatalf("unexpected event type %q", event.EventType)
	}
	if event.OrderNumber != "ORD-20260315-0007" || event.IntentID != "pi_abc" {
		t.Fatalf("unexpected identifiers: %+v", event)
	}
	if event.EventID == "" {
		t.Fatal("event id must be filled")
	}
	if event.Timestamp.IsZero() || time.Since(event.Timestamp) > time.Second {
		t.Fatalf("timestamp drifted: %v", event.Timestamp)
	}
}

func TestNopPublisher(t *testing.T) {
	var publisher NopPublisher

	if err := publisher.Publish(EventOrderPlaced, "key", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if err := publisher.Close(); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}
