package mailer

import (
	"context"
	"errors"
	"testing"

	"github.com/aurabyshenoi/gallery/internal/domain"
)

func TestMockRelay_SendAndRecord(t *testing.T) {
	relay := NewMockRelay(nil)
	ctx := context.Background()

	msg := domain.MailMessage{
		To:      "priya@example.com",
		Subject: "Order ORD-20260823-0001 confirmed",
		Body:    "Thank you for your purchase.",
	}
	if err := relay.Send(ctx, msg); err != nil {
		t.Fatalf("unexpected send error: %v", err)
	}

	sent := relay.Sent()
	if len(sent) != 1 || sent[0].To != msg.To {
		t.Fatalf("unexpected sent log: %+v", sent)
	}
	if relay.Calls() != 1 {
		t.Fatalf("unexpected call counter: %d", relay.Calls())
	}
}

func TestMockRelay_FailFirst(t *testing.T) {
	relay := NewMockRelay(nil)
	relay.FailFirst = 2
	ctx := context.Background()

	msg := domain.MailMessage{To: "priya@example.com", Subject: "s", Body: "b"}

	if err := relay.Send(ctx, msg); err == nil {
		t.Fatal("expected first send to fail")
	}
	if err := relay.Send(ctx, msg); err == nil {
		t.Fatal("expected second send to fail")
	}
	if err := relay.Send(ctx, msg); err != nil {
		t.Fatalf("expected third send to succeed: %v", err)
	}

	if len(relay.Sent()) != 1 {
		t.Fatalf("expected one delivered message, got %d", len(relay.Sent()))
	}
	if relay.Calls() != 3 {
		t.Fatalf("unexpected call counter: %d", relay.Calls())
	}
}

func TestMockRelay_SendErrAndContext(t *testing.T) {
	relay := NewMockRelay(nil)
	relay.SendErr = errors.New("relay is down")

	if err := relay.Send(context.Background(), domain.MailMessage{To: "a@b.cd"}); err == nil {
		t.Fatal("expected configured error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := relay.Send(ctx, domain.MailMessage{To: "a@b.cd"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
