package memory_test

import (
	"errors"
	"testing"
	"time"

	"github.com/aurabyshenoi/gallery/internal/domain"
	"github.com/aurabyshenoi/gallery/internal/storage/memory"
)

func newStoredContact(id, reference string) domain.Contact {
	return domain.Contact{
		ID:        id,
		Reference: reference,
		Name:      "John Roe",
		Email:     "john@example.com",
		Query:     "Вопрос о доставке",
		Status:    domain.ContactStatusNew,
		CreatedAt: time.Now().UTC(),
	}
}

func TestContactRepository_CreateGet(t *testing.T) {
	repo := memory.NewContactRepository()
	contact := newStoredContact("65f1c0ffee0ddf00ba5e0777", "CNT-20260315-0001")

	if err := repo.Create(contact); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	stored, err := repo.Get(contact.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.Reference != contact.Reference {
		t.Fatalf("expected reference %s, got %s", contact.Reference, stored.Reference)
	}

	if err := repo.Create(contact); !errors.Is(err, domain.ErrContactAlreadyExists) {
		t.Fatalf("expected duplicate error, got %v", err)
	}

	if _, err := repo.Get("65f1c0ffee0ddf00ba5e0bad"); !errors.Is(err, domain.ErrContactNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestContactRepository_UnnotifiedFlow(t *testing.T) {
	repo := memory.NewContactRepository()

	old := newStoredContact("65f1c0ffee0ddf00ba5e0001", "CNT-20260315-0001")
	old.CreatedAt = time.Now().UTC().Add(-10 * time.Minute)
	fresh := newStoredContact("65f1c0ffee0ddf00ba5e0002", "CNT-20260315-0002")

	if err := repo.Create(old); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := repo.Create(fresh); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Выборка отсекается моментом создания: свежая запись не попадает.
	cutoff := time.Now().UTC().Add(-5 * time.Minute)
	pending, err := repo.ListUnnotified(cutoff, 10)
	if err != nil {
		t.Fatalf("list unnotified failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != old.ID {
		t.Fatalf("unexpected unnotified selection: %+v", pending)
	}

	sentAt := time.Now().UTC()
	if err := repo.UpdateNotification(old.ID, domain.NotificationState{Sent: true, SentAt: &sentAt, Attempts: 2}); err != nil {
		t.Fatalf("update notification failed: %v", err)
	}

	pending, err = repo.ListUnnotified(time.Now().UTC(), 10)
	if err != nil {
		t.Fatalf("list unnotified failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != fresh.ID {
		t.Fatalf("expected only fresh contact to remain, got %+v", pending)
	}
}
