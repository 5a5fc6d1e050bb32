package domain_test

import (
	"testing"
	"time"

	"github.com/aurabyshenoi/gallery/internal/domain"
)

func TestItemValidateInvariants(t *testing.T) {
	item := domain.Item{
		ID:        "65f1c0ffee0ddf00ba5e00aa",
		Title:     "Закат над гаванью",
		Price:     200,
		Available: true,
		CreatedAt: time.Now().UTC(),
	}
	if errs := item.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}

	item.Title = ""
	item.Price = -1
	errs := item.ValidateInvariants()
	if len(errs) != 2 {
		t.Fatalf("expected 2 validation errors, got %v", errs)
	}
}
