package payment

import (
	"context"
	"errors"
	"sync"

	"github.com/aurabyshenoi/gallery/internal/domain"
	"github.com/aurabyshenoi/gallery/internal/oid"
)

// Ссылки на способ оплаты, выбирающие сценарий mock-шлюза.
// Любая другая ссылка приводит к успешному списанию.
const (
	MethodRefDeclined    = "pm_decline"
	MethodRefRequires3DS = "pm_3ds"
	MethodRefProcessing  = "pm_processing"
	MethodRefGatewayDown = "pm_error"
)

// MockGateway — конфигурируемая заглушка PaymentGateway. Жизненный цикл
// платёжного намерения воспроизводится по ссылке на способ оплаты,
// поэтому тесты и локальная разработка обходятся без сетевого доступа.
type MockGateway struct {
	mu sync.Mutex

	// CreateErr подменяет транспортную ошибку, когда задана.
	CreateErr error

	CreateCalls int
	LastRequest domain.CreateIntentRequest
}

// NewMockGateway возвращает mock с успешным сценарием по умолчанию.
func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

// CreateIntent возвращает намерение по сценарию ссылки на способ оплаты
// и считает вызовы.
func (m *MockGateway) CreateIntent(ctx context.Context, req domain.CreateIntentRequest) (domain.PaymentIntent, error) {
	m.mu.Lock()
	m.CreateCalls++
	m.LastRequest = req
	createErr := m.CreateErr
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return domain.PaymentIntent{}, err
	}
	if createErr != nil {
		return domain.PaymentIntent{}, createErr
	}

	id := "pi_" + oid.New()
	switch req.MethodRef {
	case MethodRefGatewayDown:
		return domain.PaymentIntent{}, errors.New("simulated gateway outage")
	case MethodRefDeclined:
		return domain.PaymentIntent{
			ID:            id,
			Status:        domain.IntentStatusRequiresPaymentMethod,
			DeclineReason: "card_declined",
		}, nil
	case MethodRefRequires3DS:
		return domain.PaymentIntent{
			ID:           id,
			Status:       domain.IntentStatusRequiresAction,
			ClientSecret: id + "_secret_" + oid.New(),
		}, nil
	case MethodRefProcessing:
		return domain.PaymentIntent{
			ID:     id,
			Status: domain.IntentStatusProcessing,
		}, nil
	default:
		return domain.PaymentIntent{
			ID:     id,
			Status: domain.IntentStatusSucceeded,
		}, nil
	}
}

var _ domain.PaymentGateway = (*MockGateway)(nil)
