// Package mailer содержит реализации почтового релея галереи:
// журнальную заглушку для разработки и клиент внешнего HTTP-релея.
package mailer

import (
	"context"
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/aurabyshenoi/gallery/internal/domain"
)

// MockRelay записывает письма в журнал вместо реальной отправки.
// Используется, пока внешний релей не настроен.
type MockRelay struct {
	mu sync.Mutex

	// SendErr подменяет результат каждой отправки, когда задана.
	SendErr error
	// FailFirst завершает ошибкой указанное число первых вызовов.
	FailFirst int

	logger log.FieldLogger
	calls  int
	sent   []domain.MailMessage
}

// NewMockRelay возвращает журнальный релей.
func NewMockRelay(logger log.FieldLogger) *MockRelay {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &MockRelay{logger: logger}
}

// Send пишет письмо в журнал и считает вызовы.
func (m *MockRelay) Send(ctx context.Context, msg domain.MailMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.calls <= m.FailFirst {
		return errors.New("simulated relay failure")
	}
	if m.SendErr != nil {
		return m.SendErr
	}

	m.sent = append(m.sent, msg)
	m.logger.WithFields(log.Fields{
		"to":      msg.To,
		"subject": msg.Subject,
	}).Info("mail relayed to log sink")

	return nil
}

// Sent возвращает копию доставленных писем.
func (m *MockRelay) Sent() []domain.MailMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.MailMessage(nil), m.sent...)
}

// Calls возвращает число вызовов Send, включая неудавшиеся.
func (m *MockRelay) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

var _ domain.MailRelay = (*MockRelay)(nil)
