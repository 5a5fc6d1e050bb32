package notify

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/aurabyshenoi/gallery/internal/domain"
)

// CircuitState описывает состояние автоматического выключателя релея.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// CircuitBreaker защищает почтовый релей от бесполезных вызовов:
// после серии отказов вызовы блокируются до истечения паузы, затем
// пропускается один пробный вызов.
type CircuitBreaker struct {
	maxFailures  int
	resetTimeout time.Duration
	logger       *log.Entry
	now          func() time.Time

	mu          sync.Mutex
	failures    int
	lastFailure time.Time
	state       CircuitState
}

// NewCircuitBreaker создаёт выключатель с указанным порогом отказов.
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration, logger *log.Entry) *CircuitBreaker {
	if logger == nil {
		logger = log.WithField("component", "relay-breaker")
	}
	if maxFailures <= 0 {
		maxFailures = 1
	}

	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		logger:       logger,
		now:          time.Now,
		state:        CircuitClosed,
	}
}

// Execute выполняет операцию, если выключатель это позволяет.
// В открытом состоянии возвращается ErrRelayUnavailable без вызова операции.
func (cb *CircuitBreaker) Execute(operation string, fn func() error) error {
	if !cb.allow(operation) {
		return domain.ErrRelayUnavailable
	}

	err := fn()
	cb.record(operation, err)
	return err
}

// allow решает, пропускать ли вызов, и по истечении паузы переводит
// открытый выключатель в полуоткрытое состояние для пробного вызова.
func (cb *CircuitBreaker) allow(operation string) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != CircuitOpen {
		return true
	}
	if cb.now().Sub(cb.lastFailure) <= cb.resetTimeout {
		return false
	}

	cb.state = CircuitHalfOpen
	cb.logger.WithField("operation", operation).Info("circuit breaker half-open")
	return true
}

// record учитывает исход вызова: серия отказов или неудачная проба
// открывают выключатель, успех закрывает его и обнуляет счётчик.
func (cb *CircuitBreaker) record(operation string, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		if cb.state == CircuitHalfOpen {
			cb.state = CircuitClosed
			cb.logger.WithField("operation", operation).Info("circuit breaker closed")
		}
		cb.failures = 0
		return
	}

	cb.failures++
	cb.lastFailure = cb.now()

	tripped := cb.state == CircuitHalfOpen || cb.failures >= cb.maxFailures
	if tripped && cb.state != CircuitOpen {
		cb.logger.WithFields(log.Fields{
			"operation": operation,
			"failures":  cb.failures,
		}).Warn("circuit breaker opened")
	}
	if tripped {
		cb.state = CircuitOpen
	}
}

// State возвращает текущее состояние выключателя.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
