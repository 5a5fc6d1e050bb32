// Package health отдаёт состояние сервиса для проб оркестратора: полный
// отчёт по компонентам, readiness и liveness.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// checkTimeout ограничивает суммарное время проверок одного запроса.
const checkTimeout = 2 * time.Second

// Status описывает состояние компонента.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// Check описывает результат проверки одного компонента.
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Response описывает ответ health-эндпоинта.
type Response struct {
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Checks        map[string]Check `json:"checks,omitempty"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

// Checker проверяет состояние одного компонента.
type Checker interface {
	Check(ctx context.Context) Check
}

// Handler прогоняет зарегистрированные проверки и сводит их в общий статус.
type Handler struct {
	mu        sync.RWMutex
	checkers  map[string]Checker
	version   string
	startedAt time.Time
}

// NewHandler создаёт health handler, который подписывает отчёты указанной
// версией сборки.
func NewHandler(version string) *Handler {
	return &Handler{
		checkers:  make(map[string]Checker),
		version:   version,
		startedAt: time.Now(),
	}
}

// RegisterChecker добавляет проверку под указанным именем. Повторная
// регистрация того же имени замещает прежнюю проверку.
func (h *Handler) RegisterChecker(name string, checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = checker
}

// RegisterFunc оборачивает функцию в проверку: nil означает healthy,
// любая ошибка — unhealthy с её текстом в отчёте.
func (h *Handler) RegisterFunc(name string, fn func(ctx context.Context) error) {
	h.RegisterChecker(name, probe{name: name, fn: fn})
}

// probe замеряет длительность функции и переводит её результат в Check.
type probe struct {
	name string
	fn   func(ctx context.Context) error
}

func (p probe) Check(ctx context.Context) Check {
	started := time.Now()
	err := p.fn(ctx)
	elapsed := time.Since(started).Milliseconds()

	check := Check{Name: p.name, Status: StatusHealthy, DurationMs: elapsed}
	if err != nil {
		check.Status = StatusUnhealthy
		check.Message = err.Error()
	}
	return check
}

// ServeHTTP отдаёт полный отчёт. Любая unhealthy проверка опускает общий
// статус и код ответа до 503.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	checks := h.runChecks(ctx)

	overall := StatusHealthy
	for _, check := range checks {
		overall = worse(overall, check.Status)
	}

	code := http.StatusOK
	if overall == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(Response{
		Status:        overall,
		Timestamp:     time.Now().UTC(),
		Checks:        checks,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
	})
}

// ReadinessHandler отвечает ready, пока ни одна проверка не unhealthy.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	for _, check := range h.runChecks(ctx) {
		if check.Status == StatusUnhealthy {
			writeProbe(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeProbe(w, http.StatusOK, "ready")
}

// LivenessHandler всегда отвечает 200: процесс жив, раз дошёл до ответа.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	writeProbe(w, http.StatusOK, "ok")
}

// writeProbe отвечает на текстовые пробы оркестратора.
func writeProbe(w http.ResponseWriter, code int, body string) {
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}

// runChecks выполняет проверки параллельно, чтобы медленный компонент
// не съедал таймаут у остальных.
func (h *Handler) runChecks(ctx context.Context) map[string]Check {
	h.mu.RLock()
	names := make([]string, 0, len(h.checkers))
	checkers := make([]Checker, 0, len(h.checkers))
	for name, checker := range h.checkers {
		names = append(names, name)
		checkers = append(checkers, checker)
	}
	h.mu.RUnlock()

	results := make([]Check, len(checkers))
	var wg sync.WaitGroup
	wg.Add(len(checkers))
	for i, checker := range checkers {
		go func() {
			defer wg.Done()
			results[i] = checker.Check(ctx)
		}()
	}
	wg.Wait()

	out := make(map[string]Check, len(names))
	for i, name := range names {
		out[name] = results[i]
	}
	return out
}

// worse возвращает более тяжёлый из двух статусов.
func worse(a, b Status) Status {
	switch {
	case a == StatusUnhealthy || b == StatusUnhealthy:
		return StatusUnhealthy
	case a == StatusDegraded || b == StatusDegraded:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}
