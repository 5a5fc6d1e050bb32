package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// routeUnmatched подставляется вместо шаблона маршрута для запросов,
// не попавших ни в один обработчик, чтобы не плодить метки по сырым URL.
const routeUnmatched = "unmatched"

// HTTPMetrics содержит метрики HTTP API магазина.
type HTTPMetrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight prometheus.Gauge
}

// NewHTTPMetrics создаёт метрики HTTP API в регистре по умолчанию.
func NewHTTPMetrics() *HTTPMetrics {
	return newHTTPMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newHTTPMetricsWithRegisterer(registerer prometheus.Registerer) *HTTPMetrics {
	return &HTTPMetrics{
		requestsTotal: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gallery_http_requests_total",
			Help: "HTTP requests handled, grouped by method, route and status.",
		}, []string{"method", "route", "status"})),
		requestDuration: register(registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gallery_http_request_duration_seconds",
			Help:    "Time spent handling a single HTTP request.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"})),
		requestsInFlight: register(registerer, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gallery_http_requests_in_flight",
			Help: "Requests currently being handled.",
		})),
	}
}

// register добавляет коллектор в регистр. Коллектор, уже занявший это имя,
// возвращается вместо нового, так что повторная инициализация метрик
// продолжает те же серии.
func register[C prometheus.Collector](registerer prometheus.Registerer, collector C) C {
	err := registerer.Register(collector)
	if err == nil {
		return collector
	}

	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		if existing, ok := already.ExistingCollector.(C); ok {
			return existing
		}
	}
	panic(fmt.Errorf("metrics: %w", err))
}

// Middleware записывает длительность и статус каждого запроса. Маршрут
// берётся из шаблона chi после обработки, поэтому middleware должен стоять
// поверх chi-роутера.
func (m *HTTPMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.requestsInFlight.Inc()
		defer m.requestsInFlight.Dec()

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := routeUnmatched
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.requestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
