package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// tracerName идентифицирует источник HTTP-span-ов.
const tracerName = "httpapi"

// Routes собирает маршрутизатор API. Статический сегмент /orders/id
// разбирается раньше параметра {orderNumber}, поэтому оба вида поиска
// заказов живут рядом без конфликтов.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if h.metrics != nil {
		r.Use(h.metrics.Middleware)
	}
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(traceRequests)

	r.Get("/", h.root)
	r.Get("/swagger/*", httpSwagger.WrapHandler)

	r.Get("/api/health", h.healthcheck)
	r.Get("/api/paintings", h.listPaintings)
	r.Get("/api/paintings/{id}", h.getPainting)
	r.Post("/api/orders", h.createOrder)
	r.Post("/api/orders/validate", h.validateOrder)
	r.Get("/api/orders/id/{id}", h.orderByID)
	r.Get("/api/orders/{orderNumber}", h.orderByNumber)
	r.Post("/api/contact", h.submitContact)
	r.Post("/api/newsletter/subscribe", h.subscribeNewsletter)

	return r
}

// requestLogger пишет одну строку на каждый обработанный запрос.
func requestLogger(logger *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.WithFields(log.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      statusOrOK(ww),
				"duration_ms": time.Since(start).Milliseconds(),
				"request_id":  middleware.GetReqID(r.Context()),
				"remote":      r.RemoteAddr,
			}).Info("request handled")
		})
	}
}

// traceRequests открывает серверный span на запрос, продолжая трассу из
// заголовков, и после обработки переименовывает span по шаблону маршрута,
// чтобы кардинальность имён не росла с каждым номером заказа.
func traceRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := otel.Tracer(tracerName).Start(ctx, r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				span.SetName(r.Method + " " + pattern)
			}
		}
		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.target", r.URL.Path),
			attribute.Int("http.status_code", statusOrOK(ww)),
		)
	})
}

// statusOrOK возвращает записанный статус ответа. Обработчик, не написавший
// ни заголовка, ни тела, считается ответившим 200.
func statusOrOK(ww middleware.WrapResponseWriter) int {
	if status := ww.Status(); status != 0 {
		return status
	}
	return http.StatusOK
}
