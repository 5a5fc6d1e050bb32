// Package httpapi отдаёт публичный HTTP API галереи: витрину каталога,
// оформление заказов, форму обращений и подписку на рассылку. Доменные
// ошибки переводятся в статусы и конверты ответов только здесь.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/aurabyshenoi/gallery/internal/domain"
	"github.com/aurabyshenoi/gallery/internal/metrics"
	"github.com/aurabyshenoi/gallery/internal/oid"
	"github.com/aurabyshenoi/gallery/internal/service/catalog"
	"github.com/aurabyshenoi/gallery/internal/service/checkout"
	"github.com/aurabyshenoi/gallery/internal/service/enquiry"
	"github.com/aurabyshenoi/gallery/internal/service/idempotency"
)

const (
	// defaultMaxBodyBytes ограничивает размер тела запроса.
	defaultMaxBodyBytes = 1 << 20
	// maxListingLimit ограничивает параметр limit витрины.
	maxListingLimit = 50
)

// idempotencyHeader задаёт имя заголовка с ключом идемпотентности оформления.
const idempotencyHeader = "Idempotency-Key"

// Options задаёт параметры HTTP API.
type Options struct {
	Logger       *log.Entry
	Guard        *idempotency.Guard
	Health       http.Handler
	Metrics      *metrics.HTTPMetrics
	MaxBodyBytes int64
}

// Option настраивает Handler.
type Option func(*Options)

// WithLogger задаёт logger API.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithGuard включает идемпотентное оформление по заголовку Idempotency-Key.
// Без guard заголовок игнорируется.
func WithGuard(guard *idempotency.Guard) Option {
	return func(opts *Options) {
		opts.Guard = guard
	}
}

// WithHealth задаёт обработчик GET /api/health.
func WithHealth(health http.Handler) Option {
	return func(opts *Options) {
		opts.Health = health
	}
}

// WithMetrics включает сбор HTTP-метрик на каждый запрос.
func WithMetrics(m *metrics.HTTPMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// WithMaxBodyBytes задаёт предельный размер тела запроса.
func WithMaxBodyBytes(limit int64) Option {
	return func(opts *Options) {
		opts.MaxBodyBytes = limit
	}
}

// Handler обслуживает маршруты публичного API поверх сервисов галереи.
type Handler struct {
	catalog  *catalog.Service
	checkout *checkout.Service
	enquiry  *enquiry.Service
	guard    *idempotency.Guard
	health   http.Handler
	metrics  *metrics.HTTPMetrics
	logger   *log.Entry
	maxBody  int64
}

// NewHandler создаёт HTTP API поверх сервисов витрины, оформления и обращений.
func NewHandler(
	catalogSvc *catalog.Service,
	checkoutSvc *checkout.Service,
	enquirySvc *enquiry.Service,
	options ...Option,
) *Handler {
	opts := Options{
		MaxBodyBytes: defaultMaxBodyBytes,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "httpapi")
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}

	return &Handler{
		catalog:  catalogSvc,
		checkout: checkoutSvc,
		enquiry:  enquirySvc,
		guard:    opts.Guard,
		health:   opts.Health,
		metrics:  opts.Metrics,
		logger:   logger,
		maxBody:  opts.MaxBodyBytes,
	}
}

// root отвечает на запрос к корню сервиса.
func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"message": "AuraByShenoi API",
		"status":  "running",
	})
}

// healthcheck отдаёт сводный статус сервиса и его зависимостей.
func (h *Handler) healthcheck(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		h.health.ServeHTTP(w, r)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// listPaintings отдаёт витрину каталога.
// @Summary List paintings
// @Produce json
// @Param featured query bool false "Only featured paintings"
// @Param limit query int false "Maximum number of paintings (1-50)"
// @Success 200 {object} envelope
// @Router /api/paintings [get]
func (h *Handler) listPaintings(w http.ResponseWriter, r *http.Request) {
	featured := false
	if raw := r.URL.Query().Get("featured"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			h.writeJSON(w, http.StatusBadRequest, envelope{Message: "Featured must be true or false"})
			return
		}
		featured = parsed
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxListingLimit {
			h.writeJSON(w, http.StatusBadRequest, envelope{Message: "Limit must be between 1 and 50"})
			return
		}
		limit = parsed
	}

	items, err := h.catalog.List(r.Context(), featured, limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, envelope{Success: true, Data: newItemDTOs(items)})
}

// getPainting отдаёт одну работу каталога.
// @Summary Get painting
// @Produce json
// @Param id path string true "Painting ID"
// @Success 200 {object} envelope
// @Router /api/paintings/{id} [get]
func (h *Handler) getPainting(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !oid.Valid(id) {
		h.writeJSON(w, http.StatusBadRequest, envelope{Message: "Invalid painting id format"})
		return
	}

	item, err := h.catalog.Get(r.Context(), id)
	if err != nil {
		if domain.IsNotFound(err) {
			h.writeJSON(w, http.StatusNotFound, envelope{Message: "Painting not found"})
			return
		}
		h.respondError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, envelope{Success: true, Data: newItemDTO(item)})
}

// validateOrder проверяет корзину и возвращает расчёт стоимости
// без резервирования и обращения к платёжному шлюзу.
// @Summary Validate order
// @Accept json
// @Produce json
// @Param cart body validateOrderRequest true "Cart"
// @Success 200 {object} envelope
// @Router /api/orders/validate [post]
func (h *Handler) validateOrder(w http.ResponseWriter, r *http.Request) {
	var req validateOrderRequest
	if !h.decode(w, r, &req) {
		return
	}

	quote, err := h.checkout.Validate(r.Context(), req.ItemIDs, req.Country)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, envelope{Success: true, Data: newQuoteDTO(quote)})
}

// createOrder оформляет заказ. Заголовок Idempotency-Key защищает от
// двойной отправки платёжной формы: повтор с тем же телом получает
// сохранённый ответ без повторного списания.
// @Summary Create order
// @Accept json
// @Produce json
// @Param Idempotency-Key header string false "Idempotency key"
// @Param order body orderRequest true "Order"
// @Success 201 {object} envelope
// @Router /api/orders [post]
func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, envelope{Message: "Unable to read request body"})
		return
	}
	var req orderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, envelope{Message: "Request body is not valid JSON"})
		return
	}

	key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	guarded := key != "" && h.guard != nil
	if guarded {
		stored, err := h.guard.Begin(key, body)
		switch {
		case errors.Is(err, domain.ErrIdempotencyHashMismatch):
			h.writeJSON(w, http.StatusConflict, envelope{Message: "Idempotency key was used with a different request"})
			return
		case errors.Is(err, domain.ErrIdempotencyInFlight):
			h.writeJSON(w, http.StatusConflict, envelope{Message: "A request with this idempotency key is still being processed"})
			return
		case err != nil:
			h.logger.WithError(err).Error("idempotency guard unavailable")
			h.writeJSON(w, http.StatusInternalServerError, envelope{Message: "Internal server error"})
			return
		case stored != nil:
			h.replay(w, stored)
			return
		}
	}

	status, resp := h.placeOrder(r.Context(), req)
	if guarded {
		h.recordOutcome(key, status, resp)
	}
	h.writeJSON(w, status, resp)
}

// placeOrder выполняет оформление и переводит исход в статус и конверт ответа.
func (h *Handler) placeOrder(ctx context.Context, req orderRequest) (int, envelope) {
	res, err := h.checkout.Checkout(ctx, req.toCheckout())
	if err != nil {
		return h.errorEnvelope(err)
	}
	if res.RequiresAction {
		return http.StatusOK, envelope{
			Message:           "Additional payment authentication required",
			RequiresAction:    true,
			ContinuationToken: res.ContinuationToken,
		}
	}
	return http.StatusCreated, envelope{
		Success: true,
		Message: "Order placed successfully!",
		Data:    newOrderDTO(res.Order),
	}
}

// recordOutcome фиксирует исход оформления под ключом идемпотентности.
// Недоступность шлюза не фиксируется: там ничего необратимого не произошло,
// и повтор должен выполнить оформление заново. Отказ и расхождение после
// списания, напротив, терминальны: их повтор отдаёт сохранённый ответ
// и не создаёт второго списания.
func (h *Handler) recordOutcome(key string, status int, resp envelope) {
	if status == http.StatusBadGateway {
		h.guard.Abort(key)
		return
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		h.logger.WithError(err).Error("failed to encode idempotent response")
		h.guard.Abort(key)
		return
	}
	if status < http.StatusBadRequest {
		h.guard.Complete(key, status, payload)
		return
	}
	h.guard.Fail(key, status, payload)
}

// replay отдаёт сохранённый ответ повторной попытки без обращения к сервисам.
func (h *Handler) replay(w http.ResponseWriter, stored *idempotency.StoredResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(stored.HTTPStatus)
	if _, err := w.Write(stored.Body); err != nil {
		h.logger.WithError(err).Warn("failed to write replayed response")
	}
}

// orderByNumber отдаёт заказ по публичному номеру.
// @Summary Get order by number
// @Produce json
// @Param orderNumber path string true "Order number"
// @Success 200 {object} envelope
// @Router /api/orders/{orderNumber} [get]
func (h *Handler) orderByNumber(w http.ResponseWriter, r *http.Request) {
	order, err := h.checkout.OrderByNumber(r.Context(), chi.URLParam(r, "orderNumber"))
	if err != nil {
		if domain.IsNotFound(err) {
			h.writeJSON(w, http.StatusNotFound, envelope{Message: "Order not found"})
			return
		}
		h.respondError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, envelope{Success: true, Data: newOrderDTO(order)})
}

// orderByID отдаёт заказ по внутреннему идентификатору. Идентификатор
// проверяется до обращения к хранилищу.
// @Summary Get order by id
// @Produce json
// @Param id path string true "Order ID"
// @Success 200 {object} envelope
// @Router /api/orders/id/{id} [get]
func (h *Handler) orderByID(w http.ResponseWriter, r *http.Request) {
	order, err := h.checkout.Order(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidObjectID):
			h.writeJSON(w, http.StatusBadRequest, envelope{Message: "Invalid order id format"})
		case domain.IsNotFound(err):
			h.writeJSON(w, http.StatusNotFound, envelope{Message: "Order not found"})
		default:
			h.respondError(w, err)
		}
		return
	}
	h.writeJSON(w, http.StatusOK, envelope{Success: true, Data: newOrderDTO(order)})
}

// submitContact принимает обращение с формы на сайте.
// @Summary Submit contact enquiry
// @Accept json
// @Produce json
// @Param contact body contactRequest true "Contact enquiry"
// @Success 200 {object} envelope
// @Router /api/contact [post]
func (h *Handler) submitContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if !h.decode(w, r, &req) {
		return
	}

	contact, err := h.enquiry.Submit(r.Context(), enquiry.Request{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Address:  req.Address,
		Query:    req.Query,
		ClientIP: clientIP(r),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Thank you for contacting us! We'll get back to you soon.",
		Data: contactReceiptDTO{
			ContactNumber: contact.Reference,
			SubmittedAt:   contact.CreatedAt,
		},
	})
}

// subscribeNewsletter добавляет адрес в рассылку галереи.
// @Summary Subscribe to newsletter
// @Accept json
// @Produce json
// @Param subscription body newsletterRequest true "Subscription"
// @Success 200 {object} envelope
// @Router /api/newsletter/subscribe [post]
func (h *Handler) subscribeNewsletter(w http.ResponseWriter, r *http.Request) {
	var req newsletterRequest
	if !h.decode(w, r, &req) {
		return
	}

	sub, err := h.enquiry.Subscribe(r.Context(), req.Email)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Successfully subscribed to newsletter!",
		Data: subscriptionDTO{
			Email:        sub.Email,
			SubscribedAt: sub.SubscribedAt,
		},
	})
}

// errorEnvelope переводит доменную ошибку в статус и конверт ответа.
// Бизнес-исходы получают говорящие сообщения, внутренние детали и
// идентификаторы намерений наружу не выходят.
func (h *Handler) errorEnvelope(err error) (int, envelope) {
	if invalid, ok := domain.AsValidation(err); ok {
		return http.StatusUnprocessableEntity, envelope{Message: "Invalid request", Errors: invalid.Messages()}
	}
	if conflict, ok := domain.AsInventoryConflict(err); ok {
		return http.StatusBadRequest, envelope{Message: "Some items are no longer available", UnavailableItems: conflict.ItemIDs}
	}
	if decline, ok := domain.AsDecline(err); ok {
		return http.StatusBadRequest, envelope{Message: "Payment was declined", Reason: decline.Reason}
	}
	if _, ok := domain.AsReconciliation(err); ok {
		return http.StatusInternalServerError, envelope{Message: "Your payment was received but the order could not be confirmed. Please contact support."}
	}

	switch {
	case errors.Is(err, domain.ErrPaymentGatewayUnavailable):
		return http.StatusBadGateway, envelope{Message: "Payment gateway unavailable, please try again later"}
	case errors.Is(err, domain.ErrTooManyRequests):
		return http.StatusTooManyRequests, envelope{Message: "Too many requests, please try again later"}
	case errors.Is(err, domain.ErrAlreadySubscribed):
		return http.StatusConflict, envelope{Message: "This email is already subscribed to our newsletter"}
	case errors.Is(err, domain.ErrInvalidObjectID):
		return http.StatusBadRequest, envelope{Message: "Invalid id format"}
	case domain.IsNotFound(err):
		return http.StatusNotFound, envelope{Message: "Not found"}
	}

	h.logger.WithError(err).Error("request failed")
	return http.StatusInternalServerError, envelope{Message: "Internal server error"}
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	status, resp := h.errorEnvelope(err)
	h.writeJSON(w, status, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.WithError(err).Warn("failed to write response")
	}
}

// decode читает JSON-тело запроса. При ошибке сам отвечает 400 и
// возвращает false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, envelope{Message: "Request body is not valid JSON"})
		return false
	}
	return true
}

// clientIP возвращает адрес клиента без порта. RealIP уже подставил
// значение из заголовков прокси, если они есть.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
