package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/aurabyshenoi/gallery/internal/cache"
	"github.com/aurabyshenoi/gallery/internal/domain"
	"github.com/aurabyshenoi/gallery/internal/oid"
	"github.com/aurabyshenoi/gallery/internal/service/catalog"
	"github.com/aurabyshenoi/gallery/internal/service/checkout"
	"github.com/aurabyshenoi/gallery/internal/service/enquiry"
	"github.com/aurabyshenoi/gallery/internal/service/httpapi"
	"github.com/aurabyshenoi/gallery/internal/service/idempotency"
	"github.com/aurabyshenoi/gallery/internal/service/mailer"
	"github.com/aurabyshenoi/gallery/internal/service/notify"
	"github.com/aurabyshenoi/gallery/internal/service/payment"
	"github.com/aurabyshenoi/gallery/internal/service/sequence"
	"github.com/aurabyshenoi/gallery/internal/storage/memory"
)

// StorefrontLifecycleSuite прогоняет полный жизненный цикл витрины через
// публичный HTTP API: хранилища в памяти, mock-шлюз оплаты и журнальный
// почтовый релей вместо внешних сервисов.
type StorefrontLifecycleSuite struct {
	suite.Suite

	items    domain.ItemRepository
	orders   domain.OrderRepository
	contacts domain.ContactRepository

	relay     *mailer.MockRelay
	scheduler *notify.Scheduler
	server    *httptest.Server
}

func (suite *StorefrontLifecycleSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel) // Ниже Warn в тестах только шум.
	logger := baseLogger.WithField("component", "storefront-suite")

	suite.items = memory.NewItemRepository()
	suite.orders = memory.NewOrderRepository()
	suite.contacts = memory.NewContactRepository()
	newsletters := memory.NewNewsletterRepository()
	sequencer := sequence.NewSequencer(memory.NewSequenceRepository())

	suite.relay = mailer.NewMockRelay(logger)
	suite.scheduler = notify.NewScheduler(suite.relay, map[string]notify.StateStore{
		notify.KindOrder:   suite.orders,
		notify.KindContact: suite.contacts,
	}, notify.WithLogger(logger))

	memCache := cache.NewMemory()
	catalogSvc := catalog.NewService(suite.items,
		catalog.WithCache(memCache),
		catalog.WithLogger(logger),
	)
	checkoutSvc := checkout.NewService(suite.items, suite.orders, payment.NewMockGateway(), sequencer,
		checkout.WithScheduler(suite.scheduler),
		checkout.WithListingCache(catalogSvc),
		checkout.WithLogger(logger),
	)
	enquirySvc := enquiry.NewService(suite.contacts, newsletters, sequencer,
		enquiry.WithScheduler(suite.scheduler),
		enquiry.WithRateLimiter(memCache, 5, 60),
		enquiry.WithLogger(logger),
	)

	api := httpapi.NewHandler(catalogSvc, checkoutSvc, enquirySvc,
		httpapi.WithLogger(logger),
		httpapi.WithGuard(idempotency.NewGuard(memory.NewIdempotencyRepository())),
	)
	suite.server = httptest.NewServer(api.Routes())
}

func (suite *StorefrontLifecycleSuite) TearDownTest() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(suite.T(), suite.scheduler.Shutdown(ctx))
	suite.server.Close()
}

func (suite *StorefrontLifecycleSuite) TestSuccessfulOrderLifecycle() {
	tide := suite.seedPainting("Morning Tide", 180, false)
	harbour := suite.seedPainting("Quiet Harbour", 140, false)
	amber := suite.seedPainting("Amber Field", 620, true)

	// 1. Витрина показывает все работы, фильтр featured сужает выборку
	status, resp := suite.getJSON("/api/paintings")
	require.Equal(suite.T(), http.StatusOK, status)
	require.True(suite.T(), resp.Success)
	var listing []paintingData
	suite.decodeData(resp, &listing)
	require.Len(suite.T(), listing, 3)

	status, resp = suite.getJSON("/api/paintings?featured=true")
	require.Equal(suite.T(), http.StatusOK, status)
	suite.decodeData(resp, &listing)
	require.Len(suite.T(), listing, 1)
	require.Equal(suite.T(), amber, listing[0].ID)

	// 2. Расчёт корзины: международный тариф и бесплатная доставка от порога
	status, _, resp = suite.postJSON("/api/orders/validate", map[string]any{
		"itemIds": []string{tide, harbour},
		"country": "Canada",
	}, "")
	require.Equal(suite.T(), http.StatusOK, status)
	var quote quoteData
	suite.decodeData(resp, &quote)
	require.Equal(suite.T(), int64(320), quote.Subtotal)
	require.Equal(suite.T(), int64(35), quote.ShippingCost)
	require.Equal(suite.T(), int64(355), quote.Total)

	status, _, resp = suite.postJSON("/api/orders/validate", map[string]any{
		"itemIds": []string{amber},
		"country": "Canada",
	}, "")
	require.Equal(suite.T(), http.StatusOK, status)
	suite.decodeData(resp, &quote)
	require.Equal(suite.T(), int64(0), quote.ShippingCost)
	require.Equal(suite.T(), int64(620), quote.Total)

	// 3. Оформляем заказ с ключом идемпотентности
	payload := orderPayload([]string{tide, harbour}, "United States", "pm_card_visa")
	status, firstBody, resp := suite.postJSON("/api/orders", payload, "it-order-1")
	require.Equal(suite.T(), http.StatusCreated, status)
	require.True(suite.T(), resp.Success)
	require.Equal(suite.T(), "Order placed successfully!", resp.Message)

	var order orderData
	suite.decodeData(resp, &order)
	require.Regexp(suite.T(), `^ORD-\d{8}-0001$`, order.OrderNumber)
	require.Equal(suite.T(), "completed", order.Payment.Status)
	require.Equal(suite.T(), "pending", order.Status)
	require.Equal(suite.T(), int64(320), order.Pricing.Subtotal)
	require.Equal(suite.T(), int64(15), order.Pricing.ShippingCost)
	require.Equal(suite.T(), int64(335), order.Pricing.Total)
	require.Len(suite.T(), order.Items, 2)
	require.Equal(suite.T(), tide, order.Items[0].ItemID)
	require.Equal(suite.T(), harbour, order.Items[1].ItemID)

	// 4. Проданные работы уходят с витрины, остальные остаются в продаже
	require.False(suite.T(), suite.paintingAvailable(tide))
	require.False(suite.T(), suite.paintingAvailable(harbour))
	require.True(suite.T(), suite.paintingAvailable(amber))

	// 5. Заказ доступен по публичному номеру и по идентификатору
	status, resp = suite.getJSON("/api/orders/" + order.OrderNumber)
	require.Equal(suite.T(), http.StatusOK, status)
	var byNumber orderData
	suite.decodeData(resp, &byNumber)
	require.Equal(suite.T(), order.ID, byNumber.ID)

	status, resp = suite.getJSON("/api/orders/id/" + order.ID)
	require.Equal(suite.T(), http.StatusOK, status)
	var byID orderData
	suite.decodeData(resp, &byID)
	require.Equal(suite.T(), order.OrderNumber, byID.OrderNumber)

	// 6. Повтор с тем же ключом отдаёт сохранённый ответ. Повторное
	// оформление не прошло бы: работы уже проданы, ответ был бы конфликтом.
	status, replayBody, _ := suite.postJSON("/api/orders", payload, "it-order-1")
	require.Equal(suite.T(), http.StatusCreated, status)
	require.JSONEq(suite.T(), string(firstBody), string(replayBody))

	// 7. Тот же ключ с другой корзиной отклоняется
	status, _, resp = suite.postJSON("/api/orders", orderPayload([]string{amber}, "Canada", "pm_card_visa"), "it-order-1")
	require.Equal(suite.T(), http.StatusConflict, status)
	require.Equal(suite.T(), "Idempotency key was used with a different request", resp.Message)

	// 8. Подтверждение уходит покупателю и фиксируется на заказе
	state := suite.waitForOrderNotification(order.ID, 5*time.Second)
	require.Equal(suite.T(), 1, state.Attempts)
	mail, ok := suite.findMail(fmt.Sprintf("Order %s confirmed", order.OrderNumber))
	require.True(suite.T(), ok, "confirmation mail was not delivered")
	require.Equal(suite.T(), "priya@example.com", mail.To)
}

func (suite *StorefrontLifecycleSuite) TestDeclinedPaymentKeepsPaintingOnSale() {
	painting := suite.seedPainting("Winter Pines", 180, false)

	// 1. Шлюз отклоняет оплату: заказ не создаётся, причина уходит клиенту
	payload := orderPayload([]string{painting}, "Canada", payment.MethodRefDeclined)
	status, firstBody, resp := suite.postJSON("/api/orders", payload, "it-declined-1")
	require.Equal(suite.T(), http.StatusBadRequest, status)
	require.False(suite.T(), resp.Success)
	require.Equal(suite.T(), "Payment was declined", resp.Message)
	require.Equal(suite.T(), "card_declined", resp.Reason)

	// 2. Резерв снят, работа осталась в продаже
	require.True(suite.T(), suite.paintingAvailable(painting))

	// 3. Отказ терминален: повтор отдаёт сохранённый ответ
	status, replayBody, _ := suite.postJSON("/api/orders", payload, "it-declined-1")
	require.Equal(suite.T(), http.StatusBadRequest, status)
	require.JSONEq(suite.T(), string(firstBody), string(replayBody))

	// 4. Новая попытка выкупает работу. Номер 0002 подтверждает, что
	// неудавшееся оформление заняло ровно один номер: повтор шага 3
	// не доходил до оформления.
	status, _, resp = suite.postJSON("/api/orders", orderPayload([]string{painting}, "Canada", "pm_card_visa"), "it-declined-2")
	require.Equal(suite.T(), http.StatusCreated, status)
	var order orderData
	suite.decodeData(resp, &order)
	require.Regexp(suite.T(), `^ORD-\d{8}-0002$`, order.OrderNumber)
	require.False(suite.T(), suite.paintingAvailable(painting))
}

func (suite *StorefrontLifecycleSuite) TestRequiresActionLeavesNothingBehind() {
	painting := suite.seedPainting("Harvest Moon", 260, false)

	// 1. Шлюз требует подтверждения: заказа нет, клиент получает токен
	payload := orderPayload([]string{painting}, "Canada", payment.MethodRefRequires3DS)
	status, firstBody, resp := suite.postJSON("/api/orders", payload, "it-3ds-1")
	require.Equal(suite.T(), http.StatusOK, status)
	require.False(suite.T(), resp.Success)
	require.True(suite.T(), resp.RequiresAction)
	require.NotEmpty(suite.T(), resp.ContinuationToken)

	// 2. Резерв снят до завершения аутентификации
	require.True(suite.T(), suite.paintingAvailable(painting))

	// 3. Повтор отдаёт тот же токен: новое обращение к шлюзу выдало бы
	// новое намерение с другим секретом
	status, replayBody, _ := suite.postJSON("/api/orders", payload, "it-3ds-1")
	require.Equal(suite.T(), http.StatusOK, status)
	require.JSONEq(suite.T(), string(firstBody), string(replayBody))
}

func (suite *StorefrontLifecycleSuite) TestGatewayOutageAllowsRetryWithSameKey() {
	painting := suite.seedPainting("Salt Meadow", 210, false)

	// 1. Недоступный шлюз: оформление не состоялось, резерв снят
	status, _, resp := suite.postJSON("/api/orders", orderPayload([]string{painting}, "Canada", payment.MethodRefGatewayDown), "it-outage-1")
	require.Equal(suite.T(), http.StatusBadGateway, status)
	require.Equal(suite.T(), "Payment gateway unavailable, please try again later", resp.Message)
	require.True(suite.T(), suite.paintingAvailable(painting))

	// 2. Сбой шлюза не занимает ключ: повтор с тем же ключом и другим
	// способом оплаты выполняет оформление заново
	status, _, resp = suite.postJSON("/api/orders", orderPayload([]string{painting}, "Canada", "pm_card_visa"), "it-outage-1")
	require.Equal(suite.T(), http.StatusCreated, status)
	require.True(suite.T(), resp.Success)
	var order orderData
	suite.decodeData(resp, &order)
	require.Regexp(suite.T(), `^ORD-\d{8}-0002$`, order.OrderNumber)
	require.False(suite.T(), suite.paintingAvailable(painting))
}

func (suite *StorefrontLifecycleSuite) TestCartConflictListsEveryUnavailablePainting() {
	sold := suite.seedPainting("Evening Ferry", 300, false)
	ghost := oid.New()
	onSale := suite.seedPainting("Blue Interior", 150, false)

	reserved, err := suite.items.MarkUnavailable([]string{sold})
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), []string{sold}, reserved)

	// Конфликт перечисляет все проблемные позиции в порядке запроса;
	// доступная работа в список не попадает и остаётся в продаже
	status, _, resp := suite.postJSON("/api/orders", orderPayload([]string{sold, ghost, onSale}, "Canada", "pm_card_visa"), "it-conflict-1")
	require.Equal(suite.T(), http.StatusBadRequest, status)
	require.Equal(suite.T(), "Some items are no longer available", resp.Message)
	require.Equal(suite.T(), []string{sold, ghost}, resp.UnavailableItems)
	require.True(suite.T(), suite.paintingAvailable(onSale))

	// Расчёт корзины сообщает о том же конфликте без побочных эффектов
	status, _, resp = suite.postJSON("/api/orders/validate", map[string]any{
		"itemIds": []string{sold, ghost, onSale},
		"country": "Canada",
	}, "")
	require.Equal(suite.T(), http.StatusBadRequest, status)
	require.Equal(suite.T(), []string{sold, ghost}, resp.UnavailableItems)
}

func (suite *StorefrontLifecycleSuite) TestContactEnquiryLifecycle() {
	// 1. Обращение принимается и получает номер CNT
	status, _, resp := suite.postJSON("/api/contact", map[string]any{
		"name":    "Dmitri Volkov",
		"email":   "dmitri@example.com",
		"phone":   "+1 604 555 0142",
		"address": "8 Granville Street, Vancouver",
		"query":   "Is the artist available for a commissioned seascape?",
	}, "")
	require.Equal(suite.T(), http.StatusOK, status)
	require.True(suite.T(), resp.Success)
	require.Equal(suite.T(), "Thank you for contacting us! We'll get back to you soon.", resp.Message)

	var receipt contactData
	suite.decodeData(resp, &receipt)
	require.Regexp(suite.T(), `^CNT-\d{8}-0001$`, receipt.ContactNumber)

	// 2. Подтверждение уходит на почту и фиксируется на обращении
	suite.waitForContactsNotified(5 * time.Second)
	mail, ok := suite.findMail(fmt.Sprintf("Enquiry %s received", receipt.ContactNumber))
	require.True(suite.T(), ok, "enquiry confirmation was not delivered")
	require.Equal(suite.T(), "dmitri@example.com", mail.To)

	// 3. Обращение без текста отклоняется с перечнем замечаний
	status, _, resp = suite.postJSON("/api/contact", map[string]any{
		"name":  "Dmitri Volkov",
		"email": "dmitri@example.com",
	}, "")
	require.Equal(suite.T(), http.StatusUnprocessableEntity, status)
	require.Equal(suite.T(), "Invalid request", resp.Message)
	require.NotEmpty(suite.T(), resp.Errors)
}

func (suite *StorefrontLifecycleSuite) TestNewsletterSubscription() {
	status, _, resp := suite.postJSON("/api/newsletter/subscribe", map[string]any{
		"email": "Dmitri@Example.com",
	}, "")
	require.Equal(suite.T(), http.StatusOK, status)
	require.Equal(suite.T(), "Successfully subscribed to newsletter!", resp.Message)

	var sub subscriptionData
	suite.decodeData(resp, &sub)
	require.Equal(suite.T(), "dmitri@example.com", sub.Email) // Адрес нормализован

	// Повторная подписка того же адреса в другом регистре отклоняется
	status, _, resp = suite.postJSON("/api/newsletter/subscribe", map[string]any{
		"email": "DMITRI@example.com",
	}, "")
	require.Equal(suite.T(), http.StatusConflict, status)
	require.Equal(suite.T(), "This email is already subscribed to our newsletter", resp.Message)
}

// Ниже типы ответов и хелперы сьюта.

// apiResponse повторяет конверт ответов публичного API.
type apiResponse struct {
	Success           bool            `json:"success"`
	Message           string          `json:"message"`
	RequiresAction    bool            `json:"requiresAction"`
	ContinuationToken string          `json:"continuationToken"`
	Reason            string          `json:"reason"`
	Errors            []string        `json:"errors"`
	UnavailableItems  []string        `json:"unavailableItems"`
	Data              json.RawMessage `json:"data"`
}

type paintingData struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Price     int64  `json:"price"`
	Available bool   `json:"available"`
	Featured  bool   `json:"featured"`
}

type quoteData struct {
	Items        []paintingData `json:"items"`
	Subtotal     int64          `json:"subtotal"`
	ShippingCost int64          `json:"shippingCost"`
	Total        int64          `json:"total"`
}

type orderData struct {
	ID          string `json:"id"`
	OrderNumber string `json:"orderNumber"`
	Items       []struct {
		ItemID string `json:"itemId"`
		Title  string `json:"title"`
		Price  int64  `json:"price"`
	} `json:"items"`
	Pricing struct {
		Subtotal     int64 `json:"subtotal"`
		ShippingCost int64 `json:"shippingCost"`
		Total        int64 `json:"total"`
	} `json:"pricing"`
	Payment struct {
		Status string `json:"status"`
	} `json:"payment"`
	Status string `json:"status"`
}

type contactData struct {
	ContactNumber string `json:"contactNumber"`
}

type subscriptionData struct {
	Email string `json:"email"`
}

// orderPayload собирает тело запроса оформления заказа.
func orderPayload(itemIDs []string, country, methodRef string) map[string]any {
	return map[string]any{
		"itemIds": itemIDs,
		"customer": map[string]any{
			"name":  "Priya Raman",
			"email": "priya@example.com",
			"phone": "+1 416 555 0199",
		},
		"shipping": map[string]any{
			"address":    "12 Harbourfront Lane",
			"city":       "Toronto",
			"postalCode": "M5V 1A1",
			"country":    country,
		},
		"paymentMethodRef": methodRef,
	}
}

// seedPainting кладёт доступную работу в каталог и возвращает её идентификатор.
func (suite *StorefrontLifecycleSuite) seedPainting(title string, price int64, featured bool) string {
	id := oid.New()
	now := time.Now().UTC()
	err := suite.items.Create(domain.Item{
		ID:        id,
		Title:     title,
		Price:     price,
		ImageURL:  "https://cdn.example.com/paintings/" + id + ".jpg",
		Available: true,
		Featured:  featured,
		CreatedAt: now,
		UpdatedAt: now,
	})
	require.NoError(suite.T(), err)
	return id
}

// paintingAvailable читает доступность работы через публичный API.
func (suite *StorefrontLifecycleSuite) paintingAvailable(id string) bool {
	status, resp := suite.getJSON("/api/paintings/" + id)
	require.Equal(suite.T(), http.StatusOK, status)
	var painting paintingData
	suite.decodeData(resp, &painting)
	return painting.Available
}

func (suite *StorefrontLifecycleSuite) getJSON(path string) (int, apiResponse) {
	resp, err := http.Get(suite.server.URL + path)
	require.NoError(suite.T(), err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(suite.T(), err)

	var parsed apiResponse
	require.NoError(suite.T(), json.Unmarshal(raw, &parsed))
	return resp.StatusCode, parsed
}

// postJSON отправляет запрос и возвращает статус, сырое тело ответа и
// разобранный конверт. Сырое тело нужно для сверки повторов байт в байт.
func (suite *StorefrontLifecycleSuite) postJSON(path string, payload any, idempotencyKey string) (int, []byte, apiResponse) {
	body, err := json.Marshal(payload)
	require.NoError(suite.T(), err)

	req, err := http.NewRequest(http.MethodPost, suite.server.URL+path, bytes.NewReader(body))
	require.NoError(suite.T(), err)
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(suite.T(), err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(suite.T(), err)

	var parsed apiResponse
	require.NoError(suite.T(), json.Unmarshal(raw, &parsed))
	return resp.StatusCode, raw, parsed
}

// decodeData разбирает поле data конверта в указанную структуру.
func (suite *StorefrontLifecycleSuite) decodeData(resp apiResponse, target any) {
	require.NotEmpty(suite.T(), resp.Data, "envelope data is empty")
	require.NoError(suite.T(), json.Unmarshal(resp.Data, target))
}

// waitForOrderNotification дожидается доставки подтверждения заказа.
func (suite *StorefrontLifecycleSuite) waitForOrderNotification(orderID string, timeout time.Duration) domain.NotificationState {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		order, err := suite.orders.Get(orderID)
		if err == nil && order.Notification.Sent {
			return order.Notification
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Если не дождались, показываем текущее состояние
	order, _ := suite.orders.Get(orderID)
	suite.T().Fatalf("order %s notification not delivered within %v, state: %+v",
		orderID, timeout, order.Notification)
	return domain.NotificationState{}
}

// waitForContactsNotified дожидается, пока у всех обращений будет
// зафиксирована доставка подтверждения.
func (suite *StorefrontLifecycleSuite) waitForContactsNotified(timeout time.Duration) {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		pending, err := suite.contacts.ListUnnotified(time.Now().UTC().Add(time.Hour), 10)
		if err == nil && len(pending) == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	suite.T().Fatalf("contact notifications still pending after %v", timeout)
}

// findMail ищет доставленное письмо по теме.
func (suite *StorefrontLifecycleSuite) findMail(subject string) (domain.MailMessage, bool) {
	for _, msg := range suite.relay.Sent() {
		if msg.Subject == subject {
			return msg, true
		}
	}
	return domain.MailMessage{}, false
}

func TestStorefrontLifecycle(t *testing.T) {
	suite.Run(t, new(StorefrontLifecycleSuite))
}
