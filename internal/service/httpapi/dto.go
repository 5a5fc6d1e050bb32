package httpapi

import (
	"time"

	"github.com/aurabyshenoi/gallery/internal/domain"
	"github.com/aurabyshenoi/gallery/internal/service/checkout"
)

// envelope — единый формат ответов API. Success и Message присутствуют всегда,
// остальные поля заполняются по исходу: Reason при отклонённом платеже,
// UnavailableItems при конфликте корзины, Errors при непрошедшей проверке полей.
type envelope struct {
	Success           bool     `json:"success"`
	Message           string   `json:"message,omitempty"`
	RequiresAction    bool     `json:"requiresAction,omitempty"`
	ContinuationToken string   `json:"continuationToken,omitempty"`
	Reason            string   `json:"reason,omitempty"`
	Errors            []string `json:"errors,omitempty"`
	UnavailableItems  []string `json:"unavailableItems,omitempty"`
	Data              any      `json:"data,omitempty"`
}

type orderRequest struct {
	ItemIDs          []string        `json:"itemIds"`
	Customer         customerPayload `json:"customer"`
	Shipping         shippingPayload `json:"shipping"`
	PaymentMethodRef string          `json:"paymentMethodRef"`
}

type customerPayload struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type shippingPayload struct {
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

func (r orderRequest) toCheckout() checkout.Request {
	return checkout.Request{
		ItemIDs: r.ItemIDs,
		Customer: domain.Customer{
			Name:  r.Customer.Name,
			Email: r.Customer.Email,
			Phone: r.Customer.Phone,
		},
		Shipping: domain.ShippingAddress{
			Address:    r.Shipping.Address,
			City:       r.Shipping.City,
			PostalCode: r.Shipping.PostalCode,
			Country:    r.Shipping.Country,
		},
		PaymentMethodRef: r.PaymentMethodRef,
	}
}

type validateOrderRequest struct {
	ItemIDs []string `json:"itemIds"`
	Country string   `json:"country"`
}

type contactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	Query   string `json:"query"`
}

type newsletterRequest struct {
	Email string `json:"email"`
}

type itemDTO struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Price       int64     `json:"price"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	Available   bool      `json:"available"`
	Featured    bool      `json:"featured"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func newItemDTO(item domain.Item) itemDTO {
	return itemDTO{
		ID:          item.ID,
		Title:       item.Title,
		Description: item.Description,
		Price:       item.Price,
		ImageURL:    item.ImageURL,
		Available:   item.Available,
		Featured:    item.Featured,
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
	}
}

func newItemDTOs(items []domain.Item) []itemDTO {
	out := make([]itemDTO, 0, len(items))
	for _, item := range items {
		out = append(out, newItemDTO(item))
	}
	return out
}

type quoteDTO struct {
	Items        []itemDTO `json:"items"`
	Subtotal     int64     `json:"subtotal"`
	ShippingCost int64     `json:"shippingCost"`
	Total        int64     `json:"total"`
}

func newQuoteDTO(quote checkout.Quote) quoteDTO {
	return quoteDTO{
		Items:        newItemDTOs(quote.Items),
		Subtotal:     quote.Pricing.Subtotal,
		ShippingCost: quote.Pricing.ShippingCost,
		Total:        quote.Pricing.Total,
	}
}

type orderItemDTO struct {
	ItemID   string `json:"itemId"`
	Title    string `json:"title"`
	Price    int64  `json:"price"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// paymentDTO отдаёт только статус оплаты: идентификатор платёжного
// намерения не покидает сервис.
type paymentDTO struct {
	Status string `json:"status"`
}

type pricingDTO struct {
	Subtotal     int64 `json:"subtotal"`
	ShippingCost int64 `json:"shippingCost"`
	Total        int64 `json:"total"`
}

type orderDTO struct {
	ID          string          `json:"id"`
	OrderNumber string          `json:"orderNumber"`
	Items       []orderItemDTO  `json:"items"`
	Customer    customerPayload `json:"customer"`
	Shipping    shippingPayload `json:"shipping"`
	Pricing     pricingDTO      `json:"pricing"`
	Payment     paymentDTO      `json:"payment"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

func newOrderDTO(order domain.Order) orderDTO {
	items := make([]orderItemDTO, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDTO{
			ItemID:   item.ItemID,
			Title:    item.Title,
			Price:    item.Price,
			ImageURL: item.ImageURL,
		})
	}

	return orderDTO{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		Items:       items,
		Customer: customerPayload{
			Name:  order.Customer.Name,
			Email: order.Customer.Email,
			Phone: order.Customer.Phone,
		},
		Shipping: shippingPayload{
			Address:    order.Shipping.Address,
			City:       order.Shipping.City,
			PostalCode: order.Shipping.PostalCode,
			Country:    order.Shipping.Country,
		},
		Pricing: pricingDTO{
			Subtotal:     order.Pricing.Subtotal,
			ShippingCost: order.Pricing.ShippingCost,
			Total:        order.Pricing.Total,
		},
		Payment:   paymentDTO{Status: string(order.Payment.Status)},
		Status:    string(order.Status),
		CreatedAt: order.CreatedAt,
		UpdatedAt: order.UpdatedAt,
	}
}

type contactReceiptDTO struct {
	ContactNumber string    `json:"contactNumber"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

type subscriptionDTO struct {
	Email        string    `json:"email"`
	SubscribedAt time.Time `json:"subscribedAt"`
}
