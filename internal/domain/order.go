package domain

import "time"

// OrderStatus описывает этап исполнения заказа после подтверждения оплаты.
type OrderStatus string

const (
	// OrderStatusPending означает, что заказ принят и ждёт обработки.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing означает, что заказ готовится к отправке.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped означает, что заказ передан в доставку.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered означает, что заказ получен покупателем.
	OrderStatusDelivered OrderStatus = "delivered"
)

// OrderItem хранит снимок купленной работы на момент оформления заказа.
// Последующие правки каталога на сохранённый заказ не влияют.
type OrderItem struct {
	// ItemID ссылается на исходную запись каталога.
	ItemID   string
	Title    string
	Price    int64
	ImageURL string
}

// Customer хранит контактные данные покупателя.
type Customer struct {
	Name  string
	Email string
	Phone string
}

// ShippingAddress описывает адрес доставки заказа.
type ShippingAddress struct {
	Address    string
	City       string
	PostalCode string
	Country    string
}

// Pricing хранит рассчитанную стоимость заказа в целых денежных единицах.
type Pricing struct {
	Subtotal     int64
	ShippingCost int64
	Total        int64
}

// Order агрегирует заказ галереи: снимок позиций, покупателя, доставку,
// оплату и состояние уведомления.
type Order struct {
	ID string
	// OrderNumber содержит публичный номер вида ORD-YYYYMMDD-NNNN.
	OrderNumber  string
	Items        []OrderItem
	Customer     Customer
	Shipping     ShippingAddress
	Pricing      Pricing
	Payment      Payment
	Status       OrderStatus
	Notification NotificationState
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.OrderNumber == "" {
		errs = append(errs, ErrOrderNumberRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.Customer.Name == "" {
		errs = append(errs, ErrCustomerNameRequired)
	}
	if o.Customer.Email == "" {
		errs = append(errs, ErrCustomerEmailRequired)
	}
	if o.Shipping.Country == "" {
		errs = append(errs, ErrCountryRequired)
	}
	if o.Pricing.ShippingCost < 0 {
		errs = append(errs, ErrAmountNegative)
	}

	// Сверяем сумму позиций с сохранённым subtotal и итогом.
	var calc int64
	for _, item := range o.Items {
		if item.ItemID == "" {
			errs = append(errs, ErrItemRefRequired)
		}
		if item.Price < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		calc += item.Price
	}
	if calc != o.Pricing.Subtotal {
		errs = append(errs, ErrSubtotalMismatch)
	}
	if o.Pricing.Subtotal+o.Pricing.ShippingCost != o.Pricing.Total {
		errs = append(errs, ErrTotalMismatch)
	}

	return errs
}

// ItemIDs возвращает идентификаторы каталожных записей заказа.
func (o *Order) ItemIDs() []string {
	ids := make([]string, 0, len(o.Items))
	for _, item := range o.Items {
		ids = append(ids, item.ItemID)
	}
	return ids
}
