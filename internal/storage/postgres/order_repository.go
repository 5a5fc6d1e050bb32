package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aurabyshenoi/gallery/internal/domain"
)

// Колонки orders в порядке, общем для выборок и вставки.
const orderColumns = `
	id, order_number,
	customer_name, customer_email, customer_phone,
	ship_address, ship_city, ship_postal_code, ship_country,
	subtotal, shipping_cost, total,
	payment_status, payment_intent_id, status,
	notified, notified_at, notify_attempts, notify_last_error,
	created_at, updated_at`

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository возвращает репозиторий заказов поверх пула store.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Create(order domain.Order) error {
	ctx, cancel := opCtx()
	defer cancel()

	return runInTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO orders (`+orderColumns+`
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
				$15, $16, $17, $18, $19, $20, $21
			)`,
			order.ID, order.OrderNumber,
			order.Customer.Name, order.Customer.Email, order.Customer.Phone,
			order.Shipping.Address, order.Shipping.City, order.Shipping.PostalCode, order.Shipping.Country,
			order.Pricing.Subtotal, order.Pricing.ShippingCost, order.Pricing.Total,
			string(order.Payment.Status), order.Payment.IntentID, string(order.Status),
			order.Notification.Sent, order.Notification.SentAt, order.Notification.Attempts, order.Notification.LastError,
			order.CreatedAt, order.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrOrderAlreadyExists
			}
			return fmt.Errorf("insert order: %w", err)
		}
		return insertOrderItems(ctx, tx, order)
	})
}

// insertOrderItems пишет позиции заказа одним подготовленным выражением.
// Колонка position фиксирует порядок корзины.
func insertOrderItems(ctx context.Context, tx *sql.Tx, order domain.Order) error {
	if len(order.Items) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO order_items (order_id, position, item_id, title, price, image_url)
		VALUES ($1, $2, $3, $4, $5, $6)
	`)
	if err != nil {
		return fmt.Errorf("prepare order items: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, item := range order.Items {
		if _, err := stmt.ExecContext(ctx, order.ID, i, item.ItemID, item.Title, item.Price, item.ImageURL); err != nil {
			return fmt.Errorf("insert order item %d: %w", i, err)
		}
	}
	return nil
}

func (r *orderRepository) Get(id string) (domain.Order, error) {
	return r.fetchOne("id", id)
}

func (r *orderRepository) GetByNumber(number string) (domain.Order, error) {
	return r.fetchOne("order_number", number)
}

// fetchOne ищет заказ по одной из уникальных колонок и докладывает позиции.
func (r *orderRepository) fetchOne(column, value string) (domain.Order, error) {
	ctx, cancel := opCtx()
	defer cancel()

	row := r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE `+column+` = $1`, value)

	order, err := scanOrder(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.Order{}, domain.ErrOrderNotFound
	case err != nil:
		return domain.Order{}, fmt.Errorf("select order by %s: %w", column, err)
	}

	if order.Items, err = r.loadItems(ctx, order.ID); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// ListUnnotified отдаёт заказы без письма подтверждения, старейшие первыми.
// Порог createdBefore отсекает совсем свежие заказы, чьё письмо ещё в пути.
func (r *orderRepository) ListUnnotified(createdBefore time.Time, limit int) ([]domain.Order, error) {
	ctx, cancel := opCtx()
	defer cancel()

	if limit < 0 {
		limit = 0
	}

	// LIMIT NULLIF(..., 0): ноль означает выборку без ограничения.
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE NOT notified
		  AND created_at <= $1
		ORDER BY created_at, id
		LIMIT NULLIF($2, 0)
	`, createdBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list unnotified orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan unnotified order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read unnotified orders: %w", err)
	}

	for i := range orders {
		if orders[i].Items, err = r.loadItems(ctx, orders[i].ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *orderRepository) UpdateNotification(id string, state domain.NotificationState) error {
	ctx, cancel := opCtx()
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET notified = $2,
		    notified_at = $3,
		    notify_attempts = $4,
		    notify_last_error = $5,
		    updated_at = $6
		WHERE id = $1
	`, id, state.Sent, state.SentAt, state.Attempts, state.LastError, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update order notification: %w", err)
	}
	return requireAffected(res, domain.ErrOrderNotFound)
}

func (r *orderRepository) loadItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT item_id, title, price, image_url
		FROM order_items
		WHERE order_id = $1
		ORDER BY position
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("select items of order %s: %w", orderID, err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0, 4)
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ItemID, &it.Title, &it.Price, &it.ImageURL); err != nil {
			return nil, fmt.Errorf("scan item of order %s: %w", orderID, err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read items of order %s: %w", orderID, err)
	}
	return items, nil
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		o          domain.Order
		payStatus  string
		ordStatus  string
		notifiedAt sql.NullTime
	)

	if err := row.Scan(
		&o.ID, &o.OrderNumber,
		&o.Customer.Name, &o.Customer.Email, &o.Customer.Phone,
		&o.Shipping.Address, &o.Shipping.City, &o.Shipping.PostalCode, &o.Shipping.Country,
		&o.Pricing.Subtotal, &o.Pricing.ShippingCost, &o.Pricing.Total,
		&payStatus, &o.Payment.IntentID, &ordStatus,
		&o.Notification.Sent, &notifiedAt, &o.Notification.Attempts, &o.Notification.LastError,
		&o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}

	o.Payment.Status = domain.PaymentStatus(payStatus)
	o.Status = domain.OrderStatus(ordStatus)
	if notifiedAt.Valid {
		at := notifiedAt.Time
		o.Notification.SentAt = &at
	}
	return o, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
