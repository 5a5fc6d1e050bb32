package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aurabyshenoi/gallery/internal/domain"
)

type itemRepository struct {
	db *sql.DB
}

// NewItemRepository возвращает каталог картин, читающий из PostgreSQL.
func NewItemRepository(store *Store) domain.ItemRepository {
	return &itemRepository{db: store.DB()}
}

func (r *itemRepository) Create(item domain.Item) error {
	ctx, cancel := opCtx()
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO items (
			id, title, description, price, image_url, available, featured, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		item.ID, item.Title, item.Description, item.Price, item.ImageURL,
		item.Available, item.Featured, item.Version, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrItemAlreadyExists
		}
		return fmt.Errorf("insert item: %w", err)
	}

	return nil
}

func (r *itemRepository) Get(id string) (domain.Item, error) {
	ctx, cancel := opCtx()
	defer cancel()

	var item domain.Item
	err := r.db.QueryRowContext(ctx, `
		SELECT id, title, description, price, image_url, available, featured, version, created_at, updated_at
		FROM items
		WHERE id = $1
	`, id).Scan(
		&item.ID, &item.Title, &item.Description, &item.Price, &item.ImageURL,
		&item.Available, &item.Featured, &item.Version, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Item{}, domain.ErrItemNotFound
		}
		return domain.Item{}, fmt.Errorf("select item: %w", err)
	}

	return item, nil
}

func (r *itemRepository) GetMany(ids []string) ([]domain.Item, error) {
	if len(ids) == 0 {
		return []domain.Item{}, nil
	}

	ctx, cancel := opCtx()
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, description, price, image_url, available, featured, version, created_at, updated_at
		FROM items
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("select items by ids: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]domain.Item, len(ids))
	for rows.Next() {
		var item domain.Item
		if err := rows.Scan(
			&item.ID, &item.Title, &item.Description, &item.Price, &item.ImageURL,
			&item.Available, &item.Featured, &item.Version, &item.CreatedAt, &item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan item row: %w", err)
		}
		byID[item.ID] = item
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate item rows: %w", err)
	}

	// Результат собирается в порядке запрошенных идентификаторов;
	// отсутствующие не считаются ошибкой.
	result := make([]domain.Item, 0, len(ids))
	for _, id := range ids {
		if item, ok := byID[id]; ok {
			result = append(result, item)
		}
	}

	return result, nil
}

func (r *itemRepository) List(filter domain.ItemFilter) ([]domain.Item, error) {
	ctx, cancel := opCtx()
	defer cancel()

	query := `
		SELECT id, title, description, price, image_url, available, featured, version, created_at, updated_at
		FROM items
	`

	conds := make([]string, 0, 2)
	if filter.FeaturedOnly {
		conds = append(conds, "featured")
	}
	if filter.AvailableOnly {
		conds = append(conds, "available")
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT NULLIF($1, 0)"

	rows, err := r.db.QueryContext(ctx, query, filter.Limit)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Item, 0)
	for rows.Next() {
		var item domain.Item
		if err := rows.Scan(
			&item.ID, &item.Title, &item.Description, &item.Price, &item.ImageURL,
			&item.Available, &item.Featured, &item.Version, &item.CreatedAt, &item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan item row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate item rows: %w", err)
	}

	return items, nil
}

// MarkUnavailable помечает работы проданными одним условным UPDATE:
// затрагиваются только строки с available = TRUE на момент записи.
// Возвращает идентификаторы изменённых строк; расхождение с ids разбирает
// вызывающий код компенсацией в пределах возвращённого списка.
func (r *itemRepository) MarkUnavailable(ids []string) ([]string, error) {
	if len(ids) == 0 {
		return []string{}, nil
	}

	ctx, cancel := opCtx()
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		UPDATE items
		SET available = FALSE,
		    version = version + 1,
		    updated_at = $2
		WHERE id = ANY($1)
		  AND available = TRUE
		RETURNING id
	`, ids, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("mark items unavailable: %w", err)
	}
	defer rows.Close()

	reserved := make([]string, 0, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan reserved id: %w", err)
		}
		reserved = append(reserved, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reserved ids: %w", err)
	}

	return reserved, nil
}

func (r *itemRepository) MarkAvailable(ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	ctx, cancel := opCtx()
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		UPDATE items
		SET available = TRUE,
		    version = version + 1,
		    updated_at = $2
		WHERE id = ANY($1)
		  AND available = FALSE
	`, ids, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark items available: %w", err)
	}

	return nil
}

var _ domain.ItemRepository = (*itemRepository)(nil)
