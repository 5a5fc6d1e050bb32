package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// errNotConnected возвращается методами Store, если Open ещё не выполнялся
// или подключение уже закрыто.
var errNotConnected = errors.New("postgres store is not connected")

// Профиль нагрузки галереи — редкие всплески при публикации новых картин,
// поэтому пул небольшой, но с долгоживущими соединениями.
const (
	poolMaxOpen     = 16
	poolMaxIdle     = 8
	poolMaxLifetime = time.Hour
	poolMaxIdleTime = 10 * time.Minute
	dialTimeout     = 5 * time.Second
)

// Store владеет пулом соединений PostgreSQL; все репозитории пакета
// работают поверх него.
type Store struct {
	db *sql.DB
}

// Open подключается по DSN и сразу пингует базу: сервис должен падать
// на старте, а не на первом запросе покупателя.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	db.SetMaxOpenConns(poolMaxOpen)
	db.SetMaxIdleConns(poolMaxIdle)
	db.SetConnMaxLifetime(poolMaxLifetime)
	db.SetConnMaxIdleTime(poolMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres unreachable: %w", err)
	}

	return &Store{db: db}, nil
}

// DB отдаёт пул для мест, где нужен прямой SQL-доступ.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping сообщает, живо ли подключение. Используется health-проверкой.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errNotConnected
	}

	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// EnsureSchema догоняет схему до актуальной версии при старте сервиса.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.MigrateUp(ctx, 0)
}

// Close освобождает пул. Допустимо вызывать на nil-указателе.
func (s *Store) Close() error {
	if s != nil && s.db != nil {
		return s.db.Close()
	}
	return nil
}
