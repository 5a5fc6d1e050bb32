package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// opTimeout ограничивает каждую операцию репозитория. Дольше пяти секунд
// запросы галереи не живут.
const opTimeout = 5 * time.Second

// uniqueViolationCode — SQLSTATE нарушения уникального ограничения.
const uniqueViolationCode = "23505"

// rowScanner покрывает *sql.Row и *sql.Rows, чтобы одна функция разбора
// обслуживала и точечные выборки, и списки.
type rowScanner interface {
	Scan(dest ...any) error
}

// opCtx открывает контекст с общим таймаутом операций репозиториев.
func opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), opTimeout)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// runInTx выполняет fn в транзакции: откат при ошибке, иначе фиксация.
func runInTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// requireAffected отдаёт missing, когда запрос не затронул ни одной строки.
func requireAffected(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return missing
	}
	return nil
}
