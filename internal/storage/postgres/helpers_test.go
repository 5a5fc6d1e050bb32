package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/aurabyshenoi/gallery/internal/domain"
)

// fakeResult подменяет sql.Result, чтобы гонять requireAffected без базы.
type fakeResult struct {
	affected int64
	err      error
}

func (r fakeResult) LastInsertId() (int64, error) { return 0, errors.New("not supported") }
func (r fakeResult) RowsAffected() (int64, error) { return r.affected, r.err }

func TestIsUniqueViolation(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "unique code", err: &pgconn.PgError{Code: uniqueViolationCode}, want: true},
		{name: "wrapped unique code", err: fmt.Errorf("create: %w", &pgconn.PgError{Code: uniqueViolationCode}), want: true},
		{name: "other pg code", err: &pgconn.PgError{Code: "22001"}, want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
		{name: "nil", err: nil, want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isUniqueViolation(tc.err); got != tc.want {
				t.Fatalf("isUniqueViolation(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestRequireAffected(t *testing.T) {
	if err := requireAffected(fakeResult{affected: 1}, domain.ErrOrderNotFound); err != nil {
		t.Fatalf("one touched row must pass: %v", err)
	}
	if err := requireAffected(fakeResult{affected: 0}, domain.ErrOrderNotFound); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("zero rows must map to the sentinel, got %v", err)
	}

	glitch := errors.New("driver glitch")
	if err := requireAffected(fakeResult{err: glitch}, domain.ErrOrderNotFound); !errors.Is(err, glitch) {
		t.Fatalf("driver error must be kept in the chain, got %v", err)
	}
}

func TestRunInTxRollsBackOnError(t *testing.T) {
	store := openIntegrationStore(t)

	forced := errors.New("forced failure")
	err := runInTx(context.Background(), store.DB(), func(tx *sql.Tx) error {
		_, execErr := tx.Exec(
			`INSERT INTO newsletter_subscribers (id, email, subscribed_at) VALUES ('tx-check', 'tx@example.com', NOW())`,
		)
		if execErr != nil {
			return execErr
		}
		return forced
	})
	if !errors.Is(err, forced) {
		t.Fatalf("callback error must surface, got %v", err)
	}

	var count int
	if err := store.DB().QueryRow(`SELECT COUNT(*) FROM newsletter_subscribers`).Scan(&count); err != nil {
		t.Fatalf("count subscribers: %v", err)
	}
	if count != 0 {
		t.Fatalf("rollback left %d rows behind", count)
	}
}
