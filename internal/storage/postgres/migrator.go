package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"
)

//go:embed sql/migrations/*.sql
var migrationsFS embed.FS

const (
	migrationsDir    = "sql/migrations"
	migrationLockKey = int64(420241207)
	lockWait         = 5 * time.Second
)

const ensureSchemaTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version    BIGINT PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// migration хранит пару up/down скриптов одной версии схемы.
type migration struct {
	version int64
	name    string
	up      string
	down    string
}

// MigrateUp применяет недостающие up-миграции по возрастанию версий.
// steps=0 означает «все доступные».
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.withMigrationLock(ctx, func(conn *sql.Conn) error {
		all, err := readMigrations(migrationsFS)
		if err != nil {
			return err
		}
		applied, err := appliedVersions(ctx, conn)
		if err != nil {
			return err
		}
		seen := make(map[int64]bool, len(applied))
		for _, v := range applied {
			seen[v] = true
		}

		done := 0
		for _, m := range all {
			if seen[m.version] {
				continue
			}
			if steps > 0 && done == steps {
				break
			}
			if err := m.apply(ctx, conn, false); err != nil {
				return err
			}
			done++
		}
		return nil
	})
}

// MigrateDown откатывает steps последних миграций. Значения steps<=0
// трактуются как один шаг, чтобы случайный вызов не снёс всю схему.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	return s.withMigrationLock(ctx, func(conn *sql.Conn) error {
		all, err := readMigrations(migrationsFS)
		if err != nil {
			return err
		}
		index := make(map[int64]migration, len(all))
		for _, m := range all {
			index[m.version] = m
		}

		applied, err := appliedVersions(ctx, conn)
		if err != nil {
			return err
		}
		if len(applied) > steps {
			applied = applied[len(applied)-steps:]
		}

		// От самой свежей версии к самой старой.
		for i := len(applied) - 1; i >= 0; i-- {
			m, ok := index[applied[i]]
			if !ok {
				return fmt.Errorf("no local migration for applied version %d", applied[i])
			}
			if err := m.apply(ctx, conn, true); err != nil {
				return err
			}
		}
		return nil
	})
}

// MigrationStatus возвращает максимальную применённую версию и число
// записей в schema_migrations.
func (s *Store) MigrationStatus(ctx context.Context) (version int64, applied int, err error) {
	err = s.withMigrationLock(ctx, func(conn *sql.Conn) error {
		row := conn.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(version), 0), COUNT(*) FROM schema_migrations`)
		if scanErr := row.Scan(&version, &applied); scanErr != nil {
			return fmt.Errorf("read schema_migrations: %w", scanErr)
		}
		return nil
	})
	return version, applied, err
}

// withMigrationLock берёт advisory-lock на выделенном соединении, создаёт
// таблицу версий и только потом пускает fn. Конкурентные реплики сервиса
// при этом выстраиваются в очередь вместо гонки за DDL.
func (s *Store) withMigrationLock(ctx context.Context, fn func(*sql.Conn) error) error {
	if s == nil || s.db == nil {
		return errNotConnected
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	lockCtx, cancel := context.WithTimeout(ctx, lockWait)
	defer cancel()
	if _, err := conn.ExecContext(lockCtx, `SELECT pg_advisory_lock($1)`, migrationLockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, migrationLockKey)
	}()

	if _, err := conn.ExecContext(ctx, ensureSchemaTable); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	return fn(conn)
}

// apply выполняет скрипт миграции и её учёт в schema_migrations одной
// транзакцией: полуприменённых версий не бывает.
func (m migration) apply(ctx context.Context, conn *sql.Conn, rollback bool) error {
	script := m.up
	record := `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`
	args := []any{m.version, m.name}
	if rollback {
		script = m.down
		record = `DELETE FROM schema_migrations WHERE version = $1`
		args = []any{m.version}
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migration %d_%s: begin: %w", m.version, m.name, err)
	}
	if _, err := tx.ExecContext(ctx, script); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("migration %d_%s: %w", m.version, m.name, err)
	}
	if _, err := tx.ExecContext(ctx, record, args...); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("migration %d_%s: bookkeeping: %w", m.version, m.name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migration %d_%s: commit: %w", m.version, m.name, err)
	}
	return nil
}

func appliedVersions(ctx context.Context, conn *sql.Conn) ([]int64, error) {
	rows, err := conn.QueryContext(ctx, `SELECT version FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("list applied versions: %w", err)
	}
	defer rows.Close()

	var versions []int64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan applied version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied versions: %w", err)
	}
	return versions, nil
}

// readMigrations собирает скрипты в отсортированный список, проверяя,
// что у каждой версии есть и up-, и down-половина.
func readMigrations(fsys fs.FS) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	byVersion := make(map[int64]*migration)
	for _, entry := range entries {
		base := entry.Name()
		version, name, up, err := parseMigrationName(base)
		if err != nil {
			return nil, err
		}

		body, err := fs.ReadFile(fsys, path.Join(migrationsDir, base))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", base, err)
		}
		script := strings.TrimSpace(string(body))
		if script == "" {
			return nil, fmt.Errorf("migration file %s is empty", base)
		}

		m := byVersion[version]
		if m == nil {
			m = &migration{version: version, name: name}
			byVersion[version] = m
		} else if m.name != name {
			return nil, fmt.Errorf("version %d has conflicting names %q and %q", version, m.name, name)
		}

		if up {
			if m.up != "" {
				return nil, fmt.Errorf("duplicate up script for version %d", version)
			}
			m.up = script
		} else {
			if m.down != "" {
				return nil, fmt.Errorf("duplicate down script for version %d", version)
			}
			m.down = script
		}
	}

	if len(byVersion) == 0 {
		return nil, fmt.Errorf("no migration files in %s", migrationsDir)
	}

	out := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.up == "" || m.down == "" {
			return nil, fmt.Errorf("migration %d_%s lacks up or down script", m.version, m.name)
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

// parseMigrationName разбирает имена вида 0001_init.up.sql.
func parseMigrationName(base string) (version int64, name string, up bool, err error) {
	var stem string
	switch {
	case strings.HasSuffix(base, ".up.sql"):
		up = true
		stem = strings.TrimSuffix(base, ".up.sql")
	case strings.HasSuffix(base, ".down.sql"):
		stem = strings.TrimSuffix(base, ".down.sql")
	default:
		return 0, "", false, fmt.Errorf("unexpected migration file name: %s", base)
	}

	digits, rest, ok := strings.Cut(stem, "_")
	if !ok || rest == "" {
		return 0, "", false, fmt.Errorf("unexpected migration file name: %s", base)
	}
	version, err = strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, "", false, fmt.Errorf("bad version in migration file %s: %w", base, err)
	}
	return version, rest, up, nil
}
