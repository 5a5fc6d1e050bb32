package postgres

import (
	"context"
	"errors"
	"testing"
	"time"
)

// Полный цикл схемы на живой базе: сброс в ноль, подъём по шагам,
// повторный up без эффекта и откат сверх применённого.
func TestSchemaMigrationLadder(t *testing.T) {
	store := dialIntegrationStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	mustStatus := func(stage string, wantVersion int64, wantCount int) {
		t.Helper()
		version, count, err := store.MigrationStatus(ctx)
		if err != nil {
			t.Fatalf("%s: status: %v", stage, err)
		}
		if version != wantVersion || count != wantCount {
			t.Fatalf("%s: version=%d count=%d, want %d/%d", stage, version, count, wantVersion, wantCount)
		}
	}

	if err := store.MigrateDown(ctx, 100); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	mustStatus("after reset", 0, 0)

	// Первый шаг отдельно, чтобы проверить границу steps.
	if err := store.MigrateUp(ctx, 1); err != nil {
		t.Fatalf("up one step: %v", err)
	}
	mustStatus("after one step", 1, 1)

	if err := store.MigrateUp(ctx, 0); err != nil {
		t.Fatalf("up the rest: %v", err)
	}
	mustStatus("after up all", 3, 3)

	if err := store.MigrateUp(ctx, 0); err != nil {
		t.Fatalf("repeated up: %v", err)
	}
	mustStatus("after repeated up", 3, 3)

	if err := store.MigrateDown(ctx, 1); err != nil {
		t.Fatalf("down one: %v", err)
	}
	mustStatus("after down one", 2, 2)

	if err := store.MigrateDown(ctx, 100); err != nil {
		t.Fatalf("down beyond applied: %v", err)
	}
	mustStatus("after down all", 0, 0)

	// Откат на пустой схеме не делает ничего и не падает.
	if err := store.MigrateDown(ctx, 1); err != nil {
		t.Fatalf("down on empty schema: %v", err)
	}
}

func TestMigrationsRequireConnectedStore(t *testing.T) {
	t.Parallel()

	var store *Store
	ctx := context.Background()

	if err := store.MigrateUp(ctx, 0); !errors.Is(err, errNotConnected) {
		t.Fatalf("MigrateUp on nil store: %v", err)
	}
	if err := store.MigrateDown(ctx, 1); !errors.Is(err, errNotConnected) {
		t.Fatalf("MigrateDown on nil store: %v", err)
	}
	if _, _, err := store.MigrationStatus(ctx); !errors.Is(err, errNotConnected) {
		t.Fatalf("MigrationStatus on nil store: %v", err)
	}
}
