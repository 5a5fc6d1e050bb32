// Утилита миграций схемы галереи в PostgreSQL.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aurabyshenoi/gallery/internal/storage/postgres"
)

const runTimeout = 30 * time.Second

type options struct {
	direction string
	steps     int
	dsn       string
}

func parseOptions(args []string) (options, error) {
	var opts options

	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.StringVar(&opts.direction, "direction", "up", "up, down or status")
	fs.IntVar(&opts.steps, "steps", 0, "how many migrations to run: 0 means all for up and one for down")
	fs.StringVar(&opts.dsn, "dsn", "", "PostgreSQL DSN, falls back to GALLERY_POSTGRES_DSN")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	if strings.TrimSpace(opts.dsn) == "" {
		opts.dsn = strings.TrimSpace(os.Getenv("GALLERY_POSTGRES_DSN"))
	}
	opts.direction = strings.ToLower(strings.TrimSpace(opts.direction))
	return opts, nil
}

func run(ctx context.Context, opts options) error {
	switch opts.direction {
	case "up", "down", "status":
	default:
		return fmt.Errorf("unsupported direction: %s (use up|down|status)", opts.direction)
	}
	if opts.dsn == "" {
		return fmt.Errorf("set the -dsn flag or GALLERY_POSTGRES_DSN")
	}

	store, err := postgres.Open(ctx, opts.dsn)
	if err != nil {
		return fmt.Errorf("open postgres store: %w", err)
	}
	defer store.Close()

	switch opts.direction {
	case "up":
		if err := store.MigrateUp(ctx, opts.steps); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
	case "down":
		// Вниз без явного числа шагов откатываем ровно одну миграцию.
		if err := store.MigrateDown(ctx, max(opts.steps, 1)); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
	}

	version, applied, err := store.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("migration status: %w", err)
	}
	fmt.Printf("%s ok: version=%d applied=%d\n", opts.direction, version, applied)
	return nil
}

func main() {
	opts, err := parseOptions(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
