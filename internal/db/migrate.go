package db

import (
	"context"
	"embed"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrate applies the numbered schema migrations (V1..Vn) exactly once, in
// order. Each migration runs in its own transaction; the `{prefix}` token
// inside the SQL is replaced with the deployer's table prefix.
func Migrate(ctx context.Context, pool *pgxpool.Pool, prefix string) error {
	versionTable := prefix + "_schema_migrations"

	_, err := pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version    INT PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, versionTable))
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		version, err := migrationVersion(name)
		if err != nil {
			return err
		}

		var applied bool
		err = pool.QueryRow(ctx,
			fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE version = $1)`, versionTable),
			version).Scan(&applied)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if applied {
			continue
		}

		raw, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		sql := strings.ReplaceAll(string(raw), "{prefix}", prefix)

		tx, err := pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", name, err)
		}
		if _, err := tx.Exec(ctx, sql); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := tx.Exec(ctx,
			fmt.Sprintf(`INSERT INTO %s (version, name) VALUES ($1, $2)`, versionTable),
			version, name); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}

		log.Info().Str("migration", name).Msg("schema migration applied")
	}

	return nil
}

// migrationVersion parses "V3__object_relationships.sql" into 3.
func migrationVersion(name string) (int, error) {
	if !strings.HasPrefix(name, "V") {
		return 0, fmt.Errorf("bad migration filename: %s", name)
	}
	idx := strings.Index(name, "__")
	if idx < 2 {
		return 0, fmt.Errorf("bad migration filename: %s", name)
	}
	var v int
	if _, err := fmt.Sscanf(name[1:idx], "%d", &v); err != nil {
		return 0, fmt.Errorf("bad migration filename %s: %w", name, err)
	}
	return v, nil
}
