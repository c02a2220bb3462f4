package index

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/oshokin/dyst/internal/logger"
)

// versionKey is the meta row holding the schema version.
const versionKey = "version"

//go:embed migrations/*.up.sql
var migrationFiles embed.FS

// migration is one numbered schema step.
type migration struct {
	version int
	name    string
	script  string
}

// loadMigrations reads the embedded scripts ordered by their numeric prefix.
func loadMigrations() ([]migration, error) {
	names, err := fs.Glob(migrationFiles, "migrations/*.up.sql")
	if err != nil {
		return nil, fmt.Errorf("glob migrations: %w", err)
	}

	result := make([]migration, 0, len(names))

	for _, name := range names {
		base := path.Base(name)

		prefix, _, _ := strings.Cut(base, "_")

		version, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("parse migration %s: %w", base, err)
		}

		script, err := migrationFiles.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", base, err)
		}

		result = append(result, migration{version: version, name: base, script: string(script)})
	}

	slices.SortFunc(result, func(a, b migration) int {
		return a.version - b.version
	})

	return result, nil
}

// migrate brings the schema to the latest version inside a single transaction.
func migrate(ctx context.Context, db *sql.DB) error {
	migrations, err := loadMigrations()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	current, err := readVersion(ctx, tx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		logger.DebugKV(ctx, "Running index migration", "file", m.name)

		if _, err = tx.ExecContext(ctx, m.script); err != nil {
			return fmt.Errorf("exec migration %s: %w", m.name, err)
		}

		if _, err = tx.ExecContext(ctx,
			`INSERT INTO meta (key, value) VALUES (?, ?)
			 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
			versionKey, strconv.Itoa(m.version)); err != nil {
			return fmt.Errorf("record schema version %d: %w", m.version, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}

	return nil
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// readVersion returns the recorded schema version, zero for a fresh database.
func readVersion(ctx context.Context, q queryer) (int, error) {
	var tables int

	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'meta'`).Scan(&tables)
	if err != nil {
		return 0, fmt.Errorf("inspect schema: %w", err)
	}

	if tables == 0 {
		return 0, nil
	}

	var value string

	err = q.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, versionKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}

	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}

	version, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parse schema version %q: %w", value, err)
	}

	return version, nil
}
