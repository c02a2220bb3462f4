package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	// Registers the pure Go "sqlite" driver.
	_ "modernc.org/sqlite"

	"github.com/oshokin/dyst/internal/domain/packages"
)

const (
	// DefaultFilename is the index file name inside the package store.
	DefaultFilename = "index.db"

	// driverName is the database/sql driver registered by modernc.org/sqlite.
	driverName = "sqlite"

	// dirPermissions is used when the directory of the index file has to be created.
	dirPermissions os.FileMode = 0o755
)

// ErrNotFound is returned when the index holds no record for a repository.
var ErrNotFound = fmt.Errorf("%w: no index record", packages.ErrNotInstalled)

// Repository defines persistence operations for installed packages.
type Repository interface {
	Get(ctx context.Context, repo packages.Repository) (*packages.InstalledPackage, error)
	List(ctx context.Context) ([]*packages.InstalledPackage, error)
	Put(ctx context.Context, pkg *packages.InstalledPackage) error
	Delete(ctx context.Context, repo packages.Repository) error
	SetLock(ctx context.Context, repo packages.Repository, locked bool) error
	SetPrereleases(ctx context.Context, repo packages.Repository, allowed bool) error
	SetRename(ctx context.Context, repo packages.Repository, rename *packages.Rename) error
	Links(ctx context.Context, repo packages.Repository) ([]string, error)
	ReplaceLinks(ctx context.Context, repo packages.Repository, names []string) error
}

// Store is the SQLite-backed package index.
type Store struct {
	db *sql.DB
}

// Open opens (creating when needed) the index at path and migrates its schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return nil, indexError("create index directory", err)
	}

	db, err := sql.Open(driverName, filepath.Clean(path))
	if err != nil {
		return nil, indexError("open index", err)
	}

	// A single connection keeps pragmas and avoids writer contention inside the process.
	db.SetMaxOpenConns(1)

	if _, err = db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, indexError("configure index", err)
	}

	if err = migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, indexError("migrate index", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SchemaVersion returns the schema version recorded in the meta table.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	version, err := readVersion(ctx, s.db)
	if err != nil {
		return 0, indexError("schema version", err)
	}

	return version, nil
}

// Get returns the record of a repository or ErrNotFound.
func (s *Store) Get(ctx context.Context, repo packages.Repository) (*packages.InstalledPackage, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT repository, tag, "lock", assetFilter, execRename, preReleases
		 FROM packages WHERE repository = ?`, repo.String())

	pkg, err := scanPackage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", repo, ErrNotFound)
	}

	if err != nil {
		return nil, err
	}

	return pkg, nil
}

// List returns all records ordered by repository.
func (s *Store) List(ctx context.Context) ([]*packages.InstalledPackage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT repository, tag, "lock", assetFilter, execRename, preReleases
		 FROM packages ORDER BY repository`)
	if err != nil {
		return nil, indexError("list packages", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var result []*packages.InstalledPackage

	for rows.Next() {
		pkg, err := scanPackage(rows)
		if err != nil {
			return nil, err
		}

		result = append(result, pkg)
	}

	if err = rows.Err(); err != nil {
		return nil, indexError("list packages", err)
	}

	return result, nil
}

// Put inserts or replaces the record of a repository.
func (s *Store) Put(ctx context.Context, pkg *packages.InstalledPackage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO packages (repository, tag, "lock", assetFilter, execRename, preReleases)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (repository) DO UPDATE SET
			tag = excluded.tag,
			"lock" = excluded."lock",
			assetFilter = excluded.assetFilter,
			execRename = excluded.execRename,
			preReleases = excluded.preReleases`,
		pkg.Repository.String(),
		pkg.Tag,
		pkg.Locked,
		nullString(pkg.FilterText()),
		renameText(pkg.Rename),
		pkg.AllowPrereleases,
	)
	if err != nil {
		return indexError("put package", err)
	}

	return nil
}

// Delete removes the record of a repository together with its link manifest.
// Deleting a missing record is not an error.
func (s *Store) Delete(ctx context.Context, repo packages.Repository) error {
	return s.inTx(ctx, "delete package", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM links WHERE repository = ?`, repo.String()); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, `DELETE FROM packages WHERE repository = ?`, repo.String())

		return err
	})
}

// SetLock updates the lock flag of a repository.
func (s *Store) SetLock(ctx context.Context, repo packages.Repository, locked bool) error {
	return s.update(ctx, repo, "set lock", `UPDATE packages SET "lock" = ? WHERE repository = ?`, locked)
}

// SetPrereleases updates whether pre-releases are eligible for a repository.
func (s *Store) SetPrereleases(ctx context.Context, repo packages.Repository, allowed bool) error {
	return s.update(ctx, repo, "set prereleases", `UPDATE packages SET preReleases = ? WHERE repository = ?`, allowed)
}

// SetRename updates the executable rename mapping of a repository.
func (s *Store) SetRename(ctx context.Context, repo packages.Repository, rename *packages.Rename) error {
	return s.update(ctx, repo, "set rename", `UPDATE packages SET execRename = ? WHERE repository = ?`, renameText(rename))
}

// Links returns the link manifest of a repository, sorted by name.
func (s *Store) Links(ctx context.Context, repo packages.Repository) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM links WHERE repository = ? ORDER BY name`, repo.String())
	if err != nil {
		return nil, indexError("list links", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var names []string

	for rows.Next() {
		var name string
		if err = rows.Scan(&name); err != nil {
			return nil, indexError("scan link", err)
		}

		names = append(names, name)
	}

	if err = rows.Err(); err != nil {
		return nil, indexError("list links", err)
	}

	return names, nil
}

// ReplaceLinks overwrites the link manifest of a repository.
func (s *Store) ReplaceLinks(ctx context.Context, repo packages.Repository, names []string) error {
	return s.inTx(ctx, "replace links", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM links WHERE repository = ?`, repo.String()); err != nil {
			return err
		}

		for _, name := range names {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO links (repository, name) VALUES (?, ?)`, repo.String(), name); err != nil {
				return err
			}
		}

		return nil
	})
}

// update runs a single-row UPDATE and reports ErrNotFound when no row matched.
func (s *Store) update(ctx context.Context, repo packages.Repository, op, query string, value any) error {
	result, err := s.db.ExecContext(ctx, query, value, repo.String())
	if err != nil {
		return indexError(op, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return indexError(op, err)
	}

	if affected == 0 {
		return fmt.Errorf("%s: %w", repo, ErrNotFound)
	}

	return nil
}

// inTx runs fn inside a transaction, rolling back on error.
func (s *Store) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return indexError(op, err)
	}

	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return indexError(op, err)
	}

	if err = tx.Commit(); err != nil {
		return indexError(op, err)
	}

	return nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanPackage(row scanner) (*packages.InstalledPackage, error) {
	var (
		key, tag           string
		locked, prerelease bool
		filter, rename     sql.NullString
	)

	if err := row.Scan(&key, &tag, &locked, &filter, &rename, &prerelease); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		return nil, indexError("scan package", err)
	}

	repo, err := packages.ParseRepository(key)
	if err != nil {
		return nil, indexError("decode repository", err)
	}

	pkg := &packages.InstalledPackage{
		Repository:       repo,
		Tag:              tag,
		Locked:           locked,
		AllowPrereleases: prerelease,
	}

	if filter.Valid && filter.String != "" {
		if pkg.AssetFilter, err = regexp.Compile(filter.String); err != nil {
			return nil, indexError("decode asset filter of "+key, err)
		}
	}

	if rename.Valid && rename.String != "" {
		if pkg.Rename, err = packages.ParseRename(rename.String); err != nil {
			return nil, indexError("decode rename of "+key, err)
		}
	}

	return pkg, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func renameText(rename *packages.Rename) sql.NullString {
	if rename == nil {
		return sql.NullString{}
	}

	return nullString(rename.String())
}

func indexError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, packages.ErrIndex, err)
}
