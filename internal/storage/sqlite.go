package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/contentdb/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Source allocation reads then writes; one connection keeps it serialized.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS entities (
		id INTEGER PRIMARY KEY,
		source TEXT,
		attributes TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_entities_updated_at ON entities(updated_at);

	CREATE TABLE IF NOT EXISTS sources (
		key TEXT PRIMARY KEY,
		entity_id INTEGER NOT NULL UNIQUE,
		hash TEXT NOT NULL DEFAULT ''
	);
	`
	_, err := db.Exec(schema)
	return err
}

// PutEntity inserts or replaces an entity. CreatedAt is kept on replace.
func (s *SQLiteStorage) PutEntity(ctx context.Context, e *models.Entity) error {
	attrs, err := json.Marshal(e.Attributes)
	if err != nil {
		return fmt.Errorf("failed to marshal attributes: %w", err)
	}

	now := time.Now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO entities (id, source, attributes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   source = excluded.source,
		   attributes = excluded.attributes,
		   updated_at = excluded.updated_at`,
		e.ID, e.Source, string(attrs), e.CreatedAt, e.UpdatedAt,
	)
	return err
}

// GetEntity returns an entity by ID.
func (s *SQLiteStorage) GetEntity(ctx context.Context, id int) (*models.Entity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source, attributes, created_at, updated_at
		 FROM entities WHERE id = ?`, id,
	)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("entity %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntity(sc scanner) (*models.Entity, error) {
	var e models.Entity
	var source sql.NullString
	var attrs string
	if err := sc.Scan(&e.ID, &source, &attrs, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.Source = source.String
	if attrs != "" {
		if err := json.Unmarshal([]byte(attrs), &e.Attributes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal attributes: %w", err)
		}
	}
	return &e, nil
}

// DeleteEntity removes an entity by ID. Deleting a missing entity is not an error.
func (s *SQLiteStorage) DeleteEntity(ctx context.Context, id int) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, id)
	return err
}

// ListEntities returns entities ordered by id with offset and limit.
func (s *SQLiteStorage) ListEntities(ctx context.Context, offset, limit int) ([]*models.Entity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, attributes, created_at, updated_at
		 FROM entities ORDER BY id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// EntityIDs returns every stored entity id in ascending order.
func (s *SQLiteStorage) EntityIDs(ctx context.Context) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM entities ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ResolveSource returns the source bound to key, allocating the next free entity id
// below maxRows when the key is new.
func (s *SQLiteStorage) ResolveSource(ctx context.Context, key string, maxRows int) (*Source, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	src := &Source{Key: key}
	err = tx.QueryRowContext(ctx,
		`SELECT entity_id, hash FROM sources WHERE key = ?`, key,
	).Scan(&src.EntityID, &src.Hash)
	if err == nil {
		return src, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	var next int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(id), -1) + 1 FROM (
		   SELECT id FROM entities UNION ALL SELECT entity_id FROM sources
		 )`,
	).Scan(&next)
	if err != nil {
		return nil, err
	}
	if maxRows > 0 && next >= maxRows {
		return nil, fmt.Errorf("source %s: %w (%d rows)", key, ErrCapacity, maxRows)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sources (key, entity_id) VALUES (?, ?)`, key, next,
	); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	src.EntityID = next
	return src, nil
}

// SetSourceHash records the content fingerprint of a source.
func (s *SQLiteStorage) SetSourceHash(ctx context.Context, key, hash string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE sources SET hash = ? WHERE key = ?`, hash, key)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("source %s: %w", key, ErrNotFound)
	}
	return nil
}

// ForgetSource removes the binding for key and returns it.
func (s *SQLiteStorage) ForgetSource(ctx context.Context, key string) (*Source, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	src := &Source{Key: key}
	err = tx.QueryRowContext(ctx,
		`SELECT entity_id, hash FROM sources WHERE key = ?`, key,
	).Scan(&src.EntityID, &src.Hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("source %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sources WHERE key = ?`, key); err != nil {
		return nil, err
	}
	return src, tx.Commit()
}

// SourcesWithPrefix returns the sources whose key starts with prefix, ordered by key.
func (s *SQLiteStorage) SourcesWithPrefix(ctx context.Context, prefix string) ([]*Source, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, entity_id, hash FROM sources
		 WHERE instr(key, ?) = 1 ORDER BY key`,
		prefix,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Source
	for rows.Next() {
		var src Source
		if err := rows.Scan(&src.Key, &src.EntityID, &src.Hash); err != nil {
			return nil, err
		}
		out = append(out, &src)
	}
	return out, rows.Err()
}

// CountEntities returns the total number of entities.
func (s *SQLiteStorage) CountEntities(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities`).Scan(&count)
	return count, err
}

// CountSources returns the number of bound sources.
func (s *SQLiteStorage) CountSources(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sources`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
