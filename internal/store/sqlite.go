package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rehydra/rehydra/internal/models"
)

// SQLiteStore persists encrypted maps in a single SQLite table with a
// secondary index on created_at, so ordered listing and range cleanup never
// scan the full table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes
// the schema. Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS pii_maps (
		id TEXT PRIMARY KEY,
		ciphertext TEXT NOT NULL,
		iv TEXT NOT NULL,
		auth_tag TEXT NOT NULL,
		entity_counts TEXT,
		model_version TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_pii_maps_created_at ON pii_maps(created_at);
	`
	_, err := db.Exec(schema)
	return err
}

// Save upserts the record for id inside a transaction so the read-resolve-
// write of the sticky metadata is atomic per identifier.
func (s *SQLiteStore) Save(ctx context.Context, id string, enc models.EncryptedMap, meta *SaveMetadata) error {
	if s.db == nil {
		return ErrNotInitialized
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	prev, err := scanStoredMap(tx.QueryRowContext(ctx,
		`SELECT ciphertext, iv, auth_tag, entity_counts, model_version, created_at, updated_at
		 FROM pii_maps WHERE id = ?`, id))
	if err != nil && err != sql.ErrNoRows {
		return err
	}

	now := time.Now().UnixMilli()
	createdAt, counts, version := resolveMeta(prev, meta, now)

	countsJSON, err := marshalCounts(counts)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO pii_maps (id, ciphertext, iv, auth_tag, entity_counts, model_version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			ciphertext = excluded.ciphertext,
			iv = excluded.iv,
			auth_tag = excluded.auth_tag,
			entity_counts = excluded.entity_counts,
			model_version = excluded.model_version,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`,
		id, enc.Ciphertext, enc.IV, enc.AuthTag, countsJSON, nullString(version), createdAt, now,
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// Load returns the stored record for id, or ErrNotFound.
func (s *SQLiteStore) Load(ctx context.Context, id string) (*models.StoredMap, error) {
	if s.db == nil {
		return nil, ErrNotInitialized
	}
	rec, err := scanStoredMap(s.db.QueryRowContext(ctx,
		`SELECT ciphertext, iv, auth_tag, entity_counts, model_version, created_at, updated_at
		 FROM pii_maps WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Delete removes the record for id, reporting whether one existed.
func (s *SQLiteStore) Delete(ctx context.Context, id string) (bool, error) {
	if s.db == nil {
		return false, ErrNotInitialized
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM pii_maps WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Exists reports whether a record exists for id.
func (s *SQLiteStore) Exists(ctx context.Context, id string) (bool, error) {
	if s.db == nil {
		return false, ErrNotInitialized
	}
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM pii_maps WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// List returns identifiers ordered by created_at descending.
func (s *SQLiteStore) List(ctx context.Context, opts ListOptions) ([]string, error) {
	if s.db == nil {
		return nil, ErrNotInitialized
	}

	query := `SELECT id FROM pii_maps`
	args := []interface{}{}
	if opts.OlderThan > 0 {
		query += ` WHERE created_at < ?`
		args = append(args, opts.OlderThan)
	}
	query += ` ORDER BY created_at DESC, id ASC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Cleanup deletes records created strictly before olderThan.
func (s *SQLiteStore) Cleanup(ctx context.Context, olderThan int64) (int, error) {
	if s.db == nil {
		return 0, ErrNotInitialized
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM pii_maps WHERE created_at < ?`, olderThan)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStoredMap(row rowScanner) (*models.StoredMap, error) {
	var rec models.StoredMap
	var countsJSON, version sql.NullString
	err := row.Scan(&rec.Ciphertext, &rec.IV, &rec.AuthTag, &countsJSON, &version, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if countsJSON.Valid && countsJSON.String != "" {
		if err := json.Unmarshal([]byte(countsJSON.String), &rec.EntityCounts); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entity counts: %w", err)
		}
	}
	rec.ModelVersion = version.String
	return &rec, nil
}

func marshalCounts(counts map[string]int) (sql.NullString, error) {
	if counts == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(counts)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal entity counts: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
