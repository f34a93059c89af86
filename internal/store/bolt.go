package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/rehydra/rehydra/internal/models"
)

var (
	bucketMaps       = []byte("pii_maps")
	bucketCreatedIdx = []byte("created_idx")
)

// BoltStore persists encrypted maps in a single bbolt file: one bucket of
// records keyed by identifier, plus a secondary index bucket keyed by
// big-endian creation time so listing and cleanup iterate a cursor instead of
// scanning every record. Descending-order listing walks the index cursor
// backwards from its last key.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates a bbolt database at dbPath and ensures the
// buckets exist. Parent directories are created if they do not exist.
func NewBoltStore(dbPath string) (*BoltStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketMaps); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketCreatedIdx)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// idxKey builds the index bucket key: 8-byte big-endian creation time
// followed by the identifier.
func idxKey(createdAt int64, id string) []byte {
	key := make([]byte, 8+len(id))
	binary.BigEndian.PutUint64(key, uint64(createdAt))
	copy(key[8:], id)
	return key
}

// Save upserts the record for id, maintaining the creation-time index.
func (s *BoltStore) Save(ctx context.Context, id string, enc models.EncryptedMap, meta *SaveMetadata) error {
	if s.db == nil {
		return ErrNotInitialized
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		maps := tx.Bucket(bucketMaps)
		idx := tx.Bucket(bucketCreatedIdx)

		var prev *models.StoredMap
		if raw := maps.Get([]byte(id)); raw != nil {
			prev = &models.StoredMap{}
			if err := json.Unmarshal(raw, prev); err != nil {
				return fmt.Errorf("failed to unmarshal record: %w", err)
			}
		}

		now := time.Now().UnixMilli()
		createdAt, counts, version := resolveMeta(prev, meta, now)

		if prev != nil && prev.CreatedAt != createdAt {
			if err := idx.Delete(idxKey(prev.CreatedAt, id)); err != nil {
				return err
			}
		}
		if err := idx.Put(idxKey(createdAt, id), []byte(id)); err != nil {
			return err
		}

		rec := models.StoredMap{
			EncryptedMap: enc,
			CreatedAt:    createdAt,
			UpdatedAt:    now,
			EntityCounts: counts,
			ModelVersion: version,
		}
		raw, err := json.Marshal(&rec)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}
		return maps.Put([]byte(id), raw)
	})
}

// Load returns the stored record for id, or ErrNotFound.
func (s *BoltStore) Load(ctx context.Context, id string) (*models.StoredMap, error) {
	if s.db == nil {
		return nil, ErrNotInitialized
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rec *models.StoredMap
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketMaps).Get([]byte(id))
		if raw == nil {
			return ErrNotFound
		}
		rec = &models.StoredMap{}
		return json.Unmarshal(raw, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Delete removes the record and its index entry, reporting whether it existed.
func (s *BoltStore) Delete(ctx context.Context, id string) (bool, error) {
	if s.db == nil {
		return false, ErrNotInitialized
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	existed := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		maps := tx.Bucket(bucketMaps)
		raw := maps.Get([]byte(id))
		if raw == nil {
			return nil
		}
		existed = true

		var rec models.StoredMap
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("failed to unmarshal record: %w", err)
		}
		if err := tx.Bucket(bucketCreatedIdx).Delete(idxKey(rec.CreatedAt, id)); err != nil {
			return err
		}
		return maps.Delete([]byte(id))
	})
	return existed, err
}

// Exists reports whether a record exists for id.
func (s *BoltStore) Exists(ctx context.Context, id string) (bool, error) {
	if s.db == nil {
		return false, ErrNotInitialized
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	exists := false
	err := s.db.View(func(tx *bolt.Tx) error {
		exists = tx.Bucket(bucketMaps).Get([]byte(id)) != nil
		return nil
	})
	return exists, err
}

// List walks the creation-time index cursor backwards, newest first.
func (s *BoltStore) List(ctx context.Context, opts ListOptions) ([]string, error) {
	if s.db == nil {
		return nil, ErrNotInitialized
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var ids []string
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketCreatedIdx).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			createdAt := int64(binary.BigEndian.Uint64(k[:8]))
			if opts.OlderThan > 0 && createdAt >= opts.OlderThan {
				continue
			}
			ids = append(ids, string(v))
			if opts.Limit > 0 && len(ids) >= opts.Limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Cleanup walks the index cursor from the oldest key and deletes every record
// created strictly before olderThan.
func (s *BoltStore) Cleanup(ctx context.Context, olderThan int64) (int, error) {
	if s.db == nil {
		return 0, ErrNotInitialized
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	count := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		maps := tx.Bucket(bucketMaps)
		c := tx.Bucket(bucketCreatedIdx).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			createdAt := int64(binary.BigEndian.Uint64(k[:8]))
			if createdAt >= olderThan {
				break
			}
			if err := maps.Delete(v); err != nil {
				return err
			}
			if err := c.Delete(); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Close closes the database file.
func (s *BoltStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
