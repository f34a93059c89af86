// Package store defines the persistence interface for encrypted PII maps and
// its backends: an in-process map, SQLite, and bbolt.
package store

import (
	"context"
	"errors"

	"github.com/rehydra/rehydra/internal/models"
)

var (
	// ErrNotFound is returned by Load when no record exists for an identifier.
	ErrNotFound = errors.New("no stored map for identifier")
	// ErrNotInitialized is returned when a store is used before it has been
	// opened or after it has been closed.
	ErrNotInitialized = errors.New("store not initialized")
)

// SaveMetadata carries optional metadata for a Save call. Omitted fields fall
// back to the previously stored values.
type SaveMetadata struct {
	// CreatedAt, when > 0, explicitly overrides the record's creation time
	// (unix milliseconds). Otherwise the existing record's creation time is
	// preserved, or the current time is used for a new record.
	CreatedAt int64
	// EntityCounts replaces the stored counts when non-nil.
	EntityCounts map[string]int
	// ModelVersion replaces the stored version when non-empty.
	ModelVersion string
}

// ListOptions filters and bounds a List call. Zero values disable each option.
type ListOptions struct {
	// Limit caps the number of returned identifiers.
	Limit int
	// OlderThan, when > 0, restricts results to records whose creation time
	// is strictly before this cutoff (unix milliseconds).
	OlderThan int64
}

// Store persists encrypted PII maps keyed by identifier. Implementations
// serialize individual operations per identifier; operations on different
// identifiers do not contend.
type Store interface {
	// Save upserts the full encrypted record for id. The existing record's
	// creation time is preserved unless meta overrides it; the update time
	// always advances to now.
	Save(ctx context.Context, id string, enc models.EncryptedMap, meta *SaveMetadata) error

	// Load returns the stored record, or ErrNotFound.
	Load(ctx context.Context, id string) (*models.StoredMap, error)

	// Delete removes the record, reporting whether one existed.
	Delete(ctx context.Context, id string) (bool, error)

	// Exists reports whether a record exists for id.
	Exists(ctx context.Context, id string) (bool, error)

	// List returns identifiers ordered by creation time descending.
	List(ctx context.Context, opts ListOptions) ([]string, error)

	// Cleanup deletes every record created strictly before olderThan
	// (unix milliseconds) and returns the number deleted.
	Cleanup(ctx context.Context, olderThan int64) (int, error)

	Close() error
}

// resolveMeta applies the fallback rules for a save: sticky creation time,
// and counts/version falling back to the prior record when omitted.
func resolveMeta(prev *models.StoredMap, meta *SaveMetadata, now int64) (createdAt int64, counts map[string]int, version string) {
	createdAt = now
	if prev != nil {
		createdAt = prev.CreatedAt
		counts = prev.EntityCounts
		version = prev.ModelVersion
	}
	if meta != nil {
		if meta.CreatedAt > 0 {
			createdAt = meta.CreatedAt
		}
		if meta.EntityCounts != nil {
			counts = meta.EntityCounts
		}
		if meta.ModelVersion != "" {
			version = meta.ModelVersion
		}
	}
	return createdAt, counts, version
}
