// Package session binds an identifier to the replacement engine, map cipher,
// and map store, so callers get "anonymize, store, later rehydrate" without
// manual key or map bookkeeping.
package session

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rehydra/rehydra/internal/crypto"
	"github.com/rehydra/rehydra/internal/detect"
	"github.com/rehydra/rehydra/internal/engine"
	"github.com/rehydra/rehydra/internal/models"
	"github.com/rehydra/rehydra/internal/store"
)

var (
	// ErrNoSessionData is returned by Rehydrate when nothing has been stored
	// under the session's identifier.
	ErrNoSessionData = errors.New("no session data for identifier")

	// ErrKeyMismatch is returned when stored session data fails to decrypt
	// under the current key. Remediation: re-supply the original key, delete
	// the session, or switch to a persistent key provider.
	ErrKeyMismatch = errors.New(
		"cannot decrypt existing session data: key may have changed " +
			"(re-supply the original key, delete the session, or switch to a persistent key provider)")
)

// Manager holds the shared collaborators and mints identifier-scoped
// sessions. Construct one at startup and pass it around; there is no global
// instance.
type Manager struct {
	store    store.Store
	keys     crypto.KeyProvider
	detector detect.Detector
	policy   models.TagPolicy
	logger   *zap.Logger
}

// NewManager creates a manager over the given collaborators.
func NewManager(st store.Store, keys crypto.KeyProvider, det detect.Detector, policy models.TagPolicy, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: st, keys: keys, detector: det, policy: policy, logger: logger}
}

// Session returns the session bound to id. Sessions are cheap handles; no
// state lives outside the store.
func (m *Manager) Session(id string) *Session {
	return &Session{id: id, m: m}
}

// Store exposes the underlying map store for maintenance operations.
func (m *Manager) Store() store.Store {
	return m.store
}

// Detector exposes the configured detector (for health surfaces).
func (m *Manager) Detector() detect.Detector {
	return m.detector
}

// Session is one identifier's view of the service.
type Session struct {
	id string
	m  *Manager
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Anonymize detects PII in text, replaces it with placeholder tags, and
// persists the merged encrypted map for the session. It returns only the new
// call's detection result; previously stored entities stay in the map but are
// not repeated in the result.
//
// Anonymize is a read-decrypt-merge-encrypt-write sequence and is not atomic
// against a concurrent Anonymize on the same identifier: two overlapping
// calls can race and the later writer silently drops the other's entries.
// Callers must keep at most one Anonymize in flight per identifier.
// Different identifiers do not contend.
func (s *Session) Anonymize(ctx context.Context, text, locale string) (*models.DetectionResult, error) {
	key, err := s.m.keys.GetKey()
	if err != nil {
		return nil, fmt.Errorf("get key: %w", err)
	}

	existing := models.RawMap{}
	var prevCounts map[string]int
	rec, err := s.m.store.Load(ctx, s.id)
	switch {
	case err == nil:
		existing, err = s.decrypt(rec, key)
		if err != nil {
			return nil, err
		}
		prevCounts = rec.EntityCounts
	case errors.Is(err, store.ErrNotFound):
		// First call for this identifier.
	default:
		return nil, fmt.Errorf("load session: %w", err)
	}

	detected, err := s.m.detector.Detect(ctx, text, locale)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}

	// The existing map rides along so ID assignment continues numbering
	// consistently with prior calls.
	result := engine.Tag(text, detected.Spans, engine.TagOptions{
		Policy:   s.m.policy,
		Existing: existing,
	})
	result.ModelVersion = detected.ModelVersion

	// Merge with new entries winning. Collisions are not expected in normal
	// operation; ID continuation prevents them.
	merged := existing.Clone()
	for k, v := range result.RawMap {
		merged[k] = v
	}

	enc, err := crypto.Encrypt(merged, key)
	if err != nil {
		return nil, fmt.Errorf("encrypt map: %w", err)
	}

	meta := &store.SaveMetadata{
		EntityCounts: models.SumCounts(prevCounts, result.EntityCounts()),
		ModelVersion: detected.ModelVersion,
	}
	if err := s.m.store.Save(ctx, s.id, *enc, meta); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	s.m.logger.Debug("anonymized text",
		zap.String("session", s.id),
		zap.Int("new_entities", len(result.Entities)),
		zap.Int("map_size", len(merged)),
	)
	return &result, nil
}

// Rehydrate restores the original values into previously anonymized text
// using the session's stored map. Fails with ErrNoSessionData when nothing is
// stored for the identifier.
func (s *Session) Rehydrate(ctx context.Context, text string) (string, error) {
	rec, err := s.m.store.Load(ctx, s.id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrNoSessionData, s.id)
		}
		return "", fmt.Errorf("load session: %w", err)
	}

	key, err := s.m.keys.GetKey()
	if err != nil {
		return "", fmt.Errorf("get key: %w", err)
	}
	rawMap, err := s.decrypt(rec, key)
	if err != nil {
		return "", err
	}

	restored := engine.Rehydrate(text, rawMap, false)
	s.m.logger.Debug("rehydrated text",
		zap.String("session", s.id),
		zap.Int("map_size", len(rawMap)),
	)
	return restored, nil
}

// Load returns the stored record for the session.
func (s *Session) Load(ctx context.Context) (*models.StoredMap, error) {
	return s.m.store.Load(ctx, s.id)
}

// Delete removes the session's stored map, reporting whether one existed.
func (s *Session) Delete(ctx context.Context) (bool, error) {
	return s.m.store.Delete(ctx, s.id)
}

// Exists reports whether the session has stored data.
func (s *Session) Exists(ctx context.Context) (bool, error) {
	return s.m.store.Exists(ctx, s.id)
}

// decrypt maps an authentication failure on existing session data to
// ErrKeyMismatch; other decrypt errors (corrupt record fields) pass through.
func (s *Session) decrypt(rec *models.StoredMap, key []byte) (models.RawMap, error) {
	rawMap, err := crypto.Decrypt(&rec.EncryptedMap, key)
	if err != nil {
		if errors.Is(err, crypto.ErrAuthenticationFailed) {
			return nil, fmt.Errorf("%w: %s", ErrKeyMismatch, s.id)
		}
		return nil, fmt.Errorf("decrypt session: %w", err)
	}
	return rawMap, nil
}
