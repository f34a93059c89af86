// Package detect defines the PII detector interface and two reference
// implementations: a regex detector for structured PII and an HTTP client for
// a remote NER inference sidecar. Detection quality is the detector's
// problem; the rest of the system only consumes the span list.
package detect

import (
	"context"

	"github.com/rehydra/rehydra/internal/models"
)

// Result is one detection pass over a text.
type Result struct {
	// Spans are ordered, mutually non-overlapping matches.
	Spans []models.SpanMatch
	// ModelVersion identifies the detector build that produced the spans.
	ModelVersion string
}

// Detector finds PII spans in text. locale may be empty; detectors that are
// locale-aware use it to pick validators.
type Detector interface {
	Detect(ctx context.Context, text, locale string) (*Result, error)
}

// HealthChecker is an optional capability for detectors backed by an
// external service.
type HealthChecker interface {
	Health(ctx context.Context) error
}
