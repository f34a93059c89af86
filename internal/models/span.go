package models

import (
	"fmt"
	"strconv"
	"strings"
)

// SpanMatch is a single detector hit: a half-open byte-offset range [Start, End)
// in the source text. Spans within one detection result are mutually
// non-overlapping; that is the detector's contract and is not re-validated here.
type SpanMatch struct {
	Type       PIIType   `json:"type"`
	Start      int       `json:"start"`
	End        int       `json:"end"`
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	Source     string    `json:"source"`
	Semantic   *Semantic `json:"semantic,omitempty"`
}

// DetectedEntity is a SpanMatch with its assigned entity ID.
type DetectedEntity struct {
	SpanMatch
	ID int `json:"id"`
}

// Key returns the raw-map key for this entity, e.g. "PERSON_1".
func (e *DetectedEntity) Key() string {
	return MapKey(e.Type, e.ID)
}

// MapKey builds the raw-map key "{TYPE}_{id}".
func MapKey(t PIIType, id int) string {
	return fmt.Sprintf("%s_%d", t, id)
}

// SplitMapKey parses a raw-map key back into its type and ID. Returns false
// for malformed keys or unknown types.
func SplitMapKey(key string) (PIIType, int, bool) {
	idx := strings.LastIndexByte(key, '_')
	if idx < 0 {
		return "", 0, false
	}
	t := PIIType(key[:idx])
	if !t.Valid() {
		return "", 0, false
	}
	id, err := strconv.Atoi(key[idx+1:])
	if err != nil {
		return "", 0, false
	}
	return t, id, true
}

// TagPolicy controls entity ID assignment during tagging.
type TagPolicy struct {
	// ReuseIDsForRepeatedPII assigns the same ID to spans of the same type
	// with identical matched text within one call (and across calls when an
	// existing map is carried forward). When false every span gets a fresh ID.
	ReuseIDsForRepeatedPII bool `json:"reuse_ids_for_repeated_pii" yaml:"reuse_ids_for_repeated_pii"`
}

// DetectionResult is the outcome of one detect-and-tag call.
type DetectionResult struct {
	AnonymizedText string           `json:"anonymized_text"`
	Entities       []DetectedEntity `json:"entities"`
	RawMap         RawMap           `json:"-"`
	ModelVersion   string           `json:"model_version,omitempty"`
}

// EntityCounts tallies the result's entities by type.
func (r *DetectionResult) EntityCounts() map[string]int {
	if len(r.Entities) == 0 {
		return nil
	}
	counts := make(map[string]int)
	for i := range r.Entities {
		counts[string(r.Entities[i].Type)]++
	}
	return counts
}
