package session

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rehydra/rehydra/internal/crypto"
	"github.com/rehydra/rehydra/internal/detect"
	"github.com/rehydra/rehydra/internal/models"
	"github.com/rehydra/rehydra/internal/store"
)

// stubDetector finds configured words, in text order. Good enough to drive
// the session flow deterministically.
type stubDetector struct {
	words map[string]models.PIIType
}

func (d *stubDetector) Detect(_ context.Context, text, _ string) (*detect.Result, error) {
	var spans []models.SpanMatch
	for word, typ := range d.words {
		from := 0
		for {
			i := strings.Index(text[from:], word)
			if i < 0 {
				break
			}
			start := from + i
			spans = append(spans, models.SpanMatch{
				Type: typ, Start: start, End: start + len(word),
				Text: word, Confidence: 0.9, Source: "stub",
			})
			from = start + len(word)
		}
	}
	return &detect.Result{Spans: spans, ModelVersion: "stub-1"}, nil
}

func newTestManager(t *testing.T, det detect.Detector) *Manager {
	t.Helper()
	keys, err := crypto.NewEphemeralProvider()
	if err != nil {
		t.Fatal(err)
	}
	return NewManager(store.NewMemoryStore(), keys, det,
		models.TagPolicy{ReuseIDsForRepeatedPII: true}, nil)
}

func TestSession_AnonymizeRehydrate(t *testing.T) {
	det := &stubDetector{words: map[string]models.PIIType{
		"John":    models.PIITypePerson,
		"j@x.com": models.PIITypeEmail,
	}}
	m := newTestManager(t, det)
	s := m.Session("s1")
	ctx := context.Background()

	text := "Contact John at j@x.com"
	res, err := s.Anonymize(ctx, text, "en")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Entities) != 2 {
		t.Fatalf("entities = %+v", res.Entities)
	}
	if strings.Contains(res.AnonymizedText, "John") || strings.Contains(res.AnonymizedText, "j@x.com") {
		t.Errorf("PII left in output: %q", res.AnonymizedText)
	}
	if res.ModelVersion != "stub-1" {
		t.Errorf("model version = %q", res.ModelVersion)
	}

	restored, err := s.Rehydrate(ctx, res.AnonymizedText)
	if err != nil {
		t.Fatal(err)
	}
	if restored != text {
		t.Errorf("rehydrated = %q, want %q", restored, text)
	}
}

func TestSession_IncrementalMerge(t *testing.T) {
	det := &stubDetector{words: map[string]models.PIIType{
		"John": models.PIITypePerson,
		"Jane": models.PIITypePerson,
	}}
	m := newTestManager(t, det)
	s := m.Session("s1")
	ctx := context.Background()

	first, err := s.Anonymize(ctx, "John called", "")
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Anonymize(ctx, "Jane answered", "")
	if err != nil {
		t.Fatal(err)
	}

	// Only the new call's entities come back.
	if len(second.Entities) != 1 || second.Entities[0].Text != "Jane" {
		t.Fatalf("second result = %+v", second.Entities)
	}
	// Numbering continues across calls.
	if second.Entities[0].ID <= first.Entities[0].ID {
		t.Errorf("ID did not advance: %d then %d", first.Entities[0].ID, second.Entities[0].ID)
	}

	// Both calls' tags resolve from the merged stored map.
	combined := first.AnonymizedText + " " + second.AnonymizedText
	restored, err := s.Rehydrate(ctx, combined)
	if err != nil {
		t.Fatal(err)
	}
	if restored != "John called Jane answered" {
		t.Errorf("rehydrated = %q", restored)
	}

	// Counts are the elementwise sum of both calls.
	rec, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rec.EntityCounts["PERSON"] != 2 {
		t.Errorf("entity counts = %v", rec.EntityCounts)
	}
	if rec.ModelVersion != "stub-1" {
		t.Errorf("model version = %q", rec.ModelVersion)
	}
}

func TestSession_ReuseAcrossCalls(t *testing.T) {
	det := &stubDetector{words: map[string]models.PIIType{"John": models.PIITypePerson}}
	m := newTestManager(t, det)
	s := m.Session("s1")
	ctx := context.Background()

	first, err := s.Anonymize(ctx, "John here", "")
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Anonymize(ctx, "John again", "")
	if err != nil {
		t.Fatal(err)
	}
	if second.Entities[0].ID != first.Entities[0].ID {
		t.Errorf("reuse policy: IDs differ across calls: %d vs %d",
			first.Entities[0].ID, second.Entities[0].ID)
	}
}

func TestSession_RehydrateNoData(t *testing.T) {
	m := newTestManager(t, &stubDetector{})
	_, err := m.Session("ghost").Rehydrate(context.Background(), "text")
	if !errors.Is(err, ErrNoSessionData) {
		t.Errorf("err = %v, want ErrNoSessionData", err)
	}
}

func TestSession_KeyMismatch(t *testing.T) {
	det := &stubDetector{words: map[string]models.PIIType{"John": models.PIITypePerson}}
	keys, err := crypto.NewEphemeralProvider()
	if err != nil {
		t.Fatal(err)
	}
	m := NewManager(store.NewMemoryStore(), keys, det, models.TagPolicy{}, nil)
	s := m.Session("s1")
	ctx := context.Background()

	if _, err := s.Anonymize(ctx, "John here", ""); err != nil {
		t.Fatal(err)
	}

	// Rotating the key orphans the stored record.
	if _, err := keys.RotateKey(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Anonymize(ctx, "more text", ""); !errors.Is(err, ErrKeyMismatch) {
		t.Errorf("anonymize err = %v, want ErrKeyMismatch", err)
	}
	if _, err := s.Rehydrate(ctx, "text"); !errors.Is(err, ErrKeyMismatch) {
		t.Errorf("rehydrate err = %v, want ErrKeyMismatch", err)
	}
}

func TestSession_DeleteExists(t *testing.T) {
	det := &stubDetector{words: map[string]models.PIIType{"John": models.PIITypePerson}}
	m := newTestManager(t, det)
	s := m.Session("s1")
	ctx := context.Background()

	if ok, _ := s.Exists(ctx); ok {
		t.Error("fresh session should not exist")
	}
	if _, err := s.Anonymize(ctx, "John here", ""); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.Exists(ctx); !ok {
		t.Error("session should exist after anonymize")
	}
	if existed, err := s.Delete(ctx); err != nil || !existed {
		t.Errorf("delete: %v, %v", existed, err)
	}
	if ok, _ := s.Exists(ctx); ok {
		t.Error("session should not exist after delete")
	}
}

func TestSession_NoPIIFound(t *testing.T) {
	m := newTestManager(t, &stubDetector{})
	s := m.Session("s1")
	ctx := context.Background()

	res, err := s.Anonymize(ctx, "nothing sensitive", "")
	if err != nil {
		t.Fatal(err)
	}
	if res.AnonymizedText != "nothing sensitive" || len(res.Entities) != 0 {
		t.Errorf("result = %+v", res)
	}
	// An empty map still persists, so the session exists.
	if ok, _ := s.Exists(ctx); !ok {
		t.Error("session should exist even with zero entities")
	}
}
