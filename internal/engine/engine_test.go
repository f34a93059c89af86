package engine

import (
	"testing"

	"github.com/rehydra/rehydra/internal/models"
)

func span(t models.PIIType, start, end int, text string) models.SpanMatch {
	return models.SpanMatch{Type: t, Start: start, End: end, Text: text, Confidence: 1, Source: "test"}
}

func TestTag_Scenario(t *testing.T) {
	text := "Contact John at j@x.com"
	spans := []models.SpanMatch{
		span(models.PIITypePerson, 8, 12, "John"),
		span(models.PIITypeEmail, 16, 23, "j@x.com"),
	}

	res := Tag(text, spans, TagOptions{})
	want := `Contact <PII type="PERSON" id="1"/> at <PII type="EMAIL" id="2"/>`
	if res.AnonymizedText != want {
		t.Errorf("anonymized = %q, want %q", res.AnonymizedText, want)
	}
	if len(res.RawMap) != 2 || res.RawMap["PERSON_1"] != "John" || res.RawMap["EMAIL_2"] != "j@x.com" {
		t.Errorf("raw map = %v", res.RawMap)
	}

	restored := Rehydrate(res.AnonymizedText, res.RawMap, false)
	if restored != text {
		t.Errorf("rehydrated = %q, want %q", restored, text)
	}
}

func TestTag_ZeroSpans(t *testing.T) {
	res := Tag("nothing here", nil, TagOptions{})
	if res.AnonymizedText != "nothing here" {
		t.Errorf("text changed: %q", res.AnonymizedText)
	}
	if len(res.RawMap) != 0 || len(res.Entities) != 0 {
		t.Errorf("expected empty result, got %+v", res)
	}
}

func TestTag_SharedCounterAcrossTypes(t *testing.T) {
	text := "a@b.com called Jane about c@d.com"
	spans := []models.SpanMatch{
		span(models.PIITypeEmail, 0, 7, "a@b.com"),
		span(models.PIITypePerson, 15, 19, "Jane"),
		span(models.PIITypeEmail, 26, 33, "c@d.com"),
	}
	res := Tag(text, spans, TagOptions{})
	ids := []int{res.Entities[0].ID, res.Entities[1].ID, res.Entities[2].ID}
	if ids[0] != 1 || ids[1] != 2 || ids[2] != 3 {
		t.Errorf("expected one shared counter, got IDs %v", ids)
	}
}

func TestTag_ReusePolicy(t *testing.T) {
	text := "John met John and Johnny"
	spans := []models.SpanMatch{
		span(models.PIITypePerson, 0, 4, "John"),
		span(models.PIITypePerson, 9, 13, "John"),
		span(models.PIITypePerson, 18, 24, "Johnny"),
	}

	reuse := Tag(text, spans, TagOptions{Policy: models.TagPolicy{ReuseIDsForRepeatedPII: true}})
	if reuse.Entities[0].ID != reuse.Entities[1].ID {
		t.Errorf("identical values should share an ID: %d vs %d", reuse.Entities[0].ID, reuse.Entities[1].ID)
	}
	if reuse.Entities[2].ID == reuse.Entities[0].ID {
		t.Error("distinct value must not share an ID")
	}
	if len(reuse.RawMap) != 2 {
		t.Errorf("raw map = %v", reuse.RawMap)
	}

	fresh := Tag(text, spans, TagOptions{})
	if fresh.Entities[0].ID == fresh.Entities[1].ID {
		t.Error("reuse off: every span gets a fresh ID")
	}
	if len(fresh.RawMap) != 3 {
		t.Errorf("raw map = %v", fresh.RawMap)
	}

	// Round trip holds under both policies.
	for _, res := range []models.DetectionResult{reuse, fresh} {
		if got := Rehydrate(res.AnonymizedText, res.RawMap, false); got != text {
			t.Errorf("rehydrated = %q, want %q", got, text)
		}
	}
}

func TestTag_ContinuesNumberingFromExisting(t *testing.T) {
	existing := models.RawMap{"PERSON_1": "John", "EMAIL_2": "j@x.com"}

	res := Tag("Call Jane", []models.SpanMatch{span(models.PIITypePerson, 5, 9, "Jane")},
		TagOptions{Existing: existing})
	if res.Entities[0].ID != 3 {
		t.Errorf("expected ID 3, got %d", res.Entities[0].ID)
	}

	// Under reuse, a value from a prior call keeps its prior ID.
	res = Tag("Call John", []models.SpanMatch{span(models.PIITypePerson, 5, 9, "John")},
		TagOptions{Policy: models.TagPolicy{ReuseIDsForRepeatedPII: true}, Existing: existing})
	if res.Entities[0].ID != 1 {
		t.Errorf("expected reused ID 1, got %d", res.Entities[0].ID)
	}
}

func TestTag_UnsortedSpans(t *testing.T) {
	text := "Contact John at j@x.com"
	spans := []models.SpanMatch{
		span(models.PIITypeEmail, 16, 23, "j@x.com"),
		span(models.PIITypePerson, 8, 12, "John"),
	}
	res := Tag(text, spans, TagOptions{})
	// IDs follow text order regardless of input order.
	if res.Entities[0].Type != models.PIITypePerson || res.Entities[0].ID != 1 {
		t.Errorf("entities = %+v", res.Entities)
	}
	if got := Rehydrate(res.AnonymizedText, res.RawMap, false); got != text {
		t.Errorf("rehydrated = %q", got)
	}
}

func TestTag_SemanticAttributes(t *testing.T) {
	text := "Maria lives in Lyon"
	spans := []models.SpanMatch{
		{Type: models.PIITypePerson, Start: 0, End: 5, Text: "Maria", Semantic: &models.Semantic{Gender: models.GenderFemale}},
		{Type: models.PIITypeLocation, Start: 15, End: 19, Text: "Lyon", Semantic: &models.Semantic{Scope: models.ScopeCity}},
	}
	res := Tag(text, spans, TagOptions{})
	want := `<PII type="PERSON" gender="female" id="1"/> lives in <PII type="LOCATION" scope="city" id="2"/>`
	if res.AnonymizedText != want {
		t.Errorf("anonymized = %q", res.AnonymizedText)
	}
	if got := Rehydrate(res.AnonymizedText, res.RawMap, false); got != text {
		t.Errorf("rehydrated = %q", got)
	}
}

func TestRehydrate_MangledTags(t *testing.T) {
	rawMap := models.RawMap{"PERSON_1": "John", "EMAIL_2": "j@x.com"}
	// Translation changed quotes, case, attribute order, and spacing; the
	// mangled tags differ in length from the canonical ones.
	text := `Contact <pii type = „PERSON“ id="1" /> at < PII  id='2'  type='EMAIL'>`
	got := Rehydrate(text, rawMap, false)
	want := "Contact John at j@x.com"
	if got != want {
		t.Errorf("rehydrated = %q, want %q", got, want)
	}
}

func TestRehydrate_MissingKeyLeftUntouched(t *testing.T) {
	text := `Hi <PII type="PERSON" id="1"/> and <PII type="PERSON" id="9"/>`
	got := Rehydrate(text, models.RawMap{"PERSON_1": "John"}, false)
	want := `Hi John and <PII type="PERSON" id="9"/>`
	if got != want {
		t.Errorf("rehydrated = %q, want %q", got, want)
	}
}

func TestRehydrate_Strict(t *testing.T) {
	rawMap := models.RawMap{"PERSON_1": "John"}
	// Strict mode restores canonical tags only.
	canonical := `Hi <PII type="PERSON" id="1"/>`
	if got := Rehydrate(canonical, rawMap, true); got != "Hi John" {
		t.Errorf("strict canonical: %q", got)
	}
	mangled := `Hi <pii type='PERSON' id='1'/>`
	if got := Rehydrate(mangled, rawMap, true); got != mangled {
		t.Errorf("strict should skip mangled tags: %q", got)
	}
	if got := Rehydrate(mangled, rawMap, false); got != "Hi John" {
		t.Errorf("fuzzy should restore mangled tags: %q", got)
	}
}

func TestRehydrate_EmptyMap(t *testing.T) {
	text := `Hi <PII type="PERSON" id="1"/>`
	if got := Rehydrate(text, models.RawMap{}, false); got != text {
		t.Errorf("empty map should restore nothing: %q", got)
	}
}
