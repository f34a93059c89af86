package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rehydra/rehydra/internal/models"
)

func sampleResult() *models.DetectionResult {
	return &models.DetectionResult{
		AnonymizedText: `Contact <PII type="PERSON" id="1"/> at <PII type="EMAIL" id="2"/>`,
		Entities: []models.DetectedEntity{
			{SpanMatch: models.SpanMatch{Type: models.PIITypePerson, Start: 8, End: 12, Text: "John", Confidence: 0.95, Source: "ner"}, ID: 1},
			{SpanMatch: models.SpanMatch{Type: models.PIITypeEmail, Start: 16, End: 23, Text: "j@x.com", Confidence: 1, Source: "regex"}, ID: 2},
		},
		RawMap:       models.RawMap{"PERSON_1": "John", "EMAIL_2": "j@x.com"},
		ModelVersion: "ner-2.1",
	}
}

func TestWriteAnonymizeResult_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteAnonymizeResult(&buf, "s1", sampleResult(), OutputJSON); err != nil {
		t.Fatalf("WriteAnonymizeResult(json): %v", err)
	}
	var decoded map[string]interface{}
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded["session_id"] != "s1" {
		t.Errorf("session_id = %v", decoded["session_id"])
	}
	if decoded["anonymized_text"] == "" {
		t.Error("anonymized_text should be present")
	}
	// The raw map never reaches CLI output.
	if _, present := decoded["raw_map"]; present {
		t.Error("json output must not expose the raw map")
	}
}

func TestWriteAnonymizeResult_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteAnonymizeResult(&buf, "s1", sampleResult(), OutputText); err != nil {
		t.Fatalf("WriteAnonymizeResult(text): %v", err)
	}
	out := buf.String()
	for _, want := range []string{"session: s1", `<PII type="PERSON" id="1"/>`, "2 entities found", "EMAIL=1 PERSON=1"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteAnonymizeResult_TextNoEntities(t *testing.T) {
	var buf bytes.Buffer
	result := &models.DetectionResult{AnonymizedText: "nothing here"}
	if err := WriteAnonymizeResult(&buf, "s2", result, OutputText); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "found") {
		t.Errorf("no entity section expected:\n%s", buf.String())
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		s      string
		maxLen int
		want   string
	}{
		{"hello", 10, "hello"},
		{"hello world", 5, "hello..."},
		{"hello", 0, "hello"},
		{"", 5, ""},
	}
	for _, tt := range tests {
		if got := Truncate(tt.s, tt.maxLen); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.s, tt.maxLen, got, tt.want)
		}
	}
}
