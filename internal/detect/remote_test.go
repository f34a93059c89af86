package detect

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rehydra/rehydra/internal/models"
)

func TestRemoteDetector_Detect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/detect" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req detectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Error(err)
		}
		if req.Text != "Contact John" || req.Locale != "en" {
			t.Errorf("request = %+v", req)
		}
		_ = json.NewEncoder(w).Encode(detectResponse{
			Entities: []remoteEntity{
				{Type: "PERSON", Start: 8, End: 12, Text: "John", Confidence: 0.97,
					Semantic: &models.Semantic{Gender: models.GenderMale}},
				{Type: "GADGET", Start: 0, End: 7, Text: "Contact", Confidence: 0.5},
			},
			ModelVersion: "ner-2.3",
		})
	}))
	defer srv.Close()

	d := NewRemoteDetector(srv.URL, 0)
	res, err := d.Detect(context.Background(), "Contact John", "en")
	if err != nil {
		t.Fatal(err)
	}
	if res.ModelVersion != "ner-2.3" {
		t.Errorf("model version = %q", res.ModelVersion)
	}
	// The unknown type token is dropped.
	if len(res.Spans) != 1 {
		t.Fatalf("spans = %+v", res.Spans)
	}
	sp := res.Spans[0]
	if sp.Type != models.PIITypePerson || sp.Source != "ner" || sp.Semantic == nil {
		t.Errorf("span = %+v", sp)
	}
}

func TestRemoteDetector_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d := NewRemoteDetector(srv.URL, 0)
	if _, err := d.Detect(context.Background(), "x", ""); err == nil {
		t.Error("expected error for non-200 status")
	}
}

func TestRemoteDetector_Health(t *testing.T) {
	healthy := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	d := NewRemoteDetector(srv.URL, 0)
	if err := d.Health(context.Background()); err != nil {
		t.Errorf("healthy sidecar: %v", err)
	}
	healthy = false
	if err := d.Health(context.Background()); err == nil {
		t.Error("expected error from unhealthy sidecar")
	}

	// Detectors backed by a service advertise the health capability.
	var det Detector = d
	if _, ok := det.(HealthChecker); !ok {
		t.Error("remote detector should implement HealthChecker")
	}
}
