package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rehydra/rehydra/internal/models"
)

const defaultRemoteTimeout = 30 * time.Second

// RemoteDetector calls a NER inference sidecar over HTTP. The sidecar owns
// model loading and GPU/CPU selection; this client only ships text and reads
// spans back.
type RemoteDetector struct {
	detectURL string
	healthURL string
	http      *http.Client
}

// NewRemoteDetector creates a client for the sidecar at baseURL
// (e.g. "http://rehydra-ner:8001").
func NewRemoteDetector(baseURL string, timeout time.Duration) *RemoteDetector {
	if timeout <= 0 {
		timeout = defaultRemoteTimeout
	}
	return &RemoteDetector{
		detectURL: baseURL + "/detect",
		healthURL: baseURL + "/health",
		http:      &http.Client{Timeout: timeout},
	}
}

type detectRequest struct {
	Text   string `json:"text"`
	Locale string `json:"locale,omitempty"`
}

type detectResponse struct {
	Entities     []remoteEntity `json:"entities"`
	ModelVersion string         `json:"model_version"`
}

type remoteEntity struct {
	Type       string           `json:"type"`
	Start      int              `json:"start"`
	End        int              `json:"end"`
	Text       string           `json:"text"`
	Confidence float64          `json:"confidence"`
	Semantic   *models.Semantic `json:"semantic,omitempty"`
}

// Detect sends text to the sidecar and returns its spans. Entities with type
// tokens outside the PII enum are dropped.
func (d *RemoteDetector) Detect(ctx context.Context, text, locale string) (*Result, error) {
	body, err := json.Marshal(detectRequest{Text: text, Locale: locale})
	if err != nil {
		return nil, fmt.Errorf("detect: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.detectURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("detect: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("detect: sidecar returned status %d", resp.StatusCode)
	}

	var out detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("detect: decode response: %w", err)
	}

	spans := make([]models.SpanMatch, 0, len(out.Entities))
	for _, e := range out.Entities {
		typ, ok := models.ParsePIIType(e.Type)
		if !ok {
			continue
		}
		spans = append(spans, models.SpanMatch{
			Type:       typ,
			Start:      e.Start,
			End:        e.End,
			Text:       e.Text,
			Confidence: e.Confidence,
			Source:     "ner",
			Semantic:   e.Semantic,
		})
	}
	return &Result{Spans: spans, ModelVersion: out.ModelVersion}, nil
}

// Health probes the sidecar's health endpoint.
func (d *RemoteDetector) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.healthURL, nil)
	if err != nil {
		return err
	}
	resp, err := d.http.Do(req)
	if err != nil {
		return fmt.Errorf("detector health: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("detector health: status %d", resp.StatusCode)
	}
	return nil
}
