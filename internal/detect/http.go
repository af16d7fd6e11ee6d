package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/greensort-data/sortstream/internal/httputil"
)

// HTTPDetector posts JPEG frames to an inference sidecar and decodes
// its JSON response.
type HTTPDetector struct {
	url     string
	client  httputil.HTTPClient
	timeout time.Duration
}

// NewHTTPDetector returns a detector against the given endpoint. A nil
// client uses the standard HTTP client; a non-positive timeout disables
// the per-request deadline.
func NewHTTPDetector(url string, client httputil.HTTPClient, timeout time.Duration) *HTTPDetector {
	if client == nil {
		client = httputil.NewStandardClient(nil)
	}
	return &HTTPDetector{url: url, client: client, timeout: timeout}
}

// Endpoint returns the sidecar URL.
func (d *HTTPDetector) Endpoint() string { return d.url }

// Info describes this detector for the health endpoint.
func (d *HTTPDetector) Info() Info {
	return Info{Kind: "http", Endpoint: d.url}
}

// detectorResponse is the sidecar's wire format.
type detectorResponse struct {
	Detections []Detection `json:"detections"`
	Error      string      `json:"error,omitempty"`
}

// Detect implements Detector.
func (d *HTTPDetector) Detect(ctx context.Context, jpeg []byte) ([]Detection, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(jpeg))
	if err != nil {
		return nil, fmt.Errorf("failed to build detector request: %w", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detector request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("detector returned status %d: %s", resp.StatusCode, body)
	}

	var out detectorResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode detector response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("detector error: %s", out.Error)
	}
	return out.Detections, nil
}
