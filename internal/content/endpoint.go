package content

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// EndpointMedia asks an HTTP service to render a video.
// It POSTs {"prompt": ...} and expects {"url": ...} back.
type EndpointMedia struct {
	endpoint string
	client   *http.Client
}

// NewEndpointMedia creates a media source for endpoint.
func NewEndpointMedia(endpoint string, client *http.Client) *EndpointMedia {
	if client == nil {
		client = http.DefaultClient
	}
	return &EndpointMedia{endpoint: endpoint, client: client}
}

// Generate implements MediaSource.
func (e *EndpointMedia) Generate(ctx context.Context, prompt string) (Handle, error) {
	body, err := json.Marshal(map[string]string{"prompt": prompt})
	if err != nil {
		return Handle{}, fmt.Errorf("encoding media request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return Handle{}, fmt.Errorf("building media request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return Handle{}, fmt.Errorf("calling media endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Handle{}, fmt.Errorf("media endpoint returned %s: %s", resp.Status, bytes.TrimSpace(msg))
	}

	var h Handle
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return Handle{}, fmt.Errorf("decoding media response: %w", err)
	}
	return h, nil
}
