package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ShayCichocki/waypoint/internal/version"
	"github.com/ShayCichocki/waypoint/pkg/models"
)

// Transport carries one call to a remote counterpart. Implementations must
// honor ctx cancellation.
type Transport interface {
	Call(ctx context.Context, endpoint models.RemoteEndpoint, payload any) (any, error)
}

// FuncTransport adapts a function to Transport.
type FuncTransport func(ctx context.Context, endpoint models.RemoteEndpoint, payload any) (any, error)

// Call implements Transport.
func (f FuncTransport) Call(ctx context.Context, endpoint models.RemoteEndpoint, payload any) (any, error) {
	return f(ctx, endpoint, payload)
}

// HTTPTransport posts JSON payloads to <location>/coordinate/<name>.
type HTTPTransport struct {
	Client *http.Client
}

// NewHTTPTransport creates an HTTPTransport. Per-call deadlines come from the
// gateway; the client timeout is only a backstop.
func NewHTTPTransport() *HTTPTransport {
	return &HTTPTransport{Client: &http.Client{Timeout: 60 * time.Second}}
}

// coordinateRequest is the body sent to a counterpart.
type coordinateRequest struct {
	Endpoint string `json:"endpoint"`
	Payload  any    `json:"payload"`
}

// coordinateResponse is the body a counterpart answers with.
type coordinateResponse struct {
	Result any    `json:"result"`
	Error  string `json:"error,omitempty"`
}

// Call implements Transport.
func (t *HTTPTransport) Call(ctx context.Context, endpoint models.RemoteEndpoint, payload any) (any, error) {
	if endpoint.Location == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoLocation, endpoint.Name)
	}
	url := strings.TrimRight(endpoint.Location, "/") + "/coordinate/" + endpoint.Name

	body, err := json.Marshal(coordinateRequest{Endpoint: endpoint.Name, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http %s: %d", url, resp.StatusCode)
	}

	var out coordinateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("%s: %s", endpoint.Name, out.Error)
	}
	return out.Result, nil
}
