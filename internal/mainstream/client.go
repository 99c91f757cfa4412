// Package mainstream is an HTTP client for the upstream "main stream"
// telemetry provider.
package mainstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jwulff/mainstream-sync/internal/domain"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 30 * time.Second

// Client issues batch and latest requests against the upstream base URL.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a new upstream client. A zero timeout uses DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Endpoint returns the full URL for an upstream path.
func (c *Client) Endpoint(path string) string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

// BatchError is returned when the upstream rejects a batch request.
type BatchError struct {
	StatusCode int
	Message    string
}

func (e *BatchError) Error() string {
	return "main stream batch failed: " + strconv.Itoa(e.StatusCode) + " " + e.Message
}

// post sends a JSON body and returns the status code and raw response body.
func (c *Client) post(ctx context.Context, path string, body any) (int, []byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(path), bytes.NewReader(data))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s request failed: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read %s response: %w", path, err)
	}
	return resp.StatusCode, respBody, nil
}

// FetchBatch fetches every device's readings within [startMs, endMs).
func (c *Client) FetchBatch(ctx context.Context, devices []domain.Device, startMs, endMs int64) (*BatchResponse, error) {
	creds := make([]DeviceCredential, len(devices))
	for i, d := range devices {
		creds[i] = DeviceCredential{DeviceID: d.ID, DeviceSecretKey: d.SecretKey}
	}
	body := BatchRequest{
		DeviceList:  creds,
		MonitorItem: strings.Join(domain.MonitorItems(devices), ","),
		Start:       startMs,
		End:         endMs,
	}

	status, respBody, err := c.post(ctx, "batch", body)
	if err != nil {
		return nil, err
	}
	if !isSuccess(status) {
		return nil, &BatchError{StatusCode: status, Message: errorMessage(respBody)}
	}

	var payload BatchResponse
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse batch response: %w", err)
	}
	return &payload, nil
}

// FetchLatest fetches the most recent reading of one device. A non-success
// status is not an error: it yields a sentinel carrying the status code.
func (c *Client) FetchLatest(ctx context.Context, device domain.Device) (*LatestResponse, error) {
	body := LatestRequest{
		DeviceID:        device.ID,
		DeviceSecretKey: device.SecretKey,
		MonitorItem:     device.MonitorItem,
	}

	status, respBody, err := c.post(ctx, "latest", body)
	if err != nil {
		return nil, err
	}
	if !isSuccess(status) {
		return &LatestResponse{Code: status}, nil
	}

	var envelope BatchResponse
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse latest response: %w", err)
	}

	latest := &LatestResponse{Code: envelope.Code}
	if reading, ok := envelope.First(); ok {
		latest.MonitorValue = reading.MonitorValue
		latest.MonitorTime = reading.MonitorTime
	}
	return latest, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// errorMessage extracts a human readable message from an error body.
// A JSON body without a message falls back to the raw text untranslated.
func errorMessage(body []byte) string {
	text := string(body)

	var parsed struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return TranslateMessage(text)
	}
	if parsed.Message != "" {
		return TranslateMessage(parsed.Message)
	}
	return text
}
