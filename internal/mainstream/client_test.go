package mainstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jwulff/mainstream-sync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDevices() []domain.Device {
	return []domain.Device{
		{ID: "D1", SecretKey: "k1", MonitorItem: "rain"},
		{ID: "D2", SecretKey: "k2", MonitorItem: "temp"},
	}
}

func TestNewClient(t *testing.T) {
	client := NewClient("http://upstream.local/api", 0)

	assert.Equal(t, "http://upstream.local/api", client.BaseURL)
	require.NotNil(t, client.HTTPClient)
	assert.Equal(t, DefaultTimeout, client.HTTPClient.Timeout)

	client = NewClient("http://upstream.local/api", 5*time.Second)
	assert.Equal(t, 5*time.Second, client.HTTPClient.Timeout)
}

func TestClientEndpoint(t *testing.T) {
	assert.Equal(t, "http://host/api/batch", NewClient("http://host/api", 0).Endpoint("batch"))
	assert.Equal(t, "http://host/api/batch", NewClient("http://host/api/", 0).Endpoint("/batch"))
}

func TestFetchBatchRequest(t *testing.T) {
	var received BatchRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/batch", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"code":200,"message":"ok","data":[{"deviceId":"D1","data":[{"monitorItem":"rain","monitorTime":"2024-01-01 10:00:00","monitorValue":"0.5"}]}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/api", time.Second)
	resp, err := client.FetchBatch(context.Background(), testDevices(), 1000, 2000)

	require.NoError(t, err)
	assert.Equal(t, []DeviceCredential{
		{DeviceID: "D1", DeviceSecretKey: "k1"},
		{DeviceID: "D2", DeviceSecretKey: "k2"},
	}, received.DeviceList)
	assert.Equal(t, "rain,temp", received.MonitorItem)
	assert.Equal(t, int64(1000), received.Start)
	assert.Equal(t, int64(2000), received.End)

	require.Len(t, resp.Data, 1)
	assert.Equal(t, "D1", resp.Data[0].DeviceID)
	require.Len(t, resp.Data[0].Data, 1)
	assert.Equal(t, "0.5", resp.Data[0].Data[0].MonitorValue)
	assert.Equal(t, 1, resp.ReadingCount())
}

func TestFetchBatchErrors(t *testing.T) {
	rateLimited, err := json.Marshal(map[string]string{"message": RateLimitMessage})
	require.NoError(t, err)

	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{
			name:    "rate limit is translated",
			status:  http.StatusTooManyRequests,
			body:    string(rateLimited),
			message: RateLimitTranslation,
		},
		{
			name:    "unknown json message kept",
			status:  http.StatusBadRequest,
			body:    `{"message":"bad device"}`,
			message: "bad device",
		},
		{
			name:    "json without message keeps raw body",
			status:  http.StatusInternalServerError,
			body:    `{"error":"boom"}`,
			message: `{"error":"boom"}`,
		},
		{
			name:    "plain text body",
			status:  http.StatusBadGateway,
			body:    "upstream down",
			message: "upstream down",
		},
		{
			name:    "plain text rate limit is translated",
			status:  http.StatusTooManyRequests,
			body:    RateLimitMessage,
			message: RateLimitTranslation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(server.URL, time.Second)
			resp, err := client.FetchBatch(context.Background(), testDevices(), 0, 1)

			assert.Nil(t, resp)
			var batchErr *BatchError
			require.True(t, errors.As(err, &batchErr))
			assert.Equal(t, tt.status, batchErr.StatusCode)
			assert.Equal(t, tt.message, batchErr.Message)
		})
	}
}

func TestBatchErrorMessage(t *testing.T) {
	err := &BatchError{StatusCode: 429, Message: RateLimitTranslation}
	assert.Equal(t, "main stream batch failed: 429 "+RateLimitTranslation, err.Error())
}

func TestFetchBatchInvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>"))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	_, err := client.FetchBatch(context.Background(), testDevices(), 0, 1)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse batch response")
}

func TestFetchBatchTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewClient(server.URL, time.Second)
	_, err := client.FetchBatch(context.Background(), testDevices(), 0, 1)

	require.Error(t, err)
	var batchErr *BatchError
	assert.False(t, errors.As(err, &batchErr))
}

func TestFetchBatchContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient(server.URL, time.Second)
	_, err := client.FetchBatch(ctx, testDevices(), 0, 1)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestBatchResponseUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		nilData bool
		blocks  int
	}{
		{name: "missing data", body: `{"code":200}`, nilData: true},
		{name: "null data", body: `{"data":null}`, nilData: true},
		{name: "object data", body: `{"data":{"deviceId":"D1"}}`, nilData: true},
		{name: "string data", body: `{"data":"none"}`, nilData: true},
		{name: "empty array", body: `{"data":[]}`, blocks: 0},
		{name: "two blocks", body: `{"data":[{"deviceId":"D1","data":[]},{"deviceId":"D2"}]}`, blocks: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp BatchResponse
			require.NoError(t, json.Unmarshal([]byte(tt.body), &resp))

			if tt.nilData {
				assert.Nil(t, resp.Data)
				return
			}
			require.NotNil(t, resp.Data)
			assert.Len(t, resp.Data, tt.blocks)
		})
	}
}

func TestFetchLatest(t *testing.T) {
	var received LatestRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/latest", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		_, _ = w.Write([]byte(`{"code":200,"data":[{"deviceId":"D1","data":[]},{"deviceId":"D1","data":[{"monitorTime":"2024-01-01 10:00:00","monitorValue":"1.2"}]}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	latest, err := client.FetchLatest(context.Background(), testDevices()[0])

	require.NoError(t, err)
	assert.Equal(t, LatestRequest{DeviceID: "D1", DeviceSecretKey: "k1", MonitorItem: "rain"}, received)
	assert.Equal(t, 200, latest.Code)
	assert.Equal(t, "1.2", latest.MonitorValue)
	assert.Equal(t, "2024-01-01 10:00:00", latest.MonitorTime)
	assert.False(t, latest.Empty())
}

func TestFetchLatestNoReadings(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":200,"data":[]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	latest, err := client.FetchLatest(context.Background(), testDevices()[0])

	require.NoError(t, err)
	assert.True(t, latest.Empty())
}

func TestFetchLatestFailureSentinel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("down"))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	latest, err := client.FetchLatest(context.Background(), testDevices()[0])

	require.NoError(t, err)
	assert.Equal(t, &LatestResponse{Code: http.StatusServiceUnavailable}, latest)
	assert.True(t, latest.Empty())
}

func TestTranslateMessage(t *testing.T) {
	assert.Equal(t, RateLimitTranslation, TranslateMessage(RateLimitMessage))
	assert.Equal(t, "something else", TranslateMessage("something else"))
	assert.Equal(t, "", TranslateMessage(""))
}
