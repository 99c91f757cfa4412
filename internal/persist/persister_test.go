package persist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jwulff/mainstream-sync/internal/domain"
	"github.com/jwulff/mainstream-sync/internal/mainstream"
	"github.com/jwulff/mainstream-sync/internal/storage/sqlite"
	"github.com/jwulff/mainstream-sync/internal/timestamp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) UpsertTelemetry(ctx context.Context, rows []domain.TelemetryRow) (int64, error) {
	args := m.Called(ctx, rows)
	return args.Get(0).(int64), args.Error(1)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Type() string { return "mock" }

func (m *mockPublisher) Publish(ctx context.Context, rows []domain.TelemetryRow) error {
	return m.Called(ctx, rows).Error(0)
}

// pinnedNormalizer fixes now at 2024-01-01 10:30:00 UTC.
func pinnedNormalizer() *timestamp.Normalizer {
	n := timestamp.New(timestamp.DefaultOffset)
	n.Now = func() time.Time { return time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC) }
	return n
}

func batch(blocks ...mainstream.DeviceBlock) *mainstream.BatchResponse {
	if blocks == nil {
		blocks = []mainstream.DeviceBlock{}
	}
	return &mainstream.BatchResponse{Code: 200, Data: blocks}
}

func block(deviceID string, readings ...mainstream.Reading) mainstream.DeviceBlock {
	return mainstream.DeviceBlock{DeviceID: deviceID, Data: readings}
}

func reading(item, at, value string) mainstream.Reading {
	return mainstream.Reading{MonitorItem: item, MonitorTime: at, MonitorValue: value}
}

func TestStoreBatchScenario(t *testing.T) {
	store, err := sqlite.NewMemoryStore()
	require.NoError(t, err)
	defer store.Close()

	p := New(store, pinnedNormalizer(), zap.NewNop())
	result, err := p.StoreBatch(context.Background(), batch(
		block("D1", reading("rain", "2024-01-01 10:00:00", "0.5")),
	))

	require.NoError(t, err)
	assert.Equal(t, Result{Outcome: domain.OutcomeStored, Rows: 1, Inserted: 1}, result)

	rows, err := store.QueryTelemetry(context.Background(), "D1", "", "")
	require.NoError(t, err)
	assert.Equal(t, []domain.TelemetryRow{
		domain.NewTelemetryRow("D1", "rain", "2024-01-01 17:00:00", "0.5"),
	}, rows)
}

func TestStoreBatchIsIdempotent(t *testing.T) {
	store, err := sqlite.NewMemoryStore()
	require.NoError(t, err)
	defer store.Close()

	p := New(store, pinnedNormalizer(), zap.NewNop())
	payload := batch(
		block("D1",
			reading("rain", "2024-01-01 09:00:00", "0.1"),
			reading("rain", "2024-01-01 09:30:00", "0.2"),
		),
		block("D2", reading("temp", "2024-01-01 09:00:00", "28")),
	)

	first, err := p.StoreBatch(context.Background(), payload)
	require.NoError(t, err)
	second, err := p.StoreBatch(context.Background(), payload)
	require.NoError(t, err)

	assert.Equal(t, int64(3), first.Inserted)
	assert.Equal(t, int64(0), second.Inserted)
	assert.Equal(t, domain.OutcomeStored, second.Outcome)

	d1, err := store.QueryTelemetry(context.Background(), "D1", "", "")
	require.NoError(t, err)
	assert.Len(t, d1, 2)
	d2, err := store.QueryTelemetry(context.Background(), "D2", "", "")
	require.NoError(t, err)
	assert.Len(t, d2, 1)
}

func TestStoreBatchMalformed(t *testing.T) {
	tests := []struct {
		name    string
		payload *mainstream.BatchResponse
		message string
	}{
		{name: "nil payload", payload: nil, message: ""},
		{name: "nil data", payload: &mainstream.BatchResponse{Code: 429, Message: mainstream.RateLimitMessage}, message: mainstream.RateLimitTranslation},
		{name: "nil data unknown message", payload: &mainstream.BatchResponse{Message: "oops"}, message: "oops"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.WarnLevel)
			writer := &mockWriter{}
			p := New(writer, pinnedNormalizer(), zap.New(core))

			result, err := p.StoreBatch(context.Background(), tt.payload)

			require.NoError(t, err)
			assert.Equal(t, domain.OutcomeMalformed, result.Outcome)
			writer.AssertNotCalled(t, "UpsertTelemetry", mock.Anything, mock.Anything)

			entries := logs.FilterMessage("batch payload missing data").All()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.message, entries[0].ContextMap()["message"])
		})
	}
}

func TestStoreBatchEmpty(t *testing.T) {
	tests := []struct {
		name    string
		payload *mainstream.BatchResponse
	}{
		{name: "no blocks", payload: batch()},
		{name: "empty blocks", payload: batch(block("D1"), block("D2"))},
		{name: "readings without time or value", payload: batch(block("D1",
			reading("rain", "", "0.5"),
			reading("rain", "2024-01-01 10:00:00", ""),
		))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writer := &mockWriter{}
			p := New(writer, pinnedNormalizer(), zap.NewNop())

			result, err := p.StoreBatch(context.Background(), tt.payload)

			require.NoError(t, err)
			assert.Equal(t, Result{Outcome: domain.OutcomeEmpty}, result)
			writer.AssertNotCalled(t, "UpsertTelemetry", mock.Anything, mock.Anything)
		})
	}
}

func TestStoreBatchSingleWriteCall(t *testing.T) {
	writer := &mockWriter{}
	expected := []domain.TelemetryRow{
		domain.NewTelemetryRow("D1", "rain", "2024-01-01 16:00:00", "1"),
		domain.NewTelemetryRow("D2", "temp", "2024-01-01 16:05:00", "2"),
	}
	writer.On("UpsertTelemetry", mock.Anything, expected).Return(int64(2), nil).Once()

	p := New(writer, pinnedNormalizer(), zap.NewNop())
	result, err := p.StoreBatch(context.Background(), batch(
		block("D1", reading("rain", "2024-01-01 09:00:00", "1"), reading("rain", "", "x")),
		block("D2", reading("temp", "2024-01-01 09:05:00", "2")),
	))

	require.NoError(t, err)
	assert.Equal(t, Result{Outcome: domain.OutcomeStored, Rows: 2, Inserted: 2}, result)
	writer.AssertExpectations(t)
}

func TestStoreBatchWriteFailure(t *testing.T) {
	writer := &mockWriter{}
	writer.On("UpsertTelemetry", mock.Anything, mock.Anything).Return(int64(0), errors.New("disk full"))
	publisher := &mockPublisher{}

	p := New(writer, pinnedNormalizer(), zap.NewNop(), publisher)
	result, err := p.StoreBatch(context.Background(), batch(block("D1", reading("rain", "2024-01-01 09:00:00", "1"))))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, domain.OutcomeStoreFailed, result.Outcome)
	publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestStoreLatest(t *testing.T) {
	writer := &mockWriter{}
	writer.On("UpsertTelemetry", mock.Anything, []domain.TelemetryRow{
		domain.NewTelemetryRow("D1", "rain", "2024-01-01 17:10:00", "3.4"),
	}).Return(int64(1), nil).Once()

	p := New(writer, pinnedNormalizer(), zap.NewNop())
	device := domain.Device{ID: "D1", SecretKey: "k1", MonitorItem: "rain"}
	result, err := p.StoreLatest(context.Background(), device, &mainstream.LatestResponse{
		Code:         200,
		MonitorTime:  "2024-01-01 10:10:00",
		MonitorValue: "3.4",
	})

	require.NoError(t, err)
	assert.Equal(t, Result{Outcome: domain.OutcomeStored, Rows: 1, Inserted: 1}, result)
	writer.AssertExpectations(t)
}

func TestStoreLatestSkipsEmpty(t *testing.T) {
	device := domain.Device{ID: "D1", SecretKey: "k1", MonitorItem: "rain"}

	tests := []struct {
		name    string
		payload *mainstream.LatestResponse
	}{
		{name: "nil", payload: nil},
		{name: "sentinel", payload: &mainstream.LatestResponse{Code: 500}},
		{name: "missing value", payload: &mainstream.LatestResponse{Code: 200, MonitorTime: "2024-01-01 10:00:00"}},
		{name: "missing time", payload: &mainstream.LatestResponse{Code: 200, MonitorValue: "1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writer := &mockWriter{}
			p := New(writer, pinnedNormalizer(), zap.NewNop())

			result, err := p.StoreLatest(context.Background(), device, tt.payload)

			require.NoError(t, err)
			assert.Equal(t, Result{Outcome: domain.OutcomeSkipped}, result)
			writer.AssertNotCalled(t, "UpsertTelemetry", mock.Anything, mock.Anything)
		})
	}
}

func TestPublishersReceiveRows(t *testing.T) {
	writer := &mockWriter{}
	writer.On("UpsertTelemetry", mock.Anything, mock.Anything).Return(int64(1), nil)

	ok := &mockPublisher{}
	ok.On("Publish", mock.Anything, mock.Anything).Return(nil).Once()
	failing := &mockPublisher{}
	failing.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()

	core, logs := observer.New(zapcore.ErrorLevel)
	p := New(writer, pinnedNormalizer(), zap.New(core), failing, ok)

	result, err := p.StoreBatch(context.Background(), batch(block("D1", reading("rain", "2024-01-01 09:00:00", "1"))))

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeStored, result.Outcome)
	ok.AssertExpectations(t)
	failing.AssertExpectations(t)
	assert.Equal(t, 1, logs.FilterMessage("failed to publish rows").Len())
}

func TestNewDefaults(t *testing.T) {
	p := New(&mockWriter{}, nil, nil)

	assert.NotNil(t, p.normalizer)
	assert.Equal(t, timestamp.DefaultOffset, p.normalizer.Offset)
	assert.NotNil(t, p.logger)
}
