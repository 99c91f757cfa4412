package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewSyncState(t *testing.T) {
	state := NewSyncState()

	assert.False(t, state.Enabled)
	assert.True(t, state.LastRun.IsZero())
	assert.True(t, state.LastSuccess.IsZero())
	assert.Zero(t, state.ConsecutiveErrors)
	assert.Empty(t, state.LastError)
}

func TestSyncStateRecordSuccess(t *testing.T) {
	state := NewSyncState()
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	state.RecordFailure(at, OutcomeFetchFailed, "timeout")
	state.RecordSuccess(at.Add(time.Minute), OutcomeStored, 12)

	assert.Equal(t, at.Add(time.Minute), state.LastRun)
	assert.Equal(t, at.Add(time.Minute), state.LastSuccess)
	assert.Equal(t, OutcomeStored, state.LastOutcome)
	assert.Equal(t, int64(12), state.RowsWritten)
	assert.Equal(t, int64(2), state.Cycles)
	assert.Zero(t, state.ConsecutiveErrors)
	assert.Empty(t, state.LastError)
}

func TestSyncStateRecordFailure(t *testing.T) {
	state := NewSyncState()
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	state.RecordFailure(at, OutcomeFetchFailed, "API timeout")
	assert.Equal(t, 1, state.ConsecutiveErrors)
	assert.Equal(t, "API timeout", state.LastError)

	state.RecordFailure(at, OutcomeStoreFailed, "database locked")
	assert.Equal(t, 2, state.ConsecutiveErrors)
	assert.Equal(t, "database locked", state.LastError)
	assert.Equal(t, OutcomeStoreFailed, state.LastOutcome)
	assert.True(t, state.LastSuccess.IsZero())
}

func TestSyncStateHealthy(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	state := SyncState{Enabled: true, LastSuccess: now.Add(-10 * time.Minute)}
	assert.True(t, state.Healthy(now, time.Hour))
	assert.False(t, state.Healthy(now, 5*time.Minute))

	state.Enabled = false
	assert.False(t, state.Healthy(now, time.Hour))

	assert.False(t, SyncState{Enabled: true}.Healthy(now, time.Hour))
}
