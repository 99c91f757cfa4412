package domain

import "time"

// SyncState stores the bookkeeping of the sync loop.
type SyncState struct {
	Enabled           bool      `json:"enabled"`
	LastRun           time.Time `json:"lastRun"`
	LastSuccess       time.Time `json:"lastSuccess"`
	LastOutcome       Outcome   `json:"lastOutcome,omitempty"`
	ConsecutiveErrors int       `json:"consecutiveErrors"`
	LastError         string    `json:"lastError,omitempty"`
	RowsWritten       int64     `json:"rowsWritten"`
	Cycles            int64     `json:"cycles"`
}

// NewSyncState creates an empty sync state.
func NewSyncState() *SyncState {
	return &SyncState{}
}

// RecordSuccess records a cycle that did not fail. Skipped cycles (no devices,
// empty payloads) count as successes.
func (s *SyncState) RecordSuccess(at time.Time, outcome Outcome, rows int64) {
	s.LastRun = at
	s.LastSuccess = at
	s.LastOutcome = outcome
	s.RowsWritten += rows
	s.Cycles++
	s.ConsecutiveErrors = 0
	s.LastError = ""
}

// RecordFailure records a failed cycle.
func (s *SyncState) RecordFailure(at time.Time, outcome Outcome, errMsg string) {
	s.LastRun = at
	s.LastOutcome = outcome
	s.Cycles++
	s.ConsecutiveErrors++
	s.LastError = errMsg
}

// Healthy reports whether the loop is enabled and succeeded within maxAge.
func (s SyncState) Healthy(now time.Time, maxAge time.Duration) bool {
	if !s.Enabled || s.LastSuccess.IsZero() {
		return false
	}
	return now.Sub(s.LastSuccess) <= maxAge
}
