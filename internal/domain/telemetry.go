package domain

// TelemetryRow is a persisted reading. The pair (DeviceID, MonitorTime) is
// unique; a second write for the same pair is discarded.
type TelemetryRow struct {
	DeviceID     string
	MonitorItem  string
	MonitorTime  string
	MonitorValue string
}

// NewTelemetryRow creates a telemetry row.
func NewTelemetryRow(deviceID, monitorItem, monitorTime, monitorValue string) TelemetryRow {
	return TelemetryRow{
		DeviceID:     deviceID,
		MonitorItem:  monitorItem,
		MonitorTime:  monitorTime,
		MonitorValue: monitorValue,
	}
}

// Key returns the uniqueness key of the row.
func (r TelemetryRow) Key() string {
	return r.DeviceID + "|" + r.MonitorTime
}

// Outcome classifies the result of a sync step.
type Outcome string

const (
	OutcomeStored      Outcome = "stored"
	OutcomeEmpty       Outcome = "empty"
	OutcomeMalformed   Outcome = "malformed"
	OutcomeSkipped     Outcome = "skipped"
	OutcomeNoDevices   Outcome = "no_devices"
	OutcomeFetchFailed Outcome = "fetch_failed"
	OutcomeStoreFailed Outcome = "store_failed"
	OutcomeBusy        Outcome = "busy"
)

// Failed reports whether the outcome counts as a failed cycle.
func (o Outcome) Failed() bool {
	return o == OutcomeFetchFailed || o == OutcomeStoreFailed
}
