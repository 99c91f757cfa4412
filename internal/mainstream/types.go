package mainstream

import (
	"bytes"
	"encoding/json"
)

// DeviceCredential identifies a device in a batch request.
type DeviceCredential struct {
	DeviceID        string `json:"deviceId"`
	DeviceSecretKey string `json:"deviceSecretKey"`
}

// BatchRequest is the body of POST {base}/batch.
type BatchRequest struct {
	DeviceList  []DeviceCredential `json:"deviceList"`
	MonitorItem string             `json:"monitorItem"`
	Start       int64              `json:"start"`
	End         int64              `json:"end"`
}

// LatestRequest is the body of POST {base}/latest.
type LatestRequest struct {
	DeviceID        string `json:"deviceId"`
	DeviceSecretKey string `json:"deviceSecretKey"`
	MonitorItem     string `json:"monitorItem"`
}

// Reading is a single upstream sample.
type Reading struct {
	MonitorItem  string `json:"monitorItem"`
	MonitorTime  string `json:"monitorTime"`
	MonitorValue string `json:"monitorValue"`
	NodeID       string `json:"nodeId,omitempty"`
}

// DeviceBlock groups the readings of one device.
type DeviceBlock struct {
	DeviceID     string    `json:"deviceId"`
	Data         []Reading `json:"data"`
	DataStatus   int       `json:"dataStatus,omitempty"`
	DeviceStatus int       `json:"deviceStatus,omitempty"`
	ID           int       `json:"id,omitempty"`
	CustomName   string    `json:"customname,omitempty"`
	Name         string    `json:"name,omitempty"`
	SensorNumber int       `json:"sensorNumber,omitempty"`
}

// BatchResponse is the upstream envelope. Data is nil when the payload has no
// usable data array.
type BatchResponse struct {
	Code    int           `json:"code"`
	Message string        `json:"message"`
	Status  string        `json:"status"`
	Data    []DeviceBlock `json:"data"`
}

// UnmarshalJSON decodes the envelope, leaving Data nil instead of failing
// when the data field is missing or is not an array of blocks.
func (r *BatchResponse) UnmarshalJSON(b []byte) error {
	var raw struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Status  string          `json:"status"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	r.Code = raw.Code
	r.Message = raw.Message
	r.Status = raw.Status
	r.Data = nil

	data := bytes.TrimSpace(raw.Data)
	if len(data) == 0 || data[0] != '[' {
		return nil
	}
	var blocks []DeviceBlock
	if err := json.Unmarshal(data, &blocks); err != nil {
		return nil
	}
	if blocks == nil {
		blocks = []DeviceBlock{}
	}
	r.Data = blocks
	return nil
}

// First returns the first reading of the first block that has any.
func (r *BatchResponse) First() (Reading, bool) {
	if r == nil {
		return Reading{}, false
	}
	for _, block := range r.Data {
		if len(block.Data) > 0 {
			return block.Data[0], true
		}
	}
	return Reading{}, false
}

// ReadingCount returns the number of readings across all blocks.
func (r *BatchResponse) ReadingCount() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, block := range r.Data {
		n += len(block.Data)
	}
	return n
}

// LatestResponse is the representative latest sample of one device. A failed
// call yields a sentinel with the HTTP status as Code and empty strings.
type LatestResponse struct {
	Code         int    `json:"code"`
	MonitorValue string `json:"monitorValue"`
	MonitorTime  string `json:"monitorTime"`
}

// Empty reports whether the response carries no usable sample.
func (r *LatestResponse) Empty() bool {
	return r == nil || r.MonitorTime == "" || r.MonitorValue == ""
}
