package mysql

import (
	"database/sql"

	"github.com/jwulff/mainstream-sync/internal/domain"
)

// deviceModel maps the devices registry table. Column names follow the
// camelCase schema shared with the dashboard backend.
type deviceModel struct {
	ID          uint           `gorm:"column:id;primaryKey;autoIncrement"`
	DeviceID    string         `gorm:"column:deviceId;type:varchar(255);uniqueIndex"`
	DeviceKey   sql.NullString `gorm:"column:deviceKey;type:varchar(255)"`
	MonitorItem sql.NullString `gorm:"column:monitorItem;type:varchar(255)"`
	CustomName  sql.NullString `gorm:"column:customName;type:varchar(255)"`
	DeviceName  sql.NullString `gorm:"column:deviceName;type:varchar(255)"`
	Latitude    sql.NullString `gorm:"column:latitude;type:varchar(100)"`
	Longitude   sql.NullString `gorm:"column:longitude;type:varchar(100)"`
}

func (deviceModel) TableName() string { return "devices" }

// dataModel maps the device_data telemetry table.
type dataModel struct {
	ID           uint           `gorm:"column:id;primaryKey;autoIncrement"`
	DeviceID     string         `gorm:"column:deviceId;type:varchar(255);uniqueIndex:unique_device_time"`
	MonitorItem  sql.NullString `gorm:"column:monitorItem;type:varchar(255)"`
	MonitorTime  string         `gorm:"column:monitorTime;type:varchar(100);uniqueIndex:unique_device_time"`
	MonitorValue sql.NullString `gorm:"column:monitorValue;type:varchar(100)"`
}

func (dataModel) TableName() string { return "device_data" }

func newDeviceModel(reg domain.Registration) deviceModel {
	return deviceModel{
		DeviceID:    reg.DeviceID,
		DeviceKey:   nullable(reg.DeviceKey),
		MonitorItem: nullable(reg.MonitorItem),
		CustomName:  nullable(reg.CustomName),
		DeviceName:  nullable(reg.DeviceName),
		Latitude:    nullable(reg.Latitude),
		Longitude:   nullable(reg.Longitude),
	}
}

func (m deviceModel) registration() domain.Registration {
	return domain.Registration{
		DeviceID:    m.DeviceID,
		DeviceKey:   m.DeviceKey.String,
		MonitorItem: m.MonitorItem.String,
		CustomName:  m.CustomName.String,
		DeviceName:  m.DeviceName.String,
		Latitude:    m.Latitude.String,
		Longitude:   m.Longitude.String,
	}
}

func newDataModels(rows []domain.TelemetryRow) []dataModel {
	models := make([]dataModel, len(rows))
	for i, row := range rows {
		models[i] = dataModel{
			DeviceID:     row.DeviceID,
			MonitorItem:  nullable(row.MonitorItem),
			MonitorTime:  row.MonitorTime,
			MonitorValue: nullable(row.MonitorValue),
		}
	}
	return models
}

func (m dataModel) row() domain.TelemetryRow {
	return domain.NewTelemetryRow(m.DeviceID, m.MonitorItem.String, m.MonitorTime, m.MonitorValue.String)
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
