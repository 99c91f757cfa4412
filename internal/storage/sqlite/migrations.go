package sqlite

// schema contains the database schema DDL.
const schema = `
-- Device registry
CREATE TABLE IF NOT EXISTS devices (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    device_id TEXT NOT NULL UNIQUE,
    device_key TEXT,
    monitor_item TEXT,
    custom_name TEXT,
    device_name TEXT,
    latitude TEXT,
    longitude TEXT
);

-- Telemetry readings
CREATE TABLE IF NOT EXISTS device_data (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    device_id TEXT NOT NULL,
    monitor_item TEXT,
    monitor_time TEXT NOT NULL,
    monitor_value TEXT,
    UNIQUE(device_id, monitor_time)
);
CREATE INDEX IF NOT EXISTS idx_device_data_time ON device_data(monitor_time);
`
