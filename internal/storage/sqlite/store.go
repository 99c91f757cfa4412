// Package sqlite provides a SQLite implementation of the storage.Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jwulff/mainstream-sync/internal/domain"
	"github.com/jwulff/mainstream-sync/internal/storage"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

// DriverName is the storage.driver value selecting this package.
const DriverName = "sqlite"

// DefaultPath is the database file used when no path option is set.
const DefaultPath = "mainstream.db"

// Options are the sqlite driver options.
type Options struct {
	Path string `mapstructure:"path"`
}

func init() {
	storage.Register(DriverName, func(ctx context.Context, options map[string]any, logger *zap.Logger) (storage.Store, error) {
		var opts Options
		if err := mapstructure.Decode(options, &opts); err != nil {
			return nil, fmt.Errorf("invalid sqlite options: %w", err)
		}
		if opts.Path == "" {
			opts.Path = DefaultPath
		}
		logger.Info("opening sqlite store", zap.String("path", opts.Path))
		return NewFileStore(opts.Path)
	})
}

// Store is a SQLite implementation of storage.Store.
type Store struct {
	db *sql.DB
}

// NewMemoryStore creates an in-memory SQLite store.
func NewMemoryStore() (*Store, error) {
	return newStore(":memory:")
}

// NewFileStore creates a file-based SQLite store.
func NewFileStore(path string) (*Store, error) {
	return newStore(path)
}

func newStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every pooled connection to ":memory:" would see its own database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Device methods

func (s *Store) ListDevices(ctx context.Context) ([]domain.Registration, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT device_id, device_key, monitor_item, custom_name, device_name, latitude, longitude
		FROM devices ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var regs []domain.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}

func (s *Store) SaveDevice(ctx context.Context, reg domain.Registration) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO devices (device_id, device_key, monitor_item, custom_name, device_name, latitude, longitude)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			device_key = excluded.device_key,
			monitor_item = excluded.monitor_item,
			custom_name = excluded.custom_name,
			device_name = excluded.device_name,
			latitude = excluded.latitude,
			longitude = excluded.longitude
	`, reg.DeviceID, nullable(reg.DeviceKey), nullable(reg.MonitorItem), nullable(reg.CustomName),
		nullable(reg.DeviceName), nullable(reg.Latitude), nullable(reg.Longitude))
	return err
}

func (s *Store) GetDevice(ctx context.Context, id string) (domain.Registration, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT device_id, device_key, monitor_item, custom_name, device_name, latitude, longitude
		FROM devices WHERE device_id = ?
	`, id)
	reg, err := scanRegistration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Registration{}, storage.ErrNotFound{Resource: "device", ID: id}
	}
	return reg, err
}

func (s *Store) DeleteDevice(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM devices WHERE device_id = ?", id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound{Resource: "device", ID: id}
	}
	return nil
}

// Telemetry methods

func (s *Store) UpsertTelemetry(ctx context.Context, rows []domain.TelemetryRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO device_data (device_id, monitor_item, monitor_time, monitor_value)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	var inserted int64
	for _, row := range rows {
		result, err := stmt.ExecContext(ctx, row.DeviceID, row.MonitorItem, row.MonitorTime, row.MonitorValue)
		if err != nil {
			return 0, fmt.Errorf("failed to insert %s: %w", row.Key(), err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

// QueryTelemetry returns a device's rows ordered by time. Empty bounds are
// open; both bounds are inclusive canonical time strings.
func (s *Store) QueryTelemetry(ctx context.Context, deviceID, since, until string) ([]domain.TelemetryRow, error) {
	query := `
		SELECT device_id, monitor_item, monitor_time, monitor_value FROM device_data
		WHERE device_id = ?`
	args := []any{deviceID}
	if since != "" {
		query += " AND monitor_time >= ?"
		args = append(args, since)
	}
	if until != "" {
		query += " AND monitor_time <= ?"
		args = append(args, until)
	}
	query += " ORDER BY monitor_time ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TelemetryRow
	for rows.Next() {
		var row domain.TelemetryRow
		var item, value sql.NullString
		if err := rows.Scan(&row.DeviceID, &item, &row.MonitorTime, &value); err != nil {
			return nil, err
		}
		row.MonitorItem = item.String
		row.MonitorValue = value.String
		result = append(result, row)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRegistration(row scanner) (domain.Registration, error) {
	var reg domain.Registration
	var key, item, customName, deviceName, lat, lon sql.NullString
	if err := row.Scan(&reg.DeviceID, &key, &item, &customName, &deviceName, &lat, &lon); err != nil {
		return domain.Registration{}, err
	}
	reg.DeviceKey = key.String
	reg.MonitorItem = item.String
	reg.CustomName = customName.String
	reg.DeviceName = deviceName.String
	reg.Latitude = lat.String
	reg.Longitude = lon.String
	return reg, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Verify interface compliance
var _ storage.Store = (*Store)(nil)
