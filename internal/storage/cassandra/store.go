// Package cassandra provides a Cassandra implementation of the storage.Store
// interface.
package cassandra

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gocql/gocql"
	"github.com/jwulff/mainstream-sync/internal/domain"
	"github.com/jwulff/mainstream-sync/internal/storage"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
)

// DriverName is the storage.driver value selecting this package.
const DriverName = "cassandra"

// Options are the cassandra driver options.
type Options struct {
	Hosts            []string      `mapstructure:"hosts"`
	Keyspace         string        `mapstructure:"keyspace"`
	WriteConsistency string        `mapstructure:"write_consistency"`
	ReadConsistency  string        `mapstructure:"read_consistency"`
	Timeout          time.Duration `mapstructure:"timeout"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
	CreateSchema     bool          `mapstructure:"create_schema"`
}

func init() {
	storage.Register(DriverName, func(ctx context.Context, options map[string]any, logger *zap.Logger) (storage.Store, error) {
		opts, err := decodeOptions(options)
		if err != nil {
			return nil, err
		}
		return Open(ctx, opts, logger)
	})
}

func decodeOptions(options map[string]any) (Options, error) {
	opts := Options{
		Keyspace:         "mainstream",
		WriteConsistency: "QUORUM",
		ReadConsistency:  "ONE",
		Timeout:          5 * time.Second,
		ConnectTimeout:   10 * time.Second,
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &opts,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return Options{}, fmt.Errorf("failed to create cassandra options decoder: %w", err)
	}
	if err := decoder.Decode(options); err != nil {
		return Options{}, fmt.Errorf("invalid cassandra options: %w", err)
	}
	if len(opts.Hosts) == 0 {
		return Options{}, errors.New("cassandra driver requires at least one host")
	}
	return opts, nil
}

// ParseConsistency converts a consistency name such as LOCAL_QUORUM.
func ParseConsistency(value string) (gocql.Consistency, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "ONE":
		return gocql.One, nil
	case "TWO":
		return gocql.Two, nil
	case "THREE":
		return gocql.Three, nil
	case "QUORUM":
		return gocql.Quorum, nil
	case "ALL":
		return gocql.All, nil
	case "LOCAL_QUORUM":
		return gocql.LocalQuorum, nil
	case "LOCAL_ONE":
		return gocql.LocalOne, nil
	default:
		return gocql.Any, fmt.Errorf("unknown consistency level: %s", value)
	}
}

// Store is a gocql backed implementation of storage.Store.
type Store struct {
	session *gocql.Session
	write   gocql.Consistency
	read    gocql.Consistency
	logger  *zap.Logger
}

// Open connects to the cluster.
func Open(ctx context.Context, opts Options, logger *zap.Logger) (*Store, error) {
	write, err := ParseConsistency(opts.WriteConsistency)
	if err != nil {
		return nil, err
	}
	read, err := ParseConsistency(opts.ReadConsistency)
	if err != nil {
		return nil, err
	}

	if opts.CreateSchema {
		if err := createSchema(ctx, opts); err != nil {
			return nil, err
		}
	}

	cluster := newCluster(opts)
	cluster.Keyspace = opts.Keyspace
	cluster.Consistency = write

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	logger.Info("opened cassandra store",
		zap.Strings("hosts", opts.Hosts),
		zap.String("keyspace", opts.Keyspace),
		zap.String("write_consistency", write.String()),
		zap.String("read_consistency", read.String()))

	return &Store{session: session, write: write, read: read, logger: logger}, nil
}

func newCluster(opts Options) *gocql.ClusterConfig {
	cluster := gocql.NewCluster(opts.Hosts...)
	cluster.ProtoVersion = 4
	cluster.Timeout = opts.Timeout
	cluster.ConnectTimeout = opts.ConnectTimeout
	cluster.PoolConfig.HostSelectionPolicy = gocql.TokenAwareHostPolicy(gocql.RoundRobinHostPolicy())
	cluster.RetryPolicy = &gocql.SimpleRetryPolicy{NumRetries: 1}
	cluster.ReconnectionPolicy = &gocql.ExponentialReconnectionPolicy{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
	return cluster
}

// createSchema runs the DDL from a keyspace-less session.
func createSchema(ctx context.Context, opts Options) error {
	session, err := newCluster(opts).CreateSession()
	if err != nil {
		return fmt.Errorf("failed to create schema session: %w", err)
	}
	defer session.Close()

	for _, stmt := range schemaStatements(opts.Keyspace) {
		if err := session.Query(stmt).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// schemaStatements returns the keyspace and table DDL.
func schemaStatements(keyspace string) []string {
	return []string{
		fmt.Sprintf(`CREATE KEYSPACE IF NOT EXISTS %s
			WITH replication = {'class': 'SimpleStrategy', 'replication_factor': 1}`, keyspace),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.devices (
			device_id text PRIMARY KEY,
			device_key text,
			monitor_item text,
			custom_name text,
			device_name text,
			latitude text,
			longitude text
		)`, keyspace),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.device_data (
			device_id text,
			monitor_time text,
			monitor_item text,
			monitor_value text,
			PRIMARY KEY ((device_id), monitor_time)
		) WITH CLUSTERING ORDER BY (monitor_time ASC)`, keyspace),
	}
}

// Close closes the session.
func (s *Store) Close() error {
	if s.session != nil {
		s.session.Close()
	}
	return nil
}

// Device methods

func (s *Store) ListDevices(ctx context.Context) ([]domain.Registration, error) {
	iter := s.session.Query(`
		SELECT device_id, device_key, monitor_item, custom_name, device_name, latitude, longitude
		FROM devices`).Consistency(s.read).WithContext(ctx).Iter()

	var regs []domain.Registration
	var reg domain.Registration
	for iter.Scan(&reg.DeviceID, &reg.DeviceKey, &reg.MonitorItem, &reg.CustomName, &reg.DeviceName, &reg.Latitude, &reg.Longitude) {
		regs = append(regs, reg)
		reg = domain.Registration{}
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i].DeviceID < regs[j].DeviceID })
	return regs, nil
}

func (s *Store) SaveDevice(ctx context.Context, reg domain.Registration) error {
	return s.session.Query(`
		INSERT INTO devices (device_id, device_key, monitor_item, custom_name, device_name, latitude, longitude)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		reg.DeviceID, reg.DeviceKey, reg.MonitorItem, reg.CustomName, reg.DeviceName, reg.Latitude, reg.Longitude,
	).Consistency(s.write).WithContext(ctx).Exec()
}

func (s *Store) GetDevice(ctx context.Context, id string) (domain.Registration, error) {
	var reg domain.Registration
	err := s.session.Query(`
		SELECT device_id, device_key, monitor_item, custom_name, device_name, latitude, longitude
		FROM devices WHERE device_id = ?`, id,
	).Consistency(s.read).WithContext(ctx).Scan(
		&reg.DeviceID, &reg.DeviceKey, &reg.MonitorItem, &reg.CustomName, &reg.DeviceName, &reg.Latitude, &reg.Longitude)
	if errors.Is(err, gocql.ErrNotFound) {
		return domain.Registration{}, storage.ErrNotFound{Resource: "device", ID: id}
	}
	if err != nil {
		return domain.Registration{}, err
	}
	return reg, nil
}

func (s *Store) DeleteDevice(ctx context.Context, id string) error {
	applied, err := s.session.Query(`DELETE FROM devices WHERE device_id = ? IF EXISTS`, id).
		WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return err
	}
	if !applied {
		return storage.ErrNotFound{Resource: "device", ID: id}
	}
	return nil
}

// Telemetry methods

// UpsertTelemetry writes each row with a lightweight transaction so an
// existing (device, time) pair keeps its first value.
func (s *Store) UpsertTelemetry(ctx context.Context, rows []domain.TelemetryRow) (int64, error) {
	var inserted int64
	for _, row := range rows {
		applied, err := s.session.Query(`
			INSERT INTO device_data (device_id, monitor_time, monitor_item, monitor_value)
			VALUES (?, ?, ?, ?) IF NOT EXISTS`,
			row.DeviceID, row.MonitorTime, row.MonitorItem, row.MonitorValue,
		).SerialConsistency(gocql.LocalSerial).Consistency(s.write).WithContext(ctx).MapScanCAS(map[string]interface{}{})
		if err != nil {
			return inserted, fmt.Errorf("failed to insert %s: %w", row.Key(), err)
		}
		if applied {
			inserted++
		}
	}
	return inserted, nil
}

func (s *Store) QueryTelemetry(ctx context.Context, deviceID, since, until string) ([]domain.TelemetryRow, error) {
	query, args := telemetryQuery(deviceID, since, until)
	iter := s.session.Query(query, args...).Consistency(s.read).WithContext(ctx).PageSize(1000).Iter()

	var rows []domain.TelemetryRow
	var row domain.TelemetryRow
	for iter.Scan(&row.DeviceID, &row.MonitorTime, &row.MonitorItem, &row.MonitorValue) {
		rows = append(rows, row)
		row = domain.TelemetryRow{}
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return rows, nil
}

func telemetryQuery(deviceID, since, until string) (string, []any) {
	query := `SELECT device_id, monitor_time, monitor_item, monitor_value FROM device_data WHERE device_id = ?`
	args := []any{deviceID}
	if since != "" {
		query += ` AND monitor_time >= ?`
		args = append(args, since)
	}
	if until != "" {
		query += ` AND monitor_time <= ?`
		args = append(args, until)
	}
	return query, args
}

// Verify interface compliance
var _ storage.Store = (*Store)(nil)
