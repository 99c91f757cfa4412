// Package mysql provides a MySQL implementation of the storage.Store
// interface on top of gorm.
package mysql

import (
	"context"
	"errors"
	"fmt"

	"github.com/jwulff/mainstream-sync/internal/domain"
	"github.com/jwulff/mainstream-sync/internal/storage"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// DriverName is the storage.driver value selecting this package.
const DriverName = "mysql"

// DefaultBatchSize bounds the rows per INSERT statement.
const DefaultBatchSize = 500

// Options are the mysql driver options.
type Options struct {
	DSN         string `mapstructure:"dsn"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
	BatchSize   int    `mapstructure:"batch_size"`
}

func init() {
	storage.Register(DriverName, func(ctx context.Context, options map[string]any, logger *zap.Logger) (storage.Store, error) {
		var opts Options
		if err := mapstructure.Decode(options, &opts); err != nil {
			return nil, fmt.Errorf("invalid mysql options: %w", err)
		}
		if opts.DSN == "" {
			return nil, errors.New("mysql driver requires a dsn option")
		}
		return Open(ctx, opts, logger)
	})
}

// Store is a gorm backed implementation of storage.Store.
type Store struct {
	db        *gorm.DB
	batchSize int
	logger    *zap.Logger
}

// Open connects to MySQL and optionally creates the schema.
func Open(ctx context.Context, opts Options, logger *zap.Logger) (*Store, error) {
	db, err := gorm.Open(gormmysql.Open(opts.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	store := New(db, opts.BatchSize, logger)
	if opts.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
	}
	logger.Info("opened mysql store", zap.Bool("auto_migrate", opts.AutoMigrate))
	return store, nil
}

// New wraps an existing gorm handle.
func New(db *gorm.DB, batchSize int, logger *zap.Logger) *Store {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, batchSize: batchSize, logger: logger}
}

// Migrate creates the devices and device_data tables when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&deviceModel{}, &dataModel{}); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Device methods

func (s *Store) ListDevices(ctx context.Context) ([]domain.Registration, error) {
	var models []deviceModel
	if err := s.db.WithContext(ctx).Order("id").Find(&models).Error; err != nil {
		return nil, err
	}
	regs := make([]domain.Registration, len(models))
	for i, m := range models {
		regs[i] = m.registration()
	}
	return regs, nil
}

func (s *Store) SaveDevice(ctx context.Context, reg domain.Registration) error {
	model := newDeviceModel(reg)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "deviceId"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"deviceKey", "monitorItem", "customName", "deviceName", "latitude", "longitude",
		}),
	}).Create(&model).Error
}

func (s *Store) GetDevice(ctx context.Context, id string) (domain.Registration, error) {
	var model deviceModel
	err := s.db.WithContext(ctx).Where("deviceId = ?", id).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Registration{}, storage.ErrNotFound{Resource: "device", ID: id}
	}
	if err != nil {
		return domain.Registration{}, err
	}
	return model.registration(), nil
}

func (s *Store) DeleteDevice(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("deviceId = ?", id).Delete(&deviceModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrNotFound{Resource: "device", ID: id}
	}
	return nil
}

// Telemetry methods

func (s *Store) UpsertTelemetry(ctx context.Context, rows []domain.TelemetryRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	models := newDataModels(rows)
	result := insertIgnore(s.db.WithContext(ctx)).CreateInBatches(&models, s.batchSize)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to insert telemetry: %w", result.Error)
	}
	s.logger.Debug("telemetry upserted", zap.Int("rows", len(rows)), zap.Int64("inserted", result.RowsAffected))
	return result.RowsAffected, nil
}

// QueryTelemetry returns a device's rows ordered by time. Empty bounds are
// open; both bounds are inclusive.
func (s *Store) QueryTelemetry(ctx context.Context, deviceID, since, until string) ([]domain.TelemetryRow, error) {
	var models []dataModel
	if err := telemetryQuery(s.db.WithContext(ctx), deviceID, since, until).Find(&models).Error; err != nil {
		return nil, err
	}

	var rows []domain.TelemetryRow
	for _, m := range models {
		rows = append(rows, m.row())
	}
	return rows, nil
}

func telemetryQuery(db *gorm.DB, deviceID, since, until string) *gorm.DB {
	query := db.Where("deviceId = ?", deviceID)
	if since != "" {
		query = query.Where("monitorTime >= ?", since)
	}
	if until != "" {
		query = query.Where("monitorTime <= ?", until)
	}
	return query.Order("monitorTime ASC")
}

// insertIgnore turns a conflicting insert into a no-op. MySQL renders it as
// ON DUPLICATE KEY UPDATE on the primary key, leaving the stored row intact.
func insertIgnore(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.OnConflict{DoNothing: true})
}

// Verify interface compliance
var _ storage.Store = (*Store)(nil)
