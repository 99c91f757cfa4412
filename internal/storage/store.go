// Package storage provides storage abstractions for the sync engine.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jwulff/mainstream-sync/internal/domain"
	"go.uber.org/zap"
)

// Store is the interface for persistent storage.
type Store interface {
	// Device registry
	ListDevices(ctx context.Context) ([]domain.Registration, error)
	SaveDevice(ctx context.Context, reg domain.Registration) error
	GetDevice(ctx context.Context, id string) (domain.Registration, error)
	DeleteDevice(ctx context.Context, id string) error

	// Telemetry. UpsertTelemetry never overwrites an existing
	// (device, time) pair and reports how many rows were inserted.
	UpsertTelemetry(ctx context.Context, rows []domain.TelemetryRow) (int64, error)
	QueryTelemetry(ctx context.Context, deviceID, since, until string) ([]domain.TelemetryRow, error)

	// Lifecycle
	Close() error
}

// FactoryFunc opens a store from driver specific options.
type FactoryFunc func(ctx context.Context, options map[string]any, logger *zap.Logger) (Store, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]FactoryFunc)
)

// Register makes a driver available to Open.
func Register(driver string, factory FactoryFunc) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[driver] = factory
}

// Drivers returns the registered driver names, sorted.
func Drivers() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open opens a store with the named driver.
func Open(ctx context.Context, driver string, options map[string]any, logger *zap.Logger) (Store, error) {
	factoriesMu.RLock()
	factory, ok := factories[driver]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown storage driver %q (registered: %v)", driver, Drivers())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	store, err := factory(ctx, options, logger.Named("storage"))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", driver, err)
	}
	return store, nil
}

// ErrNotFound is returned when a record is not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e ErrNotFound) Error() string {
	return e.Resource + " not found: " + e.ID
}

// IsNotFound checks if an error is a not found error.
func IsNotFound(err error) bool {
	var notFound ErrNotFound
	return errors.As(err, &notFound)
}
