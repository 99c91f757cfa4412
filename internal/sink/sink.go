// Package sink exports freshly stored telemetry rows to downstream systems.
//
// Sinks are registered by type in an init function and built from the
// enabled entries of the sinks configuration list. Delivery is at least
// once: rows written again in an overlapping window are published again, so
// consumers should key on (deviceId, monitorTime).
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/jwulff/mainstream-sync/internal/domain"
	"go.uber.org/zap"
)

// Sink publishes rows to one downstream system.
type Sink interface {
	Type() string
	Publish(ctx context.Context, rows []domain.TelemetryRow) error
	Close() error
}

// FactoryFunc builds a sink from its options block.
type FactoryFunc func(ctx context.Context, options map[string]any, logger *zap.Logger) (Sink, error)

// Spec is one entry of the sinks configuration list.
type Spec struct {
	Type    string
	Enable  bool
	Options map[string]any
}

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]FactoryFunc)
)

// Register makes a sink type available to New.
func Register(sinkType string, factory FactoryFunc) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[sinkType] = factory
}

// Types returns the registered sink types, sorted.
func Types() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	types := make([]string, 0, len(factories))
	for t := range factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// New builds a single sink.
func New(ctx context.Context, sinkType string, options map[string]any, logger *zap.Logger) (Sink, error) {
	factoriesMu.RLock()
	factory, ok := factories[sinkType]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown sink type %q (registered: %v)", sinkType, Types())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s, err := factory(ctx, options, logger.Named("sink").With(zap.String("sink_type", sinkType)))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s sink: %w", sinkType, err)
	}
	return s, nil
}

// Build creates every enabled sink. On failure the sinks already built are
// closed.
func Build(ctx context.Context, specs []Spec, logger *zap.Logger) ([]Sink, error) {
	var sinks []Sink
	for _, spec := range specs {
		if !spec.Enable {
			continue
		}
		s, err := New(ctx, spec.Type, spec.Options, logger)
		if err != nil {
			CloseAll(sinks, logger)
			return nil, err
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}

// CloseAll closes every sink, logging failures.
func CloseAll(sinks []Sink, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			logger.Warn("failed to close sink", zap.String("sink_type", s.Type()), zap.Error(err))
		}
	}
}

// Message is the JSON document published for a row.
type Message struct {
	DeviceID     string `json:"deviceId"`
	MonitorItem  string `json:"monitorItem"`
	MonitorTime  string `json:"monitorTime"`
	MonitorValue string `json:"monitorValue"`
}

func encodeRow(row domain.TelemetryRow) ([]byte, error) {
	return json.Marshal(Message{
		DeviceID:     row.DeviceID,
		MonitorItem:  row.MonitorItem,
		MonitorTime:  row.MonitorTime,
		MonitorValue: row.MonitorValue,
	})
}
