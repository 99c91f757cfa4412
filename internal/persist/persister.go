// Package persist turns upstream payloads into stored telemetry rows.
package persist

import (
	"context"
	"fmt"

	"github.com/jwulff/mainstream-sync/internal/domain"
	"github.com/jwulff/mainstream-sync/internal/mainstream"
	"github.com/jwulff/mainstream-sync/internal/timestamp"
	"go.uber.org/zap"
)

// Writer inserts telemetry rows, ignoring rows whose (device, time) pair
// already exists.
type Writer interface {
	UpsertTelemetry(ctx context.Context, rows []domain.TelemetryRow) (int64, error)
}

// Publisher receives rows after they have been written.
type Publisher interface {
	Type() string
	Publish(ctx context.Context, rows []domain.TelemetryRow) error
}

// Result describes what a store call did.
type Result struct {
	Outcome  domain.Outcome
	Rows     int
	Inserted int64
}

// Persister normalizes readings and writes them through a Writer.
type Persister struct {
	writer     Writer
	normalizer *timestamp.Normalizer
	publishers []Publisher
	logger     *zap.Logger
}

// New creates a persister.
func New(writer Writer, normalizer *timestamp.Normalizer, logger *zap.Logger, publishers ...Publisher) *Persister {
	if normalizer == nil {
		normalizer = timestamp.New(timestamp.DefaultOffset)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Persister{
		writer:     writer,
		normalizer: normalizer,
		publishers: publishers,
		logger:     logger.Named("persist"),
	}
}

// StoreBatch writes every reading of a batch payload in one call.
func (p *Persister) StoreBatch(ctx context.Context, payload *mainstream.BatchResponse) (Result, error) {
	if payload == nil || payload.Data == nil {
		message := ""
		if payload != nil {
			message = mainstream.TranslateMessage(payload.Message)
		}
		p.logger.Warn("batch payload missing data", zap.String("message", message))
		return Result{Outcome: domain.OutcomeMalformed}, nil
	}

	var rows []domain.TelemetryRow
	for _, block := range payload.Data {
		for _, reading := range block.Data {
			if reading.MonitorTime == "" || reading.MonitorValue == "" {
				continue
			}
			rows = append(rows, domain.NewTelemetryRow(
				block.DeviceID,
				reading.MonitorItem,
				p.normalizer.Normalize(reading.MonitorTime),
				reading.MonitorValue,
			))
		}
	}
	if len(rows) == 0 {
		return Result{Outcome: domain.OutcomeEmpty}, nil
	}

	return p.write(ctx, rows)
}

// StoreLatest writes the latest reading of one device. Payloads without a
// time or value, including failure sentinels, are skipped.
func (p *Persister) StoreLatest(ctx context.Context, device domain.Device, payload *mainstream.LatestResponse) (Result, error) {
	if payload.Empty() {
		return Result{Outcome: domain.OutcomeSkipped}, nil
	}

	row := domain.NewTelemetryRow(
		device.ID,
		device.MonitorItem,
		p.normalizer.Normalize(payload.MonitorTime),
		payload.MonitorValue,
	)
	return p.write(ctx, []domain.TelemetryRow{row})
}

func (p *Persister) write(ctx context.Context, rows []domain.TelemetryRow) (Result, error) {
	inserted, err := p.writer.UpsertTelemetry(ctx, rows)
	if err != nil {
		return Result{Outcome: domain.OutcomeStoreFailed, Rows: len(rows)}, fmt.Errorf("failed to store %d rows: %w", len(rows), err)
	}

	p.publish(ctx, rows)

	return Result{Outcome: domain.OutcomeStored, Rows: len(rows), Inserted: inserted}, nil
}

func (p *Persister) publish(ctx context.Context, rows []domain.TelemetryRow) {
	for _, pub := range p.publishers {
		if err := pub.Publish(ctx, rows); err != nil {
			p.logger.Error("failed to publish rows",
				zap.String("sink", pub.Type()),
				zap.Int("rows", len(rows)),
				zap.Error(err))
		}
	}
}
