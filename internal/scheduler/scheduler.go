// Package scheduler runs the periodic main stream sync cycle.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jwulff/mainstream-sync/internal/devicecache"
	"github.com/jwulff/mainstream-sync/internal/domain"
	"github.com/jwulff/mainstream-sync/internal/mainstream"
	"github.com/jwulff/mainstream-sync/internal/metrics"
	"github.com/jwulff/mainstream-sync/internal/persist"
	"github.com/jwulff/mainstream-sync/internal/timestamp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Defaults for Config fields left at zero.
const (
	DefaultInterval = 30 * time.Minute
	DefaultWindow   = 30 * time.Minute
)

// ErrDisabled is returned by Start when the loop cannot run: no upstream URL
// or no complete devices.
var ErrDisabled = errors.New("main stream sync disabled")

// Upstream fetches readings from the main stream API.
type Upstream interface {
	FetchBatch(ctx context.Context, devices []domain.Device, startMs, endMs int64) (*mainstream.BatchResponse, error)
	FetchLatest(ctx context.Context, device domain.Device) (*mainstream.LatestResponse, error)
}

// Store persists upstream payloads.
type Store interface {
	StoreBatch(ctx context.Context, payload *mainstream.BatchResponse) (persist.Result, error)
	StoreLatest(ctx context.Context, device domain.Device, payload *mainstream.LatestResponse) (persist.Result, error)
}

// Config controls the loop.
type Config struct {
	BaseURL           string
	Interval          time.Duration
	CacheTTL          time.Duration
	Window            time.Duration
	LatestConcurrency int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = devicecache.DefaultTTL
	}
	if c.LatestConcurrency < 1 {
		c.LatestConcurrency = 1
	}
	return c
}

// CycleReport summarizes one cycle.
type CycleReport struct {
	ID             string
	StartedAt      time.Time
	Duration       time.Duration
	Outcome        domain.Outcome
	Devices        int
	BatchRows      int
	BatchInserted  int64
	LatestStored   int
	LatestSkipped  int
	LatestFailed   int
	LatestInserted int64
	Err            error
}

// Scheduler owns the device cache and drives sync cycles.
type Scheduler struct {
	cfg      Config
	upstream Upstream
	store    Store
	registry devicecache.Registry
	cache    *devicecache.Cache
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time

	running atomic.Bool

	mu    sync.Mutex
	state domain.SyncState
}

// New creates a scheduler. A nil metrics value records into unregistered
// collectors.
func New(cfg Config, upstream Upstream, store Store, registry devicecache.Registry, m *metrics.Metrics, logger *zap.Logger) *Scheduler {
	cfg = cfg.withDefaults()
	if m == nil {
		m = metrics.New(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cfg:      cfg,
		upstream: upstream,
		store:    store,
		registry: registry,
		cache:    devicecache.New(cfg.CacheTTL),
		metrics:  m,
		logger:   logger.Named("scheduler"),
		now:      time.Now,
		state:    *domain.NewSyncState(),
	}
}

// WithClock replaces the clock used for windows and the device cache.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	s.cache.WithClock(now)
	return s
}

// Interval returns the effective cycle interval.
func (s *Scheduler) Interval() time.Duration {
	return s.cfg.Interval
}

// Start runs a cycle immediately and then once per interval until ctx is
// done. It returns ErrDisabled without running anything when there is no
// upstream URL or no complete device.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.cfg.BaseURL == "" {
		s.logger.Warn("main stream url is not set, sync disabled")
		return ErrDisabled
	}

	devices, err := s.cache.Get(ctx, s.registry)
	if err != nil {
		s.logger.Warn("failed to load devices", zap.Error(err))
	}
	if len(devices) == 0 {
		s.logger.Warn("no main stream devices configured, sync disabled")
		return ErrDisabled
	}

	s.setEnabled(true)
	defer s.setEnabled(false)
	s.logger.Info("main stream sync started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Int("devices", len(devices)))

	s.RunCycle(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("main stream sync stopped")
			return nil
		case <-ticker.C:
			s.RunCycle(ctx)
		}
	}
}

// RunCycle performs one sync. A call made while another cycle is in flight
// returns OutcomeBusy immediately.
func (s *Scheduler) RunCycle(ctx context.Context) CycleReport {
	report := CycleReport{ID: uuid.NewString(), StartedAt: s.now()}
	if !s.running.CompareAndSwap(false, true) {
		report.Outcome = domain.OutcomeBusy
		s.logger.Debug("sync cycle already running", zap.String("cycle_id", report.ID))
		return report
	}
	defer s.running.Store(false)

	logger := s.logger.With(zap.String("cycle_id", report.ID))
	s.runCycle(ctx, logger, &report)

	report.Duration = s.now().Sub(report.StartedAt)
	s.finish(logger, &report)
	return report
}

func (s *Scheduler) runCycle(ctx context.Context, logger *zap.Logger, report *CycleReport) {
	startMs, endMs := timestamp.Window(report.StartedAt, s.cfg.Window)

	devices, err := s.cache.Get(ctx, s.registry)
	if err != nil {
		logger.Warn("device registry unavailable, using cached devices",
			zap.Int("devices", len(devices)), zap.Error(err))
	}
	report.Devices = len(devices)
	s.metrics.SetDevices(len(devices))
	if len(devices) == 0 {
		logger.Info("no devices available")
		report.Outcome = domain.OutcomeNoDevices
		return
	}

	payload, err := s.upstream.FetchBatch(ctx, devices, startMs, endMs)
	if err != nil {
		logger.Error("main stream batch fetch failed", zap.Error(err))
		s.metrics.UpstreamError(metrics.CallBatch)
		report.Outcome = domain.OutcomeFetchFailed
		report.Err = err
		return
	}

	result, err := s.store.StoreBatch(ctx, payload)
	report.Outcome = result.Outcome
	report.BatchRows = result.Rows
	report.BatchInserted = result.Inserted
	if err != nil {
		logger.Error("main stream batch store failed", zap.Error(err))
		report.Err = err
		return
	}
	s.metrics.AddRows(metrics.PassBatch, result.Inserted)

	s.latestPass(ctx, logger, devices, report)
}

// latestPass fetches and stores each device's latest reading. A failure for
// one device never stops the others.
func (s *Scheduler) latestPass(ctx context.Context, logger *zap.Logger, devices []domain.Device, report *CycleReport) {
	var mu sync.Mutex
	syncDevice := func(device domain.Device) {
		outcome, inserted := s.syncLatest(ctx, logger, device)

		mu.Lock()
		defer mu.Unlock()
		switch outcome {
		case domain.OutcomeStored:
			report.LatestStored++
			report.LatestInserted += inserted
		case domain.OutcomeSkipped:
			report.LatestSkipped++
		default:
			report.LatestFailed++
		}
	}

	if s.cfg.LatestConcurrency == 1 {
		for _, device := range devices {
			if ctx.Err() != nil {
				return
			}
			syncDevice(device)
		}
		return
	}

	var g errgroup.Group
	g.SetLimit(s.cfg.LatestConcurrency)
	for _, device := range devices {
		if ctx.Err() != nil {
			break
		}
		device := device
		g.Go(func() error {
			syncDevice(device)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Scheduler) syncLatest(ctx context.Context, logger *zap.Logger, device domain.Device) (domain.Outcome, int64) {
	deviceLogger := logger.With(zap.String("device_id", device.ID))

	latest, err := s.upstream.FetchLatest(ctx, device)
	if err != nil {
		deviceLogger.Warn("latest fetch failed", zap.Error(err))
		s.metrics.UpstreamError(metrics.CallLatest)
		return domain.OutcomeFetchFailed, 0
	}

	result, err := s.store.StoreLatest(ctx, device, latest)
	if err != nil {
		deviceLogger.Error("latest store failed", zap.Error(err))
		return domain.OutcomeStoreFailed, 0
	}
	if result.Outcome == domain.OutcomeSkipped {
		if latest != nil {
			deviceLogger.Debug("latest reading skipped", zap.Int("status", latest.Code))
		}
		return domain.OutcomeSkipped, 0
	}
	s.metrics.AddRows(metrics.PassLatest, result.Inserted)
	return result.Outcome, result.Inserted
}

func (s *Scheduler) finish(logger *zap.Logger, report *CycleReport) {
	s.metrics.ObserveCycle(report.Outcome, report.Duration)

	s.mu.Lock()
	if report.Outcome.Failed() {
		s.state.RecordFailure(report.StartedAt, report.Outcome, errorString(report.Err))
	} else {
		s.state.RecordSuccess(report.StartedAt, report.Outcome, report.BatchInserted+report.LatestInserted)
	}
	s.mu.Unlock()

	fields := []zap.Field{
		zap.String("outcome", string(report.Outcome)),
		zap.Int("devices", report.Devices),
		zap.Int("rows", report.BatchRows),
		zap.Int64("inserted", report.BatchInserted),
		zap.Int("latest_stored", report.LatestStored),
		zap.Int("latest_skipped", report.LatestSkipped),
		zap.Int("latest_failed", report.LatestFailed),
		zap.Duration("duration", report.Duration),
	}
	if report.Outcome.Failed() {
		logger.Error("main stream sync failed", append(fields, zap.Error(report.Err))...)
		return
	}
	logger.Info("main stream sync completed", fields...)
}

// State returns a copy of the loop bookkeeping.
func (s *Scheduler) State() domain.SyncState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) setEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Enabled = enabled
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
