package command

import (
	"context"
	"fmt"

	"github.com/jwulff/mainstream-sync/internal/config"
	"github.com/jwulff/mainstream-sync/internal/logging"
	"github.com/jwulff/mainstream-sync/internal/mainstream"
	"github.com/jwulff/mainstream-sync/internal/metrics"
	"github.com/jwulff/mainstream-sync/internal/persist"
	"github.com/jwulff/mainstream-sync/internal/scheduler"
	"github.com/jwulff/mainstream-sync/internal/sink"
	"github.com/jwulff/mainstream-sync/internal/storage"
	"github.com/jwulff/mainstream-sync/internal/timestamp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	_ "github.com/jwulff/mainstream-sync/internal/storage/cassandra"
	_ "github.com/jwulff/mainstream-sync/internal/storage/mysql"
	_ "github.com/jwulff/mainstream-sync/internal/storage/sqlite"
)

// base is what every command needs: configuration, a logger and the store.
type base struct {
	cfg    *config.Config
	logger *zap.Logger
	store  storage.Store
}

func openBase(ctx context.Context, opts *rootOptions) (*base, error) {
	cfg, _, err := config.Load(opts.configDir)
	if err != nil {
		return nil, err
	}
	logger := logging.NewLogger(cfg.Log)

	store, err := storage.Open(ctx, cfg.Storage.Driver, cfg.Storage.Options, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return &base{cfg: cfg, logger: logger, store: store}, nil
}

func (b *base) Close() {
	if err := b.store.Close(); err != nil {
		b.logger.Warn("failed to close store", zap.Error(err))
	}
	_ = b.logger.Sync()
}

// app is the fully wired sync engine.
type app struct {
	*base
	sinks     []sink.Sink
	registry  *prometheus.Registry
	scheduler *scheduler.Scheduler
}

func newApp(ctx context.Context, opts *rootOptions) (*app, error) {
	b, err := openBase(ctx, opts)
	if err != nil {
		return nil, err
	}

	sinks, err := sink.Build(ctx, b.cfg.SinkSpecs(), b.logger)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to build sinks: %w", err)
	}
	publishers := make([]persist.Publisher, 0, len(sinks))
	for _, s := range sinks {
		publishers = append(publishers, s)
	}

	ms := b.cfg.MainStream
	normalizer := timestamp.New(ms.TimezoneOffset)
	persister := persist.New(b.store, normalizer, b.logger, publishers...)
	client := mainstream.NewClient(ms.URL, ms.Timeout)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	return &app{
		base:      b,
		sinks:     sinks,
		registry:  registry,
		scheduler: scheduler.New(ms.Scheduler(), client, persister, b.store, m, b.logger),
	}, nil
}

func (a *app) Close() {
	sink.CloseAll(a.sinks, a.logger)
	a.base.Close()
}
