package sink

import (
	"context"
	"fmt"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/jwulff/mainstream-sync/internal/domain"
	"github.com/jwulff/mainstream-sync/internal/timestamp"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
)

func init() {
	Register("influxdb", NewInfluxDB)
}

// InfluxDBOptions configure the influxdb sink.
type InfluxDBOptions struct {
	URL       string `mapstructure:"url"`
	Org       string `mapstructure:"org"`
	Token     string `mapstructure:"token"`
	Bucket    string `mapstructure:"bucket"`
	BatchSize uint   `mapstructure:"batch_size"`
	// Offset of the stored wall clock, used to recover the instant of a row.
	Offset time.Duration `mapstructure:"timezone_offset"`
}

// pointWriter is the part of api.WriteAPI the sink uses.
type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// InfluxDB writes rows as points: measurement is the monitor item, tag
// device_id, field value.
type InfluxDB struct {
	client     influxdb2.Client
	writer     pointWriter
	normalizer *timestamp.Normalizer
	logger     *zap.Logger
}

// NewInfluxDB creates an influxdb sink using the non-blocking write API.
func NewInfluxDB(ctx context.Context, options map[string]any, logger *zap.Logger) (Sink, error) {
	opts := InfluxDBOptions{Offset: timestamp.DefaultOffset}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &opts,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create influxdb options decoder: %w", err)
	}
	if err := decoder.Decode(options); err != nil {
		return nil, fmt.Errorf("error decoding influxdb options: %w", err)
	}
	if opts.URL == "" {
		return nil, fmt.Errorf("influxdb config validation failed: 'url' is required")
	}
	if opts.Bucket == "" {
		return nil, fmt.Errorf("influxdb config validation failed: 'bucket' is required")
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = 100
	}

	client := influxdb2.NewClientWithOptions(opts.URL, opts.Token, influxdb2.DefaultOptions().SetBatchSize(opts.BatchSize))
	writeAPI := client.WriteAPI(opts.Org, opts.Bucket)
	go func() {
		for err := range writeAPI.Errors() {
			logger.Error("influxdb write error", zap.Error(err))
		}
	}()

	logger.Info("influxdb sink ready", zap.String("url", opts.URL), zap.String("bucket", opts.Bucket))
	return newInfluxDB(client, writeAPI, opts.Offset, logger), nil
}

func newInfluxDB(client influxdb2.Client, writer pointWriter, offset time.Duration, logger *zap.Logger) *InfluxDB {
	return &InfluxDB{
		client:     client,
		writer:     writer,
		normalizer: timestamp.New(offset),
		logger:     logger,
	}
}

func (s *InfluxDB) Type() string {
	return "influxdb"
}

// Publish queues one point per row. Rows whose time cannot be parsed are
// dropped with a warning.
func (s *InfluxDB) Publish(ctx context.Context, rows []domain.TelemetryRow) error {
	for _, row := range rows {
		point, err := s.point(row)
		if err != nil {
			s.logger.Warn("skipping row with unparseable time",
				zap.String("device_id", row.DeviceID),
				zap.String("monitor_time", row.MonitorTime),
				zap.Error(err))
			continue
		}
		s.writer.WritePoint(point)
	}
	s.logger.Debug("influxdb points queued", zap.Int("rows", len(rows)))
	return nil
}

func (s *InfluxDB) point(row domain.TelemetryRow) (*write.Point, error) {
	at, err := s.normalizer.Parse(row.MonitorTime)
	if err != nil {
		return nil, err
	}
	return influxdb2.NewPoint(
		row.MonitorItem,
		map[string]string{"device_id": row.DeviceID},
		map[string]interface{}{"value": fieldValue(row.MonitorValue)},
		at,
	), nil
}

// fieldValue stores numeric readings as floats and anything else verbatim.
func fieldValue(raw string) interface{} {
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

// Close flushes queued points and closes the client.
func (s *InfluxDB) Close() error {
	s.writer.Flush()
	if s.client != nil {
		s.client.Close()
	}
	return nil
}
