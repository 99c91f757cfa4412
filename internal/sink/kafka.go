package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/jwulff/mainstream-sync/internal/domain"
	"github.com/mitchellh/mapstructure"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

func init() {
	Register("kafka", NewKafka)
}

// KafkaOptions configure the kafka sink.
type KafkaOptions struct {
	Brokers         []string `mapstructure:"brokers"`
	Topic           string   `mapstructure:"topic"`
	Async           bool     `mapstructure:"async"`
	WriteTimeoutSec int      `mapstructure:"write_timeout_sec"`
	RequiredAcks    int      `mapstructure:"required_acks"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes each row as a JSON message keyed by device id.
type Kafka struct {
	writer messageWriter
	logger *zap.Logger
}

// NewKafka creates a kafka sink.
func NewKafka(ctx context.Context, options map[string]any, logger *zap.Logger) (Sink, error) {
	var opts KafkaOptions
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &opts,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToSliceHookFunc(","),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka options decoder: %w", err)
	}
	if err := decoder.Decode(options); err != nil {
		return nil, fmt.Errorf("error decoding kafka options: %w", err)
	}
	if len(opts.Brokers) == 0 {
		return nil, fmt.Errorf("kafka config validation failed: 'brokers' is required")
	}
	if opts.Topic == "" {
		return nil, fmt.Errorf("kafka config validation failed: 'topic' is required")
	}
	if opts.WriteTimeoutSec == 0 {
		opts.WriteTimeoutSec = 10
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(opts.Brokers...),
		Topic:        opts.Topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: time.Duration(opts.WriteTimeoutSec) * time.Second,
		RequiredAcks: requiredAcks(opts.RequiredAcks),
		Async:        opts.Async,
	}

	logger.Info("kafka sink ready", zap.Strings("brokers", opts.Brokers), zap.String("topic", opts.Topic))
	return &Kafka{writer: writer, logger: logger}, nil
}

// requiredAcks maps -1 to all in-sync replicas. Anything else, including the
// unset zero value, waits for the leader only.
func requiredAcks(n int) kafka.RequiredAcks {
	if n == -1 {
		return kafka.RequireAll
	}
	return kafka.RequireOne
}

func (s *Kafka) Type() string {
	return "kafka"
}

// Publish writes all rows in one call.
func (s *Kafka) Publish(ctx context.Context, rows []domain.TelemetryRow) error {
	if len(rows) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(rows))
	for _, row := range rows {
		value, err := encodeRow(row)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", row.Key(), err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(row.DeviceID),
			Value: value,
		})
	}
	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to write %d messages: %w", len(msgs), err)
	}
	return nil
}

func (s *Kafka) Close() error {
	return s.writer.Close()
}
