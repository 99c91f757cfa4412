package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/jwulff/mainstream-sync/internal/domain"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
)

func init() {
	Register("mqtt", NewMQTT)
}

// MQTTClient is the part of mqtt.Client the sink uses.
type MQTTClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTOptions configure the mqtt sink.
type MQTTOptions struct {
	Broker            string `mapstructure:"broker"`
	Port              int    `mapstructure:"port"`
	Username          string `mapstructure:"username"`
	Password          string `mapstructure:"password"`
	ClientID          string `mapstructure:"client_id"`
	Topic             string `mapstructure:"topic"`
	QoS               byte   `mapstructure:"qos"`
	Retained          bool   `mapstructure:"retained"`
	KeepAliveSec      uint   `mapstructure:"keep_alive_sec"`
	PublishTimeoutSec uint   `mapstructure:"publish_timeout_sec"`
}

// MQTT publishes each row as JSON to <topic>/<deviceId>.
type MQTT struct {
	client  MQTTClient
	topic   string
	qos     byte
	retain  bool
	timeout time.Duration
	logger  *zap.Logger
}

// NewMQTT connects to the broker and creates an mqtt sink.
func NewMQTT(ctx context.Context, options map[string]any, logger *zap.Logger) (Sink, error) {
	var opts MQTTOptions
	if err := mapstructure.Decode(options, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode mqtt options: %w", err)
	}
	if opts.Broker == "" {
		return nil, fmt.Errorf("mqtt config validation failed: 'broker' is required")
	}
	if opts.Topic == "" {
		return nil, fmt.Errorf("mqtt config validation failed: 'topic' is required")
	}
	if opts.Port == 0 {
		opts.Port = 1883
	}
	if opts.ClientID == "" {
		opts.ClientID = "mainstream-sync-" + uuid.NewString()
	}
	if opts.KeepAliveSec == 0 {
		opts.KeepAliveSec = 60
	}
	if opts.PublishTimeoutSec == 0 {
		opts.PublishTimeoutSec = 10
	}

	clientOpts := mqtt.NewClientOptions()
	clientOpts.AddBroker(fmt.Sprintf("tcp://%s:%d", opts.Broker, opts.Port))
	clientOpts.SetClientID(opts.ClientID)
	clientOpts.SetUsername(opts.Username)
	clientOpts.SetPassword(opts.Password)
	clientOpts.SetKeepAlive(time.Duration(opts.KeepAliveSec) * time.Second)
	clientOpts.SetAutoReconnect(true)
	clientOpts.SetMaxReconnectInterval(10 * time.Second)
	clientOpts.OnConnect = func(client mqtt.Client) {
		logger.Info("mqtt connected", zap.String("broker", opts.Broker))
	}
	clientOpts.OnConnectionLost = func(client mqtt.Client, err error) {
		logger.Error("mqtt connection lost", zap.String("broker", opts.Broker), zap.Error(err))
	}

	client := mqtt.NewClient(clientOpts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connection failed for %s: %w", opts.Broker, token.Error())
	}

	return newMQTT(client, opts, logger), nil
}

func newMQTT(client MQTTClient, opts MQTTOptions, logger *zap.Logger) *MQTT {
	return &MQTT{
		client:  client,
		topic:   strings.TrimSuffix(opts.Topic, "/"),
		qos:     opts.QoS,
		retain:  opts.Retained,
		timeout: time.Duration(opts.PublishTimeoutSec) * time.Second,
		logger:  logger,
	}
}

func (s *MQTT) Type() string {
	return "mqtt"
}

// Publish sends every row, returning the joined errors of failed rows.
func (s *MQTT) Publish(ctx context.Context, rows []domain.TelemetryRow) error {
	var errs []error
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		payload, err := encodeRow(row)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		topic := s.topic + "/" + row.DeviceID
		token := s.client.Publish(topic, s.qos, s.retain, payload)
		if !token.WaitTimeout(s.timeout) {
			errs = append(errs, fmt.Errorf("publish to %s timed out", topic))
			continue
		}
		if err := token.Error(); err != nil {
			errs = append(errs, fmt.Errorf("publish to %s: %w", topic, err))
		}
	}
	return errors.Join(errs...)
}

// Close disconnects from the broker.
func (s *MQTT) Close() error {
	s.client.Disconnect(250)
	return nil
}
