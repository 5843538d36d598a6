package report

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/itohio/goppg/pkg/config"
	"github.com/itohio/goppg/pkg/logging"
)

// ConnectMQTT connects to the broker of cfg. The client reconnects on its
// own; the caller disconnects it.
func ConnectMQTT(cfg config.MQTTConfig, clientID string, logger *zap.Logger) (mqtt.Client, error) {
	logger = logging.OrNop(logger).Named("mqtt")
	if cfg.ClientID != "" {
		clientID = cfg.ClientID
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(clientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("connection lost", zap.Error(err))
	})
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("connected", zap.String("broker", cfg.Broker))
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", cfg.Broker, token.Error())
	}
	return client, nil
}

// MQTTTopic returns {prefix}/{deviceID}/{leaf}.
func MQTTTopic(prefix, deviceID, leaf string) string {
	return prefix + "/" + deviceID + "/" + leaf
}

type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTSink publishes to {prefix}/{deviceId}/data and .../status.
type MQTTSink struct {
	client mqttPublisher
	prefix string
	qos    byte
}

var _ Sink = (*MQTTSink)(nil)

// NewMQTTSink creates a sink on an established client.
func NewMQTTSink(client mqtt.Client, prefix string, qos byte) *MQTTSink {
	return &MQTTSink{client: client, prefix: prefix, qos: qos}
}

// Name returns "mqtt".
func (s *MQTTSink) Name() string {
	return "mqtt"
}

// Publish publishes payload and waits for the token or ctx.
func (s *MQTTSink) Publish(ctx context.Context, kind Kind, deviceID string, payload []byte) error {
	topic := MQTTTopic(s.prefix, deviceID, string(kind))
	// Status is retained so dashboards see the current state on subscribe.
	token := s.client.Publish(topic, s.qos, kind == KindStatus, payload)

	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("failed to publish to %s: %w", topic, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Close is a no-op; the connection belongs to the caller.
func (s *MQTTSink) Close() error {
	return nil
}
