package command

import (
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/itohio/goppg/pkg/logging"
	"github.com/itohio/goppg/pkg/report"
)

type mqttClient interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTLink takes commands from {prefix}/{deviceId}/cmd and answers on
// {prefix}/{deviceId}/resp.
type MQTTLink struct {
	client  mqttClient
	cmd     string
	resp    string
	qos     byte
	handler Handler
	logger  *zap.Logger
}

// NewMQTTLink creates a link on an established client.
func NewMQTTLink(client mqtt.Client, prefix, deviceID string, qos byte, h Handler, logger *zap.Logger) *MQTTLink {
	return &MQTTLink{
		client:  client,
		cmd:     report.MQTTTopic(prefix, deviceID, "cmd"),
		resp:    report.MQTTTopic(prefix, deviceID, "resp"),
		qos:     qos,
		handler: h,
		logger:  logging.OrNop(logger).Named("mqtt_cmd"),
	}
}

// Start subscribes to the command topic.
func (l *MQTTLink) Start() error {
	token := l.client.Subscribe(l.cmd, l.qos, l.onMessage)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", l.cmd, token.Error())
	}
	l.logger.Info("listening for commands", zap.String("topic", l.cmd))
	return nil
}

// Stop unsubscribes from the command topic.
func (l *MQTTLink) Stop() error {
	token := l.client.Unsubscribe(l.cmd)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to unsubscribe from %s: %w", l.cmd, token.Error())
	}
	return nil
}

func (l *MQTTLink) onMessage(_ mqtt.Client, msg mqtt.Message) {
	cmd, ok := normalize(string(msg.Payload()))
	if !ok {
		return
	}
	resp := l.handler.HandleCommand(cmd)
	// Never wait on the token inside a paho callback.
	l.client.Publish(l.resp, l.qos, false, resp)
}
