package report

import (
	"context"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/nats-io/nats.go"

	"github.com/itohio/goppg/pkg/config"
)

// Connections holds broker connections shared between sinks and command links.
type Connections struct {
	MQTT mqtt.Client
	NATS *nats.Conn
}

// SinksFromConfig builds every sink enabled in cfg. hub may be nil.
func SinksFromConfig(ctx context.Context, cfg config.ReportConfig, conns Connections, hub *Hub) ([]Sink, error) {
	var sinks []Sink

	if cfg.HTTP.URL != "" {
		sinks = append(sinks, NewHTTPSink(cfg.HTTP.URL, cfg.HTTP.Timeout))
	}
	if conns.MQTT != nil {
		sinks = append(sinks, NewMQTTSink(conns.MQTT, cfg.MQTT.TopicPrefix, cfg.MQTT.QoS))
	}
	if conns.NATS != nil {
		sinks = append(sinks, NewNATSSink(conns.NATS, cfg.NATS.SubjectPrefix))
	}
	if cfg.Redis.Addr != "" {
		s, err := NewRedisSink(ctx, cfg.Redis)
		if err != nil {
			closeAll(sinks)
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if len(cfg.Kafka.Brokers) > 0 {
		s, err := NewKafkaSink(cfg.Kafka)
		if err != nil {
			closeAll(sinks)
			return nil, fmt.Errorf("failed to create kafka sink: %w", err)
		}
		sinks = append(sinks, s)
	}
	if hub != nil {
		sinks = append(sinks, hub)
	}

	return sinks, nil
}

func closeAll(sinks []Sink) {
	for _, s := range sinks {
		s.Close()
	}
}
