package report

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/itohio/goppg/pkg/logging"
)

// ConnectNATS connects to url with unlimited reconnects.
func ConnectNATS(url, name string, logger *zap.Logger) (*nats.Conn, error) {
	logger = logging.OrNop(logger).Named("nats")

	nc, err := nats.Connect(
		url,
		nats.Name(name),
		nats.Timeout(3*time.Second),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS %s: %w", url, err)
	}
	return nc, nil
}

// NATSSubject returns {prefix}.{deviceID}.{leaf}.
func NATSSubject(prefix, deviceID, leaf string) string {
	return prefix + "." + deviceID + "." + leaf
}

type natsPublisher interface {
	Publish(subj string, data []byte) error
}

// NATSSink publishes to {prefix}.{deviceId}.data and .status.
type NATSSink struct {
	conn   natsPublisher
	prefix string
}

var _ Sink = (*NATSSink)(nil)

// NewNATSSink creates a sink on an established connection.
func NewNATSSink(nc *nats.Conn, prefix string) *NATSSink {
	return &NATSSink{conn: nc, prefix: prefix}
}

// Name returns "nats".
func (s *NATSSink) Name() string {
	return "nats"
}

// Publish publishes payload. NATS buffers writes, so ctx is only checked
// before publishing.
func (s *NATSSink) Publish(ctx context.Context, kind Kind, deviceID string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subject := NATSSubject(s.prefix, deviceID, string(kind))
	if err := s.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Close is a no-op; the connection belongs to the caller.
func (s *NATSSink) Close() error {
	return nil
}
