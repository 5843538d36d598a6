package command

import (
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/itohio/goppg/pkg/logging"
	"github.com/itohio/goppg/pkg/report"
)

type natsConn interface {
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
	Publish(subj string, data []byte) error
}

// NATSLink answers requests on {prefix}.{deviceId}.cmd. Messages without a
// reply subject are answered on {prefix}.{deviceId}.resp.
type NATSLink struct {
	conn    natsConn
	cmd     string
	resp    string
	handler Handler
	logger  *zap.Logger

	sub *nats.Subscription
}

// NewNATSLink creates a link on an established connection.
func NewNATSLink(nc *nats.Conn, prefix, deviceID string, h Handler, logger *zap.Logger) *NATSLink {
	return &NATSLink{
		conn:    nc,
		cmd:     report.NATSSubject(prefix, deviceID, "cmd"),
		resp:    report.NATSSubject(prefix, deviceID, "resp"),
		handler: h,
		logger:  logging.OrNop(logger).Named("nats_cmd"),
	}
}

// Start subscribes to the command subject.
func (l *NATSLink) Start() error {
	sub, err := l.conn.Subscribe(l.cmd, l.onMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", l.cmd, err)
	}
	l.sub = sub
	l.logger.Info("listening for commands", zap.String("subject", l.cmd))
	return nil
}

// Stop unsubscribes.
func (l *NATSLink) Stop() error {
	if l.sub == nil {
		return nil
	}
	if err := l.sub.Unsubscribe(); err != nil {
		return fmt.Errorf("failed to unsubscribe from %s: %w", l.cmd, err)
	}
	return nil
}

func (l *NATSLink) onMessage(msg *nats.Msg) {
	cmd, ok := normalize(string(msg.Data))
	if !ok {
		return
	}
	resp := l.handler.HandleCommand(cmd)

	subject := msg.Reply
	if subject == "" {
		subject = l.resp
	}
	if err := l.conn.Publish(subject, []byte(resp)); err != nil {
		l.logger.Warn("failed to send response", zap.String("subject", subject), zap.Error(err))
	}
}
