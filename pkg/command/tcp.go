package command

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/itohio/goppg/pkg/config"
	"github.com/itohio/goppg/pkg/logging"
	"github.com/itohio/goppg/pkg/report"
)

const (
	DefaultHandshakeTimeout = 5 * time.Second
	DefaultReconnectDelay   = 2 * time.Second

	writeTimeout = time.Second
)

// TCPLink is the line-based command link to the base station. It dials
// out, greets with HELLO, waits for WELCOME and then answers commands until
// the connection drops, reconnecting after a delay.
type TCPLink struct {
	addr      string
	handshake time.Duration
	reconnect time.Duration
	handler   Handler
	logger    *zap.Logger
	dialer    net.Dialer

	mu             sync.Mutex
	conn           net.Conn
	onConnected    func()
	onDisconnected func()

	writeMu sync.Mutex
}

// NewTCPLink creates a link for the address of cfg.
func NewTCPLink(cfg config.TCPConfig, h Handler, logger *zap.Logger) *TCPLink {
	handshake := cfg.HandshakeTimeout
	if handshake <= 0 {
		handshake = DefaultHandshakeTimeout
	}
	reconnect := cfg.ReconnectDelay
	if reconnect <= 0 {
		reconnect = DefaultReconnectDelay
	}
	return &TCPLink{
		addr:      cfg.Address,
		handshake: handshake,
		reconnect: reconnect,
		handler:   h,
		logger:    logging.OrNop(logger).Named("tcp"),
	}
}

// OnConnected registers a callback run after every successful handshake.
func (l *TCPLink) OnConnected(fn func()) {
	l.mu.Lock()
	l.onConnected = fn
	l.mu.Unlock()
}

// OnDisconnected registers a callback run whenever an established session ends.
func (l *TCPLink) OnDisconnected(fn func()) {
	l.mu.Lock()
	l.onDisconnected = fn
	l.mu.Unlock()
}

// Connected reports whether a session is established.
func (l *TCPLink) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn != nil
}

// SendStatus writes the status line when connected.
func (l *TCPLink) SendStatus(s report.Status) {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return
	}
	if err := l.writeLine(conn, s.Line()); err != nil {
		l.logger.Debug("failed to send status", zap.Error(err))
	}
}

// Run keeps the link up until ctx is done.
func (l *TCPLink) Run(ctx context.Context) error {
	for {
		err := l.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		l.logger.Warn("command link down", zap.String("address", l.addr), zap.Error(err))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.reconnect):
		}
	}
}

func (l *TCPLink) session(ctx context.Context) error {
	conn, err := l.dialer.DialContext(ctx, "tcp", l.addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", l.addr, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	reader := bufio.NewReader(conn)
	if err := l.greet(conn, reader); err != nil {
		return err
	}

	l.mu.Lock()
	l.conn = conn
	onConnected := l.onConnected
	l.mu.Unlock()
	l.logger.Info("command link established", zap.String("address", l.addr))

	defer func() {
		l.mu.Lock()
		l.conn = nil
		onDisconnected := l.onDisconnected
		l.mu.Unlock()
		if onDisconnected != nil {
			onDisconnected()
		}
	}()

	if err := l.writeLine(conn, "OK: Connection established"); err != nil {
		return err
	}
	if onConnected != nil {
		onConnected()
	}

	for {
		line, err := reader.ReadString('\n')
		if cmd, ok := normalize(line); ok {
			resp := l.handler.HandleCommand(cmd)
			l.logger.Debug("command", zap.String("command", cmd), zap.String("response", resp))
			if werr := l.writeLine(conn, resp); werr != nil {
				return werr
			}
		}
		if err != nil {
			return fmt.Errorf("failed to read command: %w", err)
		}
	}
}

// greet sends HELLO and waits for WELCOME. A peer that never answers is
// tolerated; the session continues once the handshake timeout passes.
func (l *TCPLink) greet(conn net.Conn, reader *bufio.Reader) error {
	if err := l.writeLine(conn, "HELLO"); err != nil {
		return err
	}

	if err := conn.SetReadDeadline(time.Now().Add(l.handshake)); err != nil {
		return fmt.Errorf("failed to set handshake deadline: %w", err)
	}
	defer conn.SetReadDeadline(time.Time{})

	for {
		line, err := reader.ReadString('\n')
		if strings.TrimSpace(line) == "WELCOME" {
			return nil
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			l.logger.Warn("no WELCOME from server", zap.Duration("timeout", l.handshake))
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read handshake: %w", err)
		}
	}
}

func (l *TCPLink) writeLine(conn net.Conn, line string) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if _, err := conn.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("failed to write: %w", err)
	}
	return nil
}
