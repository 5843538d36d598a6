package sensor

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"github.com/itohio/goppg/pkg/logging"
	"github.com/itohio/goppg/pkg/sample"
	"github.com/itohio/goppg/pkg/state"
)

const (
	// DefaultBaudRate is the sensor bridge UART rate.
	DefaultBaudRate = 115200
	// MaxReading is the largest 18-bit MAX30102 FIFO value.
	MaxReading = 1<<18 - 1
)

// Reading is one parsed bridge line.
type Reading struct {
	Timestamp time.Time
	Sample    sample.Sample
}

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Stats counts what the background reader saw.
type Stats struct {
	Lines    uint64 // Parsed readings
	Invalid  uint64 // Unparsable lines and zero readings
	Replaced uint64 // Readings overwritten before Read picked them up
}

// Serial reads the sensor bridge over a serial port. A background reader
// keeps only the latest unread reading.
type Serial struct {
	port     string
	baudRate int
	logger   *zap.Logger

	mu        sync.Mutex
	conn      io.ReadWriteCloser
	connected bool
	latest    Reading
	fresh     bool
	done      chan struct{}
	onLost    func(error)

	lines    atomic.Uint64
	invalid  atomic.Uint64
	replaced atomic.Uint64
}

// New creates a new Serial device for the given port.
func New(port string, baudRate int, logger *zap.Logger) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	return &Serial{
		port:     port,
		baudRate: baudRate,
		logger:   logging.OrNop(logger).Named("sensor"),
	}
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err == nil {
		result := make([]Port, 0, len(details))
		for _, d := range details {
			desc := d.Name
			if d.IsUSB {
				desc = fmt.Sprintf("%s (USB %s:%s %s)", d.Name, d.VID, d.PID, d.Product)
			}
			result = append(result, Port{Name: d.Name, Description: desc})
		}
		return result, nil
	}

	names, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	result := make([]Port, 0, len(names))
	for _, name := range names {
		result = append(result, Port{Name: name, Description: name})
	}
	return result, nil
}

// OnDisconnect registers a callback run when the port stops delivering
// lines without Close being called.
func (d *Serial) OnDisconnect(fn func(error)) {
	d.mu.Lock()
	d.onLost = fn
	d.mu.Unlock()
}

// Connect opens the serial port and starts reading samples.
func (d *Serial) Connect() error {
	d.mu.Lock()
	if d.connected {
		d.mu.Unlock()
		return ErrAlreadyConnected
	}
	d.mu.Unlock()

	port, err := serial.Open(d.port, &serial.Mode{BaudRate: d.baudRate})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}

	if err := d.attach(port); err != nil {
		port.Close()
		return err
	}
	d.logger.Info("connected", zap.String("port", d.port), zap.Int("baud_rate", d.baudRate))
	return nil
}

// attach starts the reader on an already open connection.
func (d *Serial) attach(conn io.ReadWriteCloser) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return ErrAlreadyConnected
	}
	d.conn = conn
	d.connected = true
	d.fresh = false
	d.done = make(chan struct{})

	go d.readSamples(conn, d.done)
	return nil
}

// Close closes the port and waits for the reader to stop.
func (d *Serial) Close() error {
	d.mu.Lock()
	if !d.connected {
		d.mu.Unlock()
		return nil
	}
	conn, done := d.conn, d.done
	d.conn = nil
	d.connected = false
	d.fresh = false
	d.mu.Unlock()

	err := conn.Close()
	<-done
	if err != nil {
		return fmt.Errorf("failed to close serial port: %w", err)
	}
	return nil
}

// IsConnected returns whether the device is currently connected.
func (d *Serial) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

// Read returns the latest reading once.
func (d *Serial) Read() (sample.Sample, bool) {
	r, ok := d.ReadLatest()
	return r.Sample, ok
}

// ReadLatest is Read with the bridge timestamp.
func (d *Serial) ReadLatest() (Reading, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.fresh {
		return Reading{}, false
	}
	d.fresh = false
	return d.latest, true
}

// SetIntent sends the LED indication command to the bridge.
func (d *Serial) SetIntent(i state.Intent) error {
	d.mu.Lock()
	conn := d.conn
	d.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	if _, err := conn.Write([]byte{IntentCommand(i), '\n'}); err != nil {
		return fmt.Errorf("failed to send intent command: %w", err)
	}
	return nil
}

// Stats returns reader counters.
func (d *Serial) Stats() Stats {
	return Stats{
		Lines:    d.lines.Load(),
		Invalid:  d.invalid.Load(),
		Replaced: d.replaced.Load(),
	}
}

// readSamples reads lines from conn until it fails or is closed.
func (d *Serial) readSamples(conn io.Reader, done chan struct{}) {
	var readErr error
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic in reader", zap.Any("panic", r))
			readErr = fmt.Errorf("reader panic: %v", r)
		}
		d.lost(done, readErr)
		close(done)
	}()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		r, err := parseLine(line)
		if err != nil {
			d.invalid.Add(1)
			d.logger.Debug("failed to parse line", zap.String("line", line), zap.Error(err))
			continue
		}
		if !r.Sample.Valid() {
			d.invalid.Add(1)
			continue
		}

		d.mu.Lock()
		if d.fresh {
			d.replaced.Add(1)
		}
		d.latest = r
		d.fresh = true
		d.mu.Unlock()
		d.lines.Add(1)
	}
	readErr = scanner.Err()
	if readErr == nil {
		readErr = io.EOF
	}
}

// lost marks the device disconnected if the reader ended on its own.
func (d *Serial) lost(done chan struct{}, err error) {
	d.mu.Lock()
	if !d.connected || d.done != done {
		d.mu.Unlock()
		return
	}
	d.connected = false
	d.fresh = false
	conn := d.conn
	d.conn = nil
	fn := d.onLost
	d.mu.Unlock()

	conn.Close()
	d.logger.Warn("sensor link lost", zap.Error(err))
	if fn != nil {
		fn(err)
	}
}

// parseLine parses a bridge line.
// Format: micros,red,ir
// Example: 1234567890,101000,105500
func parseLine(line string) (Reading, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 3 {
		return Reading{}, fmt.Errorf("invalid line format: expected 3 comma-separated values, got %d", len(parts))
	}

	micros, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return Reading{}, fmt.Errorf("invalid timestamp: %w", err)
	}

	red, err := parseReading(parts[1])
	if err != nil {
		return Reading{}, fmt.Errorf("invalid red reading: %w", err)
	}
	ir, err := parseReading(parts[2])
	if err != nil {
		return Reading{}, fmt.Errorf("invalid ir reading: %w", err)
	}

	return Reading{
		Timestamp: time.UnixMicro(micros),
		Sample:    sample.Sample{Red: red, IR: ir},
	}, nil
}

func parseReading(s string) (float32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, err
	}
	if v > MaxReading {
		return 0, fmt.Errorf("out of range: %d (max %d)", v, MaxReading)
	}
	return float32(v), nil
}

// IntentCommand returns the bridge command byte for an intent.
func IntentCommand(i state.Intent) byte {
	switch i {
	case state.IntentIdle:
		return 'I'
	case state.IntentCollecting:
		return 'C'
	case state.IntentProcessing:
		return 'P'
	case state.IntentDisconnected:
		return 'D'
	case state.IntentTest:
		return 'T'
	default:
		return 'F'
	}
}
