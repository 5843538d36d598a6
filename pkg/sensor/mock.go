package sensor

import (
	"math/rand/v2"
	"sync"

	"github.com/chewxy/math32"

	"github.com/itohio/goppg/pkg/activity"
	"github.com/itohio/goppg/pkg/config"
	"github.com/itohio/goppg/pkg/sample"
	"github.com/itohio/goppg/pkg/state"
)

// motionScale scales the activity profile amplitudes down to wrist motion
// riding on top of the pulse.
const motionScale = 0.5

// Mock simulates the sensor bridge for testing and development. Every Read
// advances simulated time by one sampling period.
type Mock struct {
	cfg  config.MockConfig
	rate float32

	mu        sync.Mutex
	connected bool
	rng       *rand.Rand
	n         uint64
	heartRate float32
	class     int
	intent    state.Intent
}

// NewMock creates a new mocked device sampled at rateHz.
func NewMock(cfg *config.MockConfig, rateHz float32) *Mock {
	if cfg == nil {
		cfg = &config.Default().Mock
	}
	if rateHz <= 0 {
		rateHz = config.Default().Sampling.RateHz
	}

	class, err := activity.Parse(cfg.Activity)
	if err != nil {
		class = activity.Resting
	}

	return &Mock{
		cfg:       *cfg,
		rate:      rateHz,
		heartRate: cfg.HeartRate,
		class:     class,
		intent:    state.IntentFault,
	}
}

// Connect simulates connecting to the device. Simulated time restarts.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return ErrAlreadyConnected
	}

	m.connected = true
	m.n = 0
	m.rng = rand.New(rand.NewPCG(m.cfg.Seed, m.cfg.Seed^0x9e3779b97f4a7c15))

	return nil
}

// Close stops the mocked device.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

// IsConnected returns whether the device is currently connected.
func (m *Mock) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// SetIntent records the indication (simulated).
func (m *Mock) SetIntent(i state.Intent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return ErrNotConnected
	}
	m.intent = i
	return nil
}

// Intent returns the last indication set.
func (m *Mock) Intent() state.Intent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.intent
}

// SetHeartRate changes the simulated pulse rate in bpm.
func (m *Mock) SetHeartRate(bpm float32) {
	m.mu.Lock()
	m.heartRate = bpm
	m.mu.Unlock()
}

// SetActivity changes the simulated motion profile.
func (m *Mock) SetActivity(class int) {
	if class < 0 || class >= activity.NumClasses {
		return
	}
	m.mu.Lock()
	m.class = class
	m.mu.Unlock()
}

// Read generates the next simulated reading. A configured fraction of reads
// report no data.
func (m *Mock) Read() (sample.Sample, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return sample.Sample{}, false
	}
	if m.cfg.MissRate > 0 && m.rng.Float32() < m.cfg.MissRate {
		return sample.Sample{}, false
	}

	t := float32(m.n) / m.rate
	m.n++

	// Pulse with a small second harmonic for the dicrotic notch.
	theta := 2 * math32.Pi * m.heartRate / 60 * t
	pulse := math32.Sin(theta) + 0.25*math32.Sin(2*theta)

	p := activity.Profiles[m.class]
	motionHz := p.Cycles * m.rate / sample.WindowSize
	phi := 2 * math32.Pi * motionHz * t

	ir := m.cfg.IRBase + m.cfg.IRAmp*pulse + motionScale*p.IRAmp*math32.Sin(phi) + m.noise()
	red := m.cfg.RedBase + m.cfg.RedAmp*pulse + motionScale*p.RedAmp*math32.Sin(phi+p.Phase) + m.noise()

	return sample.Sample{Red: red, IR: ir}, true
}

func (m *Mock) noise() float32 {
	if m.cfg.NoiseLevel <= 0 {
		return 0
	}
	return (m.rng.Float32()*2 - 1) * m.cfg.NoiseLevel
}
