package scope

import (
	"image/color"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/goppg/pkg/report"
	"github.com/itohio/goppg/pkg/sample"
)

// DefaultHistory is the number of windows kept on screen.
const DefaultHistory = 4

// trace is a rolling history of one channel with its display range.
type trace struct {
	values  []float32
	display []float32
	min     float32
	max     float32
}

// push appends values and keeps the last limit of them.
func (t *trace) push(values []float32, limit int) {
	t.values = append(t.values, values...)
	if over := len(t.values) - limit; over > 0 {
		t.values = append(t.values[:0], t.values[over:]...)
	}
}

// rescale downsamples for display and recomputes the range with a 10% margin.
func (t *trace) rescale(maxPoints int) {
	t.display = sample.Downsample(t.display, t.values, maxPoints)
	if len(t.display) == 0 {
		t.min, t.max = 0, 1
		return
	}

	t.min, t.max = t.display[0], t.display[0]
	for _, v := range t.display {
		t.min = min(t.min, v)
		t.max = max(t.max, v)
	}

	span := t.max - t.min
	if span == 0 {
		span = 1
	}
	t.min -= span * 0.1
	t.max += span * 0.1
}

// ScopeWidget plots the IR and red traces of the last processed windows with
// the latest vitals.
type ScopeWidget struct {
	widget.BaseWidget

	history int // windows kept

	// Data (protected by mu)
	mu     sync.RWMutex
	ir     trace
	red    trace
	last   report.Report
	has    bool
	status string

	maxDisplayPoints int
}

// New creates a scope keeping history windows on screen.
func New(history int) *ScopeWidget {
	if history <= 0 {
		history = DefaultHistory
	}
	s := &ScopeWidget{
		history:          history,
		status:           "DISCONNECTED",
		maxDisplayPoints: 1000,
	}
	s.ir.min, s.ir.max = 0, 1
	s.red.min, s.red.max = 0, 1
	s.ExtendBaseWidget(s)
	s.Refresh()
	return s
}

// UpdateWindow appends a processed window and its report.
// Call it on the main thread (fyne.Do).
func (s *ScopeWidget) UpdateWindow(w *sample.Window, r report.Report) {
	samples := w.Slice()
	ir := sample.Extract(nil, samples, sample.ChannelIR)
	red := sample.Extract(nil, samples, sample.ChannelRed)

	s.mu.Lock()
	limit := s.history * sample.WindowSize
	s.ir.push(ir, limit)
	s.red.push(red, limit)
	s.ir.rescale(s.maxDisplayPoints)
	s.red.rescale(s.maxDisplayPoints)
	s.last, s.has = r, true
	s.status = r.DeviceState
	s.mu.Unlock()

	s.Refresh()
}

// SetStatus updates the device state line.
func (s *ScopeWidget) SetStatus(state string) {
	s.mu.Lock()
	s.status = state
	s.mu.Unlock()
	s.Refresh()
}

// Clear drops all traces.
func (s *ScopeWidget) Clear() {
	s.mu.Lock()
	s.ir = trace{min: 0, max: 1}
	s.red = trace{min: 0, max: 1}
	s.has = false
	s.mu.Unlock()
	s.Refresh()
}

// CreateRenderer creates the widget renderer.
func (s *ScopeWidget) CreateRenderer() fyne.WidgetRenderer {
	grid := canvas.NewRectangle(color.RGBA{R: 20, G: 20, B: 20, A: 255})
	return &scopeRenderer{
		scope:   s,
		grid:    grid,
		objects: []fyne.CanvasObject{grid},
	}
}
