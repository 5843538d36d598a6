package scope

import (
	"fmt"
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"

	"github.com/itohio/goppg/pkg/report"
)

var (
	gridColor  = color.RGBA{R: 40, G: 40, B: 40, A: 255}
	labelColor = color.RGBA{R: 150, G: 150, B: 150, A: 255}
	irColor    = color.RGBA{R: 255, G: 165, B: 0, A: 255}
	redColor   = color.RGBA{R: 230, G: 60, B: 60, A: 255}
	textColor  = color.RGBA{R: 200, G: 200, B: 200, A: 255}
)

// scopeRenderer renders the scope widget.
type scopeRenderer struct {
	scope *ScopeWidget

	// Background
	grid *canvas.Rectangle

	objects  []fyne.CanvasObject
	lastSize fyne.Size
}

// MinSize returns the minimum size of the widget.
func (r *scopeRenderer) MinSize() fyne.Size {
	return fyne.NewSize(400, 300)
}

// Layout arranges the widget components.
func (r *scopeRenderer) Layout(size fyne.Size) {
	r.grid.Resize(size)

	if r.lastSize != size {
		r.lastSize = size
		r.scope.BaseWidget.Refresh()
	}
}

// Refresh redraws both traces and the vitals overlay.
func (r *scopeRenderer) Refresh() {
	r.scope.mu.RLock()
	ir := r.scope.ir
	red := r.scope.red
	last, has := r.scope.last, r.scope.has
	status := r.scope.status
	history := r.scope.history
	r.scope.mu.RUnlock()

	size := r.scope.Size()
	if size.Width == 0 || size.Height == 0 {
		return
	}

	r.objects = []fyne.CanvasObject{r.grid}

	marginLeft := float32(70.0)
	marginRight := float32(20.0)
	marginTop := float32(40.0)
	marginBottom := float32(30.0)

	plotX := marginLeft
	plotWidth := size.Width - marginLeft - marginRight
	// IR on the upper half, red on the lower half, each scaled on its own.
	half := (size.Height - marginTop - marginBottom) / 2

	r.drawPanel(plotX, marginTop, plotWidth, half, ir, "IR")
	r.drawPanel(plotX, marginTop+half, plotWidth, half, red, "RED")
	r.drawWindowMarks(plotX, marginTop, plotWidth, 2*half, history)

	r.drawTrace(plotX, marginTop, plotWidth, half, ir, irColor)
	r.drawTrace(plotX, marginTop+half, plotWidth, half, red, redColor)

	r.drawOverlay(plotX, status, last, has)
}

// drawPanel draws the horizontal grid and value labels of one channel.
func (r *scopeRenderer) drawPanel(x, y, w, h float32, t trace, name string) {
	const lines = 4
	for i := range lines + 1 {
		ly := y + float32(i)*h/lines
		r.line(gridColor, 1, x, ly, x+w, ly)

		value := t.max - float32(i)*(t.max-t.min)/lines
		r.text(fmt.Sprintf("%.0f", value), labelColor, 10, fyne.TextAlignTrailing, x-5, ly-6)
	}
	r.text(name, labelColor, 11, fyne.TextAlignLeading, x+5, y+2)
}

// drawWindowMarks draws a vertical line at every window boundary.
func (r *scopeRenderer) drawWindowMarks(x, y, w, h float32, history int) {
	for i := range history + 1 {
		lx := x + float32(i)*w/float32(history)
		r.line(gridColor, 1, lx, y, lx, y+h)
	}
}

func (r *scopeRenderer) drawTrace(x, y, w, h float32, t trace, c color.Color) {
	n := len(t.display)
	if n < 2 {
		return
	}

	span := t.max - t.min
	prev := fyne.NewPos(x, y+h-(t.display[0]-t.min)/span*h)
	for i := 1; i < n; i++ {
		px := x + float32(i)/float32(n-1)*w
		py := y + h - (t.display[i]-t.min)/span*h
		r.line(c, 1.5, prev.X, prev.Y, px, py)
		prev = fyne.NewPos(px, py)
	}
}

func (r *scopeRenderer) drawOverlay(x float32, status string, last report.Report, has bool) {
	r.text(status, textColor, 12, fyne.TextAlignLeading, x, 8)
	if !has {
		return
	}
	r.text(formatVitals(last), textColor, 14, fyne.TextAlignLeading, x+140, 6)
}

func (r *scopeRenderer) line(c color.Color, width, x1, y1, x2, y2 float32) {
	l := canvas.NewLine(c)
	l.Position1 = fyne.NewPos(x1, y1)
	l.Position2 = fyne.NewPos(x2, y2)
	l.StrokeWidth = width
	r.objects = append(r.objects, l)
}

func (r *scopeRenderer) text(s string, c color.Color, size float32, align fyne.TextAlign, x, y float32) {
	t := canvas.NewText(s, c)
	t.TextSize = size
	t.Alignment = align
	t.Move(fyne.NewPos(x, y))
	r.objects = append(r.objects, t)
}

// Objects returns all canvas objects for rendering.
func (r *scopeRenderer) Objects() []fyne.CanvasObject {
	return r.objects
}

// Destroy cleans up resources.
func (r *scopeRenderer) Destroy() {}

func formatVitals(r report.Report) string {
	s := fmt.Sprintf("HR %.0f bpm", r.HeartRate)
	if r.HRMethod != "" {
		s += " (" + r.HRMethod + ")"
	}
	s += fmt.Sprintf("   SpO2 %.0f%%   %s", r.OxygenLevel, r.ActivityName)
	if r.ActionClass >= 0 {
		s += fmt.Sprintf(" %.0f%%", r.Confidence*100)
	}
	return s + fmt.Sprintf("   #%d", r.Sequence)
}
