package sample

// WindowSize is the number of samples in one inference window.
const WindowSize = 100

// Window is a fixed-capacity, ordered buffer of samples consumed as one unit.
type Window struct {
	Samples [WindowSize]Sample
	Count   int
	Ready   bool
}

// Len returns the number of samples held.
func (w *Window) Len() int {
	return w.Count
}

// Full reports whether the window is at capacity.
func (w *Window) Full() bool {
	return w.Count >= WindowSize
}

// Valid reports whether the window may be processed: ready and fully occupied.
func (w *Window) Valid() bool {
	return w.Ready && w.Count == WindowSize
}

// Slice returns the occupied part of the window. The slice aliases the window.
func (w *Window) Slice() []Sample {
	return w.Samples[:w.Count]
}

// Reset empties the window without touching its storage.
func (w *Window) Reset() {
	w.Count = 0
	w.Ready = false
}

func (w *Window) push(s Sample) bool {
	if w.Count >= WindowSize {
		return false
	}
	w.Samples[w.Count] = s
	w.Count++
	return true
}
