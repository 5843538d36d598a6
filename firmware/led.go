//go:build tinygo

package main

import "time"

// A pattern is a repeating timeline: the LED is lit during each [on, off)
// segment of the period.
type pattern struct {
	period   time.Duration
	segments [][2]time.Duration
}

func blinks(n int, period time.Duration) pattern {
	p := pattern{period: period}
	for i := 0; i < n; i++ {
		start := time.Duration(i) * 200 * time.Millisecond
		p.segments = append(p.segments, [2]time.Duration{start, start + 100*time.Millisecond})
	}
	return p
}

var patterns = map[byte]pattern{
	'D': blinks(1, 2*time.Second),
	'I': blinks(2, 2*time.Second),
	'P': blinks(3, 2*time.Second),
	// Mostly on with a short gap.
	'C': {period: 2 * time.Second, segments: [][2]time.Duration{{100 * time.Millisecond, 2 * time.Second}}},
	'F': {period: 500 * time.Millisecond, segments: [][2]time.Duration{{0, 250 * time.Millisecond}}},
	// Steady on until the test ends.
	'T': {period: time.Second, segments: [][2]time.Duration{{0, time.Second}}},
}

const ledTestDuration = 3 * time.Second

// indicator renders the current intent pattern without blocking.
type indicator struct {
	current  byte
	previous byte
	since    time.Time
	lit      bool
}

func (l *indicator) set(intent byte, now time.Time) {
	if _, ok := patterns[intent]; !ok {
		return
	}
	if intent == 'T' {
		if l.current != 'T' {
			l.previous = l.current
		}
	} else if intent == l.current {
		return
	}
	l.current = intent
	l.since = now
}

// update returns whether the LED should be lit at now.
func (l *indicator) update(now time.Time) bool {
	if l.current == 'T' && now.Sub(l.since) >= ledTestDuration {
		l.current = l.previous
		l.since = now
	}

	p, ok := patterns[l.current]
	if !ok {
		return false
	}
	phase := now.Sub(l.since) % p.period
	for _, seg := range p.segments {
		if phase >= seg[0] && phase < seg[1] {
			return true
		}
	}
	return false
}
