package activity

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Activity classes.
const (
	Unclassified = -1

	Resting = 0
	Sitting = 1
	Walking = 2

	NumClasses = 3
)

var names = [NumClasses]string{"resting", "sitting", "walking"}

// Name returns the class name, or "unknown".
func Name(class int) string {
	if class < 0 || class >= NumClasses {
		return "unknown"
	}
	return names[class]
}

// Parse returns the class for a name, case-insensitive.
func Parse(name string) (int, error) {
	for i, n := range names {
		if strings.EqualFold(strings.TrimSpace(name), n) {
			return i, nil
		}
	}
	return Unclassified, fmt.Errorf("unknown activity %q", name)
}

var (
	// ErrUnavailable is returned by engines that could not be initialized.
	ErrUnavailable = errors.New("inference engine unavailable")
	// ErrShape is returned when a model or its output has the wrong dimensions.
	ErrShape = errors.New("unexpected tensor shape")
)

// Source tells which path produced a classification.
type Source int

const (
	SourceNone Source = iota
	SourceModel
	SourceHeuristic
)

// String returns the source name.
func (s Source) String() string {
	switch s {
	case SourceModel:
		return "model"
	case SourceHeuristic:
		return "heuristic"
	default:
		return "none"
	}
}

// Result is one classification.
type Result struct {
	Class         int
	Confidence    float32 // in [0, 1]
	Probabilities [NumClasses]float32
	Timestamp     time.Time
	Source        Source
	Variance      float32 // Summed channel variance, heuristic path only
	Err           error   // Engine failure that caused a fallback
}

// Name returns the class name of r.
func (r Result) Name() string {
	return Name(r.Class)
}
