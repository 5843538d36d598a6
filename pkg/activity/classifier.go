package activity

import (
	"time"

	"github.com/itohio/goppg/pkg/sample"
)

// Calibration holds the per-channel mean and standard deviation captured at
// training time. It is fixed, never recomputed per window.
type Calibration struct {
	IRMean  float32
	IRStd   float32
	RedMean float32
	RedStd  float32
}

// DefaultCalibration matches the bundled training data.
var DefaultCalibration = Calibration{
	IRMean:  105500,
	IRStd:   1000,
	RedMean: 101000,
	RedStd:  800,
}

// Params configure a Classifier.
type Params struct {
	Disabled     bool
	Calibration  Calibration
	HighVariance float32
	LowVariance  float32
}

// DefaultParams returns the tuned defaults.
func DefaultParams() Params {
	return Params{
		Calibration:  DefaultCalibration,
		HighVariance: DefaultHighVariance,
		LowVariance:  DefaultLowVariance,
	}
}

// Classifier normalizes a window, delegates to an engine and post-processes
// the scores. When the engine fails or yields no finite score it falls back
// to the variance heuristic.
type Classifier struct {
	p      Params
	engine Engine
	now    func() time.Time
}

// New creates a classifier. engine may be nil, in which case no window is
// classified.
func New(p Params, engine Engine) *Classifier {
	def := DefaultParams()
	if p.Calibration.IRStd <= 0 || p.Calibration.RedStd <= 0 {
		p.Calibration = def.Calibration
	}
	if p.HighVariance <= 0 {
		p.HighVariance = def.HighVariance
	}
	if p.LowVariance <= 0 {
		p.LowVariance = def.LowVariance
	}
	return &Classifier{
		p:      p,
		engine: engine,
		now:    time.Now,
	}
}

// HasEngine reports whether an inference engine is attached.
func (c *Classifier) HasEngine() bool {
	return c.engine != nil
}

// Normalize fills t with fixed-calibration z-scores of samples, interleaved
// (ir, red). Rows past len(samples) are zero.
func (c *Classifier) Normalize(t *Tensor, samples []sample.Sample) {
	cal := c.p.Calibration
	*t = Tensor{}
	for i := 0; i < len(samples) && i < sample.WindowSize; i++ {
		t[i*2] = (samples[i].IR - cal.IRMean) / cal.IRStd
		t[i*2+1] = (samples[i].Red - cal.RedMean) / cal.RedStd
	}
}

// Classify returns the activity for a window. Class is Unclassified when
// classification is disabled or no engine is loaded.
func (c *Classifier) Classify(samples []sample.Sample) Result {
	res := Result{Class: Unclassified, Timestamp: c.now()}
	if c.p.Disabled || c.engine == nil {
		return res
	}

	var t Tensor
	c.Normalize(&t, samples)

	scores, err := c.engine.Infer(&t)
	if err == nil && len(scores) != NumClasses {
		err = ErrShape
	}
	if err == nil {
		probs, ok := Softmax(res.Probabilities[:0], scores)
		if ok {
			res.Class = Argmax(probs)
			res.Confidence = probs[res.Class]
			res.Source = SourceModel
			return res
		}
	}
	res.Err = err

	res.Class, res.Confidence, res.Variance = Heuristic(samples, c.p.HighVariance, c.p.LowVariance)
	res.Probabilities = [NumClasses]float32{}
	res.Probabilities[res.Class] = res.Confidence
	res.Source = SourceHeuristic
	return res
}
