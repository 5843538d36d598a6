package activity

import (
	"math/rand/v2"

	"github.com/chewxy/math32"

	"github.com/itohio/goppg/pkg/sample"
)

// Profile describes a synthetic activity window: sinusoids of the given
// amplitude completing Cycles periods over the window, with uniform noise.
type Profile struct {
	IRAmp, RedAmp     float32
	Cycles            float32
	Phase             float32 // red lead over ir, radians
	IRNoise, RedNoise float32 // half-width of uniform noise
}

// Base levels of the synthetic windows, close to the calibration means.
const (
	SyntheticIRBase  = 105500
	SyntheticRedBase = 101000
)

// Profiles holds the synthetic profile of every class.
var Profiles = [NumClasses]Profile{
	Resting: {IRAmp: 300, RedAmp: 250, Cycles: 1, Phase: 0.2, IRNoise: 50, RedNoise: 40},
	Sitting: {IRAmp: 700, RedAmp: 600, Cycles: 2, Phase: 0.3, IRNoise: 100, RedNoise: 80},
	Walking: {IRAmp: 1500, RedAmp: 1200, Cycles: 5, Phase: 0.5, IRNoise: 200, RedNoise: 150},
}

// Synthetic fills dst with a full, ready window for class. rng drives the
// noise; pass a seeded generator for reproducible windows.
func Synthetic(dst *sample.Window, class int, rng *rand.Rand) {
	p := Profiles[Resting]
	if class >= 0 && class < NumClasses {
		p = Profiles[class]
	}

	for i := 0; i < sample.WindowSize; i++ {
		angle := float32(i) / sample.WindowSize * 2 * math32.Pi * p.Cycles
		dst.Samples[i] = sample.Sample{
			IR:  SyntheticIRBase + p.IRAmp*math32.Sin(angle) + uniform(rng, p.IRNoise),
			Red: SyntheticRedBase + p.RedAmp*math32.Sin(angle+p.Phase) + uniform(rng, p.RedNoise),
		}
	}
	dst.Count = sample.WindowSize
	dst.Ready = true
}

func uniform(rng *rand.Rand, halfWidth float32) float32 {
	if rng == nil || halfWidth <= 0 {
		return 0
	}
	return (rng.Float32()*2 - 1) * halfWidth
}
