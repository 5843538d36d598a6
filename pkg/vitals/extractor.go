package vitals

import (
	"github.com/chewxy/math32"

	"github.com/itohio/goppg/pkg/sample"
)

// Tuned constants. Each is the default of the matching Params field.
const (
	DefaultSampleRate         = 40.0
	DefaultMinSamples         = 10
	DefaultMagnitudeThreshold = 10.0 // raw sensor units
	DefaultPeakThresholdRatio = 0.2
	DefaultMaxBandHz          = 3.0
	DefaultMinHeartRate       = 40.0
	DefaultMaxHeartRate       = 180.0
	DefaultMinSpO2            = 90.0
	DefaultMaxSpO2            = 100.0

	// SpO2 = SpO2A + SpO2B*R + SpO2C*R^2 where R is the ratio of ratios.
	SpO2A = 94.845
	SpO2B = -45.060
	SpO2C = 30.354

	smoothHalfWidth = 2
	peakMargin      = 3
	minLevel        = 0.1 // floor for amplitude and mean
)

// Method tells which path produced the heart rate.
type Method int

const (
	MethodDegenerate Method = iota
	MethodFFT
	MethodPeakCount
)

// String returns the method name.
func (m Method) String() string {
	switch m {
	case MethodFFT:
		return "fft"
	case MethodPeakCount:
		return "peak_count"
	default:
		return "degenerate"
	}
}

// Params are the extractor tunables.
type Params struct {
	SampleRate         float32 // Hz
	MinSamples         int
	MagnitudeThreshold float32
	PeakThresholdRatio float32
	MaxBandHz          float32
	MinHeartRate       float32
	MaxHeartRate       float32
	MinSpO2            float32
	MaxSpO2            float32
}

// DefaultParams returns the tuned defaults.
func DefaultParams() Params {
	return Params{
		SampleRate:         DefaultSampleRate,
		MinSamples:         DefaultMinSamples,
		MagnitudeThreshold: DefaultMagnitudeThreshold,
		PeakThresholdRatio: DefaultPeakThresholdRatio,
		MaxBandHz:          DefaultMaxBandHz,
		MinHeartRate:       DefaultMinHeartRate,
		MaxHeartRate:       DefaultMaxHeartRate,
		MinSpO2:            DefaultMinSpO2,
		MaxSpO2:            DefaultMaxSpO2,
	}
}

// Result is the outcome of one extraction. It is always populated.
type Result struct {
	HeartRate        float32 // bpm
	OxygenSaturation float32 // %
	Method           Method
	PeakMagnitude    float32 // Largest in-band spectrum magnitude
	PeakFrequency    float32 // Hz, FFT path only
	Peaks            int     // Accepted peaks, peak-count path only
	Ratio            float32 // Red/IR perfusion index ratio
}

// Extractor turns a window of samples into heart rate and oxygen saturation.
// It holds no state between calls and is safe for concurrent use.
type Extractor struct {
	p Params
}

// New creates an extractor. Zero fields of p are replaced by defaults.
func New(p Params) *Extractor {
	def := DefaultParams()
	if p.SampleRate <= 0 {
		p.SampleRate = def.SampleRate
	}
	if p.MinSamples <= 0 {
		p.MinSamples = def.MinSamples
	}
	if p.MagnitudeThreshold <= 0 {
		p.MagnitudeThreshold = def.MagnitudeThreshold
	}
	if p.PeakThresholdRatio <= 0 {
		p.PeakThresholdRatio = def.PeakThresholdRatio
	}
	if p.MaxBandHz <= 0 {
		p.MaxBandHz = def.MaxBandHz
	}
	if p.MaxHeartRate <= p.MinHeartRate {
		p.MinHeartRate, p.MaxHeartRate = def.MinHeartRate, def.MaxHeartRate
	}
	if p.MaxSpO2 <= p.MinSpO2 {
		p.MinSpO2, p.MaxSpO2 = def.MinSpO2, def.MaxSpO2
	}
	return &Extractor{p: p}
}

// Params returns the effective parameters.
func (e *Extractor) Params() Params {
	return e.p
}

// Extract computes vital signs over samples.
func (e *Extractor) Extract(samples []sample.Sample) Result {
	if len(samples) < e.p.MinSamples {
		return Result{Method: MethodDegenerate}
	}

	n := transformLength(len(samples))

	var ir, smoothed, mag [MaxTransformSize]float32
	for i := 0; i < n; i++ {
		ir[i] = samples[i].IR
	}
	smooth(smoothed[:n], ir[:n])
	removeMean(smoothed[:n])

	magnitudes(smoothed[:n], mag[:n])

	var res Result
	peak, peakMag := e.dominantBin(mag[:n])
	res.PeakMagnitude = peakMag

	if peakMag >= e.p.MagnitudeThreshold {
		res.Method = MethodFFT
		res.PeakFrequency = float32(peak) * e.p.SampleRate / float32(n)
		res.HeartRate = res.PeakFrequency * 60
	} else {
		res.Method = MethodPeakCount
		res.Peaks = countPeaks(smoothed[:n], e.p.PeakThresholdRatio)
		seconds := float32(n) / e.p.SampleRate
		res.HeartRate = float32(res.Peaks) * 60 / seconds
	}
	res.HeartRate = clamp(res.HeartRate, e.p.MinHeartRate, e.p.MaxHeartRate)

	res.OxygenSaturation, res.Ratio = e.oxygen(samples)
	return res
}

// dominantBin searches bins [1, end) with end the bin just past MaxBandHz,
// capped at n/2.
func (e *Extractor) dominantBin(mag []float32) (int, float32) {
	n := len(mag)
	resolution := e.p.SampleRate / float32(n)
	end := int(math32.Round(e.p.MaxBandHz/resolution)) + 1
	if end > n/2 {
		end = n / 2
	}

	peak, peakMag := 0, float32(0)
	for i := 1; i < end; i++ {
		if mag[i] > peakMag {
			peak, peakMag = i, mag[i]
		}
	}
	return peak, peakMag
}

// oxygen computes SpO2 from per-channel perfusion indices over the whole
// unsmoothed window.
func (e *Extractor) oxygen(samples []sample.Sample) (spo2, ratio float32) {
	redMin, redMax := float32(math32.MaxFloat32), float32(-math32.MaxFloat32)
	irMin, irMax := redMin, redMax
	var redSum, irSum float32

	for _, s := range samples {
		redSum += s.Red
		irSum += s.IR
		redMin = math32.Min(redMin, s.Red)
		redMax = math32.Max(redMax, s.Red)
		irMin = math32.Min(irMin, s.IR)
		irMax = math32.Max(irMax, s.IR)
	}

	count := float32(len(samples))
	redMean := math32.Max(redSum/count, minLevel)
	irMean := math32.Max(irSum/count, minLevel)
	redAmp := math32.Max(redMax-redMin, minLevel)
	irAmp := math32.Max(irMax-irMin, minLevel)

	piRed := 100 * redAmp / redMean
	piIR := 100 * irAmp / irMean
	ratio = piRed / piIR

	spo2 = SpO2A + SpO2B*ratio + SpO2C*ratio*ratio
	if math32.IsNaN(spo2) {
		spo2 = e.p.MinSpO2
	}
	return clamp(spo2, e.p.MinSpO2, e.p.MaxSpO2), ratio
}

// smooth applies a centered moving average of half-width 2; edge windows
// are shorter.
func smooth(dst, src []float32) {
	n := len(src)
	for i := range dst {
		var sum float32
		count := 0
		for j := i - smoothHalfWidth; j <= i+smoothHalfWidth; j++ {
			if j >= 0 && j < n {
				sum += src[j]
				count++
			}
		}
		dst[i] = sum / float32(count)
	}
}

func removeMean(x []float32) {
	var mean float32
	for _, v := range x {
		mean += v
	}
	mean /= float32(len(x))
	for i := range x {
		x[i] -= mean
	}
}

// countPeaks counts local maxima of x, away from the edges, that rise at
// least ratio*(max-min) above the previously accepted peak.
func countPeaks(x []float32, ratio float32) int {
	lo, hi := float32(math32.MaxFloat32), float32(-math32.MaxFloat32)
	for _, v := range x {
		lo = math32.Min(lo, v)
		hi = math32.Max(hi, v)
	}
	threshold := ratio * (hi - lo)

	count := 0
	havePeak := false
	var last float32
	for i := peakMargin; i < len(x)-peakMargin; i++ {
		if x[i] <= x[i-1] || x[i] <= x[i+1] {
			continue
		}
		if !havePeak || x[i]-last >= threshold {
			count++
			last = x[i]
			havePeak = true
		}
	}
	return count
}

func clamp(v, lo, hi float32) float32 {
	if math32.IsNaN(v) {
		return lo
	}
	return math32.Max(lo, math32.Min(hi, v))
}
