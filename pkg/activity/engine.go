package activity

import (
	"fmt"
	"os"

	"github.com/chewxy/math32"
	"gopkg.in/yaml.v3"

	"github.com/itohio/goppg/pkg/sample"
)

// TensorSize is the number of values handed to an engine: WindowSize rows
// of interleaved (ir, red) z-scores.
const TensorSize = sample.WindowSize * 2

// Tensor is the normalized engine input.
type Tensor [TensorSize]float32

// Engine runs a trained classifier over a tensor and returns one raw score
// per class.
type Engine interface {
	Infer(t *Tensor) ([]float32, error)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(t *Tensor) ([]float32, error)

// Infer calls f.
func (f EngineFunc) Infer(t *Tensor) ([]float32, error) {
	return f(t)
}

// Number of summary features the linear model computes from a tensor.
const NumFeatures = 4

// Feature order of LinearModel weight rows.
var FeatureNames = [NumFeatures]string{"ir_std", "ir_step", "red_std", "red_step"}

// LinearModel is a dense layer over per-channel summary features of the
// tensor: standard deviation and mean absolute step of each channel.
type LinearModel struct {
	Classes []string    `yaml:"classes"`
	Weights [][]float32 `yaml:"weights"` // NumClasses rows of NumFeatures
	Bias    []float32   `yaml:"bias"`
}

var _ Engine = (*LinearModel)(nil)

// DefaultModel returns weights separating the three activities by motion
// energy. Crossovers sit near a mean channel deviation of 0.3 and 0.75
// calibration units.
func DefaultModel() *LinearModel {
	return &LinearModel{
		Classes: append([]string(nil), names[:]...),
		Weights: [][]float32{
			{0, 0, 0, 0},
			{2, 0, 2, 0},
			{4, 0, 4, 0},
		},
		Bias: []float32{0, -1.2, -4.2},
	}
}

// LoadModel reads a LinearModel from a YAML file.
func LoadModel(filename string) (*LinearModel, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}

	var m LinearModel
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse model file: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// BuiltinModel selects DefaultModel in LoadEngine.
const BuiltinModel = "builtin"

// LoadEngine resolves a configured model path. An empty path means no
// engine, in which case windows are reported as unclassified.
func LoadEngine(path string) (Engine, error) {
	switch path {
	case "":
		return nil, nil
	case BuiltinModel:
		return DefaultModel(), nil
	}
	m, err := LoadModel(path)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Save writes the model to a YAML file.
func (m *LinearModel) Save(filename string) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal model: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write model file: %w", err)
	}
	return nil
}

// Validate checks the model dimensions.
func (m *LinearModel) Validate() error {
	if len(m.Weights) != NumClasses || len(m.Bias) != NumClasses {
		return fmt.Errorf("%w: want %d classes, got %d weight rows and %d biases",
			ErrShape, NumClasses, len(m.Weights), len(m.Bias))
	}
	for i, row := range m.Weights {
		if len(row) != NumFeatures {
			return fmt.Errorf("%w: weight row %d has %d features, want %d", ErrShape, i, len(row), NumFeatures)
		}
	}
	return nil
}

// Infer computes one score per class.
func (m *LinearModel) Infer(t *Tensor) ([]float32, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	f := features(t)
	scores := make([]float32, NumClasses)
	for c, row := range m.Weights {
		s := m.Bias[c]
		for k, w := range row {
			s += w * f[k]
		}
		scores[c] = s
	}
	return scores, nil
}

func features(t *Tensor) [NumFeatures]float32 {
	var f [NumFeatures]float32
	for ch := 0; ch < 2; ch++ {
		var mean float32
		for i := 0; i < sample.WindowSize; i++ {
			mean += t[i*2+ch]
		}
		mean /= sample.WindowSize

		var acc, step float32
		for i := 0; i < sample.WindowSize; i++ {
			d := t[i*2+ch] - mean
			acc += d * d
			if i > 0 {
				step += math32.Abs(t[i*2+ch] - t[(i-1)*2+ch])
			}
		}
		f[ch*2] = math32.Sqrt(acc / sample.WindowSize)
		f[ch*2+1] = step / (sample.WindowSize - 1)
	}
	return f
}
