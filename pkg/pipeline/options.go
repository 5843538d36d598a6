package pipeline

import (
	"fmt"
	"time"

	"github.com/itohio/goppg/pkg/activity"
	"github.com/itohio/goppg/pkg/config"
	"github.com/itohio/goppg/pkg/sample"
	"github.com/itohio/goppg/pkg/vitals"
)

// Options configure a Device.
type Options struct {
	DeviceID     string
	SamplePeriod time.Duration
	StallPolicy  sample.StallPolicy
	Vitals       vitals.Params
	Activity     activity.Params
	Engine       activity.Engine // nil leaves windows unclassified
}

// OptionsFrom builds Options from configuration.
func OptionsFrom(cfg *config.Config, engine activity.Engine) (Options, error) {
	policy, err := sample.ParseStallPolicy(cfg.Sampling.StallPolicy)
	if err != nil {
		return Options{}, fmt.Errorf("failed to configure sampling: %w", err)
	}
	return Options{
		DeviceID:     cfg.Device.ID,
		SamplePeriod: cfg.SamplePeriod(),
		StallPolicy:  policy,
		Vitals:       VitalsParams(cfg),
		Activity:     ActivityParams(cfg),
		Engine:       engine,
	}, nil
}

// VitalsParams maps the sampling and vitals sections to extractor params.
func VitalsParams(cfg *config.Config) vitals.Params {
	v := cfg.Vitals
	return vitals.Params{
		SampleRate:         cfg.Sampling.RateHz,
		MinSamples:         v.MinSamples,
		MagnitudeThreshold: v.MagnitudeThreshold,
		PeakThresholdRatio: v.PeakThresholdRatio,
		MaxBandHz:          v.MaxBandHz,
		MinHeartRate:       v.MinHeartRate,
		MaxHeartRate:       v.MaxHeartRate,
		MinSpO2:            v.MinSpO2,
		MaxSpO2:            v.MaxSpO2,
	}
}

// ActivityParams maps the activity section to classifier params.
func ActivityParams(cfg *config.Config) activity.Params {
	a := cfg.Activity
	return activity.Params{
		Disabled: !a.Enabled,
		Calibration: activity.Calibration{
			IRMean:  a.Calibration.IRMean,
			IRStd:   a.Calibration.IRStd,
			RedMean: a.Calibration.RedMean,
			RedStd:  a.Calibration.RedStd,
		},
		HighVariance: a.HighVariance,
		LowVariance:  a.LowVariance,
	}
}
