package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/itohio/goppg/pkg/activity"
	"github.com/itohio/goppg/pkg/config"
	"github.com/itohio/goppg/pkg/pipeline"
	"github.com/itohio/goppg/pkg/report"
	"github.com/itohio/goppg/pkg/sample"
	"github.com/itohio/goppg/pkg/sensor"
	"github.com/itohio/goppg/pkg/state"
)

// windowUpdate is a processed window copied out of the pipeline for the scope.
type windowUpdate struct {
	window sample.Window
	report report.Report
}

// session is one connected sensor with its pipeline running.
type session struct {
	sensor sensor.Device
	device *pipeline.Device
	logger *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// openSession connects the sensor and builds the pipeline. The viewer has no
// base station, so the link is up as soon as the sensor is.
func openSession(cfg *config.Config, mock bool, logger *zap.Logger) (*session, error) {
	engine, err := activity.LoadEngine(cfg.Activity.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load activity model: %w", err)
	}
	opts, err := pipeline.OptionsFrom(cfg, engine)
	if err != nil {
		return nil, err
	}
	if opts.DeviceID == "" {
		opts.DeviceID = cfg.Device.Name
	}

	var dev sensor.Device
	if mock {
		dev = sensor.NewMock(&cfg.Mock, cfg.Sampling.RateHz)
	} else {
		dev = sensor.New(cfg.Serial.Port, cfg.Serial.BaudRate, logger)
	}
	if err := dev.Connect(); err != nil {
		return nil, err
	}

	s := &session{
		sensor: dev,
		device: pipeline.New(opts, dev, nil, logger, nil),
		logger: logger,
	}
	s.device.SetIndicator(dev)
	s.device.SetSensor(dev)
	if serial, ok := dev.(*sensor.Serial); ok {
		serial.OnDisconnect(func(err error) {
			s.device.Fail(fmt.Errorf("sensor link lost: %w", err))
		})
	}
	return s, nil
}

// onResult registers fn for every processed window.
func (s *session) onResult(fn func(windowUpdate)) {
	s.device.Processing().OnResult(func(res pipeline.Result) {
		fn(windowUpdate{window: res.Window, report: res.Report})
	})
}

// onMode registers fn for every mode change.
func (s *session) onMode(fn func(mode string)) {
	fn(s.device.Machine().Mode().String())
	s.device.Machine().OnChange(func(c state.Change) {
		fn(c.To.String())
	})
}

// mock returns the simulated sensor, or nil when running against hardware.
func (s *session) mock() *sensor.Mock {
	m, _ := s.sensor.(*sensor.Mock)
	return m
}

func (s *session) start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.device.LinkUp()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.device.Run(ctx)
	}()
}

// close stops the pipeline and then the sensor.
func (s *session) close() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	if err := s.sensor.Close(); err != nil {
		s.logger.Warn("failed to close sensor", zap.Error(err))
	}
}

func isOK(resp string) bool {
	return strings.HasPrefix(resp, "OK")
}
