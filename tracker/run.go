package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/itohio/goppg/pkg/activity"
	"github.com/itohio/goppg/pkg/command"
	"github.com/itohio/goppg/pkg/config"
	"github.com/itohio/goppg/pkg/logging"
	"github.com/itohio/goppg/pkg/metrics"
	"github.com/itohio/goppg/pkg/pipeline"
	"github.com/itohio/goppg/pkg/report"
	"github.com/itohio/goppg/pkg/sensor"
	"github.com/itohio/goppg/pkg/server"
	"github.com/itohio/goppg/pkg/state"
)

func newRunCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the tracker until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return run(ctx, cfg, flags.mock)
		},
	}
}

// loadConfig loads the configuration file and applies flag overrides.
func loadConfig(flags *rootFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.config)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if flags.port != "" {
		cfg.Serial.Port = flags.port
	}
	if flags.level != "" {
		cfg.Log.Level = flags.level
	}
	if cfg.Device.ID == "" {
		cfg.Device.ID = uuid.NewString()
	}
	return cfg, nil
}

func openSensor(cfg *config.Config, mock bool, logger *zap.Logger) sensor.Device {
	if mock {
		return sensor.NewMock(&cfg.Mock, cfg.Sampling.RateHz)
	}
	return sensor.New(cfg.Serial.Port, cfg.Serial.BaudRate, logger)
}

func connectBrokers(cfg *config.Config, logger *zap.Logger) (report.Connections, error) {
	var conns report.Connections
	if cfg.Report.MQTT.Broker != "" {
		client, err := report.ConnectMQTT(cfg.Report.MQTT, "ppg-"+cfg.Device.ID, logger)
		if err != nil {
			return conns, err
		}
		conns.MQTT = client
	}
	if cfg.Report.NATS.URL != "" {
		nc, err := report.ConnectNATS(cfg.Report.NATS.URL, cfg.Device.Name, logger)
		if err != nil {
			closeBrokers(conns)
			return report.Connections{}, err
		}
		conns.NATS = nc
	}
	return conns, nil
}

func closeBrokers(conns report.Connections) {
	if conns.MQTT != nil {
		conns.MQTT.Disconnect(250)
	}
	if conns.NATS != nil {
		conns.NATS.Drain()
	}
}

// startDevice builds the pipeline around dev and connects it. The watchdog
// hook goes in before Connect so a boot failure is pushed at once.
func startDevice(cfg *config.Config, dev sensor.Device, opts pipeline.Options, r report.Reporter,
	onStatus func(report.Status), logger *zap.Logger, mt *metrics.Metrics) (*pipeline.Device, *report.Watchdog) {
	device := pipeline.New(opts, dev, r, logger, mt)
	device.SetIndicator(dev)
	device.SetSensor(dev)

	watchdog := report.NewWatchdog(cfg.Report.StatusInterval, cfg.Report.StatusDebounce, device.Status)
	watchdog.OnStatus(onStatus)
	device.Machine().OnChange(func(state.Change) { watchdog.Trigger() })

	if s, ok := dev.(*sensor.Serial); ok {
		s.OnDisconnect(func(err error) {
			device.Fail(fmt.Errorf("sensor link lost: %w", err))
		})
	}
	if err := dev.Connect(); err != nil {
		// The device stays up in Error so the base station can see it.
		device.Fail(fmt.Errorf("failed to connect sensor: %w", err))
	}
	return device, watchdog
}

// run wires the device and blocks until ctx is done.
func run(ctx context.Context, cfg *config.Config, mock bool) error {
	logger, err := logging.FromConfig(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("starting tracker",
		zap.String("version", version),
		zap.String("device_id", cfg.Device.ID),
		zap.Bool("mock", mock),
	)

	engine, err := activity.LoadEngine(cfg.Activity.ModelPath)
	if err != nil {
		return fmt.Errorf("failed to load activity model: %w", err)
	}
	opts, err := pipeline.OptionsFrom(cfg, engine)
	if err != nil {
		return err
	}

	mt := metrics.New()

	conns, err := connectBrokers(cfg, logger)
	if err != nil {
		return err
	}
	defer closeBrokers(conns)

	hub := report.NewHub(logger)
	sinks, err := report.SinksFromConfig(ctx, cfg.Report, conns, hub)
	if err != nil {
		return fmt.Errorf("failed to create report sinks: %w", err)
	}
	dispatcher := report.NewDispatcher(sinks, cfg.Report.QueueSize, cfg.Report.PublishTimeout, logger, mt)
	logger.Info("report sinks", zap.Strings("sinks", dispatcher.Sinks()))

	dev := openSensor(cfg, mock, logger)
	device, watchdog := startDevice(cfg, dev, opts, dispatcher, dispatcher.PushStatus, logger, mt)
	defer dev.Close()

	if err := dispatcher.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := dispatcher.Stop(); err != nil {
			logger.Warn("report sinks closed with errors", zap.Error(err))
		}
	}()

	var wg sync.WaitGroup
	goRun := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	links := 0
	if cfg.Command.MQTT && conns.MQTT != nil {
		l := command.NewMQTTLink(conns.MQTT, cfg.Report.MQTT.TopicPrefix, cfg.Device.ID, cfg.Report.MQTT.QoS, device, logger)
		if err := l.Start(); err != nil {
			return err
		}
		defer l.Stop()
		links++
	}
	if cfg.Command.NATS && conns.NATS != nil {
		l := command.NewNATSLink(conns.NATS, cfg.Report.NATS.SubjectPrefix, cfg.Device.ID, device, logger)
		if err := l.Start(); err != nil {
			return err
		}
		defer l.Stop()
		links++
	}
	if cfg.Command.TCP.Address != "" {
		tcp := command.NewTCPLink(cfg.Command.TCP, device, logger)
		tcp.OnConnected(device.LinkUp)
		tcp.OnDisconnected(device.LinkDown)
		watchdog.OnStatus(func(s report.Status) {
			if s.Forced {
				tcp.SendStatus(s)
			}
		})
		goRun(func() {
			if err := tcp.Run(ctx); err != nil {
				logger.Error("command link stopped", zap.Error(err))
			}
		})
		links++
	}
	// Broker links and standalone operation have no handshake to wait for.
	if cfg.Command.TCP.Address == "" {
		device.LinkUp()
	}
	if links == 0 {
		logger.Warn("no command link configured; use the local API to control the device")
	}

	if cfg.Server.Listen != "" {
		api := server.New(device, hub, mt, logger)
		goRun(func() {
			if err := api.ListenAndServe(ctx, cfg.Server.Listen); err != nil {
				logger.Error("local API stopped", zap.Error(err))
			}
		})
	}

	goRun(func() { watchdog.Run(ctx) })
	goRun(func() { device.Run(ctx) })

	<-ctx.Done()
	logger.Info("shutting down")
	wg.Wait()

	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
