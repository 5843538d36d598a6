package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the tracker configuration.
type Config struct {
	Device   DeviceConfig   `yaml:"device"`
	Serial   SerialConfig   `yaml:"serial"`
	Sampling SamplingConfig `yaml:"sampling"`
	Vitals   VitalsConfig   `yaml:"vitals"`
	Activity ActivityConfig `yaml:"activity"`
	Report   ReportConfig   `yaml:"report"`
	Command  CommandConfig  `yaml:"command"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Mock     MockConfig     `yaml:"mock"`
}

// DeviceConfig identifies the tracker towards the reporting backends.
type DeviceConfig struct {
	ID   string `yaml:"id"` // Empty means "generate at start"
	Name string `yaml:"name"`
}

// SerialConfig contains sensor bridge serial port configuration.
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// SamplingConfig contains acquisition parameters.
type SamplingConfig struct {
	RateHz      float32 `yaml:"rate_hz"`
	StallPolicy string  `yaml:"stall_policy"` // "overwrite" or "keep_pending"
}

// VitalsConfig contains heart rate and SpO2 extraction parameters.
type VitalsConfig struct {
	MinSamples         int     `yaml:"min_samples"`
	MagnitudeThreshold float32 `yaml:"magnitude_threshold"` // Minimum FFT peak magnitude, sensor raw units
	PeakThresholdRatio float32 `yaml:"peak_threshold_ratio"`
	MaxBandHz          float32 `yaml:"max_band_hz"`
	MinHeartRate       float32 `yaml:"min_heart_rate"`
	MaxHeartRate       float32 `yaml:"max_heart_rate"`
	MinSpO2            float32 `yaml:"min_spo2"`
	MaxSpO2            float32 `yaml:"max_spo2"`
}

// ActivityConfig contains activity classifier parameters.
type ActivityConfig struct {
	Enabled      bool              `yaml:"enabled"`
	ModelPath    string            `yaml:"model_path"` // "builtin" or a model file; empty leaves windows unclassified
	Calibration  CalibrationConfig `yaml:"calibration"`
	HighVariance float32           `yaml:"high_variance"`
	LowVariance  float32           `yaml:"low_variance"`
}

// CalibrationConfig holds per-channel normalization captured at training time.
type CalibrationConfig struct {
	IRMean  float32 `yaml:"ir_mean"`
	IRStd   float32 `yaml:"ir_std"`
	RedMean float32 `yaml:"red_mean"`
	RedStd  float32 `yaml:"red_std"`
}

// ReportConfig contains reporting sinks and status push configuration.
type ReportConfig struct {
	QueueSize      int           `yaml:"queue_size"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
	StatusInterval time.Duration `yaml:"status_interval"`
	StatusDebounce time.Duration `yaml:"status_debounce"`
	HTTP           HTTPConfig    `yaml:"http"`
	MQTT           MQTTConfig    `yaml:"mqtt"`
	NATS           NATSConfig    `yaml:"nats"`
	Redis          RedisConfig   `yaml:"redis"`
	Kafka          KafkaConfig   `yaml:"kafka"`
}

// HTTPConfig configures the HTTP sink. Empty URL disables it.
type HTTPConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// MQTTConfig configures the MQTT broker connection. Empty broker disables it.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

// NATSConfig configures the NATS connection. Empty URL disables it.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// RedisConfig configures the Redis stream sink. Empty address disables it.
type RedisConfig struct {
	Addr   string `yaml:"addr"`
	DB     int    `yaml:"db"`
	Stream string `yaml:"stream"`
	MaxLen int64  `yaml:"max_len"`
}

// KafkaConfig configures the Kafka sink. No brokers disables it.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// CommandConfig contains inbound command link configuration.
type CommandConfig struct {
	TCP TCPConfig `yaml:"tcp"`
	// MQTT and NATS command links reuse the report connections when enabled.
	MQTT bool `yaml:"mqtt"`
	NATS bool `yaml:"nats"`
}

// TCPConfig configures the line-based TCP command link. Empty address disables it.
type TCPConfig struct {
	Address          string        `yaml:"address"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	ReconnectDelay   time.Duration `yaml:"reconnect_delay"`
}

// ServerConfig contains the local HTTP API configuration. Empty listen disables it.
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// LogConfig contains logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
}

// MockConfig contains synthetic sensor configuration.
type MockConfig struct {
	HeartRate  float32 `yaml:"heart_rate"` // bpm
	Activity   string  `yaml:"activity"`   // resting, sitting, walking
	RedBase    float32 `yaml:"red_base"`
	IRBase     float32 `yaml:"ir_base"`
	RedAmp     float32 `yaml:"red_amp"`
	IRAmp      float32 `yaml:"ir_amp"`
	NoiseLevel float32 `yaml:"noise_level"`
	MissRate   float32 `yaml:"miss_rate"` // Fraction of reads reporting "no data"
	Seed       uint64  `yaml:"seed"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Name: "ppg-tracker",
		},
		Serial: SerialConfig{
			Port:     "/dev/ttyACM0",
			BaudRate: 115200,
		},
		Sampling: SamplingConfig{
			RateHz:      40,
			StallPolicy: "overwrite",
		},
		Vitals: VitalsConfig{
			MinSamples:         10,
			MagnitudeThreshold: 10.0,
			PeakThresholdRatio: 0.2,
			MaxBandHz:          3.0,
			MinHeartRate:       40,
			MaxHeartRate:       180,
			MinSpO2:            90,
			MaxSpO2:            100,
		},
		Activity: ActivityConfig{
			Enabled:   true,
			ModelPath: "builtin",
			Calibration: CalibrationConfig{
				IRMean:  105500,
				IRStd:   1000,
				RedMean: 101000,
				RedStd:  800,
			},
			HighVariance: 100000,
			LowVariance:  10000,
		},
		Report: ReportConfig{
			QueueSize:      16,
			PublishTimeout: 5 * time.Second,
			StatusInterval: 15 * time.Second,
			StatusDebounce: 250 * time.Millisecond,
			HTTP: HTTPConfig{
				Timeout: 5 * time.Second,
			},
			MQTT: MQTTConfig{
				TopicPrefix: "ppg",
			},
			NATS: NATSConfig{
				SubjectPrefix: "ppg",
			},
			Redis: RedisConfig{
				Stream: "ppg:reports",
				MaxLen: 10000,
			},
			Kafka: KafkaConfig{
				Topic: "ppg.reports",
			},
		},
		Command: CommandConfig{
			TCP: TCPConfig{
				HandshakeTimeout: 5 * time.Second,
				ReconnectDelay:   2 * time.Second,
			},
		},
		Server: ServerConfig{
			Listen: ":8080",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Mock: MockConfig{
			HeartRate:  72,
			Activity:   "resting",
			RedBase:    101000,
			IRBase:     105500,
			RedAmp:     250,
			IRAmp:      300,
			NoiseLevel: 20,
			MissRate:   0.02,
			Seed:       1,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SamplePeriod returns the acquisition tick period derived from the sampling rate.
func (c *Config) SamplePeriod() time.Duration {
	if c.Sampling.RateHz <= 0 {
		return 25 * time.Millisecond
	}
	return time.Duration(float64(time.Second) / float64(c.Sampling.RateHz))
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}

	if c.Sampling.RateHz <= 0 {
		c.Sampling.RateHz = def.Sampling.RateHz
	}
	if c.Sampling.StallPolicy == "" {
		c.Sampling.StallPolicy = def.Sampling.StallPolicy
	}

	if c.Vitals.MinSamples == 0 {
		c.Vitals.MinSamples = def.Vitals.MinSamples
	}
	if c.Vitals.MagnitudeThreshold == 0 {
		c.Vitals.MagnitudeThreshold = def.Vitals.MagnitudeThreshold
	}
	if c.Vitals.PeakThresholdRatio == 0 {
		c.Vitals.PeakThresholdRatio = def.Vitals.PeakThresholdRatio
	}
	if c.Vitals.MaxBandHz == 0 {
		c.Vitals.MaxBandHz = def.Vitals.MaxBandHz
	}
	if c.Vitals.MinHeartRate == 0 {
		c.Vitals.MinHeartRate = def.Vitals.MinHeartRate
	}
	if c.Vitals.MaxHeartRate == 0 {
		c.Vitals.MaxHeartRate = def.Vitals.MaxHeartRate
	}
	if c.Vitals.MinSpO2 == 0 {
		c.Vitals.MinSpO2 = def.Vitals.MinSpO2
	}
	if c.Vitals.MaxSpO2 == 0 {
		c.Vitals.MaxSpO2 = def.Vitals.MaxSpO2
	}

	if c.Activity.Calibration.IRStd == 0 {
		c.Activity.Calibration = def.Activity.Calibration
	}
	if c.Activity.HighVariance == 0 {
		c.Activity.HighVariance = def.Activity.HighVariance
	}
	if c.Activity.LowVariance == 0 {
		c.Activity.LowVariance = def.Activity.LowVariance
	}

	if c.Report.QueueSize == 0 {
		c.Report.QueueSize = def.Report.QueueSize
	}
	if c.Report.PublishTimeout == 0 {
		c.Report.PublishTimeout = def.Report.PublishTimeout
	}
	if c.Report.StatusInterval == 0 {
		c.Report.StatusInterval = def.Report.StatusInterval
	}
	if c.Report.StatusDebounce == 0 {
		c.Report.StatusDebounce = def.Report.StatusDebounce
	}
	if c.Report.HTTP.Timeout == 0 {
		c.Report.HTTP.Timeout = def.Report.HTTP.Timeout
	}
	if c.Report.MQTT.TopicPrefix == "" {
		c.Report.MQTT.TopicPrefix = def.Report.MQTT.TopicPrefix
	}
	if c.Report.NATS.SubjectPrefix == "" {
		c.Report.NATS.SubjectPrefix = def.Report.NATS.SubjectPrefix
	}
	if c.Report.Redis.Stream == "" {
		c.Report.Redis.Stream = def.Report.Redis.Stream
	}
	if c.Report.Kafka.Topic == "" {
		c.Report.Kafka.Topic = def.Report.Kafka.Topic
	}

	if c.Command.TCP.HandshakeTimeout == 0 {
		c.Command.TCP.HandshakeTimeout = def.Command.TCP.HandshakeTimeout
	}
	if c.Command.TCP.ReconnectDelay == 0 {
		c.Command.TCP.ReconnectDelay = def.Command.TCP.ReconnectDelay
	}

	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}

	if c.Mock.HeartRate == 0 {
		c.Mock.HeartRate = def.Mock.HeartRate
	}
	if c.Mock.Activity == "" {
		c.Mock.Activity = def.Mock.Activity
	}
	if c.Mock.RedBase == 0 {
		c.Mock.RedBase = def.Mock.RedBase
	}
	if c.Mock.IRBase == 0 {
		c.Mock.IRBase = def.Mock.IRBase
	}
}
