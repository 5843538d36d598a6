package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.NotNil(t, cfg)
	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Port)
	assert.Equal(t, 115200, cfg.Serial.BaudRate)
	assert.Equal(t, float32(40), cfg.Sampling.RateHz)
	assert.Equal(t, "overwrite", cfg.Sampling.StallPolicy)
	assert.Equal(t, 10, cfg.Vitals.MinSamples)
	assert.Equal(t, float32(10.0), cfg.Vitals.MagnitudeThreshold)
	assert.Equal(t, float32(40), cfg.Vitals.MinHeartRate)
	assert.Equal(t, float32(180), cfg.Vitals.MaxHeartRate)
	assert.True(t, cfg.Activity.Enabled)
	assert.Equal(t, "builtin", cfg.Activity.ModelPath)
	assert.Equal(t, float32(105500), cfg.Activity.Calibration.IRMean)
	assert.Equal(t, float32(800), cfg.Activity.Calibration.RedStd)
	assert.Equal(t, float32(100000), cfg.Activity.HighVariance)
	assert.Equal(t, float32(10000), cfg.Activity.LowVariance)
	assert.Equal(t, 15*time.Second, cfg.Report.StatusInterval)
	assert.Equal(t, "ppg", cfg.Report.MQTT.TopicPrefix)
}

func TestSamplePeriod(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 25*time.Millisecond, cfg.SamplePeriod())

	cfg.Sampling.RateHz = 50
	assert.Equal(t, 20*time.Millisecond, cfg.SamplePeriod())

	cfg.Sampling.RateHz = 0
	assert.Equal(t, 25*time.Millisecond, cfg.SamplePeriod())
}

func TestLoad_FileNotExists(t *testing.T) {
	cfg, err := Load("nonexistent.yaml")
	require.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Port)
}

func TestLoad_ValidYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	yamlContent := `
device:
  id: "wrist-01"

serial:
  port: "/dev/ttyUSB0"

sampling:
  rate_hz: 50
  stall_policy: keep_pending

vitals:
  magnitude_threshold: 25

activity:
  enabled: false
  calibration:
    ir_mean: 90000
    ir_std: 500
    red_mean: 85000
    red_std: 400

report:
  status_interval: 30s
  mqtt:
    broker: "tcp://localhost:1883"
  kafka:
    brokers: ["localhost:9092"]

command:
  tcp:
    address: "192.168.137.1:8889"
`

	_, err = tmpfile.WriteString(yamlContent)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, "wrist-01", cfg.Device.ID)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial.Port)
	assert.Equal(t, float32(50), cfg.Sampling.RateHz)
	assert.Equal(t, "keep_pending", cfg.Sampling.StallPolicy)
	assert.Equal(t, float32(25), cfg.Vitals.MagnitudeThreshold)
	assert.False(t, cfg.Activity.Enabled)
	assert.Equal(t, float32(90000), cfg.Activity.Calibration.IRMean)
	assert.Equal(t, 30*time.Second, cfg.Report.StatusInterval)
	assert.Equal(t, "tcp://localhost:1883", cfg.Report.MQTT.Broker)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Report.Kafka.Brokers)
	assert.Equal(t, "192.168.137.1:8889", cfg.Command.TCP.Address)
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	_, err = tmpfile.WriteString("invalid: yaml: content: [")
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_PartialYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	yamlContent := `
serial:
  port: "/dev/ttyUSB1"
sampling:
  rate_hz: 0
vitals:
  min_heart_rate: 0
`

	_, err = tmpfile.WriteString(yamlContent)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	// Should use defaults for missing or zeroed fields
	assert.Equal(t, "/dev/ttyUSB1", cfg.Serial.Port)
	assert.Equal(t, float32(40), cfg.Sampling.RateHz)
	assert.Equal(t, float32(40), cfg.Vitals.MinHeartRate)
	assert.Equal(t, "ppg:reports", cfg.Report.Redis.Stream)
	assert.True(t, cfg.Activity.Enabled)
}

func TestSave(t *testing.T) {
	cfg := Default()
	cfg.Serial.Port = "/dev/ttyUSB0"
	cfg.Mock.HeartRate = 96

	tmpfile, err := os.CreateTemp("", "test_save_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	err = cfg.Save(tmpfile.Name())
	require.NoError(t, err)

	loaded, err := Load(tmpfile.Name())
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", loaded.Serial.Port)
	assert.Equal(t, float32(96), loaded.Mock.HeartRate)
	assert.Equal(t, cfg.Report.StatusDebounce, loaded.Report.StatusDebounce)
}
