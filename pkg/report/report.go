package report

import (
	"fmt"
	"strings"
	"time"
)

// Kind tells the sinks which channel a payload belongs to.
type Kind string

const (
	KindData   Kind = "data"
	KindStatus Kind = "status"
)

// Report is the per-window result sent to the backends.
type Report struct {
	DeviceID     string  `json:"deviceId"`
	Sequence     uint64  `json:"sequence"`
	HeartRate    float32 `json:"heartRate"`
	OxygenLevel  float32 `json:"oxygenLevel"`
	ActionClass  int     `json:"actionClass"`
	ActivityName string  `json:"activityName"`
	Confidence   float32 `json:"confidence"`
	Timestamp    int64   `json:"timestamp"` // unix milliseconds
	DeviceState  string  `json:"deviceState"`
	IsCollecting bool    `json:"isCollecting"`
	IsProcessing bool    `json:"isProcessing"`
	HRMethod     string  `json:"hrMethod,omitempty"`
	Source       string  `json:"activitySource,omitempty"`
}

// Time returns the report timestamp.
func (r Report) Time() time.Time {
	return time.UnixMilli(r.Timestamp)
}

// Status is the device status pushed periodically and on every mode change.
type Status struct {
	DeviceID     string  `json:"deviceId"`
	DeviceState  string  `json:"deviceState"`
	IsCollecting bool    `json:"isCollecting"`
	IsProcessing bool    `json:"isProcessing"`
	Intent       string  `json:"intent"`
	Timestamp    int64   `json:"timestamp"` // unix milliseconds
	Forced       bool    `json:"forced"`
	Error        string  `json:"error,omitempty"`
	Last         *Report `json:"last,omitempty"`
}

// Line renders the status as the command link status line.
func (s Status) Line() string {
	return fmt.Sprintf("STATUS_INFO: Current State: %s, Collecting: %s, Processing: %s",
		s.DeviceState, upperBool(s.IsCollecting), upperBool(s.IsProcessing))
}

func upperBool(b bool) string {
	return strings.ToUpper(fmt.Sprint(b))
}

// Reporter accepts reports. Push must not block.
type Reporter interface {
	Push(r Report)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(r Report)

// Push calls f(r).
func (f ReporterFunc) Push(r Report) {
	f(r)
}
