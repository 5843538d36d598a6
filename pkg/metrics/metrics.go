package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ppg"

// Metrics holds the tracker collectors on a private registry. All methods
// are safe to call on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	samples            *prometheus.CounterVec
	swaps              prometheus.Counter
	overwrites         prometheus.Counter
	discards           prometheus.Counter
	windows            *prometheus.CounterVec
	heartRateMethod    *prometheus.CounterVec
	classifierSource   *prometheus.CounterVec
	processingDuration prometheus.Histogram
	heartRate          prometheus.Gauge
	oxygen             prometheus.Gauge
	activity           prometheus.Gauge
	mode               prometheus.Gauge
	transitions        *prometheus.CounterVec
	reports            *prometheus.CounterVec
	sinkPublish        *prometheus.CounterVec
	sinkDuration       *prometheus.HistogramVec
	commands           *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Acquisition ticks by outcome (accepted, full, rejected, miss).",
		}, []string{"result"}),
		swaps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buffer_swaps_total",
			Help:      "Double buffer role exchanges.",
		}),
		overwrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buffer_overwrites_total",
			Help:      "Ready windows lost to a swap before processing copied them.",
		}),
		discards: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buffer_discards_total",
			Help:      "Collected windows dropped because the previous one was still pending.",
		}),
		windows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "windows_total",
			Help:      "Processing wake-ups by outcome (processed, skipped, halted).",
		}, []string{"outcome"}),
		heartRateMethod: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heart_rate_method_total",
			Help:      "Heart rate estimates by method.",
		}, []string{"method"}),
		classifierSource: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_source_total",
			Help:      "Activity classifications by source (model, heuristic, none).",
		}, []string{"source"}),
		processingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "processing_duration_seconds",
			Help:      "Time spent extracting and classifying one window.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
		heartRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "heart_rate_bpm",
			Help:      "Last reported heart rate.",
		}),
		oxygen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "oxygen_saturation_percent",
			Help:      "Last reported oxygen saturation.",
		}),
		activity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "activity_class",
			Help:      "Last reported activity class (-1 unclassified).",
		}),
		mode: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mode",
			Help:      "Operating mode (0 init, 1 idle, 2 collecting, 3 processing, 4 error).",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mode_transitions_total",
			Help:      "Mode changes by target mode.",
		}, []string{"to"}),
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "Reports and status pushes handed to the dispatcher by outcome (queued, dropped).",
		}, []string{"kind", "outcome"}),
		sinkPublish: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_publish_total",
			Help:      "Sink publishes by sink and result.",
		}, []string{"sink", "result"}),
		sinkDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sink_publish_duration_seconds",
			Help:      "Sink publish latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"sink"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands handled by command and result.",
		}, []string{"command", "result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of HTTP request durations by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.samples,
		m.swaps,
		m.overwrites,
		m.discards,
		m.windows,
		m.heartRateMethod,
		m.classifierSource,
		m.processingDuration,
		m.heartRate,
		m.oxygen,
		m.activity,
		m.mode,
		m.transitions,
		m.reports,
		m.sinkPublish,
		m.sinkDuration,
		m.commands,
		m.httpRequests,
		m.httpDuration,
	)

	m.activity.Set(-1)

	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Sample counts one acquisition tick outcome.
func (m *Metrics) Sample(result string) {
	if m == nil {
		return
	}
	m.samples.WithLabelValues(result).Inc()
}

// Swap counts a buffer swap. lost marks a window dropped by the stall policy;
// overwrite tells which kind.
func (m *Metrics) Swap(lost, overwrite bool) {
	if m == nil {
		return
	}
	switch {
	case !lost:
		m.swaps.Inc()
	case overwrite:
		m.swaps.Inc()
		m.overwrites.Inc()
	default:
		m.discards.Inc()
	}
}

// Window counts one processing wake-up outcome.
func (m *Metrics) Window(outcome string) {
	if m == nil {
		return
	}
	m.windows.WithLabelValues(outcome).Inc()
}

// Processed records the result of one processed window.
func (m *Metrics) Processed(duration time.Duration, heartRate, oxygen float32, method string, class int, source string) {
	if m == nil {
		return
	}
	m.processingDuration.Observe(duration.Seconds())
	m.heartRate.Set(float64(heartRate))
	m.oxygen.Set(float64(oxygen))
	m.heartRateMethod.WithLabelValues(method).Inc()
	m.activity.Set(float64(class))
	m.classifierSource.WithLabelValues(source).Inc()
}

// Mode sets the mode gauge and counts the transition.
func (m *Metrics) Mode(mode int, name string) {
	if m == nil {
		return
	}
	m.mode.Set(float64(mode))
	m.transitions.WithLabelValues(name).Inc()
}

// Report counts a report or status handed to the dispatcher.
func (m *Metrics) Report(kind string, queued bool) {
	if m == nil {
		return
	}
	outcome := "queued"
	if !queued {
		outcome = "dropped"
	}
	m.reports.WithLabelValues(kind, outcome).Inc()
}

// SinkPublish records one sink publish.
func (m *Metrics) SinkPublish(sink string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.sinkPublish.WithLabelValues(sink, result).Inc()
	m.sinkDuration.WithLabelValues(sink).Observe(duration.Seconds())
}

// Command counts one handled command.
func (m *Metrics) Command(command string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.commands.WithLabelValues(command, result).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// Hijack lets websocket upgrades pass through the recorder.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

// WrapHandler counts requests and their duration for route.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		if m != nil {
			m.httpRequests.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
			m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}
	})
}
