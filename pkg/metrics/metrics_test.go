package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilReceiver(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Sample("accepted")
		m.Swap(true, true)
		m.Window("processed")
		m.Processed(time.Millisecond, 72, 98, "fft", 0, "model")
		m.Mode(2, "COLLECTING")
		m.Report("data", true)
		m.SinkPublish("http", time.Millisecond, nil)
		m.Command("START", true)
		assert.Nil(t, m.Registry())
		assert.NotNil(t, m.Handler())
	})
}

func TestCounters(t *testing.T) {
	m := New()

	m.Sample("accepted")
	m.Sample("accepted")
	m.Sample("miss")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.samples.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.samples.WithLabelValues("miss")))

	m.Swap(false, false)
	m.Swap(true, true)
	m.Swap(true, false)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.swaps))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.overwrites))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.discards))

	m.Processed(2*time.Millisecond, 72, 97, "fft", 1, "model")
	assert.Equal(t, 72.0, testutil.ToFloat64(m.heartRate))
	assert.Equal(t, 97.0, testutil.ToFloat64(m.oxygen))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activity))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.heartRateMethod.WithLabelValues("fft")))

	m.Mode(4, "ERROR")
	assert.Equal(t, 4.0, testutil.ToFloat64(m.mode))

	m.SinkPublish("mqtt", time.Millisecond, errors.New("broker down"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sinkPublish.WithLabelValues("mqtt", "error")))

	m.Report("status", false)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reports.WithLabelValues("status", "dropped")))

	m.Command("STOP", false)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commands.WithLabelValues("STOP", "error")))
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.Sample("accepted")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `ppg_samples_total{result="accepted"} 1`))
}

func TestWrapHandler(t *testing.T) {
	m := New()
	h := m.WrapHandler("/status", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("/status", "418")))
}
