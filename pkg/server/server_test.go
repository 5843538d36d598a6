package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/goppg/pkg/metrics"
	"github.com/itohio/goppg/pkg/report"
)

type fakeDevice struct {
	commands []string
}

func (f *fakeDevice) HandleCommand(cmd string) string {
	f.commands = append(f.commands, cmd)
	if strings.EqualFold(strings.TrimSpace(cmd), "start") {
		return "OK: Collection started"
	}
	return "ERROR: Unknown command"
}

func (f *fakeDevice) Status() report.Status {
	return report.Status{
		DeviceID:     "dev-1",
		DeviceState:  "COLLECTING",
		IsCollecting: true,
		Intent:       "collecting",
		Last:         &report.Report{HeartRate: 72},
	}
}

func newTestServer(t *testing.T, hub http.Handler) (*fakeDevice, *httptest.Server) {
	t.Helper()
	dev := &fakeDevice{}
	srv := httptest.NewServer(New(dev, hub, metrics.New(), nil).Handler())
	t.Cleanup(srv.Close)
	return dev, srv
}

func TestServer_Health(t *testing.T) {
	_, srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, map[string]string{"status": "ok", "state": "COLLECTING"}, body)
}

func TestServer_Status(t *testing.T) {
	_, srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var st report.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, "dev-1", st.DeviceID)
	assert.True(t, st.IsCollecting)
	require.NotNil(t, st.Last)
	assert.Equal(t, float32(72), st.Last.HeartRate)
}

func TestServer_Command(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		contentType string
		body        string
		wantCode    int
		wantResp    string
	}{
		{"json", "/command", "application/json", `{"command":"start"}`, http.StatusOK, "OK: Collection started"},
		{"plain", "/command", "text/plain", "START\n", http.StatusOK, "OK: Collection started"},
		{"path", "/command/start", "", "", http.StatusOK, "OK: Collection started"},
		{"unknown", "/command", "text/plain", "DANCE", http.StatusUnprocessableEntity, "ERROR: Unknown command"},
		{"bad json", "/command", "application/json", `{"command":`, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, srv := newTestServer(t, nil)

			resp, err := http.Post(srv.URL+tt.path, tt.contentType, strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantCode, resp.StatusCode)
			var out CommandResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
			if tt.wantResp != "" {
				assert.Equal(t, tt.wantResp, out.Response)
				assert.Equal(t, tt.wantCode == http.StatusOK, out.OK)
			} else {
				assert.True(t, strings.HasPrefix(out.Response, "ERROR:"))
			}
		})
	}
}

func TestServer_CommandRequiresPost(t *testing.T) {
	dev, srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/command")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Empty(t, dev.commands)
}

func TestServer_Metrics(t *testing.T) {
	_, srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `route="/health"`)
}

func TestServer_WebSocket(t *testing.T) {
	hub := report.NewHub(nil)
	_, srv := newTestServer(t, hub)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, hub.Publish(context.Background(), report.KindData, "dev-1", []byte(`{"heartRate":72}`)))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env report.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, report.KindData, env.Kind)
	assert.JSONEq(t, `{"heartRate":72}`, string(env.Payload))
}

func TestServer_NoWebSocketWithoutHub(t *testing.T) {
	_, srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/ws")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// TestServer_GracefulShutdown tests that Serve returns once ctx is done.
func TestServer_GracefulShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := New(&fakeDevice{}, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return within timeout")
	}
}
