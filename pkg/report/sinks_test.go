package report

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/goppg/pkg/config"
)

func TestHTTPSink(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
		body  string
		dev   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		paths = append(paths, r.URL.Path)
		body = string(b)
		dev = r.Header.Get("X-Device-Id")
		mu.Unlock()
		if strings.HasSuffix(r.URL.Path, "/status") {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewHTTPSink(srv.URL, time.Second)
	require.NoError(t, s.Publish(context.Background(), KindData, "dev-1", []byte(`{"heartRate":72}`)))
	assert.Error(t, s.Publish(context.Background(), KindStatus, "dev-1", []byte(`{}`)))
	assert.NoError(t, s.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"/data", "/status"}, paths)
	assert.Equal(t, "{}", body)
	assert.Equal(t, "dev-1", dev)
}

func TestRedisSink(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	s, err := NewRedisSink(ctx, config.RedisConfig{Addr: mr.Addr(), Stream: "ppg:reports", MaxLen: 100})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Publish(ctx, KindData, "dev-1", []byte(`{"heartRate":72}`)))
	require.NoError(t, s.Publish(ctx, KindStatus, "dev-1", []byte(`{"deviceState":"IDLE"}`)))

	msgs, err := s.client.XRange(ctx, "ppg:reports", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "data", msgs[0].Values["kind"])
	assert.Equal(t, "dev-1", msgs[0].Values["deviceId"])
	assert.Equal(t, `{"heartRate":72}`, msgs[0].Values["data"])
	assert.Equal(t, "status", msgs[1].Values["kind"])
}

func TestRedisSink_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisSink(context.Background(), config.RedisConfig{Addr: addr, Stream: "s"})
	assert.Error(t, err)
}

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type pendingToken struct{ fakeToken }

func (t *pendingToken) Done() <-chan struct{} { return make(chan struct{}) }

type fakeMQTT struct {
	token    mqtt.Token
	topic    string
	qos      byte
	retained bool
	payload  interface{}
}

func (f *fakeMQTT) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.topic, f.qos, f.retained, f.payload = topic, qos, retained, payload
	return f.token
}

func TestMQTTSink(t *testing.T) {
	client := &fakeMQTT{token: &fakeToken{}}
	s := &MQTTSink{client: client, prefix: "ppg", qos: 1}

	require.NoError(t, s.Publish(context.Background(), KindData, "dev-1", []byte("x")))
	assert.Equal(t, "ppg/dev-1/data", client.topic)
	assert.Equal(t, byte(1), client.qos)
	assert.False(t, client.retained)
	assert.Equal(t, []byte("x"), client.payload)

	require.NoError(t, s.Publish(context.Background(), KindStatus, "dev-1", []byte("y")))
	assert.Equal(t, "ppg/dev-1/status", client.topic)
	assert.True(t, client.retained)

	client.token = &fakeToken{err: errors.New("not connected")}
	assert.Error(t, s.Publish(context.Background(), KindData, "dev-1", nil))

	client.token = &pendingToken{}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Publish(ctx, KindData, "dev-1", nil), context.DeadlineExceeded)
}

type fakeNATS struct {
	subject string
	data    []byte
	err     error
}

func (f *fakeNATS) Publish(subj string, data []byte) error {
	f.subject, f.data = subj, data
	return f.err
}

func TestNATSSink(t *testing.T) {
	conn := &fakeNATS{}
	s := &NATSSink{conn: conn, prefix: "ppg"}

	require.NoError(t, s.Publish(context.Background(), KindStatus, "dev-1", []byte("x")))
	assert.Equal(t, "ppg.dev-1.status", conn.subject)
	assert.Equal(t, []byte("x"), conn.data)

	conn.err = errors.New("connection closed")
	assert.Error(t, s.Publish(context.Background(), KindData, "dev-1", nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Publish(ctx, KindData, "dev-1", nil), context.Canceled)
}

type fakeKafka struct {
	msgs   []kafka.Message
	closed bool
}

func (f *fakeKafka) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeKafka) Close() error {
	f.closed = true
	return nil
}

func TestKafkaSink(t *testing.T) {
	w := &fakeKafka{}
	s := &KafkaSink{writer: w}

	require.NoError(t, s.Publish(context.Background(), KindData, "dev-1", []byte("x")))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("dev-1"), w.msgs[0].Key)
	assert.Equal(t, []byte("x"), w.msgs[0].Value)
	require.Len(t, w.msgs[0].Headers, 1)
	assert.Equal(t, "kind", w.msgs[0].Headers[0].Key)
	assert.Equal(t, []byte("data"), w.msgs[0].Headers[0].Value)

	require.NoError(t, s.Close())
	assert.True(t, w.closed)
}

func TestNewKafkaSink_Validation(t *testing.T) {
	_, err := NewKafkaSink(config.KafkaConfig{Topic: "t"})
	assert.Error(t, err)
	_, err = NewKafkaSink(config.KafkaConfig{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)

	s, err := NewKafkaSink(config.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "t"})
	require.NoError(t, err)
	assert.Equal(t, "kafka", s.Name())
}

func TestHub_Broadcast(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Publish(context.Background(), KindData, "dev-1", []byte(`{"heartRate":72}`)))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(msg, &env))
	assert.Equal(t, KindData, env.Kind)
	assert.JSONEq(t, `{"heartRate":72}`, string(env.Payload))

	require.NoError(t, hub.Close())
	assert.Equal(t, 0, hub.Clients())
}

func TestSinksFromConfig(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := config.Default().Report
	cfg.HTTP.URL = "http://localhost:1"
	cfg.Redis.Addr = mr.Addr()
	cfg.Kafka.Brokers = []string{"localhost:9092"}

	sinks, err := SinksFromConfig(context.Background(), cfg, Connections{}, NewHub(nil))
	require.NoError(t, err)
	defer closeAll(sinks)

	names := make([]string, 0, len(sinks))
	for _, s := range sinks {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"http", "redis", "kafka", "websocket"}, names)

	none, err := SinksFromConfig(context.Background(), config.Default().Report, Connections{}, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}
