package mqtt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-node/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host: "127.0.0.1",
			Port: 1883,
		},
		QoS:       1,
		InboxSize: 4,
	}
}

// =============================================================================
// Fake paho client
// =============================================================================

type fakeToken struct {
	err     error
	timeout bool
}

func (t *fakeToken) Wait() bool                     { return !t.timeout }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type fakePublish struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  []byte
}

type fakePaho struct {
	mu          sync.Mutex
	opts        *pahomqtt.ClientOptions
	open        bool
	connectErr  error
	publishErr  error
	published   []fakePublish
	subscribed  []string
	handler     pahomqtt.MessageHandler
	disconnects int
}

func (f *fakePaho) IsConnected() bool { return f.IsConnectionOpen() }
func (f *fakePaho) IsConnectionOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakePaho) Connect() pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return &fakeToken{err: f.connectErr}
	}
	f.open = true
	return &fakeToken{}
}

func (f *fakePaho) Disconnect(uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = false
	f.disconnects++
}

func (f *fakePaho) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, _ := payload.([]byte)
	f.published = append(f.published, fakePublish{Topic: topic, QoS: qos, Retained: retained, Payload: b})
	return &fakeToken{err: f.publishErr}
}

func (f *fakePaho) Subscribe(topic string, _ byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, topic)
	f.handler = callback
	return &fakeToken{}
}

func (f *fakePaho) SubscribeMultiple(map[string]byte, pahomqtt.MessageHandler) pahomqtt.Token {
	return &fakeToken{}
}

func (f *fakePaho) Unsubscribe(...string) pahomqtt.Token { return &fakeToken{} }

func (f *fakePaho) AddRoute(string, pahomqtt.MessageHandler) {}

func (f *fakePaho) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.NewOptionsReader(f.opts)
}

// deliver simulates the broker pushing a message to the client.
func (f *fakePaho) deliver(topic string, payload []byte) {
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()
	handler(f, &fakeMessage{topic: topic, payload: payload})
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

// newTestClient returns a Client whose paho client is the returned fake.
func newTestClient(t *testing.T) (*Client, *fakePaho) {
	t.Helper()
	fake := &fakePaho{}
	c := New(testConfig())
	c.newClient = func(opts *pahomqtt.ClientOptions) pahomqtt.Client {
		fake.opts = opts
		return fake
	}
	return c, fake
}

func connectTestClient(t *testing.T) (*Client, *fakePaho) {
	t.Helper()
	c, fake := newTestClient(t)
	if err := c.Connect(ConnectOptions{ClientID: "ESPClient-node-1"}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	return c, fake
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect_RegistersWill(t *testing.T) {
	c, fake := newTestClient(t)

	err := c.Connect(ConnectOptions{
		ClientID: "ESPClient-node-1",
		Username: "node",
		Password: "secret",
		Will: &Will{
			Topic:    "device/status/node-1",
			Payload:  []byte(`{"status":"offline"}`),
			QoS:      1,
			Retained: true,
		},
	})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if !c.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}

	if !fake.opts.WillEnabled {
		t.Fatal("will not enabled")
	}
	if fake.opts.WillTopic != "device/status/node-1" {
		t.Errorf("WillTopic = %q, want %q", fake.opts.WillTopic, "device/status/node-1")
	}
	if string(fake.opts.WillPayload) != `{"status":"offline"}` {
		t.Errorf("WillPayload = %q", fake.opts.WillPayload)
	}
	if !fake.opts.WillRetained {
		t.Error("WillRetained = false, want true")
	}
	if fake.opts.ClientID != "ESPClient-node-1" {
		t.Errorf("ClientID = %q, want %q", fake.opts.ClientID, "ESPClient-node-1")
	}
	if fake.opts.Username != "node" || fake.opts.Password != "secret" {
		t.Error("credentials not applied")
	}
	if fake.opts.AutoReconnect {
		t.Error("AutoReconnect = true, want false")
	}
}

func TestConnect_Failure(t *testing.T) {
	c, fake := newTestClient(t)
	fake.connectErr = errors.New("connection refused")

	err := c.Connect(ConnectOptions{ClientID: "ESPClient-node-1"})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("Connect() error = %v, want ErrConnectionFailed", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after failed connect")
	}
}

func TestConnect_Validation(t *testing.T) {
	tests := []struct {
		name string
		opts ConnectOptions
	}{
		{name: "missing client ID", opts: ConnectOptions{}},
		{name: "wildcard will topic", opts: ConnectOptions{ClientID: "c", Will: &Will{Topic: "device/status/#"}}},
		{name: "invalid will QoS", opts: ConnectOptions{ClientID: "c", Will: &Will{Topic: "a/b", QoS: 3}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t)
			if err := c.Connect(tt.opts); !errors.Is(err, ErrConnectionFailed) {
				t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
			}
		})
	}
}

func TestDisconnect(t *testing.T) {
	c, fake := connectTestClient(t)

	c.Disconnect()

	if c.IsConnected() {
		t.Error("IsConnected() = true after Disconnect()")
	}
	if fake.disconnects != 1 {
		t.Errorf("disconnects = %d, want 1", fake.disconnects)
	}

	// Second call is a no-op.
	c.Disconnect()
	if fake.disconnects != 1 {
		t.Errorf("disconnects = %d after second Disconnect(), want 1", fake.disconnects)
	}
}

func TestDisconnect_NeverConnected(t *testing.T) {
	c := New(testConfig())
	c.Disconnect()
	if c.IsConnected() {
		t.Error("IsConnected() = true, want false")
	}
}

// =============================================================================
// HealthCheck Tests
// =============================================================================

func TestHealthCheck(t *testing.T) {
	c, _ := connectTestClient(t)

	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v, want nil", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() expected error for cancelled context")
	}

	c.Disconnect()
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

// =============================================================================
// Publish Tests
// =============================================================================

func TestPublish(t *testing.T) {
	c, fake := connectTestClient(t)

	if err := c.Publish("device/info/node-1", []byte(`{"ok":true}`), 0, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := c.PublishRetained("device/status/node-1", []byte{}); err != nil {
		t.Fatalf("PublishRetained() error = %v", err)
	}

	if len(fake.published) != 2 {
		t.Fatalf("published %d messages, want 2", len(fake.published))
	}
	if fake.published[0].Retained {
		t.Error("first publish retained, want not retained")
	}
	if !fake.published[1].Retained || fake.published[1].QoS != 1 {
		t.Errorf("retained publish = %+v, want retained with QoS 1", fake.published[1])
	}
}

func TestPublish_Validation(t *testing.T) {
	c, _ := connectTestClient(t)

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{name: "empty topic", topic: "", want: ErrInvalidTopic},
		{name: "wildcard topic", topic: "device/+/x", want: ErrInvalidTopic},
		{name: "invalid QoS", topic: "a/b", qos: 3, want: ErrInvalidQoS},
		{name: "oversized payload", topic: "a/b", payload: make([]byte, maxPayloadSize+1), want: ErrPublishFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPublish_Disconnected(t *testing.T) {
	c := New(testConfig())
	if err := c.Publish("a/b", nil, 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}

func TestPublish_BrokerError(t *testing.T) {
	c, fake := connectTestClient(t)
	fake.publishErr = errors.New("not authorised")

	if err := c.Publish("a/b", nil, 1, false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("Publish() error = %v, want ErrPublishFailed", err)
	}
}

// =============================================================================
// Subscribe / Drain Tests
// =============================================================================

func TestSubscribe_Drain(t *testing.T) {
	c, fake := connectTestClient(t)

	if err := c.Subscribe("device/command/node-1", 1); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	fake.deliver("device/command/node-1", []byte(`{"action":"info"}`))
	fake.deliver("app/other", []byte("x"))

	var got []Message
	n := c.Drain(10, func(topic string, payload []byte) bool {
		got = append(got, Message{Topic: topic, Payload: payload})
		return true
	})

	if n != 2 || len(got) != 2 {
		t.Fatalf("Drain() = %d, delivered %d, want 2", n, len(got))
	}
	if got[0].Topic != "device/command/node-1" || got[1].Topic != "app/other" {
		t.Errorf("delivery order = %v", got)
	}
	if c.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", c.Pending())
	}
}

func TestDrain_Bounded(t *testing.T) {
	c, fake := connectTestClient(t)
	if err := c.Subscribe("t/#", 0); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		fake.deliver("t/x", []byte{byte(i)})
	}

	n := c.Drain(2, func(string, []byte) bool { return true })
	if n != 2 {
		t.Errorf("Drain(2) = %d, want 2", n)
	}
	if c.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", c.Pending())
	}
}

func TestDrain_StopsWhenDeliverDeclines(t *testing.T) {
	c, fake := connectTestClient(t)
	if err := c.Subscribe("t/#", 0); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		fake.deliver("t/x", []byte{byte(i)})
	}

	var seen []byte
	n := c.Drain(10, func(_ string, payload []byte) bool {
		seen = append(seen, payload[0])
		return false
	})
	if n != 1 || len(seen) != 1 || seen[0] != 0 {
		t.Errorf("Drain() = %d, seen = %v, want 1 message [0]", n, seen)
	}
	if c.Pending() != 2 {
		t.Errorf("Pending() = %d, want 2", c.Pending())
	}
}

func TestInbox_SurvivesReconnect(t *testing.T) {
	c, fake := connectTestClient(t)
	if err := c.Subscribe("device/command/node-1", 1); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	fake.deliver("device/command/node-1", []byte(`{"action":"info"}`))
	c.Disconnect()
	if err := c.Connect(ConnectOptions{ClientID: "ESPClient-node-1"}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if c.Pending() != 1 {
		t.Fatalf("Pending() after reconnect = %d, want 1", c.Pending())
	}
	var got string
	c.Drain(1, func(_ string, payload []byte) bool {
		got = string(payload)
		return true
	})
	if got != `{"action":"info"}` {
		t.Errorf("drained payload = %q", got)
	}
}

func TestDrain_Empty(t *testing.T) {
	c := New(testConfig())
	called := false
	if n := c.Drain(5, func(string, []byte) bool { called = true; return true }); n != 0 || called {
		t.Errorf("Drain() on empty inbox = %d, called = %v", n, called)
	}
}

func TestInboxOverflow(t *testing.T) {
	c, fake := connectTestClient(t)
	if err := c.Subscribe("t/#", 0); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	// testConfig sets an inbox of 4.
	for i := 0; i < 6; i++ {
		fake.deliver("t/x", []byte{byte(i)})
	}

	if c.Dropped() != 2 {
		t.Errorf("Dropped() = %d, want 2", c.Dropped())
	}

	var first []byte
	c.Drain(1, func(_ string, payload []byte) bool { first = payload; return true })
	if len(first) != 1 || first[0] != 0 {
		t.Errorf("first drained payload = %v, want [0]", first)
	}
}

func TestEnqueue_CopiesPayload(t *testing.T) {
	c, fake := connectTestClient(t)
	if err := c.Subscribe("t/#", 0); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	buf := []byte("abc")
	fake.deliver("t/x", buf)
	buf[0] = 'z'

	c.Drain(1, func(_ string, payload []byte) bool {
		if string(payload) != "abc" {
			t.Errorf("payload = %q, want %q", payload, "abc")
		}
		return true
	})
}

func TestSubscribe_Validation(t *testing.T) {
	c, _ := connectTestClient(t)

	if err := c.Subscribe("", 1); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe(\"\") error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Subscribe("a/b", 3); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Subscribe(qos 3) error = %v, want ErrInvalidQoS", err)
	}

	c.Disconnect()
	if err := c.Subscribe("a/b", 1); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() after Disconnect error = %v, want ErrNotConnected", err)
	}
}

// =============================================================================
// Options Tests
// =============================================================================

func TestBuildClientOptions_TLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883

	opts := buildClientOptions(cfg, ConnectOptions{ClientID: "c"})

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://127.0.0.1:8883" {
		t.Errorf("Servers = %v, want ssl://127.0.0.1:8883", opts.Servers)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLS config not applied")
	}
	if opts.WillEnabled {
		t.Error("will enabled without a Will")
	}
}

func TestNew_DefaultInbox(t *testing.T) {
	cfg := testConfig()
	cfg.InboxSize = 0
	c := New(cfg)
	if cap(c.inbox) != defaultInboxSize {
		t.Errorf("inbox capacity = %d, want %d", cap(c.inbox), defaultInboxSize)
	}
}
