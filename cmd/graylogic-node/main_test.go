package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-node/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-node/internal/node"
	"github.com/nerrad567/gray-logic-node/internal/settings"
	"github.com/nerrad567/gray-logic-node/migrations"
)

// MockMQTTClient records calls made through the transport adapter.
type MockMQTTClient struct {
	mu         sync.Mutex
	qos        byte
	connected  bool
	connects   int
	connectOpt mqtt.ConnectOptions
	published  []string
	subscribed []string
	inbox      []string
	drained    int
	disconnect int
}

func (m *MockMQTTClient) Connect(opts mqtt.ConnectOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connects++
	m.connectOpt = opts
	m.connected = true
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, topic+" "+string(payload)+" qos="+string('0'+rune(qos))+" retained="+boolString(retained))
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, qos byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribed = append(m.subscribed, topic+" qos="+string('0'+rune(qos)))
	return nil
}

// Drain hands out inbox topics with an empty payload.
func (m *MockMQTTClient) Drain(max int, deliver func(topic string, payload []byte) bool) int {
	m.mu.Lock()
	m.drained = max
	m.mu.Unlock()

	n := 0
	for n < max {
		m.mu.Lock()
		if len(m.inbox) == 0 {
			m.mu.Unlock()
			break
		}
		topic := m.inbox[0]
		m.inbox = m.inbox[1:]
		m.mu.Unlock()

		n++
		if !deliver(topic, nil) {
			break
		}
	}
	return n
}

func (m *MockMQTTClient) QoS() byte { return m.qos }

func (m *MockMQTTClient) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnect++
	m.connected = false
}

func (m *MockMQTTClient) connectCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func TestMQTTTransport_Connect(t *testing.T) {
	client := &MockMQTTClient{qos: 1}
	tr := newMQTTTransport(client)

	err := tr.Connect(node.ConnectOptions{
		ClientID: "ESPClient-node-1",
		Username: "node",
		Password: "secret",
		Will: node.Will{
			Topic:    "device/status/node-1",
			Payload:  []byte(`{"status":"offline"}`),
			Retained: true,
		},
	})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	got := client.connectOpt
	if got.ClientID != "ESPClient-node-1" || got.Username != "node" || got.Password != "secret" {
		t.Errorf("connect options = %+v", got)
	}
	if got.Will == nil {
		t.Fatal("will not registered")
	}
	if got.Will.Topic != "device/status/node-1" || !got.Will.Retained || got.Will.QoS != 1 {
		t.Errorf("will = %+v", got.Will)
	}
	if !tr.IsConnected() {
		t.Error("IsConnected() = false after Connect")
	}
}

func TestMQTTTransport_ConnectWithoutWill(t *testing.T) {
	client := &MockMQTTClient{}
	tr := newMQTTTransport(client)

	if err := tr.Connect(node.ConnectOptions{ClientID: "c"}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if client.connectOpt.Will != nil {
		t.Errorf("will = %+v, want nil", client.connectOpt.Will)
	}
}

func TestMQTTTransport_UsesConfiguredQoS(t *testing.T) {
	client := &MockMQTTClient{qos: 2}
	tr := newMQTTTransport(client)

	if err := tr.Publish("device/info/node-1", []byte("{}"), false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := tr.Subscribe("device/command/node-1"); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if len(client.published) != 1 || client.published[0] != "device/info/node-1 {} qos=2 retained=false" {
		t.Errorf("published = %v", client.published)
	}
	if len(client.subscribed) != 1 || client.subscribed[0] != "device/command/node-1 qos=2" {
		t.Errorf("subscribed = %v", client.subscribed)
	}
}

func TestMQTTTransport_DrainAndDisconnect(t *testing.T) {
	client := &MockMQTTClient{connected: true, inbox: []string{"a/b", "c/d", "e/f"}}
	tr := newMQTTTransport(client)

	var topics []string
	n := tr.Drain(8, func(topic string, _ []byte) bool {
		topics = append(topics, topic)
		return len(topics) < 2
	})
	if n != 2 || client.drained != 8 || len(topics) != 2 || topics[0] != "a/b" {
		t.Errorf("Drain() = %d, max=%d, topics=%v", n, client.drained, topics)
	}
	if len(client.inbox) != 1 {
		t.Errorf("inbox = %v, want one message left", client.inbox)
	}

	tr.Disconnect()
	if client.disconnect != 1 || tr.IsConnected() {
		t.Error("Disconnect() not forwarded")
	}
}

func TestNodeConfig(t *testing.T) {
	cfg := &config.Config{
		MQTT: config.MQTTConfig{
			Broker: config.MQTTBrokerConfig{ClientIDPrefix: "ESPClient-"},
			Auth:   config.MQTTAuthConfig{Username: "u", Password: "p"},
		},
		Topics: config.TopicsConfig{Status: "s", Command: "c", Info: "i"},
		Update: config.UpdateConfig{
			Server:           "updates.local:8080",
			Source:           config.UpdateSourceVersion,
			Mode:             config.UpdateModeConnected,
			SettleDelayMS:    250,
			RestartOnSuccess: true,
			Timeout:          60,
		},
		Node: config.NodeConfig{
			ReconnectIntervalMS: 5000,
			MaxDrain:            4,
			EraseDelayMS:        500,
		},
	}

	got := nodeConfig(cfg)
	want := node.Config{
		StatusPrefix:      "s",
		CommandPrefix:     "c",
		InfoPrefix:        "i",
		ClientIDPrefix:    "ESPClient-",
		Username:          "u",
		Password:          "p",
		UpdateServer:      "updates.local:8080",
		UpdateSource:      node.UpdateSourceVersion,
		UpdateMode:        node.UpdateModeConnected,
		SettleDelay:       250 * time.Millisecond,
		EraseDelay:        500 * time.Millisecond,
		UpdateTimeout:     time.Minute,
		RestartOnUpdate:   true,
		ReconnectInterval: 5 * time.Second,
		MaxDrain:          4,
	}
	if got != want {
		t.Errorf("nodeConfig() = %+v\nwant %+v", got, want)
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("GRAYLOGIC_NODE_CONFIG", "")
	if got := getConfigPath(""); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want default", got)
	}

	t.Setenv("GRAYLOGIC_NODE_CONFIG", "/tmp/env.yaml")
	if got := getConfigPath(""); got != "/tmp/env.yaml" {
		t.Errorf("getConfigPath() = %q, want env value", got)
	}
	if got := getConfigPath("/tmp/flag.yaml"); got != "/tmp/flag.yaml" {
		t.Errorf("getConfigPath(flag) = %q, want flag value", got)
	}
}

type countingTicker struct{ n atomic.Int32 }

func (c *countingTicker) Tick(time.Time) { c.n.Add(1) }

func TestLoop_TicksUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tk := &countingTicker{}

	done := make(chan struct{})
	go func() {
		loop(ctx, tk, time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for tk.n.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not return after cancel")
	}
	if tk.n.Load() < 3 {
		t.Errorf("ticks = %d, want at least 3", tk.n.Load())
	}
}

func TestIncrementBootCount(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: filepath.Join(t.TempDir(), "node.db")})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close() //nolint:errcheck // Test cleanup
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	store := settings.NewSQLiteStore(db.DB)
	log := logging.Discard()

	for want := 1; want <= 3; want++ {
		if got := incrementBootCount(ctx, store, log); got != want {
			t.Errorf("incrementBootCount() = %d, want %d", got, want)
		}
	}
	if v, err := store.Get(ctx, settings.KeyBootCount); err != nil || v != "3" {
		t.Errorf("boot_count = %q, %v", v, err)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx, "/nonexistent/path/node.yaml")
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
	if !strings.Contains(err.Error(), "loading config") {
		t.Errorf("run() error = %v, want loading config error", err)
	}
}

func TestRun_ShutdownLeavesSessionOpenForWill(t *testing.T) {
	t.Setenv("GRAYLOGIC_NODE_DEVICE_ID", "")
	t.Setenv("GRAYLOGIC_NODE_DATABASE_PATH", "")
	dir := t.TempDir()
	configPath := filepath.Join(dir, "node.yaml")
	content := `
device:
  id: node-1
update:
  image_path: ` + filepath.Join(dir, "firmware.bin") + `
node:
  tick_interval_ms: 1
database:
  path: ` + filepath.Join(dir, "node.db") + `
logging:
  output: discard
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	client := &MockMQTTClient{qos: 1}
	orig := newBrokerClient
	newBrokerClient = func(config.MQTTConfig, *logging.Logger) mqttClient { return client }
	t.Cleanup(func() { newBrokerClient = orig })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- run(ctx, configPath) }()

	deadline := time.Now().Add(5 * time.Second)
	for client.connectCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if client.connectCount() == 0 {
		cancel()
		t.Fatal("node never connected")
	}
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	if client.disconnect != 0 {
		t.Errorf("Disconnect called %d times on shutdown, want 0", client.disconnect)
	}
	if !client.connected {
		t.Error("session closed on shutdown")
	}
}
