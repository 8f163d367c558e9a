package node

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// recorder collects an ordered event log shared by all mocks.
type recorder struct {
	events []string
}

func (r *recorder) add(format string, args ...any) {
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) String() string {
	return strings.Join(r.events, "\n")
}

// index returns the position of the first event with the given prefix, or -1.
func (r *recorder) index(prefix string) int {
	for i, e := range r.events {
		if strings.HasPrefix(e, prefix) {
			return i
		}
	}
	return -1
}

func (r *recorder) count(prefix string) int {
	n := 0
	for _, e := range r.events {
		if strings.HasPrefix(e, prefix) {
			n++
		}
	}
	return n
}

type published struct {
	Topic    string
	Payload  []byte
	Retained bool
}

type inbound struct {
	topic   string
	payload []byte
}

// MockTransport implements Transport for testing.
type MockTransport struct {
	rec *recorder

	connected  bool
	connectErr error
	publishErr error

	connects   []ConnectOptions
	published  []published
	subscribed []string
	queue      []inbound
}

func (m *MockTransport) Connect(opts ConnectOptions) error {
	m.connects = append(m.connects, opts)
	m.rec.add("connect %s", opts.ClientID)
	if m.connectErr != nil {
		return m.connectErr
	}
	m.connected = true
	return nil
}

func (m *MockTransport) IsConnected() bool {
	return m.connected
}

func (m *MockTransport) Publish(topic string, payload []byte, retained bool) error {
	m.rec.add("publish %s retained=%t %s", topic, retained, payload)
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, published{Topic: topic, Payload: payload, Retained: retained})
	return nil
}

func (m *MockTransport) Subscribe(topic string) error {
	m.rec.add("subscribe %s", topic)
	m.subscribed = append(m.subscribed, topic)
	return nil
}

func (m *MockTransport) Drain(max int, deliver func(topic string, payload []byte) bool) int {
	n := 0
	for n < max && len(m.queue) > 0 {
		msg := m.queue[0]
		m.queue = m.queue[1:]
		n++
		if !deliver(msg.topic, msg.payload) {
			break
		}
	}
	return n
}

func (m *MockTransport) Disconnect() {
	m.rec.add("disconnect")
	m.connected = false
}

func (m *MockTransport) push(topic, payload string) {
	m.queue = append(m.queue, inbound{topic: topic, payload: []byte(payload)})
}

// MockUpdater implements Updater for testing.
type MockUpdater struct {
	rec      *recorder
	outcome  Outcome
	progress [][2]int64
	urls     []string
	deadline bool

	// during runs inside Update, while the update is in progress.
	during func()
}

func (m *MockUpdater) Update(ctx context.Context, url string, progress ProgressFunc) Outcome {
	m.rec.add("update %s", url)
	m.urls = append(m.urls, url)
	_, m.deadline = ctx.Deadline()
	if m.during != nil {
		m.during()
	}
	for _, p := range m.progress {
		progress(p[0], p[1])
	}
	return m.outcome
}

// MockSystem implements SystemInfo for testing.
type MockSystem struct{}

func (MockSystem) MAC() string           { return "aa:bb:cc:dd:ee:ff" }
func (MockSystem) IP() string            { return "192.168.1.50" }
func (MockSystem) Uptime() time.Duration { return 90*time.Second + 500*time.Millisecond }
func (MockSystem) SSID() string          { return "workshop" }
func (MockSystem) RSSI() int             { return -61 }
func (MockSystem) FreeMemory() uint64    { return 123456 }

// MockRestarter implements Restarter for testing.
type MockRestarter struct {
	rec   *recorder
	calls int
}

func (m *MockRestarter) Restart() {
	m.rec.add("restart")
	m.calls++
}

// recordingHooks records every hook invocation.
func recordingHooks(rec *recorder) HookFuncs {
	return HookFuncs{
		Message: func(topic string, payload []byte) {
			rec.add("hook message %s %s", topic, payload)
		},
		Connect:     func() { rec.add("hook connect") },
		Erase:       func() { rec.add("hook erase") },
		UpdateBegin: func() { rec.add("hook update_begin") },
		UpdateProgress: func(current, total int64) {
			rec.add("hook update_progress %d/%d", current, total)
		},
		UpdateComplete: func() { rec.add("hook update_complete") },
		UpdateFailed: func(code int, message string) {
			rec.add("hook update_failed %d %s", code, message)
		},
	}
}

var errBrokerDown = errors.New("broker down")

// fixture bundles a Session and its mocks.
type fixture struct {
	rec       *recorder
	transport *MockTransport
	updater   *MockUpdater
	restarter *MockRestarter
	sleeps    []time.Duration
	session   *Session
	processor *Processor
}

const testDevice = "node-1"

func newFixture(mutate func(*Config)) *fixture {
	rec := &recorder{}
	f := &fixture{
		rec:       rec,
		transport: &MockTransport{rec: rec},
		updater:   &MockUpdater{rec: rec, outcome: OK()},
		restarter: &MockRestarter{rec: rec},
	}

	cfg := DefaultConfig()
	cfg.UpdateServer = "updates.local:8080"
	cfg.Username = "node"
	cfg.Password = "secret"
	if mutate != nil {
		mutate(&cfg)
	}

	s, err := New(Deps{
		Identity:  Identity{DeviceID: testDevice, Version: "1.0.0"},
		Config:    cfg,
		Transport: f.transport,
		Updater:   f.updater,
		System:    MockSystem{},
		Restarter: f.restarter,
		Hooks:     recordingHooks(rec),
		Sleep: func(d time.Duration) {
			rec.add("sleep %s", d)
			f.sleeps = append(f.sleeps, d)
		},
	})
	if err != nil {
		panic(err)
	}
	f.session = s
	f.processor = s.Processor()
	return f
}

// connected returns a fixture whose session has completed a handshake,
// with the event log reset.
func connected(mutate func(*Config)) *fixture {
	f := newFixture(mutate)
	f.session.Tick(time.Unix(0, 0))
	f.rec.events = nil
	f.transport.published = nil
	return f
}

const (
	statusTopic  = "device/status/" + testDevice
	commandTopic = "device/command/" + testDevice
	infoTopic    = "device/info/" + testDevice
)
