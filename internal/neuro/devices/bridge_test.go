package devices_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/go-cmp/cmp"

	"github.com/bdobrica/Neuro/internal/neuro/devices"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

// fakeToken is an mqtt.Token that is either already complete or never
// completes (pending).
type fakeToken struct {
	err  error
	done chan struct{}
}

func doneToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func pendingToken() *fakeToken { return &fakeToken{done: make(chan struct{})} }

func (t *fakeToken) Wait() bool { <-t.done; return true }
func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}
func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type published struct {
	Topic   string
	QoS     byte
	Payload string
}

// fakeClient records publishes. Methods not overridden panic through the
// nil embedded interface, which flags unexpected calls.
type fakeClient struct {
	mqtt.Client

	mu           sync.Mutex
	online       bool
	connectTok   mqtt.Token
	publishTok   func() mqtt.Token
	published    []published
	disconnected int
}

func (f *fakeClient) IsConnectionOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online
}

func (f *fakeClient) Connect() mqtt.Token {
	if f.connectTok != nil {
		return f.connectTok
	}
	f.mu.Lock()
	f.online = true
	f.mu.Unlock()
	return doneToken(nil)
}

func (f *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	f.published = append(f.published, published{Topic: topic, QoS: qos, Payload: fmt.Sprint(payload)})
	f.mu.Unlock()
	if f.publishTok != nil {
		return f.publishTok()
	}
	return doneToken(nil)
}

func (f *fakeClient) Disconnect(uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected++
	f.online = false
}

func newBridge(t *testing.T, client *fakeClient) *devices.Bridge {
	t.Helper()
	return devices.NewWithClient(devices.Config{}, client, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestPublish_AllowedDevice(t *testing.T) {
	client := &fakeClient{online: true}
	b := newBridge(t, client)

	payload, err := b.Publish(context.Background(), "Light", "on")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if payload != "light ON" {
		t.Errorf("payload: got %q, want %q", payload, "light ON")
	}
	want := []published{{Topic: "esp8266/devices", QoS: 0, Payload: "light ON"}}
	if diff := cmp.Diff(want, client.published); diff != "" {
		t.Errorf("published (-want +got):\n%s", diff)
	}
}

func TestPublish_UnknownDeviceNeverSent(t *testing.T) {
	client := &fakeClient{online: true}
	b := newBridge(t, client)

	_, err := b.Publish(context.Background(), "toaster", "on")
	if !errors.Is(err, devices.ErrUnknownDevice) {
		t.Fatalf("expected ErrUnknownDevice, got %v", err)
	}
	if err.Error() != "no such device: toaster" {
		t.Errorf("error text: got %q", err.Error())
	}
	if len(client.published) != 0 {
		t.Errorf("nothing should be published, got %v", client.published)
	}
}

func TestPublish_Offline(t *testing.T) {
	client := &fakeClient{online: false}
	b := newBridge(t, client)

	_, err := b.Publish(context.Background(), "fan", "off")
	if !errors.Is(err, devices.ErrBridgeOffline) {
		t.Fatalf("expected ErrBridgeOffline, got %v", err)
	}
	if len(client.published) != 0 {
		t.Errorf("nothing should be published while offline")
	}
}

func TestPublish_ClientRejects(t *testing.T) {
	rejected := errors.New("outbound queue full")
	client := &fakeClient{online: true, publishTok: func() mqtt.Token { return doneToken(rejected) }}
	b := newBridge(t, client)

	if _, err := b.Publish(context.Background(), "plug", "on"); !errors.Is(err, rejected) {
		t.Fatalf("expected the client error, got %v", err)
	}
}

func TestPublish_ContextBoundsWait(t *testing.T) {
	client := &fakeClient{online: true, publishTok: func() mqtt.Token { return pendingToken() }}
	b := newBridge(t, client)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := b.Publish(ctx, "ac", "on"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestPublish_Concurrent(t *testing.T) {
	client := &fakeClient{online: true}
	b := newBridge(t, client)

	var wg sync.WaitGroup
	for _, d := range []string{"light", "fan", "plug", "ac"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := b.Publish(context.Background(), d, "on"); err != nil {
				t.Errorf("Publish(%s): %v", d, err)
			}
		}()
	}
	wg.Wait()
	if len(client.published) != 4 {
		t.Fatalf("expected 4 publishes, got %d", len(client.published))
	}
}

func TestConnect(t *testing.T) {
	client := &fakeClient{}
	b := newBridge(t, client)
	if err := b.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !b.Connected() {
		t.Fatal("bridge should report connected")
	}

	failing := &fakeClient{connectTok: doneToken(errors.New("not authorized"))}
	if err := newBridge(t, failing).Connect(context.Background()); err == nil {
		t.Fatal("expected a connect error")
	}
}

func TestClose_Idempotent(t *testing.T) {
	client := &fakeClient{online: true}
	b := newBridge(t, client)
	b.Close()
	b.Close()
	if client.disconnected != 1 {
		t.Fatalf("expected one disconnect, got %d", client.disconnected)
	}
}

func TestNew_Config(t *testing.T) {
	if _, err := devices.New(devices.Config{}, nil); err == nil {
		t.Error("expected an error without a broker")
	}
	if _, err := devices.New(devices.Config{Broker: "broker.local", QoS: 3}, nil); err == nil {
		t.Error("expected an error for qos 3")
	}
	b, err := devices.New(devices.Config{Broker: "broker.local"}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if diff := cmp.Diff(devices.DefaultDevices, b.Devices()); diff != "" {
		t.Errorf("default devices (-want +got):\n%s", diff)
	}
	if b.Topic() != devices.DefaultTopic {
		t.Errorf("topic: got %q", b.Topic())
	}

	cases := map[string]devices.Config{
		"ssl://broker.local:8883": {Broker: "broker.local", Port: 8883},
		"tcp://10.0.0.5:1883":     {Broker: "10.0.0.5", Port: 1883, DisableTLS: true},
	}
	for want, cfg := range cases {
		if got := cfg.BrokerURL(); got != want {
			t.Errorf("BrokerURL: got %q, want %q", got, want)
		}
	}
}
