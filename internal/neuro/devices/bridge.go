// Package devices is the outbound bridge to IoT devices.
//
// Commands are published to a single MQTT topic as "<device> <STATE>". The
// bridge only knows whether the local client accepted the message; it never
// learns whether a device acted on it.
package devices

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

var (
	// ErrUnknownDevice is returned for a device id outside the allow-list.
	// Nothing is published.
	ErrUnknownDevice = errors.New("no such device")

	// ErrBridgeOffline is returned when the MQTT connection is down.
	ErrBridgeOffline = errors.New("device bridge offline")
)

// Defaults applied by New.
const (
	DefaultPort           = 8883
	DefaultTopic          = "esp8266/devices"
	DefaultKeepAlive      = 60 * time.Second
	DefaultConnectTimeout = 10 * time.Second
)

// DefaultDevices is the allow-list used when Config.Devices is empty.
var DefaultDevices = []string{"light", "fan", "plug", "ac"}

// Config configures the bridge.
type Config struct {
	// Broker is the MQTT broker host name.
	Broker string
	Port   int
	// DisableTLS connects over plain tcp:// instead of ssl://.
	DisableTLS bool
	Username   string
	Password   string
	ClientID   string
	// Topic is the single topic all commands go to.
	Topic string
	// Devices is the allow-list of device ids.
	Devices        []string
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	// QoS is the MQTT quality of service for publishes (0, 1 or 2).
	QoS byte
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Topic == "" {
		c.Topic = DefaultTopic
	}
	if len(c.Devices) == 0 {
		c.Devices = DefaultDevices
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = DefaultKeepAlive
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.ClientID == "" {
		c.ClientID = "neuro-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	}
}

// BrokerURL returns the broker URL the client dials.
func (c Config) BrokerURL() string {
	scheme := "ssl"
	if c.DisableTLS {
		scheme = "tcp"
	}
	return scheme + "://" + net.JoinHostPort(c.Broker, strconv.Itoa(c.Port))
}

// Bridge publishes device commands over MQTT. It is safe for concurrent use.
type Bridge struct {
	client  mqtt.Client
	cfg     Config
	allowed map[string]struct{}
	logger  *slog.Logger

	closeOnce sync.Once
}

// New returns a Bridge with a paho client configured from cfg. The client is
// not connected until Connect is called.
func New(cfg Config, logger *slog.Logger) (*Bridge, error) {
	if strings.TrimSpace(cfg.Broker) == "" {
		return nil, errors.New("devices: broker host is required")
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("devices: invalid qos %d", cfg.QoS)
	}
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "devices", "broker", cfg.Broker, "topic", cfg.Topic)

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL()).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetKeepAlive(cfg.KeepAlive).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetOnConnectHandler(func(mqtt.Client) {
			logger.Info("mqtt connected")
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("mqtt connection lost", "err", err)
		})
	if !cfg.DisableTLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12, ServerName: cfg.Broker})
	}

	return newBridge(cfg, mqtt.NewClient(opts), logger), nil
}

// NewWithClient wraps an existing MQTT client. Defaults are applied to cfg;
// Broker is not required.
func NewWithClient(cfg Config, client mqtt.Client, logger *slog.Logger) *Bridge {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return newBridge(cfg, client, logger)
}

func newBridge(cfg Config, client mqtt.Client, logger *slog.Logger) *Bridge {
	allowed := make(map[string]struct{}, len(cfg.Devices))
	for _, d := range cfg.Devices {
		allowed[strings.ToLower(strings.TrimSpace(d))] = struct{}{}
	}
	return &Bridge{client: client, cfg: cfg, allowed: allowed, logger: logger}
}

// Connect dials the broker and waits for the session, bounded by ctx and
// Config.ConnectTimeout. Later connection drops are retried by the client.
func (b *Bridge) Connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.ConnectTimeout)
	defer cancel()
	if err := waitToken(ctx, b.client.Connect()); err != nil {
		return fmt.Errorf("devices: connect %s: %w", b.cfg.BrokerURL(), err)
	}
	return nil
}

// Connected reports whether the MQTT session is currently up.
func (b *Bridge) Connected() bool {
	return b.client.IsConnectionOpen()
}

// Devices returns the allow-list in configuration order.
func (b *Bridge) Devices() []string {
	return append([]string(nil), b.cfg.Devices...)
}

// Topic returns the topic commands are published to.
func (b *Bridge) Topic() string { return b.cfg.Topic }

// Publish sends "<device> <STATE>" to the command topic and returns the
// payload. Success means the local client accepted the message.
func (b *Bridge) Publish(ctx context.Context, deviceID, state string) (string, error) {
	id := strings.ToLower(strings.TrimSpace(deviceID))
	if _, ok := b.allowed[id]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return "", errors.New("devices: empty state")
	}
	if !b.client.IsConnectionOpen() {
		return "", ErrBridgeOffline
	}

	payload := id + " " + strings.ToUpper(state)
	if err := waitToken(ctx, b.client.Publish(b.cfg.Topic, b.cfg.QoS, false, payload)); err != nil {
		return "", fmt.Errorf("devices: publish %q: %w", payload, err)
	}
	b.logger.Debug("device command published", "payload", payload)
	return payload, nil
}

// Close disconnects from the broker. It is safe to call more than once.
func (b *Bridge) Close() {
	b.closeOnce.Do(func() {
		b.client.Disconnect(250)
	})
}

func waitToken(ctx context.Context, tok mqtt.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
