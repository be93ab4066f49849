// Package app wires Neuro together: configuration in, an HTTP-served
// assistant out.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/bdobrica/Neuro/common/retry"
	"github.com/bdobrica/Neuro/internal/neuro/actions"
	"github.com/bdobrica/Neuro/internal/neuro/commands"
	"github.com/bdobrica/Neuro/internal/neuro/config"
	"github.com/bdobrica/Neuro/internal/neuro/devices"
	"github.com/bdobrica/Neuro/internal/neuro/memory"
	"github.com/bdobrica/Neuro/internal/neuro/nlp"
)

// App is the assembled assistant.
type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *memory.Store
	bridge     *devices.Bridge
	registry   *commands.Registry
	classifier *nlp.Classifier
	assistant  *Assistant
	server     *Server
}

// Option customises New. Options exist so tests and embedders can replace
// the network-facing collaborators.
type Option func(*options)

type options struct {
	completer  nlp.Completer
	launcher   actions.Launcher
	mqttClient mqtt.Client
	images     actions.ImageGenerator
	logger     *slog.Logger
}

// WithCompleter replaces the provider selected by cfg.LLM.
func WithCompleter(c nlp.Completer) Option { return func(o *options) { o.completer = c } }

// WithLauncher replaces the platform launcher.
func WithLauncher(l actions.Launcher) Option { return func(o *options) { o.launcher = l } }

// WithMQTTClient makes the device bridge use client instead of dialing
// cfg.MQTT.Broker. The bridge is enabled regardless of cfg.MQTT.Enabled.
func WithMQTTClient(client mqtt.Client) Option { return func(o *options) { o.mqttClient = client } }

// WithImageGenerator replaces the Hugging Face client.
func WithImageGenerator(g actions.ImageGenerator) Option {
	return func(o *options) { o.images = g }
}

// WithLogger sets the base logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// New builds every component from cfg. A device bridge that cannot connect
// aborts startup.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	log := o.logger

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if dir := filepath.Dir(cfg.DatabasePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	log.Info("opening database", "path", cfg.DatabasePath)
	store, err := memory.New(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a := &App{cfg: cfg, logger: log, store: store}

	completer := o.completer
	if completer == nil {
		completer, err = nlp.New(ctx, nlp.Config{
			Provider: cfg.LLM.Provider,
			APIKey:   cfg.LLM.APIKey,
			Model:    cfg.LLM.Model,
			BaseURL:  cfg.LLM.BaseURL,
			Timeout:  cfg.LLM.Timeout,
		})
		if err != nil {
			a.Stop()
			return nil, fmt.Errorf("failed to initialize completion backend: %w", err)
		}
	}

	if err := a.connectBridge(ctx, o.mqttClient); err != nil {
		a.Stop()
		return nil, err
	}

	launcher := o.launcher
	if launcher == nil {
		launcher = actions.NewPlatformLauncher(log)
	}

	images := o.images
	if images == nil && cfg.Images.Enabled {
		images = actions.NewHuggingFace(actions.HuggingFaceConfig{
			Endpoint: cfg.Images.Endpoint,
			Token:    cfg.Images.Token,
			Count:    cfg.Images.Count,
		}, log)
	}

	deps := actions.Deps{
		Launcher:  launcher,
		Completer: completer,
		DataDir:   cfg.DataDir,
		Persona: actions.Persona{
			AssistantName: cfg.Persona.AssistantName,
			Username:      cfg.Persona.Username,
		},
		Logger: log,
	}
	// Assign only when set so the interfaces stay nil and the verbs unbound.
	if a.bridge != nil {
		deps.Devices = a.bridge
	}
	if images != nil {
		deps.Images = images
	}

	a.registry, err = commands.NewRegistry(actions.Bindings(deps)...)
	if err != nil {
		a.Stop()
		return nil, fmt.Errorf("failed to build command registry: %w", err)
	}
	executor := commands.NewExecutor(a.registry, commands.ExecutorConfig{
		ActionTimeout: cfg.Dispatch.ActionTimeout,
		VerbTimeouts: map[commands.Verb]time.Duration{
			commands.VerbGenerateImage: cfg.Images.ActionTimeout,
		},
		Workers: cfg.Dispatch.Workers,
		Logger:  log,
	})
	a.classifier = nlp.NewClassifier(completer, commands.VerbTokens(), log,
		nlp.WithHistoryWindow(cfg.HistoryWindow))
	a.assistant = NewAssistant(a.classifier, executor, store, cfg.HistoryWindow, log)

	var limiter *RateLimiter
	if cfg.HTTP.RateLimit > 0 {
		limiter = NewRateLimiter(cfg.HTTP.RateLimit, cfg.HTTP.RateWindow)
	}
	a.server = NewServer(cfg.HTTP.Addr, a.assistant, a, limiter, log)

	log.Info("neuro ready", "verbs", a.Verbs(), "devices", a.bridge != nil)
	return a, nil
}

// connectBridge sets up the MQTT bridge when enabled. Connection attempts are
// retried with backoff before giving up.
func (a *App) connectBridge(ctx context.Context, client mqtt.Client) error {
	mc := a.cfg.MQTT
	dc := devices.Config{
		Broker:     mc.Broker,
		Port:       mc.Port,
		DisableTLS: mc.DisableTLS,
		Username:   mc.Username,
		Password:   mc.Password,
		ClientID:   mc.ClientID,
		Topic:      mc.Topic,
		Devices:    mc.Devices,
		QoS:        byte(mc.QoS),
	}
	switch {
	case client != nil:
		a.bridge = devices.NewWithClient(dc, client, a.logger)
	case mc.Enabled:
		b, err := devices.New(dc, a.logger)
		if err != nil {
			return fmt.Errorf("failed to configure device bridge: %w", err)
		}
		a.bridge = b
	default:
		a.logger.Info("device bridge disabled")
		return nil
	}

	a.logger.Info("connecting to MQTT broker", "broker", mc.Broker)
	err := retry.Do(ctx, retry.DefaultConfig, func() error {
		return a.bridge.Connect(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to connect device bridge: %w", err)
	}
	return nil
}

// Run serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	return a.server.Serve(ctx)
}

// Ask handles a single utterance without going through HTTP.
func (a *App) Ask(ctx context.Context, text string) (*Reply, error) {
	return a.assistant.Handle(ctx, text)
}

// Classify returns the labels for text without dispatching them.
func (a *App) Classify(ctx context.Context, text string) []string {
	return a.classifier.Classify(ctx, nlp.Utterance{Text: text})
}

// Handler returns the HTTP handler.
func (a *App) Handler() *Server { return a.server }

// TurnCount implements StatusSource.
func (a *App) TurnCount(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return a.store.Count(ctx)
}

// Ping implements StatusSource.
func (a *App) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return a.store.Ping(ctx)
}

// BridgeTopic implements StatusSource. It is empty when no bridge is bound.
func (a *App) BridgeTopic() string {
	if a.bridge == nil {
		return ""
	}
	return a.bridge.Topic()
}

// Devices implements StatusSource.
func (a *App) Devices() []string {
	if a.bridge == nil {
		return nil
	}
	return a.bridge.Devices()
}

// BridgeConnected implements StatusSource.
func (a *App) BridgeConnected() bool {
	return a.bridge != nil && a.bridge.Connected()
}

// Verbs implements StatusSource.
func (a *App) Verbs() []string {
	if a.registry == nil {
		return nil
	}
	verbs := a.registry.Verbs()
	out := make([]string, len(verbs))
	for i, v := range verbs {
		out[i] = string(v)
	}
	return out
}

// Stop releases the bridge and the database.
func (a *App) Stop() {
	if a.bridge != nil {
		a.logger.Info("disconnecting device bridge")
		a.bridge.Close()
	}
	if a.store != nil {
		a.logger.Info("closing database")
		a.store.Close()
	}
}
