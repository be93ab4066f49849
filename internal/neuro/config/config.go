// Package config loads Neuro's configuration.
//
// Sources are layered, later ones winning:
//  1. built-in defaults
//  2. an optional YAML file
//  3. environment variables (a .env file is loaded into the environment first,
//     without overriding variables that are already set)
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/bdobrica/Neuro/common/environment"
	"github.com/bdobrica/Neuro/common/redact"
	"github.com/bdobrica/Neuro/internal/neuro/observability"
)

// Config is the full runtime configuration.
type Config struct {
	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"`
	DataDir       string `yaml:"data_dir"`
	DatabasePath  string `yaml:"database_path"`
	HistoryWindow int    `yaml:"history_window"`

	Persona  PersonaConfig  `yaml:"persona"`
	LLM      LLMConfig      `yaml:"llm"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Images   ImagesConfig   `yaml:"images"`
	HTTP     HTTPConfig     `yaml:"http"`
}

type PersonaConfig struct {
	AssistantName string `yaml:"assistant_name"`
	Username      string `yaml:"username"`
}

type LLMConfig struct {
	Provider string        `yaml:"provider"`
	APIKey   string        `yaml:"api_key"`
	Model    string        `yaml:"model"`
	BaseURL  string        `yaml:"base_url"`
	Timeout  time.Duration `yaml:"timeout"`
}

type DispatchConfig struct {
	Workers       int           `yaml:"workers"`
	ActionTimeout time.Duration `yaml:"action_timeout"`
}

type MQTTConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Broker     string   `yaml:"broker"`
	Port       int      `yaml:"port"`
	DisableTLS bool     `yaml:"disable_tls"`
	Username   string   `yaml:"username"`
	Password   string   `yaml:"password"`
	ClientID   string   `yaml:"client_id"`
	Topic      string   `yaml:"topic"`
	Devices    []string `yaml:"devices"`
	QoS        int      `yaml:"qos"`
}

type ImagesConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Token    string `yaml:"token"`
	Count    int    `yaml:"count"`
	// ActionTimeout bounds one "generate image" action, retries included.
	// It replaces dispatch.action_timeout for that verb.
	ActionTimeout time.Duration `yaml:"action_timeout"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
	// RateLimit is the number of queries one client may send per RateWindow.
	// Zero disables rate limiting.
	RateLimit  int           `yaml:"rate_limit"`
	RateWindow time.Duration `yaml:"rate_window"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		LogLevel:      "info",
		LogFormat:     "text",
		DataDir:       "data",
		DatabasePath:  "data/neuro.db",
		HistoryWindow: 8,
		Persona:       PersonaConfig{AssistantName: "Neuro", Username: "User"},
		LLM:           LLMConfig{Provider: "gemini", Timeout: 60 * time.Second},
		Dispatch:      DispatchConfig{Workers: 8, ActionTimeout: 30 * time.Second},
		MQTT: MQTTConfig{
			Port:    8883,
			Topic:   "esp8266/devices",
			Devices: []string{"light", "fan", "plug", "ac"},
		},
		Images: ImagesConfig{Count: 4, ActionTimeout: 8 * time.Minute},
		HTTP:   HTTPConfig{Addr: ":8080", RateLimit: 30, RateWindow: time.Minute},
	}
}

// Load builds the configuration from defaults, the YAML file at path (skipped
// when path is empty) and the environment. envFile is loaded into the
// environment first when it exists; pass "" to skip it.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	}

	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if err := decodeYAML(raw, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// decodeYAML rejects unknown keys so that typos surface at startup.
func decodeYAML(raw []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnv layers NEURO_* variables, plus the variable names used by earlier
// .env files (GEMINI_API_KEY, HuggingFaceAPIKey, Username, Assistantname).
func (c *Config) applyEnv() error {
	environment.OverrideString(&c.LogLevel, "NEURO_LOG_LEVEL")
	environment.OverrideString(&c.LogFormat, "NEURO_LOG_FORMAT")
	environment.OverrideString(&c.DataDir, "NEURO_DATA_DIR")
	environment.OverrideString(&c.DatabasePath, "NEURO_DATABASE_PATH")

	environment.OverrideString(&c.Persona.Username, "Username")
	environment.OverrideString(&c.Persona.AssistantName, "Assistantname")
	environment.OverrideString(&c.Persona.Username, "NEURO_USERNAME")
	environment.OverrideString(&c.Persona.AssistantName, "NEURO_ASSISTANT_NAME")

	environment.OverrideString(&c.LLM.Provider, "NEURO_LLM_PROVIDER")
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = os.Getenv(providerKeyVar(c.LLM.Provider))
	}
	environment.OverrideString(&c.LLM.APIKey, "NEURO_LLM_API_KEY")
	environment.OverrideString(&c.LLM.Model, "NEURO_LLM_MODEL")
	environment.OverrideString(&c.LLM.BaseURL, "NEURO_LLM_BASE_URL")

	environment.OverrideString(&c.MQTT.Broker, "NEURO_MQTT_BROKER")
	environment.OverrideString(&c.MQTT.Username, "NEURO_MQTT_USERNAME")
	environment.OverrideString(&c.MQTT.Password, "NEURO_MQTT_PASSWORD")
	environment.OverrideString(&c.MQTT.Topic, "NEURO_MQTT_TOPIC")
	environment.OverrideString(&c.MQTT.ClientID, "NEURO_MQTT_CLIENT_ID")
	environment.OverrideStringSlice(&c.MQTT.Devices, "NEURO_MQTT_DEVICES")

	environment.OverrideString(&c.Images.Token, "HuggingFaceAPIKey")
	environment.OverrideString(&c.Images.Token, "NEURO_HF_TOKEN")
	environment.OverrideString(&c.Images.Endpoint, "NEURO_IMAGE_ENDPOINT")

	environment.OverrideString(&c.HTTP.Addr, "NEURO_HTTP_ADDR")

	return errors.Join(
		environment.OverrideInt(&c.HistoryWindow, "NEURO_HISTORY_WINDOW"),
		environment.OverrideDuration(&c.LLM.Timeout, "NEURO_LLM_TIMEOUT"),
		environment.OverrideInt(&c.Dispatch.Workers, "NEURO_WORKERS"),
		environment.OverrideDuration(&c.Dispatch.ActionTimeout, "NEURO_ACTION_TIMEOUT"),
		environment.OverrideBool(&c.MQTT.Enabled, "NEURO_MQTT_ENABLED"),
		environment.OverrideInt(&c.MQTT.Port, "NEURO_MQTT_PORT"),
		environment.OverrideBool(&c.MQTT.DisableTLS, "NEURO_MQTT_DISABLE_TLS"),
		environment.OverrideBool(&c.Images.Enabled, "NEURO_IMAGES_ENABLED"),
		environment.OverrideInt(&c.Images.Count, "NEURO_IMAGE_COUNT"),
		environment.OverrideDuration(&c.Images.ActionTimeout, "NEURO_IMAGE_TIMEOUT"),
		environment.OverrideInt(&c.HTTP.RateLimit, "NEURO_HTTP_RATE_LIMIT"),
		environment.OverrideDuration(&c.HTTP.RateWindow, "NEURO_HTTP_RATE_WINDOW"),
	)
}

// providerKeyVar is the conventional API key variable of each provider.
func providerKeyVar(provider string) string {
	switch strings.ToLower(provider) {
	case "openai":
		return "OPENAI_API_KEY"
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	default:
		return "GEMINI_API_KEY"
	}
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if _, err := observability.ParseLevel(c.LogLevel); err != nil {
		add("log_level: %w", err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		add("log_format must be text or json, got %q", c.LogFormat)
	}
	if c.DatabasePath == "" {
		add("database_path is required")
	}
	if c.HistoryWindow < 0 || c.HistoryWindow > 100 {
		add("history_window must be between 0 and 100, got %d", c.HistoryWindow)
	}

	switch strings.ToLower(c.LLM.Provider) {
	case "gemini", "openai", "anthropic":
	default:
		add("llm.provider must be gemini, openai or anthropic, got %q", c.LLM.Provider)
	}
	if c.LLM.APIKey == "" {
		add("llm.api_key is required (set NEURO_LLM_API_KEY or %s)", providerKeyVar(c.LLM.Provider))
	}

	if c.Dispatch.Workers <= 0 {
		add("dispatch.workers must be positive, got %d", c.Dispatch.Workers)
	}
	if c.Dispatch.ActionTimeout <= 0 {
		add("dispatch.action_timeout must be positive, got %s", c.Dispatch.ActionTimeout)
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			add("mqtt.broker is required when mqtt is enabled")
		}
		if c.MQTT.Port <= 0 || c.MQTT.Port > 65535 {
			add("mqtt.port out of range: %d", c.MQTT.Port)
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			add("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
		}
		if len(c.MQTT.Devices) == 0 {
			add("mqtt.devices must not be empty")
		}
	}

	if c.Images.Enabled {
		if c.Images.Token == "" {
			add("images.token is required when images are enabled (set NEURO_HF_TOKEN)")
		}
		if c.Images.Count <= 0 {
			add("images.count must be positive, got %d", c.Images.Count)
		}
		if c.Images.ActionTimeout <= 0 {
			add("images.action_timeout must be positive, got %s", c.Images.ActionTimeout)
		}
	}

	if c.HTTP.RateLimit < 0 {
		add("http.rate_limit must not be negative")
	}
	if c.HTTP.RateLimit > 0 && c.HTTP.RateWindow <= 0 {
		add("http.rate_window must be positive when rate limiting is on")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// Summary returns the configuration as a nested map with secrets redacted,
// suitable for logging at startup.
func (c *Config) Summary() map[string]any {
	return redact.Map(map[string]any{
		"log_level":      c.LogLevel,
		"data_dir":       c.DataDir,
		"database_path":  c.DatabasePath,
		"history_window": c.HistoryWindow,
		"llm": map[string]any{
			"provider": c.LLM.Provider,
			"model":    c.LLM.Model,
			"base_url": c.LLM.BaseURL,
			"api_key":  c.LLM.APIKey,
		},
		"dispatch": map[string]any{
			"workers":        c.Dispatch.Workers,
			"action_timeout": c.Dispatch.ActionTimeout.String(),
		},
		"mqtt": map[string]any{
			"enabled":  c.MQTT.Enabled,
			"broker":   c.MQTT.Broker,
			"topic":    c.MQTT.Topic,
			"devices":  strings.Join(c.MQTT.Devices, ","),
			"username": c.MQTT.Username,
			"password": c.MQTT.Password,
		},
		"images": map[string]any{
			"enabled": c.Images.Enabled,
			"count":   c.Images.Count,
			"timeout": c.Images.ActionTimeout.String(),
			"token":   c.Images.Token,
		},
		"http": map[string]any{
			"addr":       c.HTTP.Addr,
			"rate_limit": c.HTTP.RateLimit,
		},
	})
}
