package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bdobrica/Neuro/internal/neuro/config"
)

// clearEnv blanks every variable Load reads so host settings cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"NEURO_LOG_LEVEL", "NEURO_LOG_FORMAT", "NEURO_DATA_DIR", "NEURO_DATABASE_PATH",
		"Username", "Assistantname", "NEURO_USERNAME", "NEURO_ASSISTANT_NAME",
		"NEURO_LLM_PROVIDER", "NEURO_LLM_API_KEY", "NEURO_LLM_MODEL", "NEURO_LLM_BASE_URL", "NEURO_LLM_TIMEOUT",
		"GEMINI_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY",
		"NEURO_MQTT_BROKER", "NEURO_MQTT_USERNAME", "NEURO_MQTT_PASSWORD", "NEURO_MQTT_TOPIC",
		"NEURO_MQTT_CLIENT_ID", "NEURO_MQTT_DEVICES", "NEURO_MQTT_ENABLED", "NEURO_MQTT_PORT", "NEURO_MQTT_DISABLE_TLS",
		"HuggingFaceAPIKey", "NEURO_HF_TOKEN", "NEURO_IMAGE_ENDPOINT", "NEURO_IMAGES_ENABLED", "NEURO_IMAGE_COUNT",
		"NEURO_IMAGE_TIMEOUT",
		"NEURO_HTTP_ADDR", "NEURO_HTTP_RATE_LIMIT", "NEURO_HTTP_RATE_WINDOW",
		"NEURO_HISTORY_WINDOW", "NEURO_WORKERS", "NEURO_ACTION_TIMEOUT",
	} {
		t.Setenv(name, "")
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_DefaultsWithKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "g-key")

	cfg, err := config.Load("", "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := config.Default()
	want.LLM.APIKey = "g-key"
	if diff := cmp.Diff(&want, cfg); diff != "" {
		t.Errorf("config (-want +got):\n%s", diff)
	}
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "neuro.yaml", `
log_level: debug
llm:
  provider: openai
  api_key: sk-from-file
  model: gpt-4o
dispatch:
  workers: 4
  action_timeout: 10s
mqtt:
  enabled: true
  broker: broker.example.com
  devices: [light, fan]
images:
  action_timeout: 3m
`)
	t.Setenv("NEURO_WORKERS", "2")
	t.Setenv("NEURO_IMAGE_TIMEOUT", "10m")
	t.Setenv("NEURO_MQTT_DEVICES", "light, fan , heater")

	cfg, err := config.Load(path, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.LLM.Provider != "openai" || cfg.LLM.APIKey != "sk-from-file" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Dispatch.Workers != 2 {
		t.Errorf("env should win over the file: workers %d", cfg.Dispatch.Workers)
	}
	if cfg.Dispatch.ActionTimeout != 10*time.Second {
		t.Errorf("action_timeout: got %s", cfg.Dispatch.ActionTimeout)
	}
	if cfg.Images.ActionTimeout != 10*time.Minute {
		t.Errorf("images.action_timeout: got %s", cfg.Images.ActionTimeout)
	}
	if cfg.Images.ActionTimeout <= cfg.Dispatch.ActionTimeout {
		t.Error("image actions need a larger budget than the default")
	}
	if diff := cmp.Diff([]string{"light", "fan", "heater"}, cfg.MQTT.Devices); diff != "" {
		t.Errorf("devices (-want +got):\n%s", diff)
	}
	if cfg.MQTT.Port != 8883 {
		t.Errorf("unset keys keep defaults: port %d", cfg.MQTT.Port)
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	clearEnv(t)
	env := writeFile(t, ".env", "GEMINI_API_KEY=g-dotenv\nUsername=Ada\nAssistantname=Jarvis\nHuggingFaceAPIKey=hf_dotenv\n")
	t.Cleanup(func() {
		for _, k := range []string{"GEMINI_API_KEY", "Username", "Assistantname", "HuggingFaceAPIKey"} {
			os.Unsetenv(k)
		}
	})
	// godotenv never overrides variables that are already set, so unset the
	// blanks from clearEnv first.
	for _, k := range []string{"GEMINI_API_KEY", "Username", "Assistantname", "HuggingFaceAPIKey"} {
		os.Unsetenv(k)
	}

	cfg, err := config.Load("", env)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.APIKey != "g-dotenv" || cfg.Persona.Username != "Ada" || cfg.Persona.AssistantName != "Jarvis" || cfg.Images.Token != "hf_dotenv" {
		t.Errorf(".env values not applied: %+v", cfg)
	}

	if _, err := config.Load("", filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("a missing .env file is not an error: %v", err)
	}
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)

	if _, err := config.Load("", ""); err == nil || !strings.Contains(err.Error(), "llm.api_key") {
		t.Errorf("expected a missing api key error, got %v", err)
	}

	t.Setenv("NEURO_LLM_API_KEY", "k")
	unknown := writeFile(t, "bad.yaml", "llm:\n  provder: openai\n")
	if _, err := config.Load(unknown, ""); err == nil {
		t.Error("expected an error for an unknown YAML key")
	}

	t.Setenv("NEURO_ACTION_TIMEOUT", "soon")
	if _, err := config.Load("", ""); err == nil || !strings.Contains(err.Error(), "NEURO_ACTION_TIMEOUT") {
		t.Errorf("expected a malformed duration error, got %v", err)
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.APIKey = "k"
	cfg.LogFormat = "xml"
	cfg.Dispatch.Workers = 0
	cfg.MQTT.Enabled = true
	cfg.Images.Enabled = true
	cfg.Images.ActionTimeout = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"log_format", "dispatch.workers", "mqtt.broker", "images.token", "images.action_timeout"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s: %v", want, err)
		}
	}
}

func TestSummary_RedactsSecrets(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.APIKey = "sk-secret-value"
	cfg.MQTT.Password = "hunter22"
	cfg.Images.Token = "hf_secret"

	s := cfg.Summary()
	llm := s["llm"].(map[string]any)
	mqtt := s["mqtt"].(map[string]any)
	images := s["images"].(map[string]any)
	if llm["api_key"] != "[REDACTED]" || mqtt["password"] != "[REDACTED]" || images["token"] != "[REDACTED]" {
		t.Errorf("secrets not redacted: %v", s)
	}
	if llm["provider"] != "gemini" {
		t.Errorf("non-secret values must be kept: %v", llm)
	}
}
