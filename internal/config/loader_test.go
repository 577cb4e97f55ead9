package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("GW_TEST_KEY", "sk-live")

	cases := []struct {
		in   string
		want string
	}{
		{"api_key: ${GW_TEST_KEY}", "api_key: sk-live"},
		{"api_key: ${GW_TEST_KEY:fallback}", "api_key: sk-live"},
		{"host: ${GW_TEST_UNSET:localhost}", "host: localhost"},
		{"host: ${GW_TEST_UNSET:}", "host: "},
		{"host: ${GW_TEST_UNSET}", "host: ${GW_TEST_UNSET}"},
	}
	for _, tc := range cases {
		if got := expandEnv(tc.in); got != tc.want {
			t.Errorf("expandEnv(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestLoadFrom_DefaultsWithoutFiles(t *testing.T) {
	cfg, err := LoadFrom(t.TempDir())
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.LLM.DefaultProvider != "simulated" {
		t.Errorf("default provider = %q", cfg.LLM.DefaultProvider)
	}
	if cfg.Gateway.Retry.MaxAttempts != 3 {
		t.Errorf("max attempts = %d", cfg.Gateway.Retry.MaxAttempts)
	}
	if cfg.Gateway.Retry.AttemptTimeout != 30*time.Second {
		t.Errorf("attempt timeout = %s", cfg.Gateway.Retry.AttemptTimeout)
	}
	if cfg.Gateway.Conversation.MaxTurns != 20 || cfg.Gateway.Conversation.TTL != 24*time.Hour {
		t.Errorf("conversation = %+v", cfg.Gateway.Conversation)
	}
	if cfg.Gateway.Usage.RetentionDays != 90 {
		t.Errorf("retention = %d", cfg.Gateway.Usage.RetentionDays)
	}
	if cfg.LLM.AvailabilityTTL != 5*time.Minute {
		t.Errorf("availability ttl = %s", cfg.LLM.AvailabilityTTL)
	}
}

func TestLoadFrom_EnvFileOverridesBase(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("APP_ENV", "test")
	t.Setenv("GW_TEST_OPENAI_KEY", "sk-from-env")

	base := `
llm:
  default_provider: openai
  providers:
    openai:
      api_key: ${GW_TEST_OPENAI_KEY}
      models:
        gpt-4o-mini:
          input_cost_per_1k: 0.00015
          output_cost_per_1k: 0.0006
          default: true
gateway:
  rate_limit:
    requests_per_minute: 10
`
	override := `
gateway:
  rate_limit:
    requests_per_minute: 1
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(base), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.test.yaml"), []byte(override), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.Gateway.RateLimit.RequestsPerMinute != 1 {
		t.Errorf("requests_per_minute = %d, want 1", cfg.Gateway.RateLimit.RequestsPerMinute)
	}
	p, ok := cfg.LLM.Providers["openai"]
	if !ok {
		t.Fatal("openai provider missing")
	}
	if p.APIKey != "sk-from-env" {
		t.Errorf("api key = %q", p.APIKey)
	}
	m := p.Models["gpt-4o-mini"]
	if !m.Default || m.OutputCostPer1K != 0.0006 {
		t.Errorf("model = %+v", m)
	}
}
