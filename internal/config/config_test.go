package config

import (
	"strings"
	"testing"
	"time"
)

// clearEnv unsets every variable Load reads so host settings cannot leak
// into assertions. t.Setenv restores originals after the test.
func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"PORT", "READ_TIMEOUT", "READ_HEADER_TIMEOUT", "WRITE_TIMEOUT", "IDLE_TIMEOUT",
		"MAX_HEADER_BYTES", "GIN_MODE", "LOG_LEVEL", "LOG_PRETTY", "API_BASE_PATH",
		"DB_PATH", "MAX_RETRIES", "INACTIVITY_TIMEOUT", "SWEEP_INTERVAL", "PAGE_SIZE",
		"DEFAULT_LANGUAGE", "JWT_SECRET", "RATE_RPS", "RATE_BURST",
		"CORS_ALLOWED_ORIGINS", "ENABLE_HSTS", "HSTS_MAX_AGE", "IDEMPOTENCY_TTL",
		"SPORTTIA_BASE_URL", "SPORTTIA_TIMEOUT",
		"OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_INSECURE",
		"OTEL_SERVICE_NAME", "OTEL_TRACES_SAMPLER_ARG",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("unexpected port: %s", cfg.Port)
	}
	if cfg.GinMode != "release" || cfg.LogLevel != "info" {
		t.Fatalf("unexpected mode/level: %s/%s", cfg.GinMode, cfg.LogLevel)
	}
	if cfg.APIBasePath != "/api/v1" {
		t.Fatalf("unexpected base path: %s", cfg.APIBasePath)
	}
	if cfg.MaxRetries != 3 {
		t.Fatalf("unexpected retry ceiling: %d", cfg.MaxRetries)
	}
	if cfg.InactivityTimeout != 30*time.Minute || cfg.SweepInterval != 5*time.Minute {
		t.Fatalf("unexpected sweep policy: %v/%v", cfg.InactivityTimeout, cfg.SweepInterval)
	}
	if cfg.DefaultPageSize != 20 || cfg.DefaultLanguage != "es" {
		t.Fatalf("unexpected listing defaults: %d/%s", cfg.DefaultPageSize, cfg.DefaultLanguage)
	}
	if cfg.IdempotencyTTL != 24*time.Hour {
		t.Fatalf("unexpected idempotency ttl: %v", cfg.IdempotencyTTL)
	}
	if cfg.Sporttia.BaseURL != "https://api.sporttia.com/v6" || cfg.Sporttia.Timeout != 15*time.Second {
		t.Fatalf("unexpected sporttia settings: %+v", cfg.Sporttia)
	}
	if cfg.OTEL.Enabled || cfg.OTEL.SampleRatio != 1.0 {
		t.Fatalf("unexpected otel settings: %+v", cfg.OTEL)
	}
}

func TestLoadOverridesAndNormalization(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", "WARNING")
	t.Setenv("GIN_MODE", "staging")
	t.Setenv("API_BASE_PATH", "api/v2/")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , https://b.example ,")
	t.Setenv("MAX_RETRIES", "5")
	t.Setenv("INACTIVITY_TIMEOUT", "45m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("warning must normalize to warn, got %s", cfg.LogLevel)
	}
	if cfg.GinMode != "release" {
		t.Fatalf("unknown gin mode must fall back to release, got %s", cfg.GinMode)
	}
	if cfg.APIBasePath != "/api/v2" {
		t.Fatalf("base path not normalized: %s", cfg.APIBasePath)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 || cfg.CORS.AllowedOrigins[0] != "https://a.example" {
		t.Fatalf("csv origins not parsed: %v", cfg.CORS.AllowedOrigins)
	}
	if cfg.MaxRetries != 5 || cfg.InactivityTimeout != 45*time.Minute {
		t.Fatalf("overrides not applied: %d/%v", cfg.MaxRetries, cfg.InactivityTimeout)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		key, val, wantSub string
	}{
		{"LOG_LEVEL", "loud", "LOG_LEVEL"},
		{"MAX_RETRIES", "0", "MAX_RETRIES"},
		{"PAGE_SIZE", "0", "PAGE_SIZE"},
		{"RATE_RPS", "-1", "RATE_RPS"},
		{"RATE_BURST", "0", "RATE_BURST"},
		{"OTEL_TRACES_SAMPLER_ARG", "1.5", "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tc.key, tc.val)
			_, err := Load()
			if err == nil {
				t.Fatalf("%s=%s should fail validation", tc.key, tc.val)
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("error %q does not mention %s", err, tc.wantSub)
			}
		})
	}
}

func TestNormalizeBasePath(t *testing.T) {
	cases := map[string]string{
		"":         "/",
		"/":        "/",
		"api":      "/api",
		"/api/":    "/api",
		"/api/v1/": "/api/v1",
	}
	for in, want := range cases {
		if got := normalizeBasePath(in); got != want {
			t.Fatalf("normalizeBasePath(%q) = %q, want %q", in, got, want)
		}
	}
}
