package config

import (
	"os"
	"path/filepath"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	envVars := []string{
		"HTTP_LISTEN", "HTTP_MAX_BODY_SIZE",
		"DELIVERY_PROVIDER",
		"SES_REGION", "SES_ACCESS_KEY_ID", "SES_SECRET_ACCESS_KEY", "SES_SENDER",
		"TLS_ENABLED", "TLS_CERT_FILE", "TLS_KEY_FILE",
		"LOG_LEVEL",
	}
	for _, env := range envVars {
		t.Setenv(env, "")
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTP.Listen != ":8000" {
		t.Errorf("HTTP.Listen: got %q, want %q", cfg.HTTP.Listen, ":8000")
	}
	if cfg.HTTP.MaxBodySize != 52428800 {
		t.Errorf("HTTP.MaxBodySize: got %d, want %d", cfg.HTTP.MaxBodySize, 52428800)
	}
	if cfg.Delivery.Provider != "smtp" {
		t.Errorf("Delivery.Provider: got %q, want %q", cfg.Delivery.Provider, "smtp")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level: got %q, want %q", cfg.Logging.Level, "info")
	}
	if cfg.TLS.Enabled {
		t.Error("TLS.Enabled: got true, want false")
	}
	if cfg.SES.Region != "" {
		t.Errorf("SES.Region: got %q, want empty", cfg.SES.Region)
	}
}

func TestLoad_EnvVarOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_LISTEN", ":9000")
	t.Setenv("HTTP_MAX_BODY_SIZE", "10485760")
	t.Setenv("DELIVERY_PROVIDER", "SES")
	t.Setenv("SES_REGION", "eu-west-1")
	t.Setenv("SES_ACCESS_KEY_ID", "AKIA123")
	t.Setenv("SES_SECRET_ACCESS_KEY", "secret456")
	t.Setenv("SES_SENDER", "noreply@example.com")
	t.Setenv("TLS_ENABLED", "true")
	t.Setenv("TLS_CERT_FILE", "/etc/certs/server.crt")
	t.Setenv("TLS_KEY_FILE", "/etc/certs/server.key")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTP.Listen != ":9000" {
		t.Errorf("HTTP.Listen: got %q, want %q", cfg.HTTP.Listen, ":9000")
	}
	if cfg.HTTP.MaxBodySize != 10485760 {
		t.Errorf("HTTP.MaxBodySize: got %d, want %d", cfg.HTTP.MaxBodySize, 10485760)
	}
	if cfg.Delivery.Provider != "ses" {
		t.Errorf("Delivery.Provider: got %q, want lowercased %q", cfg.Delivery.Provider, "ses")
	}
	if cfg.SES.Region != "eu-west-1" {
		t.Errorf("SES.Region: got %q, want %q", cfg.SES.Region, "eu-west-1")
	}
	if cfg.SES.Sender != "noreply@example.com" {
		t.Errorf("SES.Sender: got %q", cfg.SES.Sender)
	}
	if !cfg.TLS.Enabled {
		t.Error("TLS.Enabled: got false, want true")
	}
	if cfg.TLS.CertFile != "/etc/certs/server.crt" {
		t.Errorf("TLS.CertFile: got %q", cfg.TLS.CertFile)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level: got %q, want lowercased %q", cfg.Logging.Level, "debug")
	}
}

func TestLoad_InvalidMaxBodySizeIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_MAX_BODY_SIZE", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.MaxBodySize != 52428800 {
		t.Errorf("HTTP.MaxBodySize: got %d, want default kept", cfg.HTTP.MaxBodySize)
	}
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)

	content := `
http:
  listen: ":9100"
delivery:
  provider: stdout
ses:
  region: us-east-1
  sender: yaml@example.com
logging:
  level: warn
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTP.Listen != ":9100" {
		t.Errorf("HTTP.Listen: got %q, want %q", cfg.HTTP.Listen, ":9100")
	}
	if cfg.Delivery.Provider != "stdout" {
		t.Errorf("Delivery.Provider: got %q, want %q", cfg.Delivery.Provider, "stdout")
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level: got %q, want %q", cfg.Logging.Level, "warn")
	}
	// Unset fields keep defaults
	if cfg.HTTP.MaxBodySize != 52428800 {
		t.Errorf("HTTP.MaxBodySize: got %d, want default", cfg.HTTP.MaxBodySize)
	}
}

func TestLoadFromFile_EnvOverridesYAML(t *testing.T) {
	clearEnv(t)
	t.Setenv("DELIVERY_PROVIDER", "ses")

	content := `
delivery:
  provider: stdout
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Delivery.Provider != "ses" {
		t.Errorf("Delivery.Provider: got %q, want env to win", cfg.Delivery.Provider)
	}
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	clearEnv(t)

	if _, err := LoadFromFile("/nonexistent/config.yaml"); err == nil {
		t.Fatal("got nil error, want read failure")
	}
}

func TestLoadFromFile_InvalidYAML(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("http: [not: valid"), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Fatal("got nil error, want parse failure")
	}
}

func TestSESConfigured(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		region string
		sender string
		want   bool
	}{
		{"both set", "us-east-1", "a@example.com", true},
		{"missing sender", "us-east-1", "", false},
		{"missing region", "", "a@example.com", false},
		{"neither", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := &Config{}
			cfg.SES.Region = tt.region
			cfg.SES.Sender = tt.sender
			if got := cfg.SESConfigured(); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
