package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("expected :8080, got %q", cfg.Server.Addr)
	}
	if cfg.Geo.Timeout != 15*time.Second {
		t.Fatalf("expected 15s geolocation timeout, got %s", cfg.Geo.Timeout)
	}
	if cfg.Geo.MaximumAge != 5*time.Minute {
		t.Fatalf("expected 5m maximum age, got %s", cfg.Geo.MaximumAge)
	}
	if cfg.Chat.MaxImageBytes != 5*1024*1024 {
		t.Fatalf("unexpected image limit %d", cfg.Chat.MaxImageBytes)
	}
	if cfg.Speech.SynthesisEnabled() {
		t.Fatal("synthesis must be disabled without credentials")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:9090")
	t.Setenv("INTAKE_URL", "https://civic.example.org/api/complaints/process")
	t.Setenv("INTAKE_TIMEOUT", "5s")
	t.Setenv("SPEECH_APP_ID", "app")
	t.Setenv("SPEECH_ACCESS_TOKEN", "token")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9090" {
		t.Fatalf("unexpected addr %q", cfg.Server.Addr)
	}
	if cfg.Backend.IntakeTimeout != 5*time.Second {
		t.Fatalf("unexpected intake timeout %s", cfg.Backend.IntakeTimeout)
	}
	if !cfg.Speech.SynthesisEnabled() {
		t.Fatal("expected synthesis enabled")
	}
	if len(cfg.Server.AllowedOrigins) != 2 {
		t.Fatalf("expected two origins, got %v", cfg.Server.AllowedOrigins)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("PORT", "80 80")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for PORT with spaces")
	}
}

func TestLoadRejectsRelativeIntakeURL(t *testing.T) {
	t.Setenv("INTAKE_URL", "/api/complaints/process")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for relative INTAKE_URL")
	}
}
