package config

import "testing"

func TestFromEnvAppliesDefaultsWhenUnset(t *testing.T) {
	cfg := FromEnv()
	if cfg.XPlaneHost != "127.0.0.1" {
		t.Errorf("XPlaneHost = %q, want 127.0.0.1", cfg.XPlaneHost)
	}
	if cfg.XPlaneRRefHz != 10 {
		t.Errorf("XPlaneRRefHz = %d, want 10", cfg.XPlaneRRefHz)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
}

func TestFromEnvReadsOverrides(t *testing.T) {
	t.Setenv("XPLANE_UDP_HOST", "192.168.1.50")
	t.Setenv("XPLANE_RREF_HZ", "20")
	t.Setenv("CFI_DRY_RUN", "true")
	t.Setenv("CFI_ALLOWED_ORIGINS", "http://a, http://b")

	cfg := FromEnv()
	if cfg.XPlaneHost != "192.168.1.50" {
		t.Errorf("XPlaneHost = %q, want 192.168.1.50", cfg.XPlaneHost)
	}
	if cfg.XPlaneRRefHz != 20 {
		t.Errorf("XPlaneRRefHz = %d, want 20", cfg.XPlaneRRefHz)
	}
	if !cfg.DryRunSpeech {
		t.Errorf("DryRunSpeech = false, want true")
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[0] != "http://a" || cfg.AllowedOrigins[1] != "http://b" {
		t.Errorf("AllowedOrigins = %v, want [http://a http://b]", cfg.AllowedOrigins)
	}
}

func TestValidateRejectsNonPositiveRRefHz(t *testing.T) {
	cfg := FromEnv()
	cfg.XPlaneRRefHz = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for zero RRefHz")
	}
}

func TestValidateRejectsZeroReviewWindow(t *testing.T) {
	cfg := FromEnv()
	cfg.ReviewWindowSec = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for zero review window")
	}
}
