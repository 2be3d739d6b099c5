package config

import (
	"os"
	"testing"
	"time"
)

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore Chdir: %v", err)
		}
	})
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir()) // no .env here
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AutosaveInterval != 30*time.Second {
		t.Errorf("AutosaveInterval: want 30s, got %s", cfg.AutosaveInterval)
	}
	if cfg.DbDriver != "sqlite" {
		t.Errorf("DbDriver: want sqlite, got %q", cfg.DbDriver)
	}
	if len(cfg.RemindOffsets) != 2 || cfg.RemindOffsets[0] != 24*time.Hour {
		t.Errorf("RemindOffsets: want [24h 2h], got %v", cfg.RemindOffsets)
	}
	if !cfg.LaunchAt.IsZero() {
		t.Errorf("LaunchAt: want zero, got %v", cfg.LaunchAt)
	}
}

func TestLoadOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("WAIVERS_AUTOSAVE_INTERVAL", "5s")
	t.Setenv("WAIVERS_BYPASS_TOKENS", "alpha,beta")
	t.Setenv("WAIVERS_PUBLIC_BASE_URL", "https://waivers.example.com/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AutosaveInterval != 5*time.Second {
		t.Errorf("AutosaveInterval: want 5s, got %s", cfg.AutosaveInterval)
	}
	if len(cfg.BypassTokens) != 2 || cfg.BypassTokens[1] != "beta" {
		t.Errorf("BypassTokens: want [alpha beta], got %v", cfg.BypassTokens)
	}
	if cfg.PublicBaseURL != "https://waivers.example.com" {
		t.Errorf("PublicBaseURL: trailing slash not trimmed: %q", cfg.PublicBaseURL)
	}
}

func TestLoadRejectsZeroInterval(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("WAIVERS_AUTOSAVE_INTERVAL", "0s")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for zero autosave interval")
	}
}
