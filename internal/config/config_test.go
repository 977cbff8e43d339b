package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Crews.CodingIterations != 5 {
		t.Errorf("expected coding ceiling 5, got %d", cfg.Crews.CodingIterations)
	}
	if cfg.Crews.DefaultIterations != 3 {
		t.Errorf("expected default ceiling 3, got %d", cfg.Crews.DefaultIterations)
	}
	if cfg.Engine.MaxTicks != 25 {
		t.Errorf("expected 25 max ticks, got %d", cfg.Engine.MaxTicks)
	}
	if cfg.Sandbox.Timeout != 2*time.Minute {
		t.Errorf("unexpected sandbox timeout %v", cfg.Sandbox.Timeout)
	}
	if len(cfg.Sandbox.Command) == 0 {
		t.Error("expected a default sandbox command")
	}
	if cfg.State.Path == "" {
		t.Error("expected a default state path")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HIVE_ENGINE_MAX_TICKS", "7")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Engine.MaxTicks != 7 {
		t.Errorf("expected env override 7, got %d", cfg.Engine.MaxTicks)
	}
	if cfg.Anthropic.APIKey != "sk-test" {
		t.Error("expected ANTHROPIC_API_KEY fallback")
	}
}
