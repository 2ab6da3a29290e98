package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != 8090 {
		t.Errorf("Port = %d, want 8090", cfg.Port)
	}
	if cfg.LLMProvider != "anthropic" {
		t.Errorf("LLMProvider = %q, want anthropic", cfg.LLMProvider)
	}
	if cfg.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", cfg.MaxAttempts)
	}
	if cfg.BackoffBase != time.Second {
		t.Errorf("BackoffBase = %v, want 1s", cfg.BackoffBase)
	}
	if cfg.RequestBudget != 3*time.Minute {
		t.Errorf("RequestBudget = %v, want 3m", cfg.RequestBudget)
	}
	if cfg.DomainConcurrency != 1 {
		t.Errorf("DomainConcurrency = %d, want 1", cfg.DomainConcurrency)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("LLM_PROVIDER", "ollama")
	t.Setenv("FETCH_TIMEOUT", "10s")
	t.Setenv("JS_HEAVY_DOMAINS", "shop.example.com, spa.example.org")

	cfg := Load()

	if cfg.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Port)
	}
	if cfg.LLMProvider != "ollama" {
		t.Errorf("LLMProvider = %q, want ollama", cfg.LLMProvider)
	}
	if cfg.FetchTimeout != 10*time.Second {
		t.Errorf("FetchTimeout = %v, want 10s", cfg.FetchTimeout)
	}
	if len(cfg.ExtraJSHeavyDomains) != 2 || cfg.ExtraJSHeavyDomains[1] != "spa.example.org" {
		t.Errorf("ExtraJSHeavyDomains = %v, want trimmed two-entry list", cfg.ExtraJSHeavyDomains)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Run("valid integer", func(t *testing.T) {
		t.Setenv("TEST_INT", "42")
		if got := getEnvInt("TEST_INT", 0); got != 42 {
			t.Errorf("getEnvInt() = %d, want 42", got)
		}
	})

	t.Run("invalid integer", func(t *testing.T) {
		t.Setenv("TEST_INT_INVALID", "not-a-number")
		if got := getEnvInt("TEST_INT_INVALID", 99); got != 99 {
			t.Errorf("getEnvInt() = %d, want 99 (default)", got)
		}
	})

	t.Run("missing env var", func(t *testing.T) {
		if got := getEnvInt("TEST_INT_MISSING", 100); got != 100 {
			t.Errorf("getEnvInt() = %d, want 100 (default)", got)
		}
	})
}

func TestGetEnvDuration(t *testing.T) {
	t.Run("valid duration", func(t *testing.T) {
		t.Setenv("TEST_DUR", "90s")
		if got := getEnvDuration("TEST_DUR", time.Second); got != 90*time.Second {
			t.Errorf("getEnvDuration() = %v, want 90s", got)
		}
	})

	t.Run("invalid duration", func(t *testing.T) {
		t.Setenv("TEST_DUR_INVALID", "soon")
		if got := getEnvDuration("TEST_DUR_INVALID", time.Minute); got != time.Minute {
			t.Errorf("getEnvDuration() = %v, want default", got)
		}
	})
}

func TestGetEnvList(t *testing.T) {
	t.Run("trims and drops empties", func(t *testing.T) {
		t.Setenv("TEST_LIST", " a.com ,, b.com ")
		got := getEnvList("TEST_LIST", nil)
		if len(got) != 2 || got[0] != "a.com" || got[1] != "b.com" {
			t.Errorf("getEnvList() = %v", got)
		}
	})

	t.Run("missing uses default", func(t *testing.T) {
		got := getEnvList("TEST_LIST_MISSING", []string{"x"})
		if len(got) != 1 || got[0] != "x" {
			t.Errorf("getEnvList() = %v, want [x]", got)
		}
	})
}
