package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestLoadDefaults verifies that a missing file yields the defaults.
func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Directory.DefaultLimit != 24 || cfg.Directory.MaxLimit != 200 {
		t.Errorf("unexpected limits: %+v", cfg.Directory)
	}
	if cfg.Directory.SuggestLimit != 8 || cfg.Directory.MaxSuggest != 20 {
		t.Errorf("unexpected suggest limits: %+v", cfg.Directory)
	}
	if cfg.Logo.TTL != 30*24*time.Hour {
		t.Errorf("expected 30 day logo ttl, got %v", cfg.Logo.TTL)
	}
}

// TestLoadYAML verifies YAML values override defaults.
func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  port: 9999
directory:
  dataPath: /srv/companies.jsonl
  categoryIcons:
    food: utensils
accelerator:
  enabled: true
  host: http://meili:7700
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Server.Port)
	}
	if cfg.Directory.CategoryIcons["food"] != "utensils" {
		t.Errorf("expected icon mapping, got %v", cfg.Directory.CategoryIcons)
	}
	if !cfg.Accelerator.Enabled || cfg.Accelerator.Host != "http://meili:7700" {
		t.Errorf("unexpected accelerator config: %+v", cfg.Accelerator)
	}
	got := cfg.Directory.DataPathCandidates()
	if len(got) != 3 || got[0] != "/srv/companies.jsonl" {
		t.Errorf("expected override first among 3 candidates, got %v", got)
	}
}

// TestEnvOverrides verifies compatibility variables take precedence.
func TestEnvOverrides(t *testing.T) {
	t.Setenv("IBIZ_COMPANIES_JSONL_PATH", "  /data/companies.jsonl ")
	t.Setenv("MEILI_MASTER_KEY", "masterkey")
	t.Setenv("ADMIN_SECRET", "s3cret")
	t.Setenv("SP_REDIS_ADDR", "redis:6379")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Directory.DataPath != "/data/companies.jsonl" {
		t.Errorf("expected trimmed data path, got %q", cfg.Directory.DataPath)
	}
	if cfg.Accelerator.APIKey != "masterkey" {
		t.Errorf("expected api key override, got %q", cfg.Accelerator.APIKey)
	}
	if cfg.Admin.Secret != "s3cret" {
		t.Errorf("expected admin secret override, got %q", cfg.Admin.Secret)
	}
	if !cfg.Redis.Enabled || cfg.Redis.Addr != "redis:6379" {
		t.Errorf("expected redis enabled at redis:6379, got %+v", cfg.Redis)
	}
}

// TestValidate verifies that invalid combinations are rejected together.
func TestValidate(t *testing.T) {
	cfg := defaultConfig()
	cfg.Server.Port = 0
	cfg.Analytics.Store = "mongo"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"server.port", "analytics.store"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected error to mention %q, got %v", want, err)
		}
	}
}
