package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeRules(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadRules(t *testing.T) {
	path := writeRules(t, `
appOrigin: https://app.linecheck.io/
api:
  hosts:
    - api.linecheck.io
  prefix: /api/v2/
  syncEndpoint: https://api.linecheck.io/api/v2/sync
  probeURL: https://api.linecheck.io/healthz
denyHosts:
  - analytics
seeds:
  - https://app.linecheck.io/
  - https://app.linecheck.io/manifest.json
generations:
  static: static-v3
  runtime: runtime-v3
probeInterval: 10s
`)

	r, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules() failed: %v", err)
	}

	if r.AppOrigin != "https://app.linecheck.io" {
		t.Errorf("trailing slash not trimmed, got %q", r.AppOrigin)
	}
	if r.API.Prefix != "/api/v2/" {
		t.Errorf("unexpected prefix %q", r.API.Prefix)
	}
	if r.Generations.Static != "static-v3" || r.Generations.Runtime != "runtime-v3" {
		t.Errorf("unexpected generations %+v", r.Generations)
	}
	if r.ProbeEvery() != 10*time.Second {
		t.Errorf("unexpected probe interval %v", r.ProbeEvery())
	}
	if len(r.Seeds) != 2 {
		t.Errorf("expected 2 seeds, got %d", len(r.Seeds))
	}
}

func TestLoadRulesDefaults(t *testing.T) {
	path := writeRules(t, `
appOrigin: http://localhost:3000
api:
  syncEndpoint: http://localhost:3000/api/sync
`)

	r, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules() failed: %v", err)
	}

	if r.API.Prefix != "/api/" {
		t.Errorf("expected default prefix, got %q", r.API.Prefix)
	}
	if r.API.ProbeURL != r.API.SyncEndpoint {
		t.Errorf("expected probe URL to default to sync endpoint")
	}
	if r.Generations.Static != "static-v1" || r.Generations.Runtime != "runtime-v1" {
		t.Errorf("unexpected default generations %+v", r.Generations)
	}
	if len(r.StaticExts) == 0 {
		t.Error("expected default static extensions")
	}
	if r.ProbeEvery() != 30*time.Second {
		t.Errorf("unexpected default probe interval %v", r.ProbeEvery())
	}
}

func TestLoadRulesValidation(t *testing.T) {
	if _, err := LoadRules(writeRules(t, "api:\n  syncEndpoint: http://x/sync\n")); err == nil {
		t.Error("expected error for missing appOrigin")
	}
	if _, err := LoadRules(writeRules(t, "appOrigin: http://x\n")); err == nil {
		t.Error("expected error for missing syncEndpoint")
	}
	if _, err := LoadRules(writeRules(t, "appOrigin: http://x\napi:\n  syncEndpoint: http://x/sync\nprobeInterval: soon\n")); err == nil {
		t.Error("expected error for bad probeInterval")
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("SYNCPROXY_ADDR", ":9999")
	t.Setenv("SYNCPROXY_DATA_DIR", "/tmp/syncproxy-test")
	t.Setenv("SYNCPROXY_DEBUG", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.ListenAddr != ":9999" {
		t.Errorf("unexpected addr %q", cfg.ListenAddr)
	}
	if cfg.DataDir != "/tmp/syncproxy-test" {
		t.Errorf("unexpected data dir %q", cfg.DataDir)
	}
	if !cfg.Debug {
		t.Error("expected debug enabled")
	}
}
