package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "staked.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeYAML(t, "genesis: stake.toml\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":7090" || cfg.CacheSize != 4096 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.ShutdownTimeout.Duration != 5*time.Second {
		t.Fatalf("unexpected shutdown timeout %s", cfg.ShutdownTimeout)
	}
	if cfg.Log.SlogLevel() != slog.LevelInfo {
		t.Fatalf("unexpected level %v", cfg.Log.SlogLevel())
	}
	if cfg.RateLimit.RequestsPerMinute != 600 || cfg.RateLimit.Burst != 20 {
		t.Fatalf("unexpected rate limit %+v", cfg.RateLimit)
	}
}

func TestLoadParsesFields(t *testing.T) {
	cfg, err := Load(writeYAML(t, `listen: 127.0.0.1:9000
data_dir: /tmp/stake
shutdown_timeout: 30s
log:
  env: dev
  level: debug
  file: /tmp/staked.log
rate_limit:
  requests_per_minute: 60
  burst: 2
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != "127.0.0.1:9000" || cfg.DataDir != "/tmp/stake" {
		t.Fatalf("unexpected addresses: %+v", cfg)
	}
	if cfg.ShutdownTimeout.Duration != 30*time.Second {
		t.Fatalf("unexpected timeout %s", cfg.ShutdownTimeout)
	}
	if cfg.Log.SlogLevel() != slog.LevelDebug || cfg.Log.Env != "dev" {
		t.Fatalf("unexpected log config %+v", cfg.Log)
	}
	if cfg.RateLimit.Burst != 2 {
		t.Fatalf("unexpected burst %d", cfg.RateLimit.Burst)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"bad duration":  "shutdown_timeout: soon\n",
		"unknown field": "bogus: 1\n",
		"bad level":     "log:\n  level: loud\n",
		"negative rate": "rate_limit:\n  requests_per_minute: -1\n",
		"negative size": "cache_size: -5\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeYAML(t, body)); err == nil {
				t.Fatalf("expected %s to fail", name)
			}
		})
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected missing file to fail")
	}
}
