package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
substack:
  user_agent: bindstack-test-agent
  batch_size: 25
  batch_delay_ms: 500
  max_retries: 4
  timeout_seconds: 20
  image_timeout_seconds: 5
jobs:
  workdir: /tmp/bindstack
  ttl_seconds: 1800
  reap_interval_seconds: 60
  item_delay_ms: 250
  keepalive_seconds: 45
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Substack.UserAgent != "bindstack-test-agent" || cfg.Substack.BatchSize != 25 {
		t.Fatalf("expected substack overrides to apply: %+v", cfg.Substack)
	}
	if cfg.Jobs.Workdir != "/tmp/bindstack" {
		t.Fatalf("expected workdir override, got %q", cfg.Jobs.Workdir)
	}
	if cfg.Logging.Development {
		t.Fatal("expected development logging disabled")
	}
	if got := cfg.Substack.BatchDelay(); got != 500*time.Millisecond {
		t.Fatalf("expected batch delay 500ms, got %v", got)
	}
	if got := cfg.Jobs.TTL(); got != 30*time.Minute {
		t.Fatalf("expected TTL 30m, got %v", got)
	}
	if got := cfg.Jobs.KeepAlive(); got != 45*time.Second {
		t.Fatalf("expected keepalive 45s, got %v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Substack.BatchSize != 50 || cfg.Substack.MaxRetries != 3 {
		t.Fatalf("unexpected substack defaults: %+v", cfg.Substack)
	}
	if cfg.Jobs.KeepAliveSeconds != 60 || cfg.Jobs.TTLSeconds != 3600 {
		t.Fatalf("unexpected jobs defaults: %+v", cfg.Jobs)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server: ServerConfig{Port: 8080},
		Substack: SubstackConfig{
			BatchSize:      50,
			MaxRetries:     3,
			TimeoutSeconds: 30,
		},
		Jobs: JobsConfig{
			TTLSeconds:       3600,
			KeepAliveSeconds: 60,
		},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid port",
			cfg: func() Config {
				c := base
				c.Server.Port = 0
				return c
			}(),
			want: "server.port",
		},
		{
			name: "invalid batch size",
			cfg: func() Config {
				c := base
				c.Substack.BatchSize = 0
				return c
			}(),
			want: "substack.batch_size",
		},
		{
			name: "invalid retries",
			cfg: func() Config {
				c := base
				c.Substack.MaxRetries = 0
				return c
			}(),
			want: "substack.max_retries",
		},
		{
			name: "invalid ttl",
			cfg: func() Config {
				c := base
				c.Jobs.TTLSeconds = 0
				return c
			}(),
			want: "jobs.ttl_seconds",
		},
		{
			name: "timeout exceeds keepalive",
			cfg: func() Config {
				c := base
				c.Substack.TimeoutSeconds = 90
				return c
			}(),
			want: "keepalive",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
