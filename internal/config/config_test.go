package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

const validYAML = `
instance:
  id: test-recorder
api:
  rest_url: https://api.test.local
  ws_url: wss://ws.test.local
database:
  timescale:
    host: localhost
    port: 5432
    name: test_ts
    user: testuser
    password: testpass
markets:
  - MKT1
  - MKT2
`

func TestLoad(t *testing.T) {
	path := writeTempFile(t, validYAML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "test-recorder" {
		t.Errorf("Instance.ID = %q, want test-recorder", cfg.Instance.ID)
	}
	if cfg.API.WSURL != "wss://ws.test.local" {
		t.Errorf("API.WSURL = %q", cfg.API.WSURL)
	}
	if len(cfg.Markets) != 2 || cfg.Markets[0] != "MKT1" {
		t.Errorf("Markets = %v", cfg.Markets)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "secret123")

	yaml := `
instance:
  id: test-recorder
database:
  timescale:
    host: localhost
    name: test_ts
    user: testuser
    password: ${TEST_DB_PASSWORD}
markets:
  - MKT1
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Timescale.Password != "secret123" {
		t.Errorf("Password = %q, want secret123", cfg.Database.Timescale.Password)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	path := writeTempFile(t, validYAML)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Stream.PingInterval != DefaultPingInterval {
		t.Errorf("PingInterval = %v, want %v", cfg.Stream.PingInterval, DefaultPingInterval)
	}
	if cfg.Stream.ReconnectBaseDelay != DefaultReconnectBaseDelay {
		t.Errorf("ReconnectBaseDelay = %v", cfg.Stream.ReconnectBaseDelay)
	}
	if cfg.Stream.ReconnectMaxDelay != DefaultReconnectMaxDelay {
		t.Errorf("ReconnectMaxDelay = %v", cfg.Stream.ReconnectMaxDelay)
	}
	if cfg.Database.Timescale.SSLMode != DefaultDBSSLMode {
		t.Errorf("SSLMode = %q", cfg.Database.Timescale.SSLMode)
	}
	if cfg.Writers.BatchSize != DefaultBatchSize {
		t.Errorf("BatchSize = %d", cfg.Writers.BatchSize)
	}
	if cfg.Poller.Interval != DefaultPollInterval {
		t.Errorf("Poller.Interval = %v", cfg.Poller.Interval)
	}
	if cfg.Metrics.Port != DefaultMetricsPort || cfg.Metrics.Path != DefaultMetricsPath {
		t.Errorf("Metrics = %+v", cfg.Metrics)
	}
}

func TestDefaultsDoNotOverride(t *testing.T) {
	yaml := validYAML + `
stream:
  ping_interval: 5s
  reconnect_base_delay: 250ms
writers:
  batch_size: 42
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Stream.PingInterval != 5*time.Second {
		t.Errorf("PingInterval = %v, want 5s", cfg.Stream.PingInterval)
	}
	if cfg.Stream.ReconnectBaseDelay != 250*time.Millisecond {
		t.Errorf("ReconnectBaseDelay = %v, want 250ms", cfg.Stream.ReconnectBaseDelay)
	}
	if cfg.Writers.BatchSize != 42 {
		t.Errorf("BatchSize = %d, want 42", cfg.Writers.BatchSize)
	}
}

func TestValidate(t *testing.T) {
	base := func() *RecorderConfig {
		cfg, err := LoadWithDefaults(writeTempFile(t, validYAML))
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		return cfg
	}

	t.Run("valid", func(t *testing.T) {
		if err := base().Validate(); err != nil {
			t.Errorf("Validate failed: %v", err)
		}
	})

	t.Run("missing instance id", func(t *testing.T) {
		cfg := base()
		cfg.Instance.ID = ""
		if err := cfg.Validate(); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("missing db host", func(t *testing.T) {
		cfg := base()
		cfg.Database.Timescale.Host = ""
		if err := cfg.Validate(); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("no markets", func(t *testing.T) {
		cfg := base()
		cfg.Markets = nil
		if err := cfg.Validate(); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("empty market entry", func(t *testing.T) {
		cfg := base()
		cfg.Markets = []string{"MKT1", ""}
		if err := cfg.Validate(); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("inverted reconnect delays", func(t *testing.T) {
		cfg := base()
		cfg.Stream.ReconnectBaseDelay = time.Minute
		cfg.Stream.ReconnectMaxDelay = time.Second
		if err := cfg.Validate(); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("min conns above max", func(t *testing.T) {
		cfg := base()
		cfg.Database.Timescale.MinConns = 20
		cfg.Database.Timescale.MaxConns = 5
		if err := cfg.Validate(); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("bad metrics port", func(t *testing.T) {
		cfg := base()
		cfg.Metrics.Port = 70000
		if err := cfg.Validate(); err == nil {
			t.Error("expected error")
		}
	})
}

func TestLoadAndValidate(t *testing.T) {
	cfg, err := LoadAndValidate(writeTempFile(t, validYAML))
	if err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}
	if cfg.Instance.ID != "test-recorder" {
		t.Errorf("Instance.ID = %q", cfg.Instance.ID)
	}

	// Defaults are applied before validation, so a minimal config passes.
	if cfg.Stream.BookDepth != DefaultBookDepth {
		t.Errorf("BookDepth = %d, want default %d", cfg.Stream.BookDepth, DefaultBookDepth)
	}
}
