package config

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/pool"
	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/schema"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config is invalid: %v", err)
	}
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
database:
  path: /var/lib/imagesdemo/people.db
  op_timeout: 5s
blob:
  compress: true
pool:
  tx_mode: handle
telemetry:
  logging:
    level: debug
`))
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}

	if cfg.Database.Path != "/var/lib/imagesdemo/people.db" {
		t.Errorf("path = %q", cfg.Database.Path)
	}
	if cfg.Database.OpTimeout != 5*time.Second {
		t.Errorf("op timeout = %v, want 5s", cfg.Database.OpTimeout)
	}
	if cfg.Database.BusyTimeout != 5*time.Second {
		t.Errorf("busy timeout default lost: %v", cfg.Database.BusyTimeout)
	}
	if !cfg.Blob.Compress || !cfg.Blob.Checksum {
		t.Errorf("blob options = %+v, want compress and default checksum", cfg.Blob)
	}
	if cfg.TxMode() != pool.TxModeHandle {
		t.Errorf("tx mode = %v, want handle", cfg.TxMode())
	}
	if cfg.Telemetry.Logging.Level != "debug" || cfg.Telemetry.Logging.Format != "console" {
		t.Errorf("logging = %+v", cfg.Telemetry.Logging)
	}
}

func TestParseEmptyDocument(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("empty document should yield defaults: %v", err)
	}
	if cfg.Database.Path != Default().Database.Path {
		t.Errorf("unexpected path %q", cfg.Database.Path)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown key", "database:\n  file: x.db\n", "field file not found"},
		{"empty path", "database:\n  path: \"\"\n", "database.path"},
		{"negative timeout", "database:\n  op_timeout: -1s\n", "database.op_timeout"},
		{"bad tx mode", "pool:\n  tx_mode: session\n", "pool.tx_mode"},
		{"bad log level", "telemetry:\n  logging:\n    level: loud\n", "telemetry"},
		{"not yaml", "database: [", "failed to parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestValidationErrorsAreListed(t *testing.T) {
	cfg := Default()
	cfg.Database.Path = ""
	cfg.Pool.TxMode = "bogus"

	err := cfg.Validate()
	var invalid *InvalidConfigError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidConfigError, got %v", err)
	}
	if len(invalid.Errors) != 2 {
		t.Errorf("expected 2 problems, got %v", invalid.Errors)
	}
}

func TestWriteAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "imagesdemo.yaml")

	cfg := Default()
	cfg.Database.Path = "elsewhere.db"
	cfg.Mapping.Path = "people.map"
	cfg.Database.OpTimeout = 90 * time.Second
	if err := cfg.Write(path); err != nil {
		t.Fatalf("failed to write: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	if loaded.Database.Path != "elsewhere.db" || loaded.Mapping.Path != "people.map" {
		t.Errorf("round trip lost values: %+v", loaded)
	}
	if loaded.Database.OpTimeout != 90*time.Second {
		t.Errorf("op timeout = %v, want 90s", loaded.Database.OpTimeout)
	}
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("missing file should yield defaults: %v", err)
	}
	if cfg.Database.Path != "images.db" {
		t.Errorf("unexpected path %q", cfg.Database.Path)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load should fail for a missing file")
	}
}

func TestStoreConfig(t *testing.T) {
	cfg := Default()
	reg := schema.NewRegistry()

	sc := cfg.StoreConfig(reg, nil)
	if sc.Path != cfg.Database.Path || sc.Registry != reg {
		t.Errorf("unexpected store config %+v", sc)
	}
	if sc.Codec == nil || !sc.Codec.Options().Checksum {
		t.Error("codec should carry the blob options")
	}
	if sc.OpTimeout != 30*time.Second {
		t.Errorf("op timeout = %v", sc.OpTimeout)
	}
}
