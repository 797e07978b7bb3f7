package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/blob"
	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/pool"
	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/schema"
	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/stores"
	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/telemetry"
)

// Config is the configuration of the demo application.
type Config struct {
	// Database configures the storage engine.
	Database DatabaseConfig `yaml:"database"`

	// Mapping selects the mapping declarations.
	Mapping MappingConfig `yaml:"mapping"`

	// Blob configures how binary columns are stored.
	Blob blob.Options `yaml:"blob"`

	// Pool configures the handle pool.
	Pool PoolConfig `yaml:"pool"`

	// Telemetry configures logging, tracing, and metrics.
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// DatabaseConfig configures the SQLite database.
type DatabaseConfig struct {
	// Path is the database file, created on first run.
	Path string `yaml:"path" validate:"required"`

	MaxOpenConns    int           `yaml:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `yaml:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" validate:"gte=0"`

	// BusyTimeout is how long SQLite waits on a locked file.
	BusyTimeout time.Duration `yaml:"busy_timeout" validate:"gte=0"`

	// OpTimeout bounds each operation whose caller set no deadline.
	OpTimeout time.Duration `yaml:"op_timeout" validate:"gte=0"`
}

// MappingConfig selects the mapping declaration file.
type MappingConfig struct {
	// Path is a mapping file. Empty selects the built-in Person mapping.
	Path string `yaml:"path,omitempty"`
}

// PoolConfig configures the handle pool.
type PoolConfig struct {
	// TxMode is "operation" (each operation commits) or "handle" (one
	// transaction per checked-out handle).
	TxMode string `yaml:"tx_mode" validate:"omitempty,oneof=operation handle"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "images.db",
			MaxOpenConns:    4,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
			BusyTimeout:     5 * time.Second,
			OpTimeout:       30 * time.Second,
		},
		Blob: blob.Options{
			Checksum: true,
		},
		Pool: PoolConfig{
			TxMode: pool.TxModeOperation.String(),
		},
		Telemetry: *telemetry.DefaultConfig(),
	}
}

// Load reads a YAML configuration file over the defaults and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault loads path if it exists and returns the defaults otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return Load(path)
}

// Parse decodes YAML over the defaults and validates the result. Unknown keys
// are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var problems []ValidationError

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("failed to validate config: %w", err)
		}
		for _, fe := range verrs {
			problems = append(problems, ValidationError{
				Path:    yamlPath(fe.Namespace()),
				Message: fmt.Sprintf("failed %q check", fe.Tag()),
			})
		}
	}

	if err := c.Telemetry.Validate(); err != nil {
		problems = append(problems, ValidationError{Path: "telemetry", Message: err.Error()})
	}

	if len(problems) > 0 {
		return &InvalidConfigError{Errors: problems}
	}
	return nil
}

// TxMode returns the parsed pool transaction mode.
func (c *Config) TxMode() pool.TxMode {
	mode, err := pool.ParseTxMode(c.Pool.TxMode)
	if err != nil {
		// Validate rejects unknown modes.
		return pool.TxModeOperation
	}
	return mode
}

// StoreConfig builds the storage engine configuration.
func (c *Config) StoreConfig(reg *schema.Registry, tel *telemetry.Telemetry) stores.Config {
	return stores.Config{
		Path:            c.Database.Path,
		Registry:        reg,
		Codec:           blob.NewCodec(c.Blob),
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
		BusyTimeout:     c.Database.BusyTimeout,
		OpTimeout:       c.Database.OpTimeout,
		Telemetry:       tel,
	}
}

// Write saves the configuration as YAML, creating parent directories.
func (c *Config) Write(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ValidationError is one configuration problem.
type ValidationError struct {
	// Path is the YAML path of the offending key (e.g., "database.path").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`
}

// InvalidConfigError lists every problem found by Validate.
type InvalidConfigError struct {
	Errors []ValidationError
}

func (e *InvalidConfigError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, v := range e.Errors {
		parts[i] = v.Path + ": " + v.Message
	}
	return "invalid configuration: " + strings.Join(parts, "; ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// yamlPath drops the root struct name from a validator namespace.
func yamlPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
