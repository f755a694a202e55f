// Package config provides configuration types, defaults, loading and
// validation for algomgr.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/zjrosen/algomgr/internal/log"
)

var (
	// ErrInvalidCapacity is returned when the retention-pool capacity is missing or below 1.
	ErrInvalidCapacity = errors.New("invalid retention capacity")
	// ErrInvalidConfig is returned for any other invalid configuration value.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// EnvPrefix prefixes every environment override, e.g. ALGOMGR_ALGORITHMS_RETAINED.
const EnvPrefix = "ALGOMGR"

// Config holds all configuration options for algomgr.
type Config struct {
	Algorithms AlgorithmsConfig `mapstructure:"algorithms"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	Journal    JournalConfig    `mapstructure:"journal"`
	API        APIConfig        `mapstructure:"api"`
	Log        LogConfig        `mapstructure:"log"`
}

// AlgorithmsConfig configures the instance manager.
type AlgorithmsConfig struct {
	// Retained is the retention-pool capacity. Required, at least 1.
	// There is no compiled-in fallback; `algomgr init` writes an explicit value.
	Retained int `mapstructure:"retained"`
}

// TracingConfig holds OpenTelemetry tracing configuration.
type TracingConfig struct {
	// Enabled controls whether tracing is active.
	// Default: false
	Enabled bool `mapstructure:"enabled"`

	// Exporter selects the trace export backend.
	// Options: "none", "file", "stdout", "otlp"
	// Default: "file"
	Exporter string `mapstructure:"exporter"`

	// FilePath is the output file for the "file" exporter.
	// Default: ~/.config/algomgr/traces/traces.jsonl
	FilePath string `mapstructure:"file_path"`

	// OTLPEndpoint is the collector endpoint for the "otlp" exporter.
	// Default: "localhost:4317"
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`

	// SampleRate controls trace sampling (0.0 to 1.0).
	// Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate"`

	// ServiceName is reported as the OpenTelemetry service.name.
	// Default: "algomgr"
	ServiceName string `mapstructure:"service_name"`
}

// JournalConfig configures the persisted run history.
type JournalConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Path     string        `mapstructure:"path"`      // SQLite file
	CacheTTL time.Duration `mapstructure:"cache_ttl"` // per-handle history cache
}

// APIConfig configures `algomgr serve`.
type APIConfig struct {
	Addr        string   `mapstructure:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// LogConfig configures the debug log.
type LogConfig struct {
	Path  string `mapstructure:"path"`
	Level string `mapstructure:"level"` // debug, info, warn, error
}

// DefaultConfigDir returns ~/.config/algomgr, or "" if the home dir is unavailable.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "algomgr")
}

// DefaultConfigPath returns the user-level config file location.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// DefaultTracesFilePath returns the default path for file trace export.
func DefaultTracesFilePath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "traces", "traces.jsonl")
}

// DefaultJournalPath returns the default run-history database path.
func DefaultJournalPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "journal.db")
}

// DefaultRetained is the capacity written by `algomgr init`.
const DefaultRetained = 50

// Defaults returns the values written to a fresh config file.
func Defaults() Config {
	return Config{
		Algorithms: AlgorithmsConfig{
			Retained: DefaultRetained,
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "file",
			FilePath:     DefaultTracesFilePath(),
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
			ServiceName:  "algomgr",
		},
		Journal: JournalConfig{
			Enabled:  false,
			Path:     DefaultJournalPath(),
			CacheTTL: 30 * time.Second,
		},
		API: APIConfig{
			Addr:        "127.0.0.1:8088",
			CORSOrigins: []string{"*"},
		},
		Log: LogConfig{
			Path:  "debug.log",
			Level: "info",
		},
	}
}

// NewViper returns a viper instance carrying every default except the
// retention capacity, with ALGOMGR_ environment overrides bound.
func NewViper() *viper.Viper {
	d := Defaults()
	v := viper.New()

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("journal.enabled", d.Journal.Enabled)
	v.SetDefault("journal.path", d.Journal.Path)
	v.SetDefault("journal.cache_ttl", d.Journal.CacheTTL)
	v.SetDefault("api.addr", d.API.Addr)
	v.SetDefault("api.cors_origins", d.API.CORSOrigins)
	v.SetDefault("log.path", d.Log.Path)
	v.SetDefault("log.level", d.Log.Level)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// No default exists for the capacity, so AutomaticEnv alone would not see it.
	_ = v.BindEnv("algorithms.retained")

	return v
}

// Load reads configuration into v and decodes it. With an empty cfgFile it
// searches ./.algomgr/config.yaml then ~/.config/algomgr/config.yaml; a
// missing file is not an error. Returns the file actually read ("" if none).
// Load does not validate.
func Load(v *viper.Viper, cfgFile string) (Config, string, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".algomgr")
		if dir := DefaultConfigDir(); dir != "" {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.ErrorErr(log.CatConfig, "Failed to read config", err, "path", cfgFile)
			return Config{}, "", fmt.Errorf("reading config: %w", err)
		}
		log.Debug(log.CatConfig, "No config file found, using defaults and environment")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, "", fmt.Errorf("%w: decoding: %v", ErrInvalidConfig, err)
	}

	used := v.ConfigFileUsed()
	log.Debug(log.CatConfig, "Loaded config", "path", used, "retained", cfg.Algorithms.Retained)
	return cfg, used, nil
}

// LoadFile reads and validates a single config file with a fresh viper
// instance. The config watcher uses it to pick up edits.
func LoadFile(path string) (Config, error) {
	cfg, _, err := Load(NewViper(), path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ValidateCapacity checks a retention-pool capacity.
func ValidateCapacity(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: algorithms.retained must be at least 1, got %d (run `algomgr init` or set %s_ALGORITHMS_RETAINED)",
			ErrInvalidCapacity, n, EnvPrefix)
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
func ValidateTracing(tracing TracingConfig) error {
	if tracing.SampleRate < 0.0 || tracing.SampleRate > 1.0 {
		return fmt.Errorf("%w: tracing.sample_rate must be between 0.0 and 1.0, got %v", ErrInvalidConfig, tracing.SampleRate)
	}

	switch tracing.Exporter {
	case "", "none", "file", "stdout", "otlp":
	default:
		return fmt.Errorf("%w: tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", ErrInvalidConfig, tracing.Exporter)
	}

	if tracing.Enabled {
		if tracing.Exporter == "file" && tracing.FilePath == "" {
			return fmt.Errorf("%w: tracing.file_path is required when exporter is \"file\"", ErrInvalidConfig)
		}
		if tracing.Exporter == "otlp" && tracing.OTLPEndpoint == "" {
			return fmt.Errorf("%w: tracing.otlp_endpoint is required when exporter is \"otlp\"", ErrInvalidConfig)
		}
	}
	return nil
}

// ValidateJournal checks run-history configuration.
func ValidateJournal(j JournalConfig) error {
	if j.CacheTTL < 0 {
		return fmt.Errorf("%w: journal.cache_ttl must not be negative", ErrInvalidConfig)
	}
	if j.Enabled && j.Path == "" {
		return fmt.Errorf("%w: journal.path is required when the journal is enabled", ErrInvalidConfig)
	}
	return nil
}

// Validate checks the whole configuration.
func (c Config) Validate() error {
	if err := ValidateCapacity(c.Algorithms.Retained); err != nil {
		return err
	}
	if err := ValidateTracing(c.Tracing); err != nil {
		return err
	}
	if err := ValidateJournal(c.Journal); err != nil {
		return err
	}
	if c.API.Addr == "" {
		return fmt.Errorf("%w: api.addr must not be empty", ErrInvalidConfig)
	}
	return nil
}

// DefaultConfigTemplate returns the default config as YAML with comments.
func DefaultConfigTemplate() string {
	d := Defaults()
	return fmt.Sprintf(`# algomgr configuration

algorithms:
  # How many managed handles to retain. Oldest idle handles are evicted
  # first; running handles are never evicted.
  retained: %d

# OpenTelemetry tracing of algorithm runs
tracing:
  enabled: false
  exporter: file          # none, file, stdout, otlp
  # file_path: %s
  otlp_endpoint: %s
  sample_rate: 1.0

# Persisted run history (SQLite)
journal:
  enabled: false
  # path: %s
  cache_ttl: 30s

# HTTP control surface for 'algomgr serve'
api:
  addr: %s

log:
  path: debug.log
  level: info
`, d.Algorithms.Retained, d.Tracing.FilePath, d.Tracing.OTLPEndpoint, d.Journal.Path, d.API.Addr)
}

// WriteDefaultConfig creates a config file at configPath with default
// settings and comments, creating the parent directory if needed.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
