package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/dshills/mapdap/internal/config/loader"
	"github.com/dshills/mapdap/internal/logging"
	"github.com/dshills/mapdap/internal/sourcemap"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MAPDAP_"

// DefaultPaths are tried in order when no config path is given.
var DefaultPaths = []string{"mapdap.toml", "mapdap.yaml", "mapdap.yml"}

// Config is the complete mapdap configuration.
type Config struct {
	SourceMaps SourceMapsConfig `json:"sourceMaps"`
	Ledger     LedgerConfig     `json:"ledger"`
	Logging    LoggingConfig    `json:"logging"`
	Adapter    AdapterConfig    `json:"adapter"`
}

// SourceMapsConfig controls translation.
type SourceMapsConfig struct {
	// Enabled turns source map translation on.
	Enabled bool `json:"enabled"`
	// OutFiles are glob patterns of generated files whose maps are
	// loaded before the session starts.
	OutFiles []string `json:"outFiles"`
	// Watch reloads maps when they change on disk.
	Watch bool `json:"watch"`
	// LinesStartAt1 and ColumnsStartAt1 give the coordinate base the
	// debug session uses.
	LinesStartAt1   bool `json:"linesStartAt1"`
	ColumnsStartAt1 bool `json:"columnsStartAt1"`
}

// LedgerConfig bounds the pending-request ledger.
type LedgerConfig struct {
	Capacity int `json:"capacity"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// AdapterConfig names the debug adapter to connect to.
type AdapterConfig struct {
	Address   string `json:"address"`
	TimeoutMs int    `json:"timeoutMs"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		SourceMaps: SourceMapsConfig{
			Enabled:         true,
			LinesStartAt1:   true,
			ColumnsStartAt1: true,
		},
		Ledger:  LedgerConfig{Capacity: sourcemap.DefaultLedgerCapacity},
		Logging: LoggingConfig{Level: "info", Format: string(logging.FormatText)},
		Adapter: AdapterConfig{TimeoutMs: 10000},
	}
}

// Option configures Load.
type Option func(*options)

type options struct {
	fs      loader.FileSystem
	environ []string
	useEnv  bool
}

// WithFileSystem reads config files from fsys.
func WithFileSystem(fsys loader.FileSystem) Option {
	return func(o *options) { o.fs = fsys }
}

// WithEnviron reads overrides from environ instead of the process
// environment.
func WithEnviron(environ []string) Option {
	return func(o *options) {
		o.environ = environ
		o.useEnv = true
	}
}

// WithoutEnv disables environment overrides.
func WithoutEnv() Option {
	return func(o *options) {
		o.useEnv = false
		o.environ = nil
	}
}

// Load builds a Config from defaults, the file at path and the
// environment. An empty path tries DefaultPaths; a missing file is not
// an error.
func Load(path string, opts ...Option) (Config, error) {
	o := options{fs: loader.OSFS{}, environ: os.Environ(), useEnv: true}
	for _, opt := range opts {
		opt(&o)
	}

	merged, err := toMap(Default())
	if err != nil {
		return Config{}, err
	}

	paths := DefaultPaths
	if path != "" {
		paths = []string{path}
	}
	for _, p := range paths {
		l, err := loader.ForPath(o.fs, p)
		if err != nil {
			return Config{}, err
		}
		fileCfg, err := l.Load()
		if err != nil {
			return Config{}, err
		}
		if fileCfg != nil {
			merged = loader.DeepMerge(merged, loader.FoldKeys(fileCfg))
			break
		}
	}

	if o.useEnv {
		envCfg, err := loader.NewEnvLoaderWithEnviron(EnvPrefix, o.environ).Load()
		if err != nil {
			return Config{}, err
		}
		merged = loader.DeepMerge(merged, loader.FoldKeys(envCfg))
	}

	cfg, err := fromMap(merged)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks settings that the type system cannot.
func (c Config) Validate() error {
	if c.Ledger.Capacity < 0 {
		return &ValidationError{Path: "ledger.capacity", Message: "must not be negative", Value: c.Ledger.Capacity}
	}
	if !logging.ValidLevel(c.Logging.Level) {
		return &ValidationError{Path: "logging.level", Message: "unknown level", Value: c.Logging.Level}
	}
	switch logging.Format(strings.ToLower(c.Logging.Format)) {
	case logging.FormatText, logging.FormatJSON:
	default:
		return &ValidationError{Path: "logging.format", Message: "must be text or json", Value: c.Logging.Format}
	}
	if c.Adapter.TimeoutMs < 0 {
		return &ValidationError{Path: "adapter.timeoutMs", Message: "must not be negative", Value: c.Adapter.TimeoutMs}
	}
	for _, p := range c.SourceMaps.OutFiles {
		if strings.TrimSpace(p) == "" {
			return &ValidationError{Path: "sourceMaps.outFiles", Message: "empty pattern", Value: p}
		}
	}
	return nil
}

// LoggerConfig returns the logging settings in the logger's form.
func (c Config) LoggerConfig() logging.Config {
	return logging.Config{
		Level:  c.Logging.Level,
		Format: logging.Format(strings.ToLower(c.Logging.Format)),
	}
}

// toMap and fromMap round-trip through JSON so that the case-folded keys
// of merged layers match struct fields case-insensitively.
func toMap(c Config) (map[string]any, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return loader.FoldKeys(m), nil
}

func fromMap(m map[string]any) (Config, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return Config{}, fmt.Errorf("encoding merged config: %w", err)
	}
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, &ValidationError{Path: "config", Message: err.Error(), Value: string(data)}
	}
	return c, nil
}
