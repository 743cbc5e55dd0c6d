package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every configuration option for an execrt runtime. It
// supports three-layer configuration priority:
//  1. Default values (lowest priority)
//  2. Environment variables (medium priority)
//  3. Functional options (highest priority)
//
// Example:
//
//	cfg, err := NewConfig(
//	    WithWALDir("/var/lib/execrt/wal"),
//	    WithComplianceMode(core.ModeRegulated),
//	)
type Config struct {
	// WALDir is the directory holding one append-only JSONL file per
	// execution ID.
	WALDir string `json:"walDir" yaml:"walDir" env:"EXECRT_WAL_DIR" default:"./data/wal"`

	// RecordsDir is the directory holding finalized ExecutionRecords.
	RecordsDir string `json:"recordsDir" yaml:"recordsDir" env:"EXECRT_RECORDS_DIR" default:"./data/records"`

	// IdempotencyDir holds the persistent idempotency key index and
	// execution locks.
	IdempotencyDir string `json:"idempotencyDir" yaml:"idempotencyDir" env:"EXECRT_IDEMPOTENCY_DIR" default:"./data/idempotency"`

	// CLIIndexPath is the sqlite file backing the introspection index.
	// It is fully rebuildable from WALDir/RecordsDir.
	CLIIndexPath string `json:"cliIndexPath" yaml:"cliIndexPath" env:"EXECRT_CLI_INDEX_PATH" default:"./data/index.db"`

	// Compliance sets the enforcement posture at startup: DEVELOPMENT,
	// STANDARD, or REGULATED.
	Compliance ComplianceMode `json:"compliance" yaml:"compliance" env:"EXECRT_COMPLIANCE_MODE" default:"STANDARD"`

	// RequireDeterminism forbids the PARALLEL routing strategy and
	// enables fingerprint drift checks. Forced true under REGULATED.
	RequireDeterminism bool `json:"requireDeterminism" yaml:"requireDeterminism" env:"EXECRT_REQUIRE_DETERMINISM" default:"false"`

	// SignWAL signs every WAL entry with SigningKeyID. Forced true
	// under REGULATED.
	SignWAL     bool   `json:"signWal" yaml:"signWal" env:"EXECRT_SIGN_WAL" default:"false"`
	SigningKeyID string `json:"signingKeyId" yaml:"signingKeyId" env:"EXECRT_SIGNING_KEY_ID"`

	// RedactPII enables redaction of RedactPIIFields in the response
	// stored in each finalized execution record, in any compliance mode.
	// The WAL is not redacted. REGULATED mode requires both fields set.
	RedactPII       bool     `json:"redactPii" yaml:"redactPii" env:"EXECRT_REDACT_PII" default:"false"`
	RedactPIIFields []string `json:"redactPiiFields" yaml:"redactPiiFields" env:"EXECRT_REDACT_PII_FIELDS"`

	// Logging configuration.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Telemetry configuration (OpenTelemetry tracing/metrics).
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`

	// Registry configuration (in-memory vs Redis-backed agent registry).
	Registry RegistryConfig `json:"registry" yaml:"registry"`

	// Development relaxes constraints useful only outside production.
	Development DevelopmentConfig `json:"development" yaml:"development"`

	logger Logger `json:"-"`
}

// LoggingConfig controls the shape and verbosity of structured logs.
type LoggingConfig struct {
	Level      string `json:"level" yaml:"level" env:"EXECRT_LOG_LEVEL" default:"info"`
	Format     string `json:"format" yaml:"format" env:"EXECRT_LOG_FORMAT" default:"json"`
	Output     string `json:"output" yaml:"output" env:"EXECRT_LOG_OUTPUT" default:"stdout"`
	TimeFormat string `json:"timeFormat" yaml:"timeFormat" default:"2006-01-02T15:04:05.000Z07:00"`
}

// TelemetryConfig controls OpenTelemetry export.
type TelemetryConfig struct {
	Enabled        bool    `json:"enabled" yaml:"enabled" env:"EXECRT_TELEMETRY_ENABLED" default:"false"`
	Endpoint       string  `json:"endpoint" yaml:"endpoint" env:"EXECRT_TELEMETRY_ENDPOINT,OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName    string  `json:"serviceName" yaml:"serviceName" env:"EXECRT_TELEMETRY_SERVICE_NAME,OTEL_SERVICE_NAME" default:"execrt"`
	Insecure       bool    `json:"insecure" yaml:"insecure" env:"EXECRT_TELEMETRY_INSECURE" default:"true"`
	SamplingRate   float64 `json:"samplingRate" yaml:"samplingRate" env:"EXECRT_TELEMETRY_SAMPLING_RATE" default:"1.0"`
	MetricsEnabled bool    `json:"metricsEnabled" yaml:"metricsEnabled" env:"EXECRT_TELEMETRY_METRICS" default:"true"`
}

// RegistryConfig selects the agent registry backend.
type RegistryConfig struct {
	Provider string        `json:"provider" yaml:"provider" env:"EXECRT_REGISTRY_PROVIDER" default:"memory"`
	RedisURL string        `json:"redisUrl" yaml:"redisUrl" env:"EXECRT_REGISTRY_REDIS_URL,REDIS_URL"`
	TTL      time.Duration `json:"ttl" yaml:"ttl" env:"EXECRT_REGISTRY_TTL" default:"30s"`
}

// DevelopmentConfig enables shortcuts forbidden in STANDARD/REGULATED.
type DevelopmentConfig struct {
	Enabled      bool `json:"enabled" yaml:"enabled" env:"EXECRT_DEV_MODE" default:"false"`
	DebugLogging bool `json:"debugLogging" yaml:"debugLogging" env:"EXECRT_DEBUG" default:"false"`
	PrettyLogs   bool `json:"prettyLogs" yaml:"prettyLogs" env:"EXECRT_PRETTY_LOGS" default:"false"`
}

// DefaultConfig returns a Config populated with the documented
// defaults, before environment variables or functional options are
// applied.
func DefaultConfig() *Config {
	return &Config{
		WALDir:         "./data/wal",
		RecordsDir:     "./data/records",
		IdempotencyDir: "./data/idempotency",
		CLIIndexPath:   "./data/index.db",
		Compliance:     ModeStandard,
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		},
		Telemetry: TelemetryConfig{
			Enabled:        false,
			ServiceName:    "execrt",
			Insecure:       true,
			SamplingRate:   1.0,
			MetricsEnabled: true,
		},
		Registry: RegistryConfig{
			Provider: "memory",
			TTL:      30 * time.Second,
		},
		Development: DevelopmentConfig{},
	}
}

// LoadFromEnv overlays environment variables onto c, overwriting
// whatever defaults are already present. Only the variables read below
// are applied; the env struct tags are not consulted, so a tagged
// variable missing from this list (EXECRT_REDACT_PII_FIELDS, for one)
// has no effect. Unset variables are left untouched; a boolean variable
// that does not parse is read as false, and an unparsable
// EXECRT_REGISTRY_TTL is ignored.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("EXECRT_WAL_DIR"); v != "" {
		c.WALDir = v
	}
	if v := os.Getenv("EXECRT_RECORDS_DIR"); v != "" {
		c.RecordsDir = v
	}
	if v := os.Getenv("EXECRT_IDEMPOTENCY_DIR"); v != "" {
		c.IdempotencyDir = v
	}
	if v := os.Getenv("EXECRT_CLI_INDEX_PATH"); v != "" {
		c.CLIIndexPath = v
	}
	if v := os.Getenv("EXECRT_COMPLIANCE_MODE"); v != "" {
		c.Compliance = ComplianceMode(v)
	}
	if v := os.Getenv("EXECRT_REQUIRE_DETERMINISM"); v != "" {
		c.RequireDeterminism = parseBool(v)
	}
	if v := os.Getenv("EXECRT_SIGN_WAL"); v != "" {
		c.SignWAL = parseBool(v)
	}
	if v := os.Getenv("EXECRT_SIGNING_KEY_ID"); v != "" {
		c.SigningKeyID = v
	}
	if v := os.Getenv("EXECRT_REDACT_PII"); v != "" {
		c.RedactPII = parseBool(v)
	}
	if v := os.Getenv("EXECRT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("EXECRT_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("EXECRT_DEBUG"); v != "" {
		c.Development.DebugLogging = parseBool(v)
	}
	if v := os.Getenv("EXECRT_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = parseBool(v)
	}
	if v := os.Getenv("EXECRT_TELEMETRY_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
	} else if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
	}
	if v := os.Getenv("EXECRT_REGISTRY_PROVIDER"); v != "" {
		c.Registry.Provider = v
	}
	if v := os.Getenv("EXECRT_REGISTRY_REDIS_URL"); v != "" {
		c.Registry.RedisURL = v
	} else if v := os.Getenv("REDIS_URL"); v != "" {
		c.Registry.RedisURL = v
	}
	if v := os.Getenv("EXECRT_REGISTRY_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Registry.TTL = d
		}
	}

	// REGULATED mode forces the strict posture regardless of the
	// individual flags above.
	if c.Compliance == ModeRegulated {
		c.RequireDeterminism = true
		c.SignWAL = true
	}
	return nil
}

// LoadFromFile overlays a YAML config file onto c. Only the fields
// present in the file are touched; everything else keeps whatever
// defaults/env values were already loaded. Call this before applying
// functional options so options still win.
func (c *Config) LoadFromFile(path string) error {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	if ext != ".yaml" && ext != ".yml" {
		return NewFrameworkError("Config.LoadFromFile", "configuration",
			fmt.Errorf("unsupported config file extension %q", ext))
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return NewFrameworkError("Config.LoadFromFile", "configuration", err).WithID(cleanPath)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return NewFrameworkError("Config.LoadFromFile", "configuration", err).WithID(cleanPath)
	}
	return nil
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false
	}
	return b
}

// Option mutates a Config during NewConfig. Options run after
// defaults and environment variables, so they always win.
type Option func(*Config)

func WithWALDir(dir string) Option {
	return func(c *Config) { c.WALDir = dir }
}

func WithRecordsDir(dir string) Option {
	return func(c *Config) { c.RecordsDir = dir }
}

func WithIdempotencyDir(dir string) Option {
	return func(c *Config) { c.IdempotencyDir = dir }
}

func WithCLIIndexPath(path string) Option {
	return func(c *Config) { c.CLIIndexPath = path }
}

func WithComplianceMode(mode ComplianceMode) Option {
	return func(c *Config) {
		c.Compliance = mode
		if mode == ModeRegulated {
			c.RequireDeterminism = true
			c.SignWAL = true
		}
	}
}

func WithRequireDeterminism(require bool) Option {
	return func(c *Config) { c.RequireDeterminism = require }
}

func WithSigningKey(keyID string) Option {
	return func(c *Config) {
		c.SignWAL = true
		c.SigningKeyID = keyID
	}
}

func WithRedactPIIFields(fields []string) Option {
	return func(c *Config) {
		c.RedactPII = len(fields) > 0
		c.RedactPIIFields = fields
	}
}

func WithLogLevel(level string) Option {
	return func(c *Config) { c.Logging.Level = level }
}

func WithLogFormat(format string) Option {
	return func(c *Config) { c.Logging.Format = format }
}

func WithTelemetry(enabled bool, endpoint string) Option {
	return func(c *Config) {
		c.Telemetry.Enabled = enabled
		c.Telemetry.Endpoint = endpoint
	}
}

func WithRegistryProvider(provider, redisURL string) Option {
	return func(c *Config) {
		c.Registry.Provider = provider
		c.Registry.RedisURL = redisURL
	}
}

func WithDevelopmentMode(enabled bool) Option {
	return func(c *Config) { c.Development.Enabled = enabled }
}

func WithLogger(logger Logger) Option {
	return func(c *Config) { c.logger = logger }
}

// NewConfig builds a Config by layering defaults, then environment
// variables, then the supplied options, and finally validates the
// result.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, NewFrameworkError("NewConfig", "configuration", err)
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Logger returns the configured Logger, or NoOpLogger if none was set
// via WithLogger.
func (c *Config) Logger() Logger {
	if c.logger == nil {
		return NoOpLogger{}
	}
	return c.logger
}

// Validate checks cross-field invariants: REGULATED mode must carry
// determinism and signing, and a signing key must be set whenever
// signing is requested.
func (c *Config) Validate() error {
	if c.Compliance != ModeDevelopment && c.Compliance != ModeStandard && c.Compliance != ModeRegulated {
		return NewFrameworkError("Config.Validate", "configuration", ErrInvalidComplianceMode).
			WithSubtype(string(c.Compliance))
	}
	if c.Compliance == ModeRegulated {
		if !c.RequireDeterminism || !c.SignWAL || c.SigningKeyID == "" {
			return NewFrameworkError("Config.Validate", "configuration", ErrInvalidComplianceMode).
				WithSubtype("regulated_mode_requires_determinism_and_signing")
		}
		if !c.RedactPII || len(c.RedactPIIFields) == 0 {
			return NewFrameworkError("Config.Validate", "configuration", ErrPIIRedactionNotConfigured)
		}
	}
	if c.SignWAL && c.SigningKeyID == "" {
		return NewFrameworkError("Config.Validate", "configuration",
			fmt.Errorf("signWal is enabled but no signingKeyId was provided"))
	}
	if c.Compliance == ModeStandard || c.Compliance == ModeRegulated {
		if c.Development.Enabled {
			return NewFrameworkError("Config.Validate", "configuration",
				fmt.Errorf("development mode is forbidden under %s compliance", c.Compliance))
		}
	}
	return nil
}
