// Package config provides configuration loading and validation for the ordmap tool.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Sentinel validation errors.
var (
	ErrInvalidKeys          = errors.New("workload key space must be positive")
	ErrInvalidOperations    = errors.New("workload operation count must be positive")
	ErrInvalidRatio         = errors.New("workload ratios must lie in [0, 1] and sum to at most 1")
	ErrInvalidCheckInterval = errors.New("check interval must not be negative")
	ErrInvalidMaxNodes      = errors.New("allocator node budget must not be negative")
	ErrInvalidLogLevel      = errors.New("unknown log level")
	ErrInvalidLogFormat     = errors.New("unknown log format")
	ErrInvalidSampleRatio   = errors.New("trace sample ratio must lie in [0, 1]")
)

// Default configuration values.
const (
	DefaultKeys          = 1000
	DefaultOperations    = 100000
	DefaultSeed          = 1
	DefaultEraseRatio    = 0.35
	DefaultLookupRatio   = 0.15
	DefaultCheckInterval = 1
	DefaultMaxNodes      = 0
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "text"
	DefaultMetricsListen = ""
	DefaultSampleRatio   = 1.0

	// EnvPrefix prefixes every environment override, e.g. ORDMAP_WORKLOAD_KEYS.
	EnvPrefix = "ORDMAP"

	// FileName is the configuration file name looked up when no path is given.
	FileName = "ordmap"
)

// Config holds all configuration for the ordmap tool.
type Config struct {
	Workload  WorkloadConfig  `mapstructure:"workload"  yaml:"workload"`
	Allocator AllocatorConfig `mapstructure:"allocator" yaml:"allocator"`
	Logging   LoggingConfig   `mapstructure:"logging"   yaml:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
}

// WorkloadConfig drives the randomized insert/erase/lookup workload.
type WorkloadConfig struct {
	// Keys bounds the key space: keys are drawn from [0, Keys).
	Keys       int     `mapstructure:"keys"        yaml:"keys"`
	Operations int     `mapstructure:"operations"  yaml:"operations"`
	Seed       int64   `mapstructure:"seed"        yaml:"seed"`
	EraseRatio float64 `mapstructure:"erase_ratio" yaml:"erase_ratio"`
	// LookupRatio is the share of read-only operations; the rest are inserts.
	LookupRatio float64 `mapstructure:"lookup_ratio" yaml:"lookup_ratio"`
	// CheckInterval runs the invariants checker every N mutations. 0 disables it.
	CheckInterval int `mapstructure:"check_interval" yaml:"check_interval"`
}

// AllocatorConfig selects the node allocation strategy.
type AllocatorConfig struct {
	// MaxNodes caps the live nodes. 0 means unbounded.
	MaxNodes int `mapstructure:"max_nodes" yaml:"max_nodes"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// TelemetryConfig holds OpenTelemetry export and Prometheus settings.
type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure" yaml:"otlp_insecure"`
	// SampleRatio is the share of workload traces kept when exporting.
	SampleRatio float64 `mapstructure:"sample_ratio" yaml:"sample_ratio"`
	// DebugTrace keeps every trace, ignoring SampleRatio and OTEL_TRACES_SAMPLER.
	DebugTrace    bool   `mapstructure:"debug_trace"    yaml:"debug_trace"`
	MetricsListen string `mapstructure:"metrics_listen" yaml:"metrics_listen"`
}

// LoadConfig loads configuration from file and environment variables.
// An empty path searches ordmap.yaml in ".", "./config" and "/etc/ordmap";
// a missing file is not an error in that case.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(FileName)
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("./config")
		viperCfg.AddConfigPath("/etc/ordmap")
	}

	viperCfg.SetEnvPrefix(EnvPrefix)
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	validateErr := config.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Workload: WorkloadConfig{
			Keys:          DefaultKeys,
			Operations:    DefaultOperations,
			Seed:          DefaultSeed,
			EraseRatio:    DefaultEraseRatio,
			LookupRatio:   DefaultLookupRatio,
			CheckInterval: DefaultCheckInterval,
		},
		Allocator: AllocatorConfig{MaxNodes: DefaultMaxNodes},
		Logging:   LoggingConfig{Level: DefaultLogLevel, Format: DefaultLogFormat},
		Telemetry: TelemetryConfig{SampleRatio: DefaultSampleRatio, MetricsListen: DefaultMetricsListen},
	}
}

func setDefaults(viperCfg *viper.Viper) {
	defaults := Default()

	// Workload defaults.
	viperCfg.SetDefault("workload.keys", defaults.Workload.Keys)
	viperCfg.SetDefault("workload.operations", defaults.Workload.Operations)
	viperCfg.SetDefault("workload.seed", defaults.Workload.Seed)
	viperCfg.SetDefault("workload.erase_ratio", defaults.Workload.EraseRatio)
	viperCfg.SetDefault("workload.lookup_ratio", defaults.Workload.LookupRatio)
	viperCfg.SetDefault("workload.check_interval", defaults.Workload.CheckInterval)

	viperCfg.SetDefault("allocator.max_nodes", defaults.Allocator.MaxNodes)

	// Logging defaults.
	viperCfg.SetDefault("logging.level", defaults.Logging.Level)
	viperCfg.SetDefault("logging.format", defaults.Logging.Format)

	// Telemetry defaults.
	viperCfg.SetDefault("telemetry.otlp_endpoint", defaults.Telemetry.OTLPEndpoint)
	viperCfg.SetDefault("telemetry.otlp_insecure", defaults.Telemetry.OTLPInsecure)
	viperCfg.SetDefault("telemetry.sample_ratio", defaults.Telemetry.SampleRatio)
	viperCfg.SetDefault("telemetry.debug_trace", defaults.Telemetry.DebugTrace)
	viperCfg.SetDefault("telemetry.metrics_listen", defaults.Telemetry.MetricsListen)
}

// Validate checks value ranges.
func (config *Config) Validate() error {
	workload := config.Workload

	if workload.Keys <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidKeys, workload.Keys)
	}

	if workload.Operations <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidOperations, workload.Operations)
	}

	if workload.EraseRatio < 0 || workload.LookupRatio < 0 || workload.EraseRatio+workload.LookupRatio > 1 {
		return fmt.Errorf("%w: erase %.2f, lookup %.2f", ErrInvalidRatio, workload.EraseRatio, workload.LookupRatio)
	}

	if workload.CheckInterval < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCheckInterval, workload.CheckInterval)
	}

	if config.Allocator.MaxNodes < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxNodes, config.Allocator.MaxNodes)
	}

	ratio := config.Telemetry.SampleRatio
	if ratio < 0 || ratio > 1 {
		return fmt.Errorf("%w: %.2f", ErrInvalidSampleRatio, ratio)
	}

	_, err := ParseLogLevel(config.Logging.Level)
	if err != nil {
		return err
	}

	switch config.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, config.Logging.Format)
	}

	return nil
}
