package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/SmitUplenchwar2687/admit/internal/limiter"
)

// Config is the top-level configuration for an admit process.
type Config struct {
	Server  ServerConfig
	Limiter limiter.Config
	Log     LogConfig
	Events  EventsConfig
}

// ServerConfig holds HTTP and gRPC listener settings.
type ServerConfig struct {
	Addr string
	// GRPCAddr enables the gRPC listener when set.
	GRPCAddr string
	// DrainInterval is how often a leaky bucket is drained in the
	// background. Zero drains only when new work is added.
	DrainInterval time.Duration
}

// LogConfig selects the zap logger level and encoding.
type LogConfig struct {
	Level  string
	Format string
}

// EventsConfig configures where decision events are published.
type EventsConfig struct {
	// RedisAddr enables the Redis pub/sub sink when set.
	RedisAddr    string
	RedisChannel string
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr: ":8080",
		},
		Limiter: limiter.Config{
			Algorithm:     limiter.AlgorithmTokenBucket,
			Capacity:      10,
			Window:        time.Minute,
			RatePerSecond: 1,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Events: EventsConfig{
			RedisChannel: "admit:decisions",
		},
	}
}

// Validate checks that the config is valid.
func (c Config) Validate() error {
	if !c.Limiter.Algorithm.Valid() {
		return fmt.Errorf("%w %q, must be one of: %s", limiter.ErrUnknownAlgorithm, c.Limiter.Algorithm, limiter.AlgorithmNames())
	}
	if c.Limiter.Capacity < 0 {
		return fmt.Errorf("capacity must not be negative, got %d", c.Limiter.Capacity)
	}
	if c.Limiter.Window < 0 {
		return fmt.Errorf("window must not be negative, got %s", c.Limiter.Window)
	}
	if c.Limiter.RatePerSecond < 0 {
		return fmt.Errorf("rate_per_second must not be negative, got %g", c.Limiter.RatePerSecond)
	}
	if c.Server.DrainInterval < 0 {
		return fmt.Errorf("drain_interval must not be negative, got %s", c.Server.DrainInterval)
	}
	switch c.Log.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("unknown log format %q, must be json or console", c.Log.Format)
	}
	return nil
}

// Load reads path (if non-empty), applies ADMIT_* environment overrides and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFile(path); err != nil {
			return cfg, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFile reads a YAML config file and merges it with defaults.
// Fields not specified in the file retain their default values.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}

	// Durations are strings in the file, so decode into a raw struct first.
	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}

	if raw.Server.Addr != "" {
		cfg.Server.Addr = raw.Server.Addr
	}
	if raw.Server.GRPCAddr != "" {
		cfg.Server.GRPCAddr = raw.Server.GRPCAddr
	}
	if raw.Server.DrainInterval != "" {
		d, err := time.ParseDuration(raw.Server.DrainInterval)
		if err != nil {
			return cfg, fmt.Errorf("parsing server.drain_interval: %w", err)
		}
		cfg.Server.DrainInterval = d
	}
	if raw.Limiter.Algorithm != "" {
		cfg.Limiter.Algorithm = limiter.Algorithm(raw.Limiter.Algorithm)
	}
	if raw.Limiter.Capacity != nil {
		cfg.Limiter.Capacity = *raw.Limiter.Capacity
	}
	if raw.Limiter.Window != "" {
		d, err := time.ParseDuration(raw.Limiter.Window)
		if err != nil {
			return cfg, fmt.Errorf("parsing limiter.window: %w", err)
		}
		cfg.Limiter.Window = d
	}
	if raw.Limiter.RatePerSecond != nil {
		cfg.Limiter.RatePerSecond = *raw.Limiter.RatePerSecond
	}
	if raw.Log.Level != "" {
		cfg.Log.Level = raw.Log.Level
	}
	if raw.Log.Format != "" {
		cfg.Log.Format = raw.Log.Format
	}
	if raw.Events.RedisAddr != "" {
		cfg.Events.RedisAddr = raw.Events.RedisAddr
	}
	if raw.Events.RedisChannel != "" {
		cfg.Events.RedisChannel = raw.Events.RedisChannel
	}

	return cfg, nil
}

// rawConfig is the YAML representation with string durations. Capacity and
// rate are pointers so an explicit zero can be told apart from "unset".
type rawConfig struct {
	Server struct {
		Addr          string `yaml:"addr,omitempty"`
		GRPCAddr      string `yaml:"grpc_addr,omitempty"`
		DrainInterval string `yaml:"drain_interval,omitempty"`
	} `yaml:"server"`
	Limiter struct {
		Algorithm     string   `yaml:"algorithm,omitempty"`
		Capacity      *int     `yaml:"capacity,omitempty"`
		Window        string   `yaml:"window,omitempty"`
		RatePerSecond *float64 `yaml:"rate_per_second,omitempty"`
	} `yaml:"limiter"`
	Log struct {
		Level  string `yaml:"level,omitempty"`
		Format string `yaml:"format,omitempty"`
	} `yaml:"log"`
	Events struct {
		RedisAddr    string `yaml:"redis_addr,omitempty"`
		RedisChannel string `yaml:"redis_channel,omitempty"`
	} `yaml:"events"`
}

func toRaw(c Config) rawConfig {
	var raw rawConfig
	raw.Server.Addr = c.Server.Addr
	raw.Server.GRPCAddr = c.Server.GRPCAddr
	if c.Server.DrainInterval > 0 {
		raw.Server.DrainInterval = c.Server.DrainInterval.String()
	}
	raw.Limiter.Algorithm = string(c.Limiter.Algorithm)
	raw.Limiter.Capacity = &c.Limiter.Capacity
	raw.Limiter.Window = c.Limiter.Window.String()
	raw.Limiter.RatePerSecond = &c.Limiter.RatePerSecond
	raw.Log.Level = c.Log.Level
	raw.Log.Format = c.Log.Format
	raw.Events.RedisAddr = c.Events.RedisAddr
	raw.Events.RedisChannel = c.Events.RedisChannel
	return raw
}

// Marshal renders c as YAML in the format LoadFile reads.
func Marshal(c Config) ([]byte, error) {
	data, err := yaml.Marshal(toRaw(c))
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return data, nil
}

// WriteExample writes the default config as YAML to the given path.
func WriteExample(path string) error {
	data, err := Marshal(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ApplyEnv overrides fields from ADMIT_SECTION_FIELD environment variables.
func (c *Config) ApplyEnv() error {
	var errs []error

	str := func(name string, dst *string) {
		if val := os.Getenv(name); val != "" {
			*dst = val
		}
	}
	dur := func(name string, dst *time.Duration) {
		if val := os.Getenv(name); val != "" {
			d, err := time.ParseDuration(val)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = d
		}
	}

	str("ADMIT_SERVER_ADDR", &c.Server.Addr)
	str("ADMIT_SERVER_GRPC_ADDR", &c.Server.GRPCAddr)
	dur("ADMIT_SERVER_DRAIN_INTERVAL", &c.Server.DrainInterval)

	if val := os.Getenv("ADMIT_LIMITER_ALGORITHM"); val != "" {
		c.Limiter.Algorithm = limiter.Algorithm(val)
	}
	if val := os.Getenv("ADMIT_LIMITER_CAPACITY"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			errs = append(errs, fmt.Errorf("ADMIT_LIMITER_CAPACITY: %w", err))
		} else {
			c.Limiter.Capacity = n
		}
	}
	dur("ADMIT_LIMITER_WINDOW", &c.Limiter.Window)
	if val := os.Getenv("ADMIT_LIMITER_RATE_PER_SECOND"); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("ADMIT_LIMITER_RATE_PER_SECOND: %w", err))
		} else {
			c.Limiter.RatePerSecond = f
		}
	}

	str("ADMIT_LOG_LEVEL", &c.Log.Level)
	str("ADMIT_LOG_FORMAT", &c.Log.Format)
	str("ADMIT_EVENTS_REDIS_ADDR", &c.Events.RedisAddr)
	str("ADMIT_EVENTS_REDIS_CHANNEL", &c.Events.RedisChannel)

	return errors.Join(errs...)
}
