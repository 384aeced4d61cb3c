// Package config loads the daemon's configuration surface: socket and PID
// paths, log level, per-slot model policy, and the memory budget, from a
// YAML file layered with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const (
	envConfigPath = "FASTSEARCH_CONFIG"
	envDBPath     = "FASTSEARCH_DB"
	envPrefix     = "FASTSEARCH"

	// DefaultSocketPath and DefaultPIDPath match FastSearchConfig.default()
	// in the original implementation.
	DefaultSocketPath = "/tmp/fastsearch.sock"
	DefaultPIDPath    = "/tmp/fastsearch.pid"
	DefaultLogLevel   = "INFO"
	DefaultMaxRAMMB   = 4000
)

// DaemonConfig holds daemon-process-level settings.
type DaemonConfig struct {
	SocketPath string `mapstructure:"socket_path"`
	PIDPath    string `mapstructure:"pid_path"`
	LogLevel   string `mapstructure:"log_level"`
}

// ModelConfig describes one model slot's desired identity and policy.
type ModelConfig struct {
	Name               string `mapstructure:"name"`
	KeepLoaded         string `mapstructure:"keep_loaded"`
	IdleTimeoutSeconds int    `mapstructure:"idle_timeout_seconds"`
}

// MemoryConfig bounds total resident model memory.
type MemoryConfig struct {
	MaxRAMMB       int    `mapstructure:"max_ram_mb"`
	EvictionPolicy string `mapstructure:"eviction_policy"`
}

// Config is the validated, typed configuration surface.
type Config struct {
	Daemon DaemonConfig           `mapstructure:"daemon"`
	Models map[string]ModelConfig `mapstructure:"models"`
	Memory MemoryConfig           `mapstructure:"memory"`

	// DBPath and ConfigPath are not part of the YAML tree; they are
	// resolved separately from the *_DB/*_CONFIG environment overrides.
	DBPath     string `mapstructure:"-"`
	ConfigPath string `mapstructure:"-"`
}

// Default returns the configuration the original implementation ships
// with out of the box: embedder always-loaded with no idle timeout,
// reranker on_demand with a 5-minute idle timeout, a 4GB memory budget
// evicted LRU-first.
func Default() Config {
	return Config{
		Daemon: DaemonConfig{
			SocketPath: DefaultSocketPath,
			PIDPath:    DefaultPIDPath,
			LogLevel:   DefaultLogLevel,
		},
		Models: map[string]ModelConfig{
			"embedder": {Name: "BAAI/bge-base-en-v1.5", KeepLoaded: "always", IdleTimeoutSeconds: 0},
			"reranker": {Name: "cross-encoder/ms-marco-MiniLM-L-6-v2", KeepLoaded: "on_demand", IdleTimeoutSeconds: 300},
		},
		Memory: MemoryConfig{MaxRAMMB: DefaultMaxRAMMB, EvictionPolicy: "lru"},
	}
}

// Load reads configuration from path (or, if empty, from the FASTSEARCH_CONFIG
// environment variable, falling back to no file at all) layered over
// Default(), with FASTSEARCH_-prefixed environment variables taking final
// precedence (e.g. FASTSEARCH_DAEMON_SOCKET_PATH overrides daemon.socket_path).
func Load(path string) (*Config, error) {
	v := newViper()

	if path == "" {
		path = os.Getenv(envConfigPath)
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("config: read %q: %w", path, err)
			}
		}
	}

	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.ConfigPath = path
	cfg.DBPath = os.Getenv(envDBPath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := Default()
	v.SetDefault("daemon.socket_path", d.Daemon.SocketPath)
	v.SetDefault("daemon.pid_path", d.Daemon.PIDPath)
	v.SetDefault("daemon.log_level", d.Daemon.LogLevel)
	v.SetDefault("memory.max_ram_mb", d.Memory.MaxRAMMB)
	v.SetDefault("memory.eviction_policy", d.Memory.EvictionPolicy)
	for slot, m := range d.Models {
		v.SetDefault("models."+slot+".name", m.Name)
		v.SetDefault("models."+slot+".keep_loaded", m.KeepLoaded)
		v.SetDefault("models."+slot+".idle_timeout_seconds", m.IdleTimeoutSeconds)
	}
	return v
}

// Validate checks enum fields and bounds. It does not check model file
// availability — that's the embedder/reranker providers' job at load time.
func (c Config) Validate() error {
	switch strings.ToUpper(c.Daemon.LogLevel) {
	case "DEBUG", "INFO", "WARNING", "ERROR":
	default:
		return fmt.Errorf("config: daemon.log_level must be one of DEBUG/INFO/WARNING/ERROR, got %q", c.Daemon.LogLevel)
	}
	switch c.Memory.EvictionPolicy {
	case "lru", "fifo":
	default:
		return fmt.Errorf("config: memory.eviction_policy must be lru or fifo, got %q", c.Memory.EvictionPolicy)
	}
	if c.Memory.MaxRAMMB <= 0 {
		return fmt.Errorf("config: memory.max_ram_mb must be positive, got %d", c.Memory.MaxRAMMB)
	}
	for slot, m := range c.Models {
		switch m.KeepLoaded {
		case "always", "on_demand", "disabled":
		default:
			return fmt.Errorf("config: models.%s.keep_loaded must be always/on_demand/disabled, got %q", slot, m.KeepLoaded)
		}
		if m.IdleTimeoutSeconds < 0 {
			return fmt.Errorf("config: models.%s.idle_timeout_seconds must be non-negative, got %d", slot, m.IdleTimeoutSeconds)
		}
	}
	return nil
}
