// Package config loads the YAML startup configuration into the typed
// catalogues the session engine and its ambient collaborators depend on.
// No component other than main reads the YAML directly; everything else
// takes a parsed AppConfig (or a narrower slice of it) as a plain value.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mmizutani/wandbox/pkg/logger"
)

// SystemConfig holds the listener's own settings.
type SystemConfig struct {
	ListenAddr     string `yaml:"listenAddr"`
	DebugAddr      string `yaml:"debugAddr"`
	MaxConnections int    `yaml:"maxConnections"`
	BaseDir        string `yaml:"baseDir"`
	StoreDir       string `yaml:"storeDir"`
}

// CompilerProfile describes one selectable compiler/interpreter.
type CompilerProfile struct {
	Name           string   `yaml:"name"`
	DisplayName    string   `yaml:"displayName"`
	VersionCommand []string `yaml:"versionCommand"`
	CompileCommand []string `yaml:"compileCommand"`
	RunCommand     []string `yaml:"runCommand"`
	OutputFile     string   `yaml:"outputFile"`
	Switches       []string `yaml:"switches"`
	JailName       string   `yaml:"jailName"`
	Displayable    bool     `yaml:"displayable"`
}

// SwitchProfile describes one compiler-option toggle.
type SwitchProfile struct {
	Flags          []string `yaml:"flags"`
	InsertPosition uint32   `yaml:"insertPosition"`
	Runtime        bool     `yaml:"runtime"`
}

// JailProfile describes one sandbox policy. JailCommand is treated as an
// opaque argv prefix; what it actually isolates is out of scope here.
type JailProfile struct {
	JailCommand      []string      `yaml:"jailCommand"`
	CompileTimeLimit time.Duration `yaml:"compileTimeLimit"`
	ProgramDuration  time.Duration `yaml:"programDuration"`
	KillWait         time.Duration `yaml:"killWait"`
	OutputLimitWarn  int64         `yaml:"outputLimitWarn"`
	OutputLimitKill  int64         `yaml:"outputLimitKill"`
}

// HistoryConfig configures the best-effort run-history sink.
type HistoryConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Brokers       []string      `yaml:"brokers"`
	Topic         string        `yaml:"topic"`
	ConsumerGroup string        `yaml:"consumerGroup"`
	MySQLDSN      string        `yaml:"mysqlDSN"`
	QueueSize     int           `yaml:"queueSize"`
	FlushTimeout  time.Duration `yaml:"flushTimeout"`
}

// VersionCacheConfig configures the Redis-backed version-list memoizer.
type VersionCacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	Addr    string        `yaml:"addr"`
	Key     string        `yaml:"key"`
	TTL     time.Duration `yaml:"ttl"`
}

// AppConfig is the full parsed configuration document.
type AppConfig struct {
	System       SystemConfig               `yaml:"system"`
	Compilers    map[string]CompilerProfile `yaml:"compilers"`
	Switches     map[string]SwitchProfile   `yaml:"switches"`
	Jails        map[string]JailProfile     `yaml:"jails"`
	Logger       logger.Config              `yaml:"logger"`
	History      HistoryConfig              `yaml:"history"`
	VersionCache VersionCacheConfig         `yaml:"versionCache"`
}

const (
	defaultMaxConnections = 8
	defaultDebugAddr      = "127.0.0.1:9100"
	defaultQueueSize      = 256
	defaultFlushTimeout   = 3 * time.Second
	defaultCacheKey       = "cattleshed:versions"
	defaultCacheTTL       = 30 * time.Second
)

// Load reads and validates a YAML config document at path.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.System.MaxConnections <= 0 {
		cfg.System.MaxConnections = defaultMaxConnections
	}
	if cfg.System.DebugAddr == "" {
		cfg.System.DebugAddr = defaultDebugAddr
	}
	if cfg.History.Enabled {
		if cfg.History.QueueSize <= 0 {
			cfg.History.QueueSize = defaultQueueSize
		}
		if cfg.History.FlushTimeout <= 0 {
			cfg.History.FlushTimeout = defaultFlushTimeout
		}
		if cfg.History.Topic == "" {
			cfg.History.Topic = "system.history.topic"
		}
		if cfg.History.ConsumerGroup == "" {
			cfg.History.ConsumerGroup = "cattleshed-history"
		}
	}
	if cfg.VersionCache.Enabled {
		if cfg.VersionCache.Key == "" {
			cfg.VersionCache.Key = defaultCacheKey
		}
		if cfg.VersionCache.TTL <= 0 {
			cfg.VersionCache.TTL = defaultCacheTTL
		}
	}
}

func validate(cfg *AppConfig) error {
	if cfg.System.BaseDir == "" {
		return fmt.Errorf("config: system.baseDir is required")
	}
	if cfg.System.StoreDir == "" {
		return fmt.Errorf("config: system.storeDir is required")
	}
	if cfg.System.ListenAddr == "" {
		return fmt.Errorf("config: system.listenAddr is required")
	}
	if len(cfg.Compilers) == 0 {
		return fmt.Errorf("config: at least one compiler must be configured")
	}
	for name, c := range cfg.Compilers {
		if len(c.CompileCommand) == 0 && len(c.RunCommand) == 0 {
			return fmt.Errorf("config: compiler %q has neither compileCommand nor runCommand", name)
		}
		if c.JailName == "" {
			return fmt.Errorf("config: compiler %q has no jailName", name)
		}
		if _, ok := cfg.Jails[c.JailName]; !ok {
			return fmt.Errorf("config: compiler %q references unknown jail %q", name, c.JailName)
		}
		for _, sw := range c.Switches {
			if _, ok := cfg.Switches[sw]; !ok {
				return fmt.Errorf("config: compiler %q references unknown switch %q", name, sw)
			}
		}
	}
	if cfg.History.Enabled && cfg.History.MySQLDSN == "" {
		return fmt.Errorf("config: history.mysqlDSN is required when history.enabled is true")
	}
	if cfg.History.Enabled && len(cfg.History.Brokers) == 0 {
		return fmt.Errorf("config: history.brokers is required when history.enabled is true")
	}
	if cfg.VersionCache.Enabled && cfg.VersionCache.Addr == "" {
		return fmt.Errorf("config: versionCache.addr is required when versionCache.enabled is true")
	}
	return nil
}
