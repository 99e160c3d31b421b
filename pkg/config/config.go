package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"modelmine/pkg/constants"

	"gopkg.in/yaml.v3"
)

var GlobalConfig *Config

// Config global configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Redis        RedisConfig        `yaml:"redis"`
	MySQL        MySQLConfig        `yaml:"mysql"`
	Store        StoreConfig        `yaml:"store"`
	Queue        QueueConfig        `yaml:"queue"`
	Execution    ExecutionConfig    `yaml:"execution"`
	Node         NodeConfig         `yaml:"node"`
	Token        TokenConfig        `yaml:"token"`
	Ledger       LedgerConfig       `yaml:"ledger"`
	Logger       LoggerConfig       `yaml:"logger"`
	Notification NotificationConfig `yaml:"notification"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Port   int    `yaml:"port"`
	Mode   string `yaml:"mode"`    // debug, release
	APIKey string `yaml:"api_key"` // API key for node and admin routes (optional, if empty, auth is disabled)
}

// RedisConfig Redis configuration
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"` // enables cross-replica progress relay and the ledger lock
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MySQLConfig MySQL configuration
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// StoreConfig store backend selection
type StoreConfig struct {
	Backend string `yaml:"backend"` // memory, mysql
}

// QueueConfig queue configuration
type QueueConfig struct {
	Provider    string `yaml:"provider"`    // memory, asynq
	Concurrency int    `yaml:"concurrency"` // worker pool size
}

// ExecutionConfig simulated workload configuration
type ExecutionConfig struct {
	TotalSteps     int `yaml:"total_steps"`
	StepIntervalMs int `yaml:"step_interval_ms"` // pause per step
	StepTimeoutMs  int `yaml:"step_timeout_ms"`  // per-step deadline, 0 disables
}

// NodeConfig node liveness configuration
type NodeConfig struct {
	LivenessWindow int `yaml:"liveness_window_seconds"`
	PendingGrace   int `yaml:"pending_grace_seconds"` // age after which a PENDING job is re-enqueued
}

// TokenConfig escrow configuration
type TokenConfig struct {
	BootstrapGrant int64 `yaml:"bootstrap_grant"`
	RewardPercent  int64 `yaml:"reward_percent"`
	DefaultStake   int64 `yaml:"default_stake"`
}

// LedgerConfig audit ledger configuration
type LedgerConfig struct {
	LockKey string `yaml:"lock_key"` // Redis key guarding appends across replicas
}

// NotificationConfig operator alarm configuration
type NotificationConfig struct {
	FeishuWebhookURL string `yaml:"feishu_webhook_url"` // empty disables alarms
}

// LoggerConfig logger configuration
type LoggerConfig struct {
	Level  string           `yaml:"level"`  // debug, info, warn, error
	Output string           `yaml:"output"` // console, file, both
	File   LoggerFileConfig `yaml:"file"`
}

// LoggerFileConfig logger file configuration
type LoggerFileConfig struct {
	Path string `yaml:"path"`
}

// StepInterval returns the per-step pause.
func (c ExecutionConfig) StepInterval() time.Duration {
	return time.Duration(c.StepIntervalMs) * time.Millisecond
}

// StepTimeout returns the per-step deadline, zero when disabled.
func (c ExecutionConfig) StepTimeout() time.Duration {
	return time.Duration(c.StepTimeoutMs) * time.Millisecond
}

// Window returns the liveness window.
func (c NodeConfig) Window() time.Duration {
	return time.Duration(c.LivenessWindow) * time.Second
}

// Grace returns the pending-job recovery grace period.
func (c NodeConfig) Grace() time.Duration {
	return time.Duration(c.PendingGrace) * time.Second
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Init initializes configuration
func Init() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	cfg, err := Load(configPath)
	if err != nil {
		return err
	}

	GlobalConfig = cfg
	return nil
}

// Load reads the YAML file at path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("MYSQL_HOST"); v != "" {
		cfg.MySQL.Host = v
	}
	if v := os.Getenv("API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("FEISHU_WEBHOOK_URL"); v != "" {
		cfg.Notification.FeishuWebhookURL = v
	}
}

// applyDefaults replaces zero or invalid values with defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		cfg.Server.Port = 4000
	}
	if cfg.Server.Mode != "debug" && cfg.Server.Mode != "release" && cfg.Server.Mode != "test" {
		cfg.Server.Mode = "release"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.MySQL.Port <= 0 {
		cfg.MySQL.Port = 3306
	}
	if cfg.Store.Backend != "mysql" {
		cfg.Store.Backend = "memory"
	}
	if cfg.Queue.Provider != "asynq" {
		cfg.Queue.Provider = "memory"
	}
	if cfg.Queue.Concurrency <= 0 {
		cfg.Queue.Concurrency = 5
	}
	if cfg.Execution.TotalSteps <= 0 {
		cfg.Execution.TotalSteps = constants.DefaultTotalSteps
	}
	if cfg.Execution.StepIntervalMs < 0 {
		cfg.Execution.StepIntervalMs = 0
	} else if cfg.Execution.StepIntervalMs == 0 {
		cfg.Execution.StepIntervalMs = 1000
	}
	if cfg.Execution.StepTimeoutMs < 0 {
		cfg.Execution.StepTimeoutMs = 0
	}
	if cfg.Node.LivenessWindow <= 0 {
		cfg.Node.LivenessWindow = int(constants.DefaultLivenessWindow / time.Second)
	}
	if cfg.Node.PendingGrace <= 0 {
		cfg.Node.PendingGrace = 60
	}
	if cfg.Token.BootstrapGrant < 0 {
		cfg.Token.BootstrapGrant = 0
	} else if cfg.Token.BootstrapGrant == 0 {
		cfg.Token.BootstrapGrant = constants.DefaultBootstrapGrant
	}
	if cfg.Token.RewardPercent <= 0 || cfg.Token.RewardPercent > 100 {
		cfg.Token.RewardPercent = constants.DefaultRewardPercent
	}
	if cfg.Token.DefaultStake <= 0 {
		cfg.Token.DefaultStake = constants.DefaultStake
	}
	if cfg.Ledger.LockKey == "" {
		cfg.Ledger.LockKey = "ledger:append-lock"
	}
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Logger.Output == "" {
		cfg.Logger.Output = "console"
	}
	if cfg.Logger.File.Path == "" {
		cfg.Logger.File.Path = "logs/modelmine.log"
	}
}
