package model

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// AccountConfig describes one warmup account. Secret may be left empty,
// in which case it is resolved from the system keyring under the account
// id. IMAP/SMTP endpoints may be left empty and auto-detected from the
// email domain.
type AccountConfig struct {
	ID       string `mapstructure:"id" yaml:"id"`
	Email    string `mapstructure:"email" yaml:"email"`
	Secret   string `mapstructure:"secret" yaml:"secret"`
	IMAPHost string `mapstructure:"imap_host" yaml:"imap_host"`
	IMAPPort string `mapstructure:"imap_port" yaml:"imap_port"`
	SMTPHost string `mapstructure:"smtp_host" yaml:"smtp_host"`
	SMTPPort string `mapstructure:"smtp_port" yaml:"smtp_port"`
	IMAPTLS  bool   `mapstructure:"imap_tls" yaml:"imap_tls"`
	SMTPTLS  bool   `mapstructure:"smtp_tls" yaml:"smtp_tls"`
}

// PoolConfig controls the shared connection pool.
type PoolConfig struct {
	MaxConnections int           `mapstructure:"max_connections" yaml:"max_connections"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	EvictInterval  time.Duration `mapstructure:"evict_interval" yaml:"evict_interval"`
}

// QueueConfig controls the outbound send queue.
type QueueConfig struct {
	TickInterval   time.Duration   `mapstructure:"tick_interval" yaml:"tick_interval"`
	MaxPerWindow   int             `mapstructure:"max_per_window" yaml:"max_per_window"`
	WindowDuration time.Duration   `mapstructure:"window_duration" yaml:"window_duration"`
	MaxConcurrent  int             `mapstructure:"max_concurrent" yaml:"max_concurrent"`
	MaxAttempts    int             `mapstructure:"max_attempts" yaml:"max_attempts"`
	RetryDelays    []time.Duration `mapstructure:"retry_delays" yaml:"retry_delays"`
}

// MonitorConfig controls per-account mailbox monitors.
type MonitorConfig struct {
	Mailbox           string        `mapstructure:"mailbox" yaml:"mailbox"`
	PollInterval      time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	ReconnectInterval time.Duration `mapstructure:"reconnect_interval" yaml:"reconnect_interval"`
}

// LoggingConfig controls the slog handler installed at startup.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Config is the top-level engine configuration.
type Config struct {
	Accounts    []AccountConfig `mapstructure:"accounts" yaml:"accounts"`
	Pool        PoolConfig      `mapstructure:"pool" yaml:"pool"`
	Queue       QueueConfig     `mapstructure:"queue" yaml:"queue"`
	Monitor     MonitorConfig   `mapstructure:"monitor" yaml:"monitor"`
	CrossSend   CrossSendConfig `mapstructure:"cross_send" yaml:"cross_send"`
	Logging     LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	StorePath   string          `mapstructure:"store_path" yaml:"store_path"`
	MetricsAddr string          `mapstructure:"metrics_addr" yaml:"metrics_addr"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/warmup/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "warmup", "config.yaml")
}

// DefaultConfig returns the engine defaults used when keys are absent
// from the configuration file.
func DefaultConfig() *Config {
	return &Config{
		Pool: PoolConfig{
			MaxConnections: 10,
			IdleTimeout:    5 * time.Minute,
			EvictInterval:  time.Minute,
		},
		Queue: QueueConfig{
			TickInterval:   time.Second,
			MaxPerWindow:   30,
			WindowDuration: time.Hour,
			MaxConcurrent:  5,
			MaxAttempts:    3,
			RetryDelays: []time.Duration{
				30 * time.Second,
				2 * time.Minute,
				5 * time.Minute,
			},
		},
		Monitor: MonitorConfig{
			Mailbox:           "INBOX",
			PollInterval:      30 * time.Second,
			ReconnectInterval: time.Minute,
		},
		CrossSend: CrossSendConfig{
			Strategy:      StrategySequential,
			BatchSize:     5,
			SendDelay:     30 * time.Second,
			MaxConcurrent: 5,
			MaxAttempts:   3,
			Priority:      5,
			CollectStats:  true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		StorePath: filepath.Join(".", "warmup.db"),
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// Missing keys resolve to the engine defaults; a missing file returns the
// defaults unchanged.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	defaults := DefaultConfig()
	v.SetDefault("pool.max_connections", defaults.Pool.MaxConnections)
	v.SetDefault("pool.idle_timeout", defaults.Pool.IdleTimeout)
	v.SetDefault("pool.evict_interval", defaults.Pool.EvictInterval)
	v.SetDefault("queue.tick_interval", defaults.Queue.TickInterval)
	v.SetDefault("queue.max_per_window", defaults.Queue.MaxPerWindow)
	v.SetDefault("queue.window_duration", defaults.Queue.WindowDuration)
	v.SetDefault("queue.max_concurrent", defaults.Queue.MaxConcurrent)
	v.SetDefault("queue.max_attempts", defaults.Queue.MaxAttempts)
	v.SetDefault("monitor.mailbox", defaults.Monitor.Mailbox)
	v.SetDefault("monitor.poll_interval", defaults.Monitor.PollInterval)
	v.SetDefault("monitor.reconnect_interval", defaults.Monitor.ReconnectInterval)
	v.SetDefault("cross_send.strategy", string(defaults.CrossSend.Strategy))
	v.SetDefault("cross_send.batch_size", defaults.CrossSend.BatchSize)
	v.SetDefault("cross_send.send_delay", defaults.CrossSend.SendDelay)
	v.SetDefault("cross_send.max_concurrent", defaults.CrossSend.MaxConcurrent)
	v.SetDefault("cross_send.max_attempts", defaults.CrossSend.MaxAttempts)
	v.SetDefault("cross_send.priority", defaults.CrossSend.Priority)
	v.SetDefault("cross_send.collect_stats", defaults.CrossSend.CollectStats)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)
	v.SetDefault("store_path", defaults.StorePath)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaults, nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaults, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if len(cfg.Queue.RetryDelays) == 0 {
		cfg.Queue.RetryDelays = defaults.Queue.RetryDelays
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("accounts", cfg.Accounts)
	v.Set("pool", cfg.Pool)
	v.Set("queue", cfg.Queue)
	v.Set("monitor", cfg.Monitor)
	v.Set("cross_send", cfg.CrossSend)
	v.Set("logging", cfg.Logging)
	v.Set("store_path", cfg.StorePath)
	v.Set("metrics_addr", cfg.MetricsAddr)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
