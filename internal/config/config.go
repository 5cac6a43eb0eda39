package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cabinet/internal/conflict"
	"cabinet/internal/merge"
	"cabinet/internal/policy"
	"cabinet/internal/syncer"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type Config struct {
	Workers       int                          `mapstructure:"workers"`
	RenameLimit   int                          `mapstructure:"rename_limit"`
	ModTimeWindow time.Duration                `mapstructure:"mtime_window"`
	DBPath        string                       `mapstructure:"db_path"`
	DaemonPort    int                          `mapstructure:"daemon_port"`
	BufferSize    int                          `mapstructure:"buffer_size"`
	Debounce      time.Duration                `mapstructure:"debounce"`
	IgnoreList    []string                     `mapstructure:"ignore_list"`
	LockDir       string                       `mapstructure:"lock_dir"`
	Presets       map[string]policy.SyncPolicy `mapstructure:"presets"`

	// Dir is the directory holding the config file, database and locks.
	Dir string `mapstructure:"-"`
}

var Default = Config{
	Workers:     merge.DefaultWorkers,
	RenameLimit: conflict.DefaultRenameLimit,
	DaemonPort:  9101,
	BufferSize:  256,
	Debounce:    2 * time.Second,
	IgnoreList:  []string{".DS_Store", "Thumbs.db", "desktop.ini", "*.cabinet.tmp", "*.part"},
}

// Load reads file, or ~/.cabinet/config.yaml when file is empty. A missing
// default file is not an error. CABINET_* environment variables override
// both.
func Load(file string) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home dir: %w", err)
	}

	configDir := filepath.Join(home, ".cabinet")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config dir: %w", err)
	}

	v := viper.New()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(configDir)
	}

	v.SetDefault("workers", Default.Workers)
	v.SetDefault("rename_limit", Default.RenameLimit)
	v.SetDefault("mtime_window", Default.ModTimeWindow)
	v.SetDefault("db_path", filepath.Join(configDir, "cabinet.db"))
	v.SetDefault("daemon_port", Default.DaemonPort)
	v.SetDefault("buffer_size", Default.BufferSize)
	v.SetDefault("debounce", Default.Debounce)
	v.SetDefault("ignore_list", Default.IgnoreList)
	v.SetDefault("lock_dir", filepath.Join(configDir, "locks"))

	v.SetEnvPrefix("CABINET")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := errors.AsType[viper.ConfigFileNotFoundError](err); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Dir = configDir

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.RenameLimit <= 0 {
		return fmt.Errorf("rename_limit must be positive, got %d", c.RenameLimit)
	}
	if c.ModTimeWindow < 0 {
		return fmt.Errorf("mtime_window must not be negative, got %s", c.ModTimeWindow)
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("buffer_size must be positive, got %d", c.BufferSize)
	}

	for name := range c.Presets {
		if _, err := policy.SyncPreset(name, c.Presets); err != nil {
			return err
		}
	}

	return nil
}

func (c *Config) MergeOptions(log *zap.Logger) merge.Options {
	return merge.Options{
		Workers:     c.Workers,
		RenameLimit: c.RenameLimit,
		Logger:      log,
	}
}

func (c *Config) SyncOptions(log *zap.Logger) syncer.Options {
	return syncer.Options{
		ModTimeWindow: c.ModTimeWindow,
		Logger:        log,
	}
}

// SyncPreset resolves name against the presets of this config and the
// built-in ones.
func (c *Config) SyncPreset(name string) (policy.SyncPolicy, error) {
	return policy.SyncPreset(name, c.Presets)
}
