// Package svcconfig loads the service's Config from a YAML file merged with
// environment variables, following the donor project's viper-based
// configuration pattern (internal/labelmutex/policy.go, cmd/bd/config.go).
package svcconfig

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// StorageConfig configures the relational store (Dolt over the MySQL wire
// protocol).
type StorageConfig struct {
	// DSN for the read-write pool, e.g. "root:@tcp(127.0.0.1:3307)/timeline".
	ReadWriteDSN string `mapstructure:"read_write_dsn"`
	// DSN for the read-only pool. Defaults to ReadWriteDSN when empty.
	ReadOnlyDSN string `mapstructure:"read_only_dsn"`

	MaxOpenConnsReadWrite int `mapstructure:"max_open_conns_read_write"`
	MaxOpenConnsReadOnly  int `mapstructure:"max_open_conns_read_only"`
}

// NATSConfig configures the embedded broadcast bus.
type NATSConfig struct {
	Port     int    `mapstructure:"port"`
	StoreDir string `mapstructure:"store_dir"`
	Token    string `mapstructure:"token"`
}

// VacuumConfig holds the per-deployment defaults for vacuum policy; a room
// may not override these in this implementation (the distilled spec leaves
// the override surface to the implementer, and the donor's own config
// system has no per-entity override mechanism either).
type VacuumConfig struct {
	MaxHistorySize      int           `mapstructure:"max_history_size"`
	MaxHistoryLifetime   time.Duration `mapstructure:"max_history_lifetime"`
	MaxDeletedLifetime   time.Duration `mapstructure:"max_deleted_lifetime"`
	Interval             time.Duration `mapstructure:"interval"`
}

// Config is the service's root configuration.
type Config struct {
	ServiceID string        `mapstructure:"service_id"`
	Storage   StorageConfig `mapstructure:"storage"`
	NATS      NATSConfig    `mapstructure:"nats"`
	Vacuum    VacuumConfig  `mapstructure:"vacuum"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("service_id", "timeline")
	v.SetDefault("storage.max_open_conns_read_write", 8)
	v.SetDefault("storage.max_open_conns_read_only", 16)
	v.SetDefault("nats.port", 4222)
	v.SetDefault("nats.store_dir", "./.timeline/nats")
	v.SetDefault("vacuum.max_history_size", 10)
	v.SetDefault("vacuum.max_history_lifetime", "1h")
	v.SetDefault("vacuum.max_deleted_lifetime", "720h")
	v.SetDefault("vacuum.interval", "5m")
}

// Load reads Config from path (a YAML file) merged with TIMELINE_-prefixed
// environment variables, mirroring the donor's viper.New()+SetConfigFile
// pattern in internal/labelmutex/policy.go. An empty path loads defaults
// plus environment overrides only.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TIMELINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	defaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if cfg.Storage.ReadOnlyDSN == "" {
		cfg.Storage.ReadOnlyDSN = cfg.Storage.ReadWriteDSN
	}
	return &cfg, nil
}

// WatchReload re-reads cfg's backing file whenever it changes on disk and
// invokes onChange with the freshly loaded Config. Mirrors the donor's use
// of fsnotify for config hot-reload; a Load error is passed to onChange
// along with a nil Config. The watcher's Errors channel is not read.
func WatchReload(path string, onChange func(*Config, error)) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	go func() {
		for event := range watcher.Events {
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(path)
			onChange(cfg, err)
		}
	}()
	return watcher, nil
}
