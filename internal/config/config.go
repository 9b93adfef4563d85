// Package config defines the application configuration and its
// defaults. All default values live here so there is a single source
// of truth; loading order (file, env, flags) is handled by the command
// layer.
package config

import (
	"time"

	"github.com/spf13/viper"

	"genqueue/store"
)

const (
	// ConfigName is the base name of the config file (.genqueue.yaml).
	ConfigName = ".genqueue"

	// EnvPrefix namespaces environment variables, e.g. GENQUEUE_SERVER_PORT.
	EnvPrefix = "GENQUEUE"
)

// Config is the root application configuration.
type Config struct {
	Verbose bool         `mapstructure:"verbose"`
	Config  string       `mapstructure:"config"`
	Store   StoreConfig  `mapstructure:"store" validate:"required"`
	Server  ServerConfig `mapstructure:"server" validate:"required"`
	Queue   QueueConfig  `mapstructure:"queue"`
}

// StoreConfig selects and parameterizes the persistence backend.
type StoreConfig struct {
	Driver  string      `mapstructure:"driver" validate:"required,oneof=sqlite bolt redis memory"`
	DataDir string      `mapstructure:"dataDir" validate:"required"`
	Redis   RedisConfig `mapstructure:"redis"`
}

// RedisConfig applies only when the redis driver is selected.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ServerConfig configures the HTTP control surface.
type ServerConfig struct {
	Host string `mapstructure:"host" validate:"required"`
	Port int    `mapstructure:"port" validate:"required,min=1,max=65535"`
}

// QueueConfig tunes the executor and its schedules.
type QueueConfig struct {
	// AutoStart begins consuming tasks as soon as serve comes up.
	AutoStart bool `mapstructure:"autoStart"`

	// IdleTick bounds the worker's poll interval when idle.
	IdleTick time.Duration `mapstructure:"idleTick"`

	// StartCron auto-starts the queue on a cron schedule. Empty
	// disables it.
	StartCron string `mapstructure:"startCron"`

	// PruneCron runs terminal-task retention on a cron schedule.
	PruneCron string `mapstructure:"pruneCron"`

	// Retention is the age past which finished tasks are pruned.
	Retention time.Duration `mapstructure:"retention"`
}

// SetDefaults registers every default on the given viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", string(store.DriverSQLite))
	v.SetDefault("store.dataDir", ".genqueue")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 7865)

	v.SetDefault("queue.autoStart", false)
	v.SetDefault("queue.idleTick", "2s")
	v.SetDefault("queue.startCron", "")
	v.SetDefault("queue.pruneCron", "")
	v.SetDefault("queue.retention", "720h")
}

// StoreConfig converts to the store package's driver config.
func (c *Config) StoreConfig() store.Config {
	return store.Config{
		Driver:        store.Driver(c.Store.Driver),
		DataDir:       c.Store.DataDir,
		RedisAddr:     c.Store.Redis.Addr,
		RedisPassword: c.Store.Redis.Password,
		RedisDB:       c.Store.Redis.DB,
	}
}
