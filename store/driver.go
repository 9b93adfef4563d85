package store

import (
	"fmt"
	"path/filepath"
)

// Driver names a TaskStore backend.
type Driver string

const (
	DriverSQLite Driver = "sqlite"
	DriverBolt   Driver = "bolt"
	DriverRedis  Driver = "redis"
	DriverMemory Driver = "memory"
)

// Config selects and parameterizes a backend.
type Config struct {
	Driver Driver

	// DataDir holds the database file for file-backed drivers.
	DataDir string

	// Redis connection settings, used only by DriverRedis.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Open constructs the TaskStore named by cfg.Driver.
func Open(cfg Config) (TaskStore, error) {
	switch cfg.Driver {
	case DriverSQLite, "":
		return NewSQLiteStore(filepath.Join(cfg.DataDir, "genqueue.db"))
	case DriverBolt:
		return NewBoltStore(filepath.Join(cfg.DataDir, "genqueue.bolt"))
	case DriverRedis:
		return NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	case DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q (supported: sqlite, bolt, redis, memory)", cfg.Driver)
	}
}
