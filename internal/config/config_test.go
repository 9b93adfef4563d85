package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"

	"genqueue/models"
	"genqueue/store"
)

func TestDefaultsProduceValidConfig(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		t.Fatalf("unmarshal defaults: %v", err)
	}
	if err := models.ValidateStruct(&cfg); err != nil {
		t.Fatalf("defaults failed validation: %v", err)
	}

	if cfg.Store.Driver != string(store.DriverSQLite) {
		t.Errorf("default driver = %q, want sqlite", cfg.Store.Driver)
	}
	if cfg.Server.Port != 7865 {
		t.Errorf("default port = %d, want 7865", cfg.Server.Port)
	}
	if cfg.Queue.IdleTick != 2*time.Second {
		t.Errorf("default idle tick = %v, want 2s", cfg.Queue.IdleTick)
	}
	if cfg.Queue.Retention != 720*time.Hour {
		t.Errorf("default retention = %v, want 720h", cfg.Queue.Retention)
	}
}

func TestStoreConfigConversion(t *testing.T) {
	cfg := Config{
		Store: StoreConfig{
			Driver:  "redis",
			DataDir: "/tmp/q",
			Redis:   RedisConfig{Addr: "redis:6379", Password: "s", DB: 3},
		},
	}

	sc := cfg.StoreConfig()
	if sc.Driver != store.DriverRedis {
		t.Errorf("driver = %q, want redis", sc.Driver)
	}
	if sc.DataDir != "/tmp/q" || sc.RedisAddr != "redis:6379" || sc.RedisPassword != "s" || sc.RedisDB != 3 {
		t.Errorf("unexpected store config: %+v", sc)
	}
}
