package di

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-method-cache/cache"
	"github.com/sethvargo/go-envconfig"
)

// EnvConfig is the environment form of the container configuration.
type EnvConfig struct {
	Backend            string        `env:"METHODCACHE_BACKEND, default=sturdyc"`
	Capacity           int           `env:"METHODCACHE_CAPACITY, default=10000"`
	NumShards          int           `env:"METHODCACHE_NUM_SHARDS, default=256"`
	TTL                time.Duration `env:"METHODCACHE_TTL, default=30m"`
	EvictionPercentage int           `env:"METHODCACHE_EVICTION_PERCENTAGE, default=10"`
	EvictionInterval   time.Duration `env:"METHODCACHE_EVICTION_INTERVAL"`
	Instrumented       bool          `env:"METHODCACHE_INSTRUMENTED, default=false"`

	// Namespace prefixes every key.
	Namespace string `env:"METHODCACHE_NAMESPACE"`
	// HashKeys replaces argument segments with their xxhash digest.
	HashKeys bool `env:"METHODCACHE_HASH_KEYS, default=false"`
	// CopyOnRead hands out deep copies of cached values.
	CopyOnRead bool `env:"METHODCACHE_COPY_ON_READ, default=true"`
	// PolicyFile is an optional YAML policy loaded at startup.
	PolicyFile string `env:"METHODCACHE_POLICY_FILE"`
}

// LoadEnvConfig reads EnvConfig from the process environment.
func LoadEnvConfig(ctx context.Context) (EnvConfig, error) {
	return LoadEnvConfigWith(ctx, envconfig.OsLookuper())
}

// LoadEnvConfigWith reads EnvConfig through lookuper.
func LoadEnvConfigWith(ctx context.Context, lookuper envconfig.Lookuper) (EnvConfig, error) {
	var cfg EnvConfig
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return EnvConfig{}, fmt.Errorf("process environment: %w", err)
	}
	return cfg, nil
}

// StoreConfig converts the environment settings into a store Config.
func (e EnvConfig) StoreConfig() cache.Config {
	return cache.Config{
		Backend:            e.Backend,
		Capacity:           e.Capacity,
		NumShards:          e.NumShards,
		TTL:                e.TTL,
		EvictionPercentage: e.EvictionPercentage,
		EvictionInterval:   e.EvictionInterval,
		Instrumented:       e.Instrumented,
	}
}
