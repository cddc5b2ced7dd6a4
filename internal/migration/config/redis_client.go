package config

import (
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "cosmo"

// Prefix returns the key namespace shared by the Redis store and audit
// stream, without a trailing separator.
func (c *RedisConfig) Prefix() string {
	prefix := strings.TrimRight(strings.TrimSpace(c.KeyPrefix), ":")
	if prefix == "" {
		return defaultKeyPrefix
	}
	return prefix
}

// ClientName is what the migrator's connections report in CLIENT LIST.
func (c *RedisConfig) ClientName() string {
	return c.Prefix() + "-migrator"
}

// Options translates c into go-redis options.
func (c *RedisConfig) Options() (*redis.Options, error) {
	idle, err := durationOr(c.ConnMaxIdleTime, 30*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("REDIS_CONN_MAX_IDLE_TIME: %w", err)
	}
	lifetime, err := durationOr(c.ConnMaxLifetime, time.Hour)
	if err != nil {
		return nil, fmt.Errorf("REDIS_CONN_MAX_LIFETIME: %w", err)
	}

	opts := &redis.Options{
		Addr:            c.GetAddr(),
		ClientName:      c.ClientName(),
		Password:        c.Password,
		DB:              c.Database,
		MaxRetries:      c.MaxRetries,
		PoolSize:        c.PoolSize,
		MinIdleConns:    c.MinIdleConns,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
		ConnMaxIdleTime: idle,
		ConnMaxLifetime: lifetime,
	}
	if c.EnableTLS {
		opts.TLSConfig = &tls.Config{ServerName: c.Host, MinVersion: tls.VersionTLS12}
	}
	return opts, nil
}

func durationOr(value string, fallback time.Duration) (time.Duration, error) {
	if strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	return time.ParseDuration(value)
}

// NewRedisClient opens a client for cfg. The connection is established lazily.
func NewRedisClient(cfg *RedisConfig) (*redis.Client, error) {
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}

// DefaultRedisConfig matches the env defaults; tests start from it.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Host:            "localhost",
		Port:            "6379",
		MaxRetries:      3,
		PoolSize:        10,
		MinIdleConns:    2,
		ConnMaxIdleTime: "30m",
		ConnMaxLifetime: "1h",
		KeyPrefix:       defaultKeyPrefix,
		StreamMaxLength: 10000,
	}
}
