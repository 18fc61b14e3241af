package main

import (
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"
)

// Config is the process configuration read from the environment.
type Config struct {
	Port       string        `env:"PORT" envDefault:"5001"`
	DBFile     string        `env:"DB_FILE" envDefault:"100day_challenge.db"`
	RedisConn  string        `env:"REDIS_CONNECTION_STRING"`
	CacheTTL   time.Duration `env:"CACHE_TTL" envDefault:"5m"`
	Debug      bool          `env:"DEBUG"`
	Deployment string        `env:"FLASK_ENV"`
}

func loadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.DBFile == "" {
		return Config{}, errors.New("DB_FILE must not be empty")
	}
	if cfg.Port == "" {
		return Config{}, errors.New("PORT must not be empty")
	}
	if cfg.CacheTTL <= 0 {
		return Config{}, fmt.Errorf("invalid CACHE_TTL %s: must be greater than zero", cfg.CacheTTL)
	}
	return cfg, nil
}

// DebugEnabled reports whether debug logging was requested by either flag.
func (c Config) DebugEnabled() bool {
	return c.Debug || strings.EqualFold(c.Deployment, "development")
}

// redisOptions accepts a redis:// URL or an Azure style
// "host:port,password=...,ssl=true" connection string.
func redisOptions(conn string) *redis.Options {
	opts, err := redis.ParseURL(conn)
	if err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts = &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(kv[1], "true") {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}
