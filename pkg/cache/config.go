package cache

import "time"

// RedisConfig configures NewRedisCache. Zero fields fall back to their
// default tag.
type RedisConfig struct {
	Host         string `default:"localhost"`
	Port         int    `default:"6379"`
	Password     string
	DB           int
	PoolSize     int           `default:"10"`
	MinIdleConns int           `default:"2"`
	PoolTimeout  time.Duration `default:"30s"`
	DialTimeout  time.Duration `default:"5s"`
	Prefix       string        `default:"plantdex"`
}

// LayeredConfig sizes the in-process layer of a LayeredCache.
type LayeredConfig struct {
	LocalSize int           `default:"1000"`
	LocalTTL  time.Duration `default:"5s"`
}
