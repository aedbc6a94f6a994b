package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Server  ServerConfig
	Backend BackendConfig
	Redis   RedisConfig
}

type ServerConfig struct {
	Port              string        `env:"PORT" envDefault:"8080"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"30s"`
}

type BackendConfig struct {
	BaseURL        string        `env:"PNEUMOSCAN_API_URL" envDefault:"http://localhost:5000"`
	PredictTimeout time.Duration `env:"PREDICT_TIMEOUT" envDefault:"60s"`
	ChatTimeout    time.Duration `env:"CHAT_TIMEOUT" envDefault:"30s"`
	ReportTimeout  time.Duration `env:"REPORT_TIMEOUT" envDefault:"45s"`
}

type RedisConfig struct {
	Addr     string        `env:"REDIS_HOST" envDefault:"localhost:6379"`
	Password string        `env:"REDIS_PASSWORD"`
	DB       int           `env:"REDIS_DB" envDefault:"0"`
	TTL      time.Duration `env:"REDIS_TTL" envDefault:"1h"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
