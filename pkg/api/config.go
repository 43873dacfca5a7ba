package api

import (
	"runtime"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// ServerConfig holds server configuration. Fields are populated from
// TURNROUTER_* environment variables and may be overridden by flags.
type ServerConfig struct {
	Addr          string        `envconfig:"ADDR" default:":8080"`
	MetricsAddr   string        `envconfig:"METRICS_ADDR" default:":9090"`
	ReadTimeout   time.Duration `envconfig:"READ_TIMEOUT" default:"5s"`
	WriteTimeout  time.Duration `envconfig:"WRITE_TIMEOUT" default:"5s"`
	RouteTimeout  time.Duration `envconfig:"ROUTE_TIMEOUT" default:"5s"`
	MaxConcurrent int           `envconfig:"MAX_CONCURRENT"`
	CORSOrigin    string        `envconfig:"CORS_ORIGIN"`
}

// LoadConfig reads configuration from the environment.
func LoadConfig() (ServerConfig, error) {
	var cfg ServerConfig
	if err := envconfig.Process("turnrouter", &cfg); err != nil {
		return ServerConfig{}, err
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = runtime.NumCPU() * 2
	}
	return cfg, nil
}
