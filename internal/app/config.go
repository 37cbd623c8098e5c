package app

import (
	"github.com/yungbote/deepdive-backend/internal/platform/envutil"
	"github.com/yungbote/deepdive-backend/internal/platform/logger"
)

type Config struct {
	HTTPAddr    string
	SessionsDir string
	ServiceName string
	Environment string

	TracingEnabled bool
	RedisEnabled   bool
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		HTTPAddr:       envutil.Str("HTTP_ADDR", ":8080"),
		SessionsDir:    envutil.Str("SESSIONS_DIR", "sessions"),
		ServiceName:    envutil.Str("SERVICE_NAME", "deepdive-backend"),
		Environment:    envutil.Str("ENVIRONMENT", "development"),
		TracingEnabled: envutil.Bool("OTEL_ENABLED", false),
		RedisEnabled:   envutil.Str("REDIS_ADDR", "") != "",
	}
	log.Info("Loaded configuration",
		"httpAddr", cfg.HTTPAddr,
		"sessionsDir", cfg.SessionsDir,
		"tracing", cfg.TracingEnabled,
		"redis", cfg.RedisEnabled,
	)
	return cfg
}
