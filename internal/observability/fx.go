package observability

import (
	"github.com/pillstack/backoffice/internal/config"
	"github.com/pillstack/backoffice/internal/observability/logger"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		provideLoggerConfig,
		logger.New,
	),
)

func provideLoggerConfig(cfg config.Config) logger.Config {
	return logger.Config{
		ServiceName: cfg.AppName,
		Environment: cfg.Environment,
		Version:     cfg.AppVersion,
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		Debug:       cfg.IsDev(),
	}
}
