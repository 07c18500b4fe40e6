package logger

import (
	"github.com/quotabl/quotabl/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("logger",
	fx.Provide(func(cfg config.Config) (*zap.Logger, error) {
		log, err := New(cfg.LogLevel)
		if err != nil {
			return nil, err
		}
		return log.With(
			zap.String("service", cfg.AppName),
			zap.String("version", cfg.AppVersion),
		), nil
	}),
)
