package bootstrap

import (
	"market_maker/internal/core"
	"market_maker/pkg/logging"
)

// InitLogger builds the zap-backed core.ILogger at the level named in
// cfg.System.LogLevel.
func InitLogger(cfg *Config) (core.ILogger, error) {
	logger, err := logging.NewZapLogger(cfg.System.LogLevel)
	if err != nil {
		return nil, err
	}
	return logger, nil
}
