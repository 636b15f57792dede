package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	EnvLocal       = "local"
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// New builds a JSON logger. Local and development environments get the
// development profile and debug level; anything else gets the production
// profile and info level. A non-empty level overrides the default.
func New(env, level string) (*zap.Logger, error) {
	cfg := configFor(env)

	lvl, err := resolveLevel(env, level)
	if err != nil {
		return nil, err
	}
	cfg.Level = lvl
	cfg.DisableStacktrace = true

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger.With(zap.String("service", "warikanbot")), nil
}

func isDev(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "", EnvLocal, EnvDevelopment:
		return true
	}
	return false
}

func resolveLevel(env, level string) (zap.AtomicLevel, error) {
	if strings.TrimSpace(level) != "" {
		var parsed zapcore.Level
		if err := parsed.Set(strings.TrimSpace(level)); err != nil {
			return zap.AtomicLevel{}, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		return zap.NewAtomicLevelAt(parsed), nil
	}
	if isDev(env) {
		return zap.NewAtomicLevelAt(zapcore.DebugLevel), nil
	}
	return zap.NewAtomicLevelAt(zapcore.InfoLevel), nil
}

func configFor(env string) zap.Config {
	var cfg zap.Config
	if isDev(env) {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Encoding = "json"
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg
}
