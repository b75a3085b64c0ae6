package log

import (
	"fmt"
	"strings"

	conf "github.com/888wing/sixarms-landing/internal/conf/v1"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Module 提供 *zap.Logger
var Module = fx.Module("logger",
	fx.Provide(NewLogger),
)

// NewLogger 根据配置创建 zap 日志器，format 为 console 时使用开发模式输出
func NewLogger(lc fx.Lifecycle, cfg *conf.Bootstrap, serviceName string) (*zap.Logger, error) {
	logCfg := cfg.Log
	if logCfg == nil {
		logCfg = &conf.Log{}
	}

	level, err := parseLevel(logCfg.Level)
	if err != nil {
		return nil, err
	}

	var zc zap.Config
	if strings.EqualFold(logCfg.Format, "console") {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.TimeKey = "ts"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	logger, err := zc.Build(zap.Fields(zap.String("service", serviceName)))
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	lc.Append(fx.StopHook(func() {
		// stdout/stderr 上的 Sync 可能返回 EINVAL，忽略
		_ = logger.Sync()
	}))

	return logger, nil
}

func parseLevel(s string) (zapcore.Level, error) {
	if s == "" {
		return zapcore.InfoLevel, nil
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return level, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}
