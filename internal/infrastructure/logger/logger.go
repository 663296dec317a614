package logger

import (
	"fmt"

	"paytransfer/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log 全局日志实例，Init 之前为 no-op，测试中可直接使用
var Log = zap.NewNop()

// Init 根据配置初始化日志
func Init(cfg *config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("日志级别不合法: %w", err)
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	l, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}

	Log = l
	return l, nil
}

// Named 返回带组件名的子日志
func Named(component string) *zap.Logger {
	return Log.With(zap.String("component", component))
}

func Sync() {
	_ = Log.Sync()
}
