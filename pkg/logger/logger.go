package logger

import (
	"os"

	"toeic_backend/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log 在 InitLogger 之前为 Nop，避免测试或脚本中出现空指针
var Log = zap.NewNop()

// level 文件与控制台共用，配置热更新时直接调整
var level = zap.NewAtomicLevelAt(zap.InfoLevel)

// levelFor log.level 为空时按运行模式决定，debug 模式输出调试日志
func levelFor(cfg *config.Config) zapcore.Level {
	if cfg.Log.Level != "" {
		if l, err := zapcore.ParseLevel(cfg.Log.Level); err == nil {
			return l
		}
	}
	if cfg.Server.Mode == "debug" {
		return zap.DebugLevel
	}
	return zap.InfoLevel
}

func newCore(cfg *config.Config) zapcore.Core {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeDuration = zapcore.SecondsDurationEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(os.Stdout), level),
	}
	if cfg.Log.File != "" {
		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    cfg.Log.MaxSize,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAge:     cfg.Log.MaxAge,
			Compress:   true,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), fileWriter, level))
	}
	return zapcore.NewTee(cores...)
}

func InitLogger(cfg *config.Config) {
	level.SetLevel(levelFor(cfg))
	Log = zap.New(newCore(cfg), zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel)).
		With(zap.String("service", "toeic_backend"))
}

// SetLevel 配置文件变更后调整日志级别，无需重建 logger
func SetLevel(cfg *config.Config) {
	l := levelFor(cfg)
	if l != level.Level() {
		level.SetLevel(l)
		Log.Info("Log level changed", zap.String("level", l.String()))
	}
}

// Level 当前生效的日志级别
func Level() zapcore.Level {
	return level.Level()
}
