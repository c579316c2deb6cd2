package main

import (
	"log"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// newLogger builds the production logger. With LOG_FILE set, entries are
// also written as JSON to a size-rotated file.
func newLogger(cfg Config) (*zap.Logger, error) {
	config := zap.NewProductionConfig()

	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		log.Printf("invalid log level %q, defaulting to info: %v", cfg.LogLevel, err)
		zapLevel = zapcore.InfoLevel
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)

	logger, err := config.Build(zap.AddCaller())
	if err != nil {
		return nil, err
	}
	if cfg.LogFile == "" {
		return logger, nil
	}

	file := zapcore.NewCore(
		zapcore.NewJSONEncoder(config.EncoderConfig),
		zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogFileMaxSizeMB,
			MaxBackups: cfg.LogFileBackups,
			Compress:   true,
		}),
		config.Level,
	)
	return logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, file)
	})), nil
}
