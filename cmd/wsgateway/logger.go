package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// newLogger monta o logger JSON de produção. Com log.file configurado, também
// grava em arquivo com rotação (lumberjack).
func newLogger(cfg logConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.level, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	enc := zapcore.NewJSONEncoder(encCfg)

	cores := []zapcore.Core{zapcore.NewCore(enc, zapcore.Lock(os.Stderr), level)}
	if cfg.file != "" {
		w := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.file,
			MaxSize:    cfg.maxSizeMB,
			MaxBackups: cfg.maxBackups,
			MaxAge:     cfg.maxAgeDays,
			Compress:   true,
		})
		cores = append(cores, zapcore.NewCore(enc, w, level))
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}
