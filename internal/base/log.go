package base

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger   *zap.Logger
	logOnce  sync.Once
	nopGuard = zap.NewNop()
)

// InitLog builds the process logger. Stdout always gets JSON lines; when
// path is non-empty a rotated file core is teed in.
func InitLog(level, path string) {
	logOnce.Do(func() {
		var lvl zapcore.Level
		switch level {
		case "debug":
			lvl = zapcore.DebugLevel
		case "warn":
			lvl = zapcore.WarnLevel
		case "error":
			lvl = zapcore.ErrorLevel
		default:
			lvl = zapcore.InfoLevel
		}

		encCfg := zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			MessageKey:     "msg",
			CallerKey:      "caller",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.RFC3339TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		}

		core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(os.Stdout), lvl)
		if path != "" {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err == nil {
				w := zapcore.AddSync(&lumberjack.Logger{
					Filename:   path,
					MaxSize:    64, // MB
					MaxBackups: 4,
					MaxAge:     14, // days
				})
				core = zapcore.NewTee(core, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), w, lvl))
			}
		}

		logger = zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	})
}

// Log returns the process logger, or a nop logger before InitLog runs so
// library code can log unconditionally in tests.
func Log() *zap.Logger {
	if logger == nil {
		return nopGuard
	}
	return logger
}
