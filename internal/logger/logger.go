package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is replaced by Init; until then every call is a no-op.
var Log = zap.NewNop()

func Init(debug bool) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.DisableStacktrace = true

	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		cfg.Development = true
		cfg.DisableCaller = false
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		cfg.DisableCaller = true
	}

	l, err := cfg.Build()
	if err != nil {
		Log = zap.NewExample()
		Log.Warn("failed to build logger, falling back to example logger", zap.Error(err))
		return
	}

	Log = l
}

func Sync() {
	_ = Log.Sync()
}
