package monitoring

import (
	"log"
	"os"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf and
// is switched to zap by Init. Tests or production code can redirect or mute
// it with SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

var base atomic.Pointer[zap.Logger]

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Init builds the process logger writing console formatted lines to w at
// the named level ("debug", "info", "warn", "error"). An unknown level
// falls back to info. Logf is redirected to the new logger.
func Init(level string, w zapcore.WriteSyncer) *zap.Logger {
	lvl := zap.NewAtomicLevel()
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl.SetLevel(zap.InfoLevel)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z07:00")
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), w, lvl)
	logger := zap.New(core, zap.AddStacktrace(zap.ErrorLevel)).Named("locomotion")
	base.Store(logger)

	sugar := logger.Sugar()
	SetLogger(sugar.Infof)
	return logger
}

// InitStderr is Init writing to a locked stderr.
func InitStderr(level string) *zap.Logger {
	return Init(level, zapcore.Lock(os.Stderr))
}

// Named returns a child of the process logger, or a no-op logger when Init
// has not been called.
func Named(name string) *zap.Logger {
	l := base.Load()
	if l == nil {
		return zap.NewNop()
	}
	return l.Named(name)
}

// Sync flushes buffered log entries.
func Sync() {
	if l := base.Load(); l != nil {
		_ = l.Sync()
	}
}
