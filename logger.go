package avplay

import "go.uber.org/zap"

// Logger is the narrow logging seam the package writes warnings and
// non-fatal decode anomalies through. Swap it with [SetLogger] to route
// into your own logging stack.
type Logger interface {
	Printf(format string, v ...any)
}

var pkgLogger Logger = newZapLogger()

// SetLogger replaces the package-wide logger. Safe to call once at startup;
// not synchronized against concurrent use from playback goroutines.
func SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	pkgLogger = logger
}

// zapLogger adapts a sugared zap.Logger to the Printf-shaped Logger seam.
type zapLogger struct {
	sugar *zap.SugaredLogger
}

func newZapLogger() *zapLogger {
	logger, err := zap.NewProduction()
	if err != nil {
		logger = zap.NewNop()
	}
	return &zapLogger{sugar: logger.Sugar()}
}

func (l *zapLogger) Printf(format string, v ...any) {
	l.sugar.Infof(format, v...)
}
