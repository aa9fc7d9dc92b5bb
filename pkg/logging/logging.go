package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"logur.dev/logur"
)

var Prod = zap.NewProductionConfig()
var Dev = zap.NewDevelopmentConfig()

func init() {
	Prod.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zap.ReplaceGlobals(Create("", Dev).Desugar())
}

// Create builds a named sugared logger from the supplied config.
// Every package keeps its own logger created here and overridable via SetLogger.
func Create(name string, cfg zap.Config) *zap.SugaredLogger {
	l, _ := cfg.Build()
	return l.Named(name).Sugar()
}

// KVLogger is the logging interface components accept via their configs,
// satisfied by zapadapter.NewKV and by NoopKVLogger for quiet tests.
type KVLogger interface {
	Debug(msg string, keyvals ...interface{})
	Info(msg string, keyvals ...interface{})
	Warn(msg string, keyvals ...interface{})
	Error(msg string, keyvals ...interface{})
	Fatal(msg string, keyvals ...interface{})
	With(keyvals ...interface{}) KVLogger
}

type NoopKVLogger struct {
	logur.NoopKVLogger
}

func (l NoopKVLogger) Fatal(msg string, keyvals ...interface{}) {}

func (l NoopKVLogger) With(keyvals ...interface{}) KVLogger {
	return l
}

// AddTaskID attaches a short task reference to log entries.
func AddTaskID(l KVLogger, taskID string) KVLogger {
	if len(taskID) >= 8 {
		return l.With("task", taskID[:8])
	}
	return l.With("task?", taskID)
}
