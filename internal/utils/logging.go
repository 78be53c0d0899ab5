package utils

import "go.uber.org/zap"

// Logger is the keyvals logger handed to every component.
type Logger struct {
	s *zap.SugaredLogger
}

func NewLogger() *Logger {
	z, err := zap.NewProduction()
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	return &Logger{s: z.Sugar()}
}

// NewNopLogger discards everything (used in tests).
func NewNopLogger() *Logger { return &Logger{s: zap.NewNop().Sugar()} }

func (l *Logger) Info(msg string, kv ...any)  { l.s.Infow(msg, kv...) }
func (l *Logger) Warn(msg string, kv ...any)  { l.s.Warnw(msg, kv...) }
func (l *Logger) Error(msg string, kv ...any) { l.s.Errorw(msg, kv...) }
