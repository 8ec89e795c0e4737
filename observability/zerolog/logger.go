// Package zerolog binds the kernel's logging facade to rs/zerolog.
package zerolog

import (
	"github.com/Swind/go-task-kernel/core"
	zl "github.com/rs/zerolog"
)

// Logger implements core.Logger on top of a zerolog.Logger.
type Logger struct {
	logger zl.Logger
}

var _ core.Logger = (*Logger)(nil)

// New wraps logger. Pass e.g. zerolog.New(os.Stderr).With().Timestamp().Logger().
func New(logger zl.Logger) *Logger {
	return &Logger{logger: logger}
}

func (l *Logger) Debug(msg string, fields ...core.Field) {
	emit(l.logger.Debug(), msg, fields)
}

func (l *Logger) Info(msg string, fields ...core.Field) {
	emit(l.logger.Info(), msg, fields)
}

func (l *Logger) Warn(msg string, fields ...core.Field) {
	emit(l.logger.Warn(), msg, fields)
}

func (l *Logger) Error(msg string, fields ...core.Field) {
	emit(l.logger.Error(), msg, fields)
}

func emit(event *zl.Event, msg string, fields []core.Field) {
	for _, f := range fields {
		event = event.Interface(f.Key, f.Value)
	}
	event.Msg(msg)
}
