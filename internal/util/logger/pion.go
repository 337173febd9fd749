package logger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pion/logging"
)

// PionFactory 将 pion 库的日志接入 slog 子系统
//
// pion 的每个 scope 映射为子系统 "pion/<scope>"，可以单独调级别：
//
//	HARVEST_LOG_LEVEL=pion/ice=debug,info
type PionFactory struct{}

// NewPionFactory 创建 pion LoggerFactory
func NewPionFactory() logging.LoggerFactory {
	return PionFactory{}
}

// NewLogger 实现 logging.LoggerFactory
func (PionFactory) NewLogger(scope string) logging.LeveledLogger {
	return &pionLogger{log: Logger("pion/" + scope)}
}

// pionLogger 实现 logging.LeveledLogger
type pionLogger struct {
	log *slog.Logger
}

var _ logging.LeveledLogger = (*pionLogger)(nil)

// trace 级别在 slog 中没有对应项，降为 Debug-4
const levelTrace = slog.LevelDebug - 4

func (l *pionLogger) logf(level slog.Level, format string, args ...interface{}) {
	if !l.log.Enabled(context.Background(), level) {
		return
	}
	l.log.Log(context.Background(), level, fmt.Sprintf(format, args...))
}

func (l *pionLogger) Trace(msg string) { l.logf(levelTrace, "%s", msg) }
func (l *pionLogger) Tracef(format string, args ...interface{}) {
	l.logf(levelTrace, format, args...)
}
func (l *pionLogger) Debug(msg string) { l.logf(slog.LevelDebug, "%s", msg) }
func (l *pionLogger) Debugf(format string, args ...interface{}) {
	l.logf(slog.LevelDebug, format, args...)
}
func (l *pionLogger) Info(msg string) { l.logf(slog.LevelInfo, "%s", msg) }
func (l *pionLogger) Infof(format string, args ...interface{}) {
	l.logf(slog.LevelInfo, format, args...)
}
func (l *pionLogger) Warn(msg string) { l.logf(slog.LevelWarn, "%s", msg) }
func (l *pionLogger) Warnf(format string, args ...interface{}) {
	l.logf(slog.LevelWarn, format, args...)
}
func (l *pionLogger) Error(msg string) { l.logf(slog.LevelError, "%s", msg) }
func (l *pionLogger) Errorf(format string, args ...interface{}) {
	l.logf(slog.LevelError, format, args...)
}
