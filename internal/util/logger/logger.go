// Package logger 提供 go-harvest 的统一日志系统
//
// 基于标准库 log/slog，支持：
//   - 按子系统配置日志级别
//   - 环境变量配置（HARVEST_LOG_LEVEL, HARVEST_LOG_FORMAT）
//   - 将 pion 库自身的日志接入同一输出
//
// 使用示例:
//
//	var log = logger.Logger("harvest")
//
//	func foo() {
//	    log.Info("UDP 采集器已创建", "addr", addr, "count", n)
//	}
package logger

import (
	"io"
	"log/slog"
	"sync"
)

var (
	// loggers 缓存各子系统的 Logger
	loggers sync.Map // map[string]*slog.Logger

	// handlers 缓存各子系统的 Handler（用于动态调整级别）
	handlers sync.Map // map[string]*subsystemHandler
)

// Logger 获取指定子系统的 Logger
//
// 同一子系统多次调用会返回相同的 Logger 实例。
func Logger(subsystem string) *slog.Logger {
	if l, ok := loggers.Load(subsystem); ok {
		return l.(*slog.Logger)
	}

	cfg := ConfigFromEnv()
	handler := newHandler(subsystem, cfg.LevelForSubsystem(subsystem), cfg.Format)

	actual, loaded := loggers.LoadOrStore(subsystem, slog.New(handler))
	if !loaded {
		handlers.Store(subsystem, handler)
	}
	return actual.(*slog.Logger)
}

// SetLevel 动态设置子系统的日志级别
func SetLevel(subsystem string, level slog.Level) {
	if h, ok := handlers.Load(subsystem); ok {
		h.(*subsystemHandler).SetLevel(level)
	}
}

// SetOutput 设置全局日志输出目标
//
// 所有 Logger（包括已创建的）的输出会重定向到新的 writer。
func SetOutput(w io.Writer) {
	globalOutputMu.Lock()
	globalOutput = w
	globalOutputMu.Unlock()
}
