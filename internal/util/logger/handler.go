package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"slices"
	"sync"
)

var (
	// globalOutput 日志输出目标，默认 stderr
	globalOutput   io.Writer = os.Stderr
	globalOutputMu sync.RWMutex
)

// outputWriter 写入时才取 globalOutput，SetOutput 对已创建的 Logger 生效
type outputWriter struct{}

func (outputWriter) Write(p []byte) (int, error) {
	globalOutputMu.RLock()
	w := globalOutput
	globalOutputMu.RUnlock()
	return w.Write(p)
}

// subsystemState 子系统及其 With 派生 Logger 共享的级别与格式
type subsystemState struct {
	mu     sync.RWMutex
	level  slog.Level
	format LogFormat
}

func (s *subsystemState) get() (slog.Level, LogFormat) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.level, s.format
}

// subsystemHandler 按子系统过滤级别的 slog.Handler
//
// 底层 Text/JSON Handler 按需构造；格式变化后在下一次 Handle 时重建，
// 重建时重放 WithAttrs / WithGroup 调用链。
type subsystemHandler struct {
	subsystem string
	state     *subsystemState
	chain     []func(slog.Handler) slog.Handler

	mu     sync.Mutex
	inner  slog.Handler
	format LogFormat
}

func newHandler(subsystem string, level slog.Level, format LogFormat) *subsystemHandler {
	return &subsystemHandler{
		subsystem: subsystem,
		state:     &subsystemState{level: level, format: format},
	}
}

// Enabled 检查是否启用指定级别
func (h *subsystemHandler) Enabled(_ context.Context, level slog.Level) bool {
	threshold, _ := h.state.get()
	return level >= threshold
}

// Handle 处理日志记录
func (h *subsystemHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.current().Handle(ctx, r)
}

// WithAttrs 派生 Handler，与原 Handler 共享级别与格式
func (h *subsystemHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.derive(func(inner slog.Handler) slog.Handler { return inner.WithAttrs(attrs) })
}

// WithGroup 派生 Handler，与原 Handler 共享级别与格式
func (h *subsystemHandler) WithGroup(name string) slog.Handler {
	return h.derive(func(inner slog.Handler) slog.Handler { return inner.WithGroup(name) })
}

func (h *subsystemHandler) derive(step func(slog.Handler) slog.Handler) *subsystemHandler {
	return &subsystemHandler{
		subsystem: h.subsystem,
		state:     h.state,
		chain:     append(slices.Clip(h.chain), step),
	}
}

// SetLevel 调整级别
func (h *subsystemHandler) SetLevel(level slog.Level) {
	h.state.mu.Lock()
	h.state.level = level
	h.state.mu.Unlock()
}

// SetFormat 调整输出格式
func (h *subsystemHandler) SetFormat(format LogFormat) {
	h.state.mu.Lock()
	h.state.format = format
	h.state.mu.Unlock()
}

// current 返回与当前格式一致的底层 Handler
func (h *subsystemHandler) current() slog.Handler {
	_, format := h.state.get()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.inner == nil || h.format != format {
		h.inner = h.build(format)
		h.format = format
	}
	return h.inner
}

func (h *subsystemHandler) build(format LogFormat) slog.Handler {
	opts := &slog.HandlerOptions{
		// 级别在 Enabled 中过滤
		Level:       slog.LevelDebug - 4,
		AddSource:   ConfigFromEnv().AddSource,
		ReplaceAttr: replaceAttr,
	}

	var inner slog.Handler
	if format == FormatJSON {
		inner = slog.NewJSONHandler(outputWriter{}, opts)
	} else {
		inner = slog.NewTextHandler(outputWriter{}, opts)
	}
	inner = inner.WithAttrs([]slog.Attr{slog.String("subsystem", h.subsystem)})

	for _, step := range h.chain {
		inner = step(inner)
	}
	return inner
}

// replaceAttr 时间键改为 ts，级别输出小写
func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	switch a.Key {
	case slog.TimeKey:
		a.Key = "ts"
	case slog.LevelKey:
		if lvl, ok := a.Value.Any().(slog.Level); ok {
			a.Value = slog.StringValue(levelName(lvl))
		}
	}
	return a
}

func levelName(level slog.Level) string {
	switch {
	case level < slog.LevelDebug:
		return "trace"
	case level < slog.LevelInfo:
		return "debug"
	case level < slog.LevelWarn:
		return "info"
	case level < slog.LevelError:
		return "warn"
	default:
		return "error"
	}
}
