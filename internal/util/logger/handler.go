package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

var (
	// globalOutput 全局日志输出目标，默认为 stderr
	globalOutput   io.Writer = os.Stderr
	globalOutputMu sync.RWMutex

	// globalFormat 当前输出格式，切换后已创建的 Logger 同样生效
	globalFormat atomic.Int32
)

// dynamicWriter 每次写入时查找 globalOutput，Logger 创建后切换输出仍然生效
type dynamicWriter struct{}

func (dynamicWriter) Write(p []byte) (int, error) {
	globalOutputMu.RLock()
	output := globalOutput
	globalOutputMu.RUnlock()
	return output.Write(p)
}

// subsystemHandler 支持按子系统动态调整级别的 slog.Handler
//
// level 在 WithAttrs/WithGroup 派生出的 Handler 之间共享。
// text/json 两个 Handler 同时维护，按 globalFormat 选择。
type subsystemHandler struct {
	subsystem string
	level     *slog.LevelVar
	text      slog.Handler
	json      slog.Handler
}

func newHandler(subsystem string, level slog.Level, cfg *Config) *subsystemHandler {
	lv := new(slog.LevelVar)
	lv.Set(level)

	opts := &slog.HandlerOptions{
		Level:     lv,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Key = "ts"
			}
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok {
					a.Value = slog.StringValue(levelToString(lvl))
				}
			}
			return a
		},
	}

	attrs := []slog.Attr{slog.String("subsystem", subsystem)}
	return &subsystemHandler{
		subsystem: subsystem,
		level:     lv,
		text:      slog.NewTextHandler(dynamicWriter{}, opts).WithAttrs(attrs),
		json:      slog.NewJSONHandler(dynamicWriter{}, opts).WithAttrs(attrs),
	}
}

func (h *subsystemHandler) inner() slog.Handler {
	if LogFormat(globalFormat.Load()) == FormatJSON {
		return h.json
	}
	return h.text
}

// Enabled 实现 slog.Handler
func (h *subsystemHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle 实现 slog.Handler
func (h *subsystemHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.inner().Handle(ctx, r)
}

// WithAttrs 实现 slog.Handler
func (h *subsystemHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &subsystemHandler{
		subsystem: h.subsystem,
		level:     h.level,
		text:      h.text.WithAttrs(attrs),
		json:      h.json.WithAttrs(attrs),
	}
}

// WithGroup 实现 slog.Handler
func (h *subsystemHandler) WithGroup(name string) slog.Handler {
	return &subsystemHandler{
		subsystem: h.subsystem,
		level:     h.level,
		text:      h.text.WithGroup(name),
		json:      h.json.WithGroup(name),
	}
}

func levelToString(level slog.Level) string {
	switch {
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

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
