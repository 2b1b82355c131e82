// Package logger 提供 go-natpmp 的统一日志系统
//
// 基于标准库 log/slog，支持：
//   - 按子系统配置日志级别
//   - 环境变量配置（NATPMP_LOG_LEVEL, NATPMP_LOG_FORMAT）
//   - 结构化日志
//
// 使用示例:
//
//	var log = logger.Logger("natpmp.transport")
//
//	log.Debug("发送请求", "gateway", gw, "try", n)
//
// 环境变量配置:
//
//	# 全部 info，传输层 debug
//	NATPMP_LOG_LEVEL=natpmp.transport=debug,info
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
// 同一子系统多次调用返回同一个实例。
func Logger(subsystem string) *slog.Logger {
	if l, ok := loggers.Load(subsystem); ok {
		return l.(*slog.Logger)
	}

	cfg := ConfigFromEnv()
	handler := newHandler(subsystem, cfg.LevelForSubsystem(subsystem), cfg)

	actual, loaded := loggers.LoadOrStore(subsystem, slog.New(handler))
	if !loaded {
		handlers.Store(subsystem, handler)
	}
	return actual.(*slog.Logger)
}

// SetLevel 动态设置子系统的日志级别
func SetLevel(subsystem string, level slog.Level) {
	if h, ok := handlers.Load(subsystem); ok {
		h.(*subsystemHandler).level.Set(level)
	}
}

// SetGlobalLevel 设置所有已创建子系统的日志级别
func SetGlobalLevel(level slog.Level) {
	handlers.Range(func(_, value any) bool {
		value.(*subsystemHandler).level.Set(level)
		return true
	})
}

// Discard 返回一个丢弃所有日志的 Logger
func Discard() *slog.Logger {
	return slog.New(discardHandler{})
}

// SetOutput 设置全局日志输出目标
//
// 已创建的 Logger 同样会切换到新的输出。
func SetOutput(w io.Writer) {
	globalOutputMu.Lock()
	globalOutput = w
	globalOutputMu.Unlock()
}
