package logger

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

// 环境变量名
const (
	EnvLogLevel     = "NATPMP_LOG_LEVEL"
	EnvLogFormat    = "NATPMP_LOG_FORMAT"
	EnvLogAddSource = "NATPMP_LOG_ADD_SOURCE"
)

// LogFormat 日志输出格式
type LogFormat int

const (
	// FormatText 文本格式（默认）
	FormatText LogFormat = iota
	// FormatJSON JSON 格式
	FormatJSON
)

// Config 日志配置
type Config struct {
	// DefaultLevel 默认日志级别
	DefaultLevel slog.Level

	// SubsystemLevels 各子系统的日志级别
	SubsystemLevels map[string]slog.Level

	// Format 输出格式
	Format LogFormat

	// AddSource 是否添加源码位置
	AddSource bool
}

// LevelForSubsystem 获取指定子系统的日志级别
//
// 子系统名按 "." 分段向上查找，例如 natpmp.transport 未配置时使用 natpmp 的级别。
func (c *Config) LevelForSubsystem(subsystem string) slog.Level {
	for name := subsystem; name != ""; {
		if level, ok := c.SubsystemLevels[name]; ok {
			return level
		}
		i := strings.LastIndex(name, ".")
		if i < 0 {
			break
		}
		name = name[:i]
	}
	return c.DefaultLevel
}

var (
	configCache *Config
	configMu    sync.Mutex
)

// ConfigFromEnv 从环境变量解析配置（结果会被缓存）
//
// 环境变量:
//   - NATPMP_LOG_LEVEL: 格式 子系统=级别,子系统=级别,默认级别
//     示例: natpmp.transport=debug,warn
//   - NATPMP_LOG_FORMAT: text 或 json
//   - NATPMP_LOG_ADD_SOURCE: true 或 false
func ConfigFromEnv() *Config {
	configMu.Lock()
	defer configMu.Unlock()
	return loadConfigLocked()
}

func loadConfigLocked() *Config {
	if configCache == nil {
		configCache = parseConfig(os.Getenv)
		globalFormat.Store(int32(configCache.Format))
	}
	return configCache
}

// Configure 覆盖级别与格式配置，已创建的 Logger 立即生效
//
// levelSpec 格式同 NATPMP_LOG_LEVEL，为空时保持原级别；
// format 为 "text" 或 "json"，为空时保持原格式。
func Configure(levelSpec, format string) {
	configMu.Lock()
	cfg := loadConfigLocked()
	if levelSpec != "" {
		cfg.DefaultLevel = slog.LevelInfo
		cfg.SubsystemLevels = make(map[string]slog.Level)
		parseLevelConfig(cfg, levelSpec)
	}
	switch strings.ToLower(format) {
	case "json":
		cfg.Format = FormatJSON
	case "text":
		cfg.Format = FormatText
	}
	globalFormat.Store(int32(cfg.Format))
	configMu.Unlock()

	applyLevels(cfg)
}

func parseConfig(getenv func(string) string) *Config {
	cfg := &Config{
		DefaultLevel:    slog.LevelInfo,
		SubsystemLevels: make(map[string]slog.Level),
		Format:          FormatText,
	}

	if levelStr := getenv(EnvLogLevel); levelStr != "" {
		parseLevelConfig(cfg, levelStr)
	}

	if strings.EqualFold(getenv(EnvLogFormat), "json") {
		cfg.Format = FormatJSON
	}

	if addSource := getenv(EnvLogAddSource); addSource != "" {
		cfg.AddSource = addSource != "false" && addSource != "0"
	}

	return cfg
}

// parseLevelConfig 解析日志级别配置字符串
func parseLevelConfig(cfg *Config, levelStr string) {
	for _, part := range strings.Split(levelStr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		subsystem, levelName, found := strings.Cut(part, "=")
		if !found {
			if level, ok := ParseLevel(part); ok {
				cfg.DefaultLevel = level
			}
			continue
		}
		if level, ok := ParseLevel(strings.TrimSpace(levelName)); ok {
			cfg.SubsystemLevels[strings.TrimSpace(subsystem)] = level
		}
	}
}

// ParseLevel 解析日志级别名称
func ParseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// ResetConfig 按环境变量重新加载配置（仅用于测试）
//
// 已创建的 Logger 同时恢复为新配置中的级别。
func ResetConfig() {
	configMu.Lock()
	configCache = nil
	cfg := loadConfigLocked()
	configMu.Unlock()

	applyLevels(cfg)
}

// applyLevels 将配置中的级别应用到所有已创建的处理器
func applyLevels(cfg *Config) {
	handlers.Range(func(_, value any) bool {
		h := value.(*subsystemHandler)
		h.level.Set(cfg.LevelForSubsystem(h.subsystem))
		return true
	})
}
