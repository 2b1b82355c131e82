// Package config 提供 NAT-PMP 客户端的文件配置
//
// 配置来源优先级（从高到低）：
//  1. 命令行参数
//  2. 环境变量（NATPMP_* 前缀）
//  3. JSON 配置文件
//  4. 默认值
//
// 使用示例：
//
//	cfg, err := config.Load("natpmp.json")
//	if err != nil {
//	    return err
//	}
//	if err := config.ApplyEnv(cfg); err != nil {
//	    return err
//	}
//	opts, err := natpmp.OptionsFromConfig(cfg)
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"
)

// Config NAT-PMP 客户端配置
type Config struct {
	// Gateway 网关 IPv4 地址，为空时自动发现默认网关
	Gateway string `json:"gateway,omitempty"`

	// GatewayPort 网关 NAT-PMP 端口
	GatewayPort uint16 `json:"gateway_port"`

	// Retry 最大发送次数
	Retry uint `json:"retry"`

	// Lifetime 映射租期，按秒取整
	Lifetime Duration `json:"lifetime"`

	// Timeout 单次命令的总超时，0 表示不限制
	Timeout Duration `json:"timeout,omitempty"`

	// UnmapOnStop fx 模块停止时删除本机全部 UDP/TCP 映射
	UnmapOnStop bool `json:"unmap_on_stop,omitempty"`

	// Log 日志配置
	Log LogConfig `json:"log"`
}

// LogConfig 日志配置
type LogConfig struct {
	// Level 日志级别，格式同 NATPMP_LOG_LEVEL（如 "debug" 或 "natpmp.transport=debug,info"）
	Level string `json:"level,omitempty"`

	// Format 日志格式：text 或 json
	Format string `json:"format,omitempty"`

	// File 日志文件路径，为空时输出到 stderr
	File string `json:"file,omitempty"`
}

// 默认值
const (
	DefaultGatewayPort uint16 = 5351
	DefaultRetry       uint   = 9
	DefaultLifetime           = 7200 * time.Second
)

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		GatewayPort: DefaultGatewayPort,
		Retry:       DefaultRetry,
		Lifetime:    Duration(DefaultLifetime),
	}
}

// LifetimeSeconds 返回以秒为单位的租期
func (c *Config) LifetimeSeconds() uint32 {
	secs := c.Lifetime.Duration() / time.Second
	if secs > math.MaxUint32 {
		return math.MaxUint32
	}
	if secs < 0 {
		return 0
	}
	return uint32(secs)
}

// ============================================================================
//                              加载与保存
// ============================================================================

// Load 从 JSON 文件加载配置，文件中未出现的字段保持默认值
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: 用户指定的配置文件路径是预期行为
	if err != nil {
		return nil, err
	}
	cfg, err := FromJSON(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// FromJSON 从 JSON 解析配置并验证
func FromJSON(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ToJSON 编码为缩进的 JSON
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}
