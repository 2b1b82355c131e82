package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// 环境变量
const (
	EnvPrefix = "NATPMP_"

	EnvGateway     = "GATEWAY"
	EnvGatewayPort = "GATEWAY_PORT"
	EnvRetry       = "RETRY"
	EnvLifetime    = "LIFETIME"
	EnvTimeout     = "TIMEOUT"
	EnvLogFile     = "LOG_FILE"
)

// ApplyEnv 应用环境变量覆盖配置
//
// 支持的环境变量（均使用 NATPMP_ 前缀）：
//   - NATPMP_GATEWAY: 网关地址
//   - NATPMP_GATEWAY_PORT: 网关端口
//   - NATPMP_RETRY: 最大发送次数
//   - NATPMP_LIFETIME: 租期，秒数或 "2h" 形式
//   - NATPMP_TIMEOUT: 单次命令总超时
//   - NATPMP_LOG_FILE: 日志文件路径
//
// 无法解析的值会被跳过，所有解析错误合并返回。
func ApplyEnv(cfg *Config) error {
	return applyEnv(cfg, os.Getenv)
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	var errs error
	get := func(name string) string {
		return strings.TrimSpace(getenv(EnvPrefix + name))
	}

	if v := get(EnvGateway); v != "" {
		cfg.Gateway = v
	}

	if v := get(EnvGatewayPort); v != "" {
		port, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, EnvGatewayPort, err))
		} else {
			cfg.GatewayPort = uint16(port)
		}
	}

	if v := get(EnvRetry); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, EnvRetry, err))
		} else {
			cfg.Retry = uint(n)
		}
	}

	if v := get(EnvLifetime); v != "" {
		d, err := parseSecondsOrDuration(v)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, EnvLifetime, err))
		} else {
			cfg.Lifetime = Duration(d)
		}
	}

	if v := get(EnvTimeout); v != "" {
		d, err := parseSecondsOrDuration(v)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, EnvTimeout, err))
		} else {
			cfg.Timeout = Duration(d)
		}
	}

	if v := get(EnvLogFile); v != "" {
		cfg.Log.File = v
	}

	return errs
}

// parseSecondsOrDuration 解析 "7200" 或 "2h"
func parseSecondsOrDuration(s string) (time.Duration, error) {
	if secs, err := strconv.ParseUint(s, 10, 32); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(s)
}
