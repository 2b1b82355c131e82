package config

import (
	"errors"
	"fmt"
	"math"
	"net/netip"
	"strings"
	"time"

	"github.com/dep2p/go-natpmp/internal/util/logger"
)

// 验证错误
var (
	// ErrInvalidGateway 网关地址不是 IPv4
	ErrInvalidGateway = errors.New("gateway must be an IPv4 address")

	// ErrInvalidGatewayPort 网关端口为 0
	ErrInvalidGatewayPort = errors.New("gateway_port must not be zero")

	// ErrInvalidRetry 重试次数为 0
	ErrInvalidRetry = errors.New("retry must be at least 1")

	// ErrInvalidLifetime 租期不在 [1s, 2^32-1 s] 内
	ErrInvalidLifetime = errors.New("lifetime must be between 1s and 4294967295s")

	// ErrInvalidTimeout 超时为负
	ErrInvalidTimeout = errors.New("timeout must not be negative")

	// ErrInvalidLogFormat 日志格式不是 text 或 json
	ErrInvalidLogFormat = errors.New("log format must be text or json")
)

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Gateway != "" {
		addr, err := netip.ParseAddr(c.Gateway)
		if err != nil || !addr.Unmap().Is4() {
			return fmt.Errorf("%w: %q", ErrInvalidGateway, c.Gateway)
		}
	}
	if c.GatewayPort == 0 {
		return ErrInvalidGatewayPort
	}
	if c.Retry == 0 {
		return ErrInvalidRetry
	}
	if d := c.Lifetime.Duration(); d < time.Second || d/time.Second > math.MaxUint32 {
		return fmt.Errorf("%w: %s", ErrInvalidLifetime, c.Lifetime)
	}
	if c.Timeout < 0 {
		return ErrInvalidTimeout
	}
	return c.Log.Validate()
}

// Validate 验证日志配置
func (c LogConfig) Validate() error {
	switch strings.ToLower(c.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.Format)
	}

	if c.Level == "" {
		return nil
	}
	for _, part := range strings.Split(c.Level, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		level := part
		if _, lvl, ok := strings.Cut(part, "="); ok {
			level = lvl
		}
		if _, ok := logger.ParseLevel(level); !ok {
			return fmt.Errorf("invalid log level %q", part)
		}
	}
	return nil
}
