package natpmp

import (
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dep2p/go-natpmp/config"
	"github.com/dep2p/go-natpmp/internal/gateway"
	"github.com/dep2p/go-natpmp/internal/transport"
)

// Option 配置选项
//
// 选项可传给 NewClient，也可传给单次调用；单次调用的选项覆盖客户端配置。
type Option func(*options) error

// options 内部选项结构
type options struct {
	// 网关
	gateway  netip.Addr
	port     uint16
	discover gateway.Discoverer

	// 请求参数
	retry        uint
	lifetime     uint32
	externalPort uint16

	// 传输层
	listen  transport.ListenFunc
	clock   clock.Clock
	logger  *slog.Logger
	metrics *Metrics
}

func newOptions() options {
	return options{
		port:     DefaultPort,
		discover: gateway.Discover,
		retry:    DefaultRetry,
		lifetime: DefaultLifetime,
	}
}

func (o *options) apply(opts ...Option) error {
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(o); err != nil {
			return err
		}
	}
	return nil
}

// transportConfig 转换为传输引擎配置
func (o *options) transportConfig() transport.Config {
	return transport.Config{
		Port:    o.port,
		Listen:  o.listen,
		Clock:   o.clock,
		Logger:  o.logger,
		Metrics: o.metrics,
	}
}

// ════════════════════════════════════════════════════════════════════════════
// 网关
// ════════════════════════════════════════════════════════════════════════════

// WithGateway 指定网关地址，不再自动发现
//
// 地址必须是 IPv4（IPv4-mapped IPv6 会被转换）。
func WithGateway(addr netip.Addr) Option {
	return func(o *options) error {
		addr = addr.Unmap()
		if !addr.Is4() {
			return fmt.Errorf("%w: %s", ErrNotIPv4, addr)
		}
		o.gateway = addr
		return nil
	}
}

// WithGatewayPort 指定网关端口，默认 5351
func WithGatewayPort(port uint16) Option {
	return func(o *options) error {
		if port == 0 {
			return ErrInvalidPort
		}
		o.port = port
		return nil
	}
}

// WithDiscoverer 替换默认网关发现
func WithDiscoverer(d gateway.Discoverer) Option {
	return func(o *options) error {
		if d != nil {
			o.discover = d
		}
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
// 请求参数
// ════════════════════════════════════════════════════════════════════════════

// WithRetry 最大发送次数，默认 9
func WithRetry(n uint) Option {
	return func(o *options) error {
		if n == 0 {
			return ErrInvalidRetry
		}
		o.retry = n
		return nil
	}
}

// WithLifetime 映射租期（秒），默认 7200
//
// RFC 6886 建议 7200 秒；租期为 0 表示删除映射，请使用 UnmapPort。
func WithLifetime(seconds uint32) Option {
	return func(o *options) error {
		o.lifetime = seconds
		return nil
	}
}

// WithExternalPort 请求的外部端口，默认 0（由网关分配）
func WithExternalPort(port uint16) Option {
	return func(o *options) error {
		o.externalPort = port
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
// 传输层
// ════════════════════════════════════════════════════════════════════════════

// WithLogger 指定日志器，默认使用 natpmp.transport 子系统日志
func WithLogger(l *slog.Logger) Option {
	return func(o *options) error {
		o.logger = l
		return nil
	}
}

// WithMetrics 记录传输层指标
func WithMetrics(m *Metrics) Option {
	return func(o *options) error {
		o.metrics = m
		return nil
	}
}

// WithClock 指定时钟，主要用于测试
//
// 读超时是由该时钟计算出的绝对时间，直接设置在套接字上。
// 假时钟（如 clock.NewMock）必须与 WithListener 提供的套接字配合使用，
// 否则默认的 UDP 套接字会收到早已过去的截止时间，每次尝试都立即超时。
func WithClock(c clock.Clock) Option {
	return func(o *options) error {
		o.clock = c
		return nil
	}
}

// WithListener 指定 UDP 套接字工厂
func WithListener(f transport.ListenFunc) Option {
	return func(o *options) error {
		o.listen = f
		return nil
	}
}

// NewMetrics 创建并注册传输层指标
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return transport.NewMetrics(reg)
}

// ════════════════════════════════════════════════════════════════════════════
// 配置文件
// ════════════════════════════════════════════════════════════════════════════

// OptionsFromConfig 将配置转换为选项
//
// 未设置网关时保持自动发现。
func OptionsFromConfig(cfg *config.Config) ([]Option, error) {
	if cfg == nil {
		return nil, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := []Option{
		WithGatewayPort(cfg.GatewayPort),
		WithRetry(cfg.Retry),
		WithLifetime(cfg.LifetimeSeconds()),
	}
	if cfg.Gateway != "" {
		addr, err := netip.ParseAddr(cfg.Gateway)
		if err != nil {
			return nil, fmt.Errorf("parse gateway: %w", err)
		}
		opts = append(opts, WithGateway(addr))
	}
	return opts, nil
}
