package natpmp

import (
	"context"
	"errors"
	"log/slog"
	"net/netip"

	"go.uber.org/multierr"

	"github.com/dep2p/go-natpmp/internal/transport"
	"github.com/dep2p/go-natpmp/internal/util/logger"
	"github.com/dep2p/go-natpmp/pkg/protocol"
)

var log = logger.Logger("natpmp")

// ============================================================================
//                              Client
// ============================================================================

// Client NAT-PMP 客户端
type Client struct {
	opts   options
	engine *transport.Engine
}

// NewClient 创建客户端
func NewClient(opts ...Option) (*Client, error) {
	o := newOptions()
	if err := o.apply(opts...); err != nil {
		return nil, err
	}
	return &Client{
		opts:   o,
		engine: transport.New(o.transportConfig()),
	}, nil
}

// merge 合并单次调用的选项
func (c *Client) merge(opts []Option) (options, *transport.Engine, error) {
	if len(opts) == 0 {
		return c.opts, c.engine, nil
	}
	o := c.opts
	if err := o.apply(opts...); err != nil {
		return o, nil, protocol.GenericError("invalid option", err)
	}
	return o, transport.New(o.transportConfig()), nil
}

func (c *Client) resolveGateway(o *options) (netip.Addr, error) {
	if o.gateway.IsValid() {
		return o.gateway, nil
	}

	gw, err := o.discover()
	if err != nil {
		var perr *Error
		if errors.As(err, &perr) {
			return netip.Addr{}, err
		}
		return netip.Addr{}, protocol.GenericError("no default gateway found", err)
	}

	gw = gw.Unmap()
	if !gw.Is4() {
		return netip.Addr{}, protocol.GenericError("discovered gateway is not IPv4", ErrNotIPv4)
	}
	log.Debug("使用自动发现的网关", "gateway", gw.String())
	return gw, nil
}

// Gateway 返回本客户端使用的网关地址，未指定时执行自动发现
func (c *Client) Gateway() (netip.Addr, error) {
	o := c.opts
	return c.resolveGateway(&o)
}

// ExternalAddress 查询网关公网地址及其 epoch
func (c *Client) ExternalAddress(ctx context.Context, opts ...Option) (*ExternalAddress, error) {
	o, engine, err := c.merge(opts)
	if err != nil {
		return nil, err
	}
	gw, err := c.resolveGateway(&o)
	if err != nil {
		return nil, err
	}
	return transport.Send[*protocol.ExternalAddressResponse](ctx, engine, gw, protocol.NewExternalAddressRequest(), o.retry)
}

// GetPublicAddress 查询网关公网 IPv4 地址
func (c *Client) GetPublicAddress(ctx context.Context, opts ...Option) (netip.Addr, error) {
	resp, err := c.ExternalAddress(ctx, opts...)
	if err != nil {
		return netip.Addr{}, err
	}
	return resp.Address, nil
}

// MapPort 创建端口映射
//
// 外部端口与租期由 WithExternalPort、WithLifetime 指定；
// 网关可能分配与请求不同的外部端口和租期，以返回值为准。
func (c *Client) MapPort(ctx context.Context, proto Protocol, internalPort uint16, opts ...Option) (*MappingResult, error) {
	o, engine, err := c.merge(opts)
	if err != nil {
		return nil, err
	}

	req, err := protocol.NewMappingRequest(proto, internalPort, o.externalPort, o.lifetime)
	if err != nil {
		return nil, protocol.GenericError("invalid mapping request", err)
	}

	resp, err := sendMapping(ctx, c, &o, engine, req)
	if err != nil {
		return nil, err
	}
	logMapping(o.logger, "端口映射已创建", resp)
	return resp, nil
}

// MapTCPPort 创建 TCP 端口映射
func (c *Client) MapTCPPort(ctx context.Context, internalPort uint16, opts ...Option) (*MappingResult, error) {
	return c.MapPort(ctx, TCP, internalPort, opts...)
}

// MapUDPPort 创建 UDP 端口映射
func (c *Client) MapUDPPort(ctx context.Context, internalPort uint16, opts ...Option) (*MappingResult, error) {
	return c.MapPort(ctx, UDP, internalPort, opts...)
}

// UnmapPort 删除某个内部端口的映射
func (c *Client) UnmapPort(ctx context.Context, proto Protocol, internalPort uint16, opts ...Option) (*MappingResult, error) {
	o, engine, err := c.merge(opts)
	if err != nil {
		return nil, err
	}

	req, err := protocol.NewUnmapPortRequest(proto, internalPort)
	if err != nil {
		return nil, protocol.GenericError("invalid unmap request", err)
	}

	resp, err := sendMapping(ctx, c, &o, engine, req)
	if err != nil {
		return nil, err
	}
	logMapping(o.logger, "端口映射已删除", resp)
	return resp, nil
}

// UnmapAllPorts 删除本机某协议的全部映射
func (c *Client) UnmapAllPorts(ctx context.Context, proto Protocol, opts ...Option) (*MappingResult, error) {
	o, engine, err := c.merge(opts)
	if err != nil {
		return nil, err
	}

	req, err := protocol.NewUnmapAllPortsRequest(proto)
	if err != nil {
		return nil, protocol.GenericError("invalid unmap request", err)
	}
	return sendMapping(ctx, c, &o, engine, req)
}

// UnmapAllProtocols 依次删除 UDP 与 TCP 的全部映射
//
// 两个请求都会执行，错误合并返回。
func (c *Client) UnmapAllProtocols(ctx context.Context, opts ...Option) error {
	var errs error
	for _, proto := range []Protocol{UDP, TCP} {
		if _, err := c.UnmapAllPorts(ctx, proto, opts...); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// sendMapping 解析网关并发送映射类请求
func sendMapping(ctx context.Context, c *Client, o *options, engine *transport.Engine, req protocol.Request[*protocol.MappingResponse]) (*MappingResult, error) {
	gw, err := c.resolveGateway(o)
	if err != nil {
		return nil, err
	}
	return transport.Send[*protocol.MappingResponse](ctx, engine, gw, req, o.retry)
}

func logMapping(l *slog.Logger, msg string, m *MappingResult) {
	if l == nil {
		l = log
	}
	l.Debug(msg,
		"protocol", m.Protocol.String(),
		"internal", m.InternalPort,
		"external", m.ExternalPort,
		"lifetime", m.Lifetime)
}

// ============================================================================
//                              包级函数
// ============================================================================

// GetPublicAddress 查询网关公网 IPv4 地址
func GetPublicAddress(ctx context.Context, opts ...Option) (netip.Addr, error) {
	c, err := newCallClient(opts)
	if err != nil {
		return netip.Addr{}, err
	}
	return c.GetPublicAddress(ctx)
}

// MapPort 创建端口映射
func MapPort(ctx context.Context, proto Protocol, internalPort uint16, opts ...Option) (*MappingResult, error) {
	c, err := newCallClient(opts)
	if err != nil {
		return nil, err
	}
	return c.MapPort(ctx, proto, internalPort)
}

// MapTCPPort 创建 TCP 端口映射
func MapTCPPort(ctx context.Context, internalPort uint16, opts ...Option) (*MappingResult, error) {
	return MapPort(ctx, TCP, internalPort, opts...)
}

// MapUDPPort 创建 UDP 端口映射
func MapUDPPort(ctx context.Context, internalPort uint16, opts ...Option) (*MappingResult, error) {
	return MapPort(ctx, UDP, internalPort, opts...)
}

// UnmapPort 删除某个内部端口的映射
func UnmapPort(ctx context.Context, proto Protocol, internalPort uint16, opts ...Option) (*MappingResult, error) {
	c, err := newCallClient(opts)
	if err != nil {
		return nil, err
	}
	return c.UnmapPort(ctx, proto, internalPort)
}

// UnmapAllPorts 删除本机某协议的全部映射
func UnmapAllPorts(ctx context.Context, proto Protocol, opts ...Option) (*MappingResult, error) {
	c, err := newCallClient(opts)
	if err != nil {
		return nil, err
	}
	return c.UnmapAllPorts(ctx, proto)
}

// newCallClient 为包级函数创建一次性客户端，选项错误归为 Generic
func newCallClient(opts []Option) (*Client, error) {
	c, err := NewClient(opts...)
	if err != nil {
		return nil, protocol.GenericError("invalid option", err)
	}
	return c, nil
}
