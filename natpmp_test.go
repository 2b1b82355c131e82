package natpmp

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-natpmp/config"
	"github.com/dep2p/go-natpmp/internal/gwsim"
	"github.com/dep2p/go-natpmp/internal/util/logger"
)

var loopback = netip.MustParseAddr("127.0.0.1")

func startGateway(t *testing.T, opts ...gwsim.Option) *gwsim.Server {
	t.Helper()
	s, err := gwsim.Listen("127.0.0.1:0", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// simOptions 指向模拟网关的选项
func simOptions(s *gwsim.Server, extra ...Option) []Option {
	return append([]Option{
		WithGateway(loopback),
		WithGatewayPort(s.AddrPort().Port()),
		WithLogger(logger.Discard()),
	}, extra...)
}

func newSimClient(t *testing.T, s *gwsim.Server, extra ...Option) *Client {
	t.Helper()
	c, err := NewClient(simOptions(s, extra...)...)
	require.NoError(t, err)
	return c
}

// ============================================================================
//                              公网地址
// ============================================================================

func TestGetPublicAddress(t *testing.T) {
	s := startGateway(t, gwsim.WithExternalAddress(netip.MustParseAddr("198.51.100.20")))

	addr, err := GetPublicAddress(context.Background(), simOptions(s)...)
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddr("198.51.100.20"), addr)
	assert.Equal(t, 1, s.Requests())
}

func TestClient_ExternalAddress(t *testing.T) {
	s := startGateway(t, gwsim.WithEpoch(3600))
	c := newSimClient(t, s)

	resp, err := c.ExternalAddress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint32(3600), resp.SecondsSinceEpoch)
	assert.True(t, resp.Address.Is4())
}

// ============================================================================
//                              端口映射
// ============================================================================

func TestMapPort_Defaults(t *testing.T) {
	s := startGateway(t)

	m, err := MapPort(context.Background(), TCP, 9999, simOptions(s)...)
	require.NoError(t, err)
	assert.Equal(t, TCP, m.Protocol)
	assert.Equal(t, uint16(9999), m.InternalPort)
	assert.Equal(t, uint16(9999), m.ExternalPort)
	assert.Equal(t, DefaultLifetime, m.Lifetime)
}

func TestMapPort_Options(t *testing.T) {
	s := startGateway(t)

	m, err := MapUDPPort(context.Background(), 5000, simOptions(s, WithExternalPort(6000), WithLifetime(60))...)
	require.NoError(t, err)
	assert.Equal(t, UDP, m.Protocol)
	assert.Equal(t, uint16(6000), m.ExternalPort)
	assert.Equal(t, uint32(60), m.Lifetime)

	m, err = MapTCPPort(context.Background(), 8080, simOptions(s)...)
	require.NoError(t, err)
	assert.Equal(t, TCP, m.Protocol)

	assert.Len(t, s.Mappings(), 2)
}

func TestClient_CallOptionsOverride(t *testing.T) {
	s := startGateway(t)
	c := newSimClient(t, s, WithLifetime(60))

	m, err := c.MapTCPPort(context.Background(), 80)
	require.NoError(t, err)
	assert.Equal(t, uint32(60), m.Lifetime)

	m, err = c.MapTCPPort(context.Background(), 81, WithLifetime(120))
	require.NoError(t, err)
	assert.Equal(t, uint32(120), m.Lifetime)

	// 单次调用的选项不影响客户端
	m, err = c.MapTCPPort(context.Background(), 82)
	require.NoError(t, err)
	assert.Equal(t, uint32(60), m.Lifetime)
}

func TestUnmap(t *testing.T) {
	s := startGateway(t)
	c := newSimClient(t, s)
	ctx := context.Background()

	_, err := c.MapUDPPort(ctx, 4000)
	require.NoError(t, err)
	_, err = c.MapUDPPort(ctx, 4001)
	require.NoError(t, err)
	_, err = c.MapTCPPort(ctx, 4000)
	require.NoError(t, err)
	require.Len(t, s.Mappings(), 3)

	m, err := UnmapPort(ctx, UDP, 4000, simOptions(s)...)
	require.NoError(t, err)
	assert.Equal(t, uint16(4000), m.InternalPort)
	assert.Zero(t, m.Lifetime)
	assert.Len(t, s.Mappings(), 2)

	m, err = UnmapAllPorts(ctx, UDP, simOptions(s)...)
	require.NoError(t, err)
	assert.Zero(t, m.InternalPort)
	require.Len(t, s.Mappings(), 1)
	assert.Equal(t, TCP, s.Mappings()[0].Protocol)

	require.NoError(t, c.UnmapAllProtocols(ctx))
	assert.Empty(t, s.Mappings())
}

func TestMapPort_Concurrent(t *testing.T) {
	s := startGateway(t)
	c := newSimClient(t, s)

	g, ctx := errgroup.WithContext(context.Background())
	for port := uint16(7000); port < 7010; port++ {
		g.Go(func() error {
			_, err := c.MapUDPPort(ctx, port)
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Len(t, s.Mappings(), 10)
}

// ============================================================================
//                              错误路径
// ============================================================================

func TestMapPort_RejectsZeroInternalPort(t *testing.T) {
	s := startGateway(t)

	_, err := MapPort(context.Background(), TCP, 0, simOptions(s)...)
	assert.ErrorIs(t, err, ErrZeroInternalPort)
	assert.ErrorIs(t, err, ErrGeneric)

	_, err = UnmapPort(context.Background(), UDP, 0, simOptions(s)...)
	assert.ErrorIs(t, err, ErrZeroInternalPort)

	// 参数错误不会发出请求
	assert.Zero(t, s.Requests())
}

func TestMapPort_RejectsInvalidProtocol(t *testing.T) {
	s := startGateway(t)

	_, err := MapPort(context.Background(), Protocol(7), 80, simOptions(s)...)
	assert.ErrorIs(t, err, ErrInvalidProtocol)

	_, err = UnmapAllPorts(context.Background(), Protocol(0), simOptions(s)...)
	assert.ErrorIs(t, err, ErrInvalidProtocol)
	assert.Zero(t, s.Requests())
}

func TestOptions_Invalid(t *testing.T) {
	_, err := NewClient(WithRetry(0))
	assert.ErrorIs(t, err, ErrInvalidRetry)

	_, err = NewClient(WithGateway(netip.MustParseAddr("2001:db8::1")))
	assert.ErrorIs(t, err, ErrNotIPv4)

	_, err = NewClient(WithGatewayPort(0))
	assert.ErrorIs(t, err, ErrInvalidPort)

	// 包级函数把选项错误归为 Generic
	_, err = GetPublicAddress(context.Background(), WithRetry(0))
	assert.ErrorIs(t, err, ErrGeneric)
	assert.ErrorIs(t, err, ErrInvalidRetry)

	// 单次调用的选项错误
	c, err := NewClient(WithGateway(loopback))
	require.NoError(t, err)
	_, err = c.MapTCPPort(context.Background(), 80, WithRetry(0))
	assert.ErrorIs(t, err, ErrInvalidRetry)
}

func TestWithGateway_MappedIPv4(t *testing.T) {
	c, err := NewClient(WithGateway(netip.MustParseAddr("::ffff:192.168.1.1")))
	require.NoError(t, err)

	gw, err := c.Gateway()
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddr("192.168.1.1"), gw)
}

func TestGatewayRefusal(t *testing.T) {
	s := startGateway(t, gwsim.WithResult(ResultCode(2)))

	_, err := MapTCPPort(context.Background(), 443, simOptions(s)...)
	assert.ErrorIs(t, err, ErrNotAuthorized)
	assert.ErrorIs(t, err, ErrResponse)

	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindResponse, perr.Kind)

	// 拒绝不重试
	assert.Equal(t, 1, s.Requests())
}

func TestUnresponsiveGateway(t *testing.T) {
	s := startGateway(t, gwsim.WithDrop(100))

	_, err := GetPublicAddress(context.Background(), simOptions(s, WithRetry(1))...)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestCancellation(t *testing.T) {
	s := startGateway(t, gwsim.WithDrop(100))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := GetPublicAddress(ctx, simOptions(s)...)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.ErrorIs(t, err, context.Canceled)
}

// ============================================================================
//                              网关发现
// ============================================================================

func TestDiscovery(t *testing.T) {
	s := startGateway(t)

	t.Run("发现成功", func(t *testing.T) {
		c, err := NewClient(
			WithDiscoverer(func() (netip.Addr, error) { return loopback, nil }),
			WithGatewayPort(s.AddrPort().Port()),
			WithLogger(logger.Discard()),
		)
		require.NoError(t, err)

		_, err = c.GetPublicAddress(context.Background())
		require.NoError(t, err)
	})

	t.Run("发现失败", func(t *testing.T) {
		cause := errors.New("no route")
		_, err := GetPublicAddress(context.Background(),
			WithDiscoverer(func() (netip.Addr, error) { return netip.Addr{}, cause }))
		assert.ErrorIs(t, err, ErrGeneric)
		assert.ErrorIs(t, err, cause)
	})

	t.Run("发现 IPv6 网关", func(t *testing.T) {
		_, err := GetPublicAddress(context.Background(),
			WithDiscoverer(func() (netip.Addr, error) { return netip.MustParseAddr("fe80::1"), nil }))
		assert.ErrorIs(t, err, ErrGeneric)
		assert.ErrorIs(t, err, ErrNotIPv4)
	})

	t.Run("显式网关优先", func(t *testing.T) {
		called := false
		c, err := NewClient(
			WithGateway(loopback),
			WithDiscoverer(func() (netip.Addr, error) { called = true; return netip.Addr{}, nil }),
		)
		require.NoError(t, err)

		gw, err := c.Gateway()
		require.NoError(t, err)
		assert.Equal(t, loopback, gw)
		assert.False(t, called)
	})
}

// ============================================================================
//                              配置与指标
// ============================================================================

func TestOptionsFromConfig(t *testing.T) {
	s := startGateway(t)

	cfg := config.NewConfig()
	cfg.Gateway = "127.0.0.1"
	cfg.GatewayPort = s.AddrPort().Port()
	cfg.Retry = 2
	cfg.Lifetime = config.Duration(90 * time.Second)

	opts, err := OptionsFromConfig(cfg)
	require.NoError(t, err)

	m, err := MapUDPPort(context.Background(), 1234, append(opts, WithLogger(logger.Discard()))...)
	require.NoError(t, err)
	assert.Equal(t, uint32(90), m.Lifetime)

	cfg.Retry = 0
	_, err = OptionsFromConfig(cfg)
	assert.ErrorIs(t, err, config.ErrInvalidRetry)

	opts, err = OptionsFromConfig(nil)
	assert.NoError(t, err)
	assert.Empty(t, opts)
}

func TestWithMetrics(t *testing.T) {
	s := startGateway(t)
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	c := newSimClient(t, s, WithMetrics(m))
	_, err := c.MapTCPPort(context.Background(), 2222)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Results.WithLabelValues("map-tcp", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Attempts.WithLabelValues("map-tcp")))
}

func TestParseProtocol(t *testing.T) {
	p, err := ParseProtocol("udp")
	require.NoError(t, err)
	assert.Equal(t, UDP, p)

	_, err = ParseProtocol("icmp")
	assert.ErrorIs(t, err, ErrInvalidProtocol)
}

// ============================================================================
//                              时钟与套接字注入
// ============================================================================

// deadlineConn 记录客户端设置的读超时，实际使用真实时间等待
type deadlineConn struct {
	net.PacketConn

	mu        sync.Mutex
	deadlines []time.Time
}

func (c *deadlineConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	c.deadlines = append(c.deadlines, t)
	c.mu.Unlock()
	return c.PacketConn.SetReadDeadline(time.Now().Add(time.Second))
}

func TestWithClock_WithListener(t *testing.T) {
	s := startGateway(t)
	mock := clock.NewMock()
	mock.Set(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	var conn *deadlineConn
	listen := func(ctx context.Context) (net.PacketConn, error) {
		var lc net.ListenConfig
		pc, err := lc.ListenPacket(ctx, "udp4", "127.0.0.1:0")
		if err != nil {
			return nil, err
		}
		conn = &deadlineConn{PacketConn: pc}
		return conn, nil
	}

	c := newSimClient(t, s, WithClock(mock), WithListener(listen))

	addr, err := c.GetPublicAddress(context.Background())
	require.NoError(t, err)
	assert.True(t, addr.Is4())

	require.NotNil(t, conn)
	conn.mu.Lock()
	defer conn.mu.Unlock()
	require.Len(t, conn.deadlines, 1)
	// 第一次尝试等待 250ms << 1
	assert.Equal(t, mock.Now().Add(500*time.Millisecond), conn.deadlines[0])
}
