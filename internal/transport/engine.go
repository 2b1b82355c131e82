package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"os"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-natpmp/internal/util/logger"
	"github.com/dep2p/go-natpmp/pkg/protocol"
)

// DefaultBaseTimeout 退避基准时长
const DefaultBaseTimeout = 250 * time.Millisecond

// ListenFunc 创建一个未绑定端口的 UDP 套接字
type ListenFunc func(ctx context.Context) (net.PacketConn, error)

// ListenUDP4 默认的套接字工厂：绑定 0.0.0.0 的临时端口
func ListenUDP4(ctx context.Context) (net.PacketConn, error) {
	var lc net.ListenConfig
	return lc.ListenPacket(ctx, "udp4", ":0")
}

// Config 传输引擎配置
type Config struct {
	// Port 网关端口，默认 5351
	Port uint16

	// BaseTimeout 退避基准时长，默认 250ms
	BaseTimeout time.Duration

	// Listen 套接字工厂，默认 ListenUDP4
	Listen ListenFunc

	// Clock 用于计算读超时的时钟
	Clock clock.Clock

	// Logger 为 nil 时使用 natpmp.transport 子系统日志
	Logger *slog.Logger

	// Metrics 为 nil 时不记录指标
	Metrics *Metrics
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Port:        protocol.ServerPort,
		BaseTimeout: DefaultBaseTimeout,
		Listen:      ListenUDP4,
		Clock:       clock.New(),
	}
}

// Engine 传输引擎
//
// Engine 只保存不可变配置，可被多个 goroutine 同时使用。
type Engine struct {
	port    uint16
	base    time.Duration
	listen  ListenFunc
	clock   clock.Clock
	log     *slog.Logger
	metrics *Metrics
}

// New 创建传输引擎，未设置的字段使用默认值
func New(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.Port == 0 {
		cfg.Port = def.Port
	}
	if cfg.BaseTimeout <= 0 {
		cfg.BaseTimeout = def.BaseTimeout
	}
	if cfg.Listen == nil {
		cfg.Listen = def.Listen
	}
	if cfg.Clock == nil {
		cfg.Clock = def.Clock
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Logger("natpmp.transport")
	}

	return &Engine{
		port:    cfg.Port,
		base:    cfg.BaseTimeout,
		listen:  cfg.Listen,
		clock:   cfg.Clock,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
	}
}

// Port 返回网关端口
func (e *Engine) Port() uint16 {
	return e.port
}

// ============================================================================
//                              发送与重试
// ============================================================================

// Send 向网关发送请求并等待响应
//
// 最多发送 maxTries 次。返回值：
//   - 网关响应：解析结果，或 Response / Deserialize 错误（不重试）
//   - 全部超时：Unsupported 错误
//   - 套接字错误或 ctx 取消：Network 错误，包装原始错误
func Send[R any](ctx context.Context, e *Engine, gateway netip.Addr, req protocol.Request[R], maxTries uint) (resp R, err error) {
	op := req.Opcode()
	defer func() { e.metrics.result(op, err) }()

	var zero R
	if maxTries == 0 {
		return zero, protocol.UnsupportedError(0)
	}

	gateway = gateway.Unmap()
	if !gateway.Is4() {
		return zero, protocol.GenericError(fmt.Sprintf("gateway %s is not an IPv4 address", gateway), nil)
	}

	msg, err := req.MarshalBinary()
	if err != nil {
		return zero, protocol.GenericError("encode request", err)
	}

	if err := ctx.Err(); err != nil {
		return zero, protocol.NetworkError(err)
	}

	conn, err := e.listen(ctx)
	if err != nil {
		return zero, protocol.NetworkError(err)
	}
	defer func() { _ = conn.Close() }()

	// 取消时把读超时拨到过去，打断阻塞中的 ReadFrom
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Unix(1, 0))
	})
	defer stop()

	x := &exchange{
		engine:  e,
		conn:    conn,
		gateway: gateway,
		dst:     net.UDPAddrFromAddrPort(netip.AddrPortFrom(gateway, e.port)),
		op:      op,
		msg:     msg,
		buf:     make([]byte, req.ResponseSize()),
	}

	st := initialState()
	for {
		ev, n, cause := x.attempt(ctx, st.attempt)
		st = next(st, ev, maxTries)

		switch st.kind {
		case stateSuccess:
			return protocol.ParseRawResponse(req, x.buf[:n])
		case stateExhausted:
			e.log.Warn("网关无响应，放弃请求",
				"gateway", gateway.String(),
				"opcode", op.String(),
				"tries", maxTries)
			return zero, protocol.UnsupportedError(maxTries)
		case stateFatal:
			e.log.Debug("请求中止",
				"gateway", gateway.String(),
				"opcode", op.String(),
				"attempt", st.attempt,
				"err", cause)
			return zero, protocol.NetworkError(cause)
		}
	}
}

// exchange 一次 Send 调用的内部状态
type exchange struct {
	engine  *Engine
	conn    net.PacketConn
	gateway netip.Addr
	dst     *net.UDPAddr
	op      protocol.Opcode
	msg     []byte
	buf     []byte
}

// attempt 执行第 n 次尝试：发送、设置读超时、接收一个数据报
//
// 返回事件、读取字节数，以及 eventFatal 时的原因。
func (x *exchange) attempt(ctx context.Context, n uint) (event, int, error) {
	e := x.engine

	if err := ctx.Err(); err != nil {
		return eventFatal, 0, err
	}

	clear(x.buf)

	start := e.clock.Now()
	if _, err := x.conn.WriteTo(x.msg, x.dst); err != nil {
		return eventFatal, 0, err
	}
	e.metrics.attempt(x.op)

	timeout := AttemptTimeout(e.base, n)
	if err := x.conn.SetReadDeadline(start.Add(timeout)); err != nil {
		return eventFatal, 0, err
	}
	// 取消可能发生在设置读超时之前
	if err := ctx.Err(); err != nil {
		return eventFatal, 0, err
	}

	e.log.Debug("发送请求",
		"gateway", x.gateway.String(),
		"opcode", x.op.String(),
		"attempt", n,
		"timeout", timeout)

	read, from, err := x.conn.ReadFrom(x.buf)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return eventFatal, 0, ctxErr
		}
		if isTimeout(err) {
			e.log.Warn("等待网关响应超时",
				"gateway", x.gateway.String(),
				"opcode", x.op.String(),
				"attempt", n,
				"timeout", timeout)
			return eventTimeout, 0, nil
		}
		return eventFatal, 0, err
	}

	if src, ok := sourceIP(from); !ok || src != x.gateway {
		e.metrics.discard()
		e.log.Debug("丢弃非网关来源的数据报",
			"gateway", x.gateway.String(),
			"from", addrString(from),
			"attempt", n)
		return eventForeign, 0, nil
	}

	e.metrics.roundTrip(e.clock.Since(start))
	return eventReply, read, nil
}

// ============================================================================
//                              辅助函数
// ============================================================================

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// sourceIP 提取数据报来源 IP，端口不参与比较
func sourceIP(addr net.Addr) (netip.Addr, bool) {
	switch a := addr.(type) {
	case nil:
		return netip.Addr{}, false
	case *net.UDPAddr:
		ip, ok := netip.AddrFromSlice(a.IP)
		return ip.Unmap(), ok
	default:
		ap, err := netip.ParseAddrPort(a.String())
		if err != nil {
			return netip.Addr{}, false
		}
		return ap.Addr().Unmap(), true
	}
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return "<nil>"
	}
	return addr.String()
}
