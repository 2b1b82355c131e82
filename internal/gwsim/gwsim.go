// Package gwsim 提供一个运行在回环地址上的 NAT-PMP 网关模拟器
//
// 模拟器使用 pkg/protocol 的响应编码，维护一张内存映射表，
// 支持丢弃前 N 个请求、强制返回指定结果码等故障注入，供测试使用。
package gwsim

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"

	"github.com/dep2p/go-natpmp/internal/util/logger"
	"github.com/dep2p/go-natpmp/pkg/protocol"
)

// Option 模拟器选项
type Option func(*Server)

// WithExternalAddress 设置模拟的公网地址
func WithExternalAddress(addr netip.Addr) Option {
	return func(s *Server) { s.external = addr }
}

// WithDrop 丢弃前 n 个请求，不做任何应答
func WithDrop(n int) Option {
	return func(s *Server) { s.drop.Store(int64(n)) }
}

// WithResult 对所有请求返回指定的结果码
func WithResult(code protocol.ResultCode) Option {
	return func(s *Server) { s.result = code }
}

// WithEpoch 设置响应中的 seconds since epoch
func WithEpoch(epoch uint32) Option {
	return func(s *Server) { s.epoch = epoch }
}

// WithRawReply 对所有请求返回固定字节，用于构造畸形响应
func WithRawReply(b []byte) Option {
	return func(s *Server) { s.raw = append([]byte(nil), b...) }
}

// Mapping 模拟器中的一条映射
type Mapping struct {
	Protocol     protocol.Protocol
	InternalPort uint16
	ExternalPort uint16
	Lifetime     uint32
}

type mappingKey struct {
	proto    protocol.Protocol
	internal uint16
}

// Server NAT-PMP 网关模拟器
type Server struct {
	conn net.PacketConn
	log  *slog.Logger

	external netip.Addr
	result   protocol.ResultCode
	epoch    uint32
	raw      []byte

	drop     atomic.Int64
	requests atomic.Int64

	mu       sync.Mutex
	mappings map[mappingKey]Mapping

	wg sync.WaitGroup
}

// Listen 在 addr 上启动模拟器，例如 "127.0.0.1:0"
func Listen(addr string, opts ...Option) (*Server, error) {
	conn, err := net.ListenPacket("udp4", addr)
	if err != nil {
		return nil, err
	}

	s := &Server{
		conn:     conn,
		log:      logger.Logger("natpmp.gwsim"),
		external: netip.AddrFrom4([4]byte{203, 0, 113, 1}),
		epoch:    1000,
		mappings: make(map[mappingKey]Mapping),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.wg.Add(1)
	go s.serve()

	return s, nil
}

// AddrPort 返回模拟器监听地址
func (s *Server) AddrPort() netip.AddrPort {
	return s.conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

// Requests 返回收到的请求数（包括被丢弃的）
func (s *Server) Requests() int {
	return int(s.requests.Load())
}

// Mappings 返回当前映射表快照
func (s *Server) Mappings() []Mapping {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Mapping, 0, len(s.mappings))
	for _, m := range s.mappings {
		out = append(out, m)
	}
	return out
}

// Close 停止模拟器
func (s *Server) Close() error {
	err := s.conn.Close()
	s.wg.Wait()
	return err
}

func (s *Server) serve() {
	defer s.wg.Done()

	buf := make([]byte, 64)
	for {
		n, from, err := s.conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Debug("读取请求失败", "err", err)
			continue
		}
		s.requests.Add(1)

		if s.drop.Add(-1) >= 0 {
			s.log.Debug("丢弃请求", "from", from.String())
			continue
		}

		reply := s.handle(buf[:n])
		if reply == nil {
			continue
		}
		if _, err := s.conn.WriteTo(reply, from); err != nil {
			s.log.Debug("发送响应失败", "to", from.String(), "err", err)
		}
	}
}

// handle 处理一个请求，返回应答字节；nil 表示不应答
func (s *Server) handle(req []byte) []byte {
	if s.raw != nil {
		return s.raw
	}
	if len(req) < 2 {
		return nil
	}

	op := protocol.Opcode(req[1])
	size := protocol.MappingResponseSize
	if op == protocol.OpcodeExternalAddress {
		size = protocol.ExternalAddressResponseSize
	}

	switch {
	case req[0] != protocol.Version:
		return protocol.MarshalErrorResponse(op, protocol.ResultUnsupportedVersion, s.epoch, size)
	case s.result != protocol.ResultSuccess:
		return protocol.MarshalErrorResponse(op, s.result, s.epoch, size)
	}

	switch op {
	case protocol.OpcodeExternalAddress:
		resp := &protocol.ExternalAddressResponse{SecondsSinceEpoch: s.epoch, Address: s.external}
		b, err := resp.MarshalBinary()
		if err != nil {
			return protocol.MarshalErrorResponse(op, protocol.ResultNetworkFailure, s.epoch, size)
		}
		return b

	case protocol.OpcodeMapUDP, protocol.OpcodeMapTCP:
		if len(req) < protocol.MappingRequestSize {
			return nil
		}
		resp := s.mapPort(protocol.Protocol(op),
			binary.BigEndian.Uint16(req[4:6]),
			binary.BigEndian.Uint16(req[6:8]),
			binary.BigEndian.Uint32(req[8:12]))
		b, err := resp.MarshalBinary()
		if err != nil {
			return protocol.MarshalErrorResponse(op, protocol.ResultNetworkFailure, s.epoch, size)
		}
		return b

	default:
		return protocol.MarshalErrorResponse(op, protocol.ResultUnsupportedOpcode, s.epoch, protocol.HeaderSize+4)
	}
}

// mapPort 按 RFC 6886 第 3.3、3.4 节更新映射表
func (s *Server) mapPort(proto protocol.Protocol, internal, external uint16, lifetime uint32) *protocol.MappingResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := &protocol.MappingResponse{
		Protocol:          proto,
		InternalPort:      internal,
		SecondsSinceEpoch: s.epoch,
	}

	if lifetime == 0 {
		if internal == 0 {
			for k := range s.mappings {
				if k.proto == proto {
					delete(s.mappings, k)
				}
			}
		} else {
			delete(s.mappings, mappingKey{proto, internal})
		}
		s.log.Debug("删除映射", "protocol", proto.String(), "internal", internal)
		return resp
	}

	if external == 0 {
		external = internal
	}
	s.mappings[mappingKey{proto, internal}] = Mapping{
		Protocol:     proto,
		InternalPort: internal,
		ExternalPort: external,
		Lifetime:     lifetime,
	}
	resp.ExternalPort = external
	resp.Lifetime = lifetime

	s.log.Debug("创建映射",
		"protocol", proto.String(),
		"internal", internal,
		"external", external,
		"lifetime", lifetime)
	return resp
}

// String 返回可读形式
func (m Mapping) String() string {
	return fmt.Sprintf("%s %d -> %d (%ds)", m.Protocol, m.InternalPort, m.ExternalPort, m.Lifetime)
}
