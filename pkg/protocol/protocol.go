package protocol

import (
	"fmt"
	"strings"
)

// ============================================================================
//                              协议常量
// ============================================================================

const (
	// Version NAT-PMP 协议版本号，请求与响应都必须为 0
	Version uint8 = 0

	// ServerPort 网关监听 NAT-PMP 请求的 UDP 端口
	ServerPort = 5351

	// ResponseBit 网关在响应 opcode 上设置的最高位
	ResponseBit uint8 = 0x80

	// opcodeMask 去掉响应位后的 opcode 掩码
	opcodeMask uint8 = 0x7f

	// HeaderSize 响应公共头长度：version(1) + opcode(1) + result(2)
	HeaderSize = 4

	// ExternalAddressRequestSize 外部地址请求长度
	ExternalAddressRequestSize = 2

	// MappingRequestSize 映射类请求长度
	MappingRequestSize = 12

	// ExternalAddressResponseSize 外部地址响应长度
	ExternalAddressResponseSize = 12

	// MappingResponseSize 映射类响应长度
	MappingResponseSize = 16
)

// ============================================================================
//                              Opcode
// ============================================================================

// Opcode 报文操作码
type Opcode uint8

const (
	// OpcodeExternalAddress 查询外部地址
	OpcodeExternalAddress Opcode = 0

	// OpcodeMapUDP UDP 端口映射
	OpcodeMapUDP Opcode = 1

	// OpcodeMapTCP TCP 端口映射
	OpcodeMapTCP Opcode = 2
)

// Response 返回对应响应报文的 opcode（设置响应位）
func (o Opcode) Response() uint8 {
	return uint8(o) | ResponseBit
}

// String 返回 opcode 的字符串表示
func (o Opcode) String() string {
	switch o {
	case OpcodeExternalAddress:
		return "external-address"
	case OpcodeMapUDP:
		return "map-udp"
	case OpcodeMapTCP:
		return "map-tcp"
	default:
		return fmt.Sprintf("opcode(%d)", uint8(o))
	}
}

// maskOpcode 去掉网关响应位
func maskOpcode(raw uint8) Opcode {
	return Opcode(raw & opcodeMask)
}

// ============================================================================
//                              映射协议
// ============================================================================

// Protocol 端口映射协议
//
// 线路值同时是映射类请求的 opcode。编码与解码共用同一张表。
type Protocol uint8

const (
	// ProtocolUDP UDP 映射
	ProtocolUDP Protocol = 1

	// ProtocolTCP TCP 映射
	ProtocolTCP Protocol = 2
)

// ParseProtocol 从线路字节解析协议
func ParseProtocol(b uint8) (Protocol, error) {
	switch Protocol(b) {
	case ProtocolUDP, ProtocolTCP:
		return Protocol(b), nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrInvalidProtocol, b)
	}
}

// ParseProtocolName 从名称解析协议（"udp" / "tcp"，大小写不敏感）
func ParseProtocolName(name string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "udp":
		return ProtocolUDP, nil
	case "tcp":
		return ProtocolTCP, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidProtocol, name)
	}
}

// Byte 返回协议的线路值
func (p Protocol) Byte() uint8 {
	return uint8(p)
}

// Opcode 返回该协议映射请求的 opcode
func (p Protocol) Opcode() Opcode {
	return Opcode(p)
}

// Valid 是否为已定义的协议
func (p Protocol) Valid() bool {
	return p == ProtocolUDP || p == ProtocolTCP
}

// String 返回协议名称
func (p Protocol) String() string {
	switch p {
	case ProtocolUDP:
		return "UDP"
	case ProtocolTCP:
		return "TCP"
	default:
		return fmt.Sprintf("protocol(%d)", uint8(p))
	}
}

// Network 返回 net 包使用的网络名
func (p Protocol) Network() string {
	return strings.ToLower(p.String())
}
