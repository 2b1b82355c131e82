package protocol

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"time"
)

// ============================================================================
//                              外部地址响应
// ============================================================================

// ExternalAddressResponse 网关公网地址
type ExternalAddressResponse struct {
	// SecondsSinceEpoch 网关自上次重启（映射表重置）以来的秒数
	SecondsSinceEpoch uint32

	// Address 网关公网 IPv4 地址
	Address netip.Addr
}

// MarshalBinary 编码为 12 字节成功响应
func (r *ExternalAddressResponse) MarshalBinary() ([]byte, error) {
	if !r.Address.Is4() {
		return nil, fmt.Errorf("natpmp: external address %s is not IPv4", r.Address)
	}
	msg := make([]byte, ExternalAddressResponseSize)
	putHeader(msg, OpcodeExternalAddress, ResultSuccess)
	binary.BigEndian.PutUint32(msg[4:8], r.SecondsSinceEpoch)
	ip := r.Address.As4()
	copy(msg[8:12], ip[:])
	return msg, nil
}

// String 返回可读形式
func (r *ExternalAddressResponse) String() string {
	return fmt.Sprintf("external address: %s, seconds since epoch: %d", r.Address, r.SecondsSinceEpoch)
}

// parseExternalAddressBody 解析外部地址响应体：seconds(4) + ipv4(4)
func parseExternalAddressBody(body []byte) (*ExternalAddressResponse, error) {
	if len(body) < ExternalAddressResponseSize-HeaderSize {
		return nil, DeserializeError("external address response truncated: %d body bytes", len(body))
	}
	// 地址字段已是网络字节序，直接按字节构造
	return &ExternalAddressResponse{
		SecondsSinceEpoch: binary.BigEndian.Uint32(body[0:4]),
		Address:           netip.AddrFrom4([4]byte(body[4:8])),
	}, nil
}

// ============================================================================
//                              映射响应
// ============================================================================

// MappingResponse 端口映射结果
type MappingResponse struct {
	// Protocol 由响应 opcode 推导的协议
	Protocol Protocol

	// InternalPort 内部端口
	InternalPort uint16

	// ExternalPort 网关实际分配的外部端口
	ExternalPort uint16

	// Lifetime 网关授予的租期（秒），删除映射时为 0
	Lifetime uint32

	// SecondsSinceEpoch 网关自上次重启以来的秒数
	SecondsSinceEpoch uint32
}

// TTL 返回租期
func (r *MappingResponse) TTL() time.Duration {
	return time.Duration(r.Lifetime) * time.Second
}

// MarshalBinary 编码为 16 字节成功响应
func (r *MappingResponse) MarshalBinary() ([]byte, error) {
	if !r.Protocol.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidProtocol, uint8(r.Protocol))
	}
	msg := make([]byte, MappingResponseSize)
	putHeader(msg, r.Protocol.Opcode(), ResultSuccess)
	binary.BigEndian.PutUint32(msg[4:8], r.SecondsSinceEpoch)
	binary.BigEndian.PutUint16(msg[8:10], r.InternalPort)
	binary.BigEndian.PutUint16(msg[10:12], r.ExternalPort)
	binary.BigEndian.PutUint32(msg[12:16], r.Lifetime)
	return msg, nil
}

// String 返回可读形式
func (r *MappingResponse) String() string {
	return fmt.Sprintf("protocol: %s, internal port: %d, external port: %d, lifetime: %d, seconds since epoch: %d",
		r.Protocol, r.InternalPort, r.ExternalPort, r.Lifetime, r.SecondsSinceEpoch)
}

// parseMappingBody 解析映射响应体
//
// 布局：seconds(4) + internal(2) + external(2) + lifetime(4)。
// allowZeroInternal 仅用于“删除全部映射”的应答。
func parseMappingBody(opcode Opcode, body []byte, allowZeroInternal bool) (*MappingResponse, error) {
	proto, err := ParseProtocol(uint8(opcode))
	if err != nil {
		return nil, DeserializeError("invalid protocol code %d in response opcode", uint8(opcode))
	}
	if len(body) < MappingResponseSize-HeaderSize {
		return nil, DeserializeError("mapping response truncated: %d body bytes", len(body))
	}

	resp := &MappingResponse{
		Protocol:          proto,
		SecondsSinceEpoch: binary.BigEndian.Uint32(body[0:4]),
		InternalPort:      binary.BigEndian.Uint16(body[4:6]),
		ExternalPort:      binary.BigEndian.Uint16(body[6:8]),
		Lifetime:          binary.BigEndian.Uint32(body[8:12]),
	}
	if resp.InternalPort == 0 && !allowZeroInternal {
		return nil, DeserializeError("mapping response has zero internal port")
	}
	return resp, nil
}

// ============================================================================
//                              公共头
// ============================================================================

// putHeader 写入响应公共头
func putHeader(msg []byte, opcode Opcode, code ResultCode) {
	msg[0] = Version
	msg[1] = opcode.Response()
	binary.BigEndian.PutUint16(msg[2:4], uint16(code))
}

// MarshalErrorResponse 编码网关拒绝响应
//
// 布局与成功响应一致，仅携带公共头与 epoch，其余字节为 0。
// 长度由 size 指定（12 或 16），主要供网关模拟器使用。
func MarshalErrorResponse(opcode Opcode, code ResultCode, secondsSinceEpoch uint32, size int) []byte {
	if size < HeaderSize+4 {
		size = HeaderSize + 4
	}
	msg := make([]byte, size)
	putHeader(msg, opcode, code)
	binary.BigEndian.PutUint32(msg[4:8], secondsSinceEpoch)
	return msg
}
