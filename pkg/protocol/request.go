package protocol

import (
	"encoding/binary"
	"fmt"
)

// ============================================================================
//                              Request 接口
// ============================================================================

// Request NAT-PMP 请求
//
// 类型参数 R 是该请求期望的响应类型。请求集合是封闭的：
// 只有本包中的四种请求实现该接口。
type Request[R any] interface {
	// Opcode 请求 opcode，用于匹配响应
	Opcode() Opcode

	// MarshalBinary 编码为线路字节
	MarshalBinary() ([]byte, error)

	// ResponseSize 期望响应的固定长度，用于预分配接收缓冲区
	ResponseSize() int

	// ParseBody 解析去掉公共头后的响应体
	ParseBody(opcode Opcode, body []byte) (R, error)

	sealed()
}

// 确保实现接口
var (
	_ Request[*ExternalAddressResponse] = ExternalAddressRequest{}
	_ Request[*MappingResponse]         = MappingRequest{}
	_ Request[*MappingResponse]         = UnmapPortRequest{}
	_ Request[*MappingResponse]         = UnmapAllPortsRequest{}
)

// ============================================================================
//                              外部地址请求
// ============================================================================

// ExternalAddressRequest 查询网关公网地址
type ExternalAddressRequest struct{}

// NewExternalAddressRequest 创建外部地址请求
func NewExternalAddressRequest() ExternalAddressRequest {
	return ExternalAddressRequest{}
}

// Opcode 实现 Request
func (ExternalAddressRequest) Opcode() Opcode { return OpcodeExternalAddress }

// ResponseSize 实现 Request
func (ExternalAddressRequest) ResponseSize() int { return ExternalAddressResponseSize }

// MarshalBinary 实现 encoding.BinaryMarshaler
func (ExternalAddressRequest) MarshalBinary() ([]byte, error) {
	return []byte{Version, uint8(OpcodeExternalAddress)}, nil
}

// ParseBody 实现 Request
func (ExternalAddressRequest) ParseBody(_ Opcode, body []byte) (*ExternalAddressResponse, error) {
	return parseExternalAddressBody(body)
}

func (ExternalAddressRequest) sealed() {}

// ============================================================================
//                              映射请求
// ============================================================================

// MappingRequest 创建端口映射
type MappingRequest struct {
	protocol     Protocol
	internalPort uint16
	externalPort uint16
	lifetime     uint32
}

// NewMappingRequest 创建映射请求
//
// externalPort 为 0 表示由网关任意分配；lifetime 单位为秒。
func NewMappingRequest(proto Protocol, internalPort, externalPort uint16, lifetime uint32) (MappingRequest, error) {
	if err := checkMappingArgs(proto, internalPort); err != nil {
		return MappingRequest{}, err
	}
	return MappingRequest{
		protocol:     proto,
		internalPort: internalPort,
		externalPort: externalPort,
		lifetime:     lifetime,
	}, nil
}

// Protocol 返回映射协议
func (r MappingRequest) Protocol() Protocol { return r.protocol }

// InternalPort 返回内部端口
func (r MappingRequest) InternalPort() uint16 { return r.internalPort }

// ExternalPort 返回请求的外部端口
func (r MappingRequest) ExternalPort() uint16 { return r.externalPort }

// Lifetime 返回请求的租期（秒）
func (r MappingRequest) Lifetime() uint32 { return r.lifetime }

// Opcode 实现 Request
func (r MappingRequest) Opcode() Opcode { return r.protocol.Opcode() }

// ResponseSize 实现 Request
func (MappingRequest) ResponseSize() int { return MappingResponseSize }

// MarshalBinary 实现 encoding.BinaryMarshaler
func (r MappingRequest) MarshalBinary() ([]byte, error) {
	return marshalMapping(r.protocol, r.internalPort, r.externalPort, r.lifetime), nil
}

// ParseBody 实现 Request
func (MappingRequest) ParseBody(opcode Opcode, body []byte) (*MappingResponse, error) {
	return parseMappingBody(opcode, body, false)
}

func (MappingRequest) sealed() {}

// ============================================================================
//                              删除单个映射
// ============================================================================

// UnmapPortRequest 删除某个内部端口的映射
//
// 外部端口与租期固定为 0。
type UnmapPortRequest struct {
	protocol     Protocol
	internalPort uint16
}

// NewUnmapPortRequest 创建删除映射请求
func NewUnmapPortRequest(proto Protocol, internalPort uint16) (UnmapPortRequest, error) {
	if err := checkMappingArgs(proto, internalPort); err != nil {
		return UnmapPortRequest{}, err
	}
	return UnmapPortRequest{protocol: proto, internalPort: internalPort}, nil
}

// Protocol 返回映射协议
func (r UnmapPortRequest) Protocol() Protocol { return r.protocol }

// InternalPort 返回内部端口
func (r UnmapPortRequest) InternalPort() uint16 { return r.internalPort }

// Opcode 实现 Request
func (r UnmapPortRequest) Opcode() Opcode { return r.protocol.Opcode() }

// ResponseSize 实现 Request
func (UnmapPortRequest) ResponseSize() int { return MappingResponseSize }

// MarshalBinary 实现 encoding.BinaryMarshaler
func (r UnmapPortRequest) MarshalBinary() ([]byte, error) {
	return marshalMapping(r.protocol, r.internalPort, 0, 0), nil
}

// ParseBody 实现 Request
func (UnmapPortRequest) ParseBody(opcode Opcode, body []byte) (*MappingResponse, error) {
	return parseMappingBody(opcode, body, false)
}

func (UnmapPortRequest) sealed() {}

// ============================================================================
//                              删除全部映射
// ============================================================================

// UnmapAllPortsRequest 删除某协议的全部映射
//
// 内部端口、外部端口、租期均固定为 0。
type UnmapAllPortsRequest struct {
	protocol Protocol
}

// NewUnmapAllPortsRequest 创建删除全部映射请求
func NewUnmapAllPortsRequest(proto Protocol) (UnmapAllPortsRequest, error) {
	if !proto.Valid() {
		return UnmapAllPortsRequest{}, fmt.Errorf("%w: %d", ErrInvalidProtocol, uint8(proto))
	}
	return UnmapAllPortsRequest{protocol: proto}, nil
}

// Protocol 返回映射协议
func (r UnmapAllPortsRequest) Protocol() Protocol { return r.protocol }

// Opcode 实现 Request
func (r UnmapAllPortsRequest) Opcode() Opcode { return r.protocol.Opcode() }

// ResponseSize 实现 Request
func (UnmapAllPortsRequest) ResponseSize() int { return MappingResponseSize }

// MarshalBinary 实现 encoding.BinaryMarshaler
func (r UnmapAllPortsRequest) MarshalBinary() ([]byte, error) {
	return marshalMapping(r.protocol, 0, 0, 0), nil
}

// ParseBody 实现 Request
//
// 网关对“删除全部”的应答内部端口为 0，这里允许。
func (UnmapAllPortsRequest) ParseBody(opcode Opcode, body []byte) (*MappingResponse, error) {
	return parseMappingBody(opcode, body, true)
}

func (UnmapAllPortsRequest) sealed() {}

// ============================================================================
//                              辅助函数
// ============================================================================

func checkMappingArgs(proto Protocol, internalPort uint16) error {
	if !proto.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidProtocol, uint8(proto))
	}
	if internalPort == 0 {
		return ErrZeroInternalPort
	}
	return nil
}

// marshalMapping 编码 12 字节映射类请求
func marshalMapping(proto Protocol, internalPort, externalPort uint16, lifetime uint32) []byte {
	msg := make([]byte, MappingRequestSize)
	msg[0] = Version
	msg[1] = proto.Byte()
	// [2:4] 保留
	binary.BigEndian.PutUint16(msg[4:6], internalPort)
	binary.BigEndian.PutUint16(msg[6:8], externalPort)
	binary.BigEndian.PutUint32(msg[8:12], lifetime)
	return msg
}
