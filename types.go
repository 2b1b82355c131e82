package natpmp

import (
	"github.com/dep2p/go-natpmp/internal/transport"
	"github.com/dep2p/go-natpmp/pkg/protocol"
)

// Protocol 映射协议
type Protocol = protocol.Protocol

// 映射协议
const (
	UDP = protocol.ProtocolUDP
	TCP = protocol.ProtocolTCP
)

// ParseProtocol 解析协议名（"udp" / "tcp"，不区分大小写）
func ParseProtocol(name string) (Protocol, error) {
	return protocol.ParseProtocolName(name)
}

// MappingResult 映射操作的结果
type MappingResult = protocol.MappingResponse

// ExternalAddress 外部地址查询结果
type ExternalAddress = protocol.ExternalAddressResponse

// Metrics 传输层 Prometheus 指标
type Metrics = transport.Metrics

// 默认值
const (
	// DefaultRetry 默认最大发送次数
	DefaultRetry uint = 9

	// DefaultLifetime 默认映射租期（秒）
	DefaultLifetime uint32 = 7200

	// DefaultPort 网关 NAT-PMP 端口
	DefaultPort uint16 = protocol.ServerPort
)
