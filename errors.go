package natpmp

import (
	"errors"

	"github.com/dep2p/go-natpmp/pkg/protocol"
)

// Error NAT-PMP 错误
type Error = protocol.Error

// ErrorKind 错误类别
type ErrorKind = protocol.ErrorKind

// ResultCode 网关结果码
type ResultCode = protocol.ResultCode

// 错误类别
const (
	KindGeneric     = protocol.KindGeneric
	KindNetwork     = protocol.KindNetwork
	KindUnsupported = protocol.KindUnsupported
	KindResponse    = protocol.KindResponse
	KindDeserialize = protocol.KindDeserialize
)

// 公共错误定义
var (
	// ────────────────────────────────────────────────────────────────────────
	// 错误类别
	// ────────────────────────────────────────────────────────────────────────

	// ErrGeneric 其他错误，例如找不到默认网关
	ErrGeneric = protocol.ErrGeneric

	// ErrNetwork 与网关通信的套接字错误
	ErrNetwork = protocol.ErrNetwork

	// ErrUnsupported 重试耗尽仍无有效响应
	ErrUnsupported = protocol.ErrUnsupported

	// ErrResponse 网关拒绝请求
	ErrResponse = protocol.ErrResponse

	// ErrDeserialize 响应格式错误
	ErrDeserialize = protocol.ErrDeserialize

	// ────────────────────────────────────────────────────────────────────────
	// 网关结果码
	// ────────────────────────────────────────────────────────────────────────

	ErrUnsupportedVersion = protocol.ErrUnsupportedVersion
	ErrNotAuthorized      = protocol.ErrNotAuthorized
	ErrNetworkFailure     = protocol.ErrNetworkFailure
	ErrOutOfResources     = protocol.ErrOutOfResources
	ErrUnsupportedOpcode  = protocol.ErrUnsupportedOpcode

	// ────────────────────────────────────────────────────────────────────────
	// 参数错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrZeroInternalPort 内部端口为 0
	ErrZeroInternalPort = protocol.ErrZeroInternalPort

	// ErrInvalidProtocol 协议不是 UDP 或 TCP
	ErrInvalidProtocol = protocol.ErrInvalidProtocol

	// ErrNotIPv4 网关地址不是 IPv4
	ErrNotIPv4 = errors.New("gateway address is not IPv4")

	// ErrInvalidRetry 重试次数为 0
	ErrInvalidRetry = errors.New("retry must be at least 1")

	// ErrInvalidPort 网关端口为 0
	ErrInvalidPort = errors.New("gateway port must not be zero")
)
