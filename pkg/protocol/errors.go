package protocol

import (
	"errors"
	"fmt"
)

// ============================================================================
//                              网关结果码
// ============================================================================

// ResultCode 网关在响应中返回的结果码（RFC 6886 §3.5）
type ResultCode uint16

const (
	// ResultSuccess 成功
	ResultSuccess ResultCode = 0

	// ResultUnsupportedVersion 不支持的协议版本
	ResultUnsupportedVersion ResultCode = 1

	// ResultNotAuthorizedRefused 未授权/被拒绝（例如网关关闭了 NAT-PMP）
	ResultNotAuthorizedRefused ResultCode = 2

	// ResultNetworkFailure 网络故障（例如网关尚未获得 DHCP 地址）
	ResultNetworkFailure ResultCode = 3

	// ResultOutOfResources 资源耗尽，无法创建更多映射
	ResultOutOfResources ResultCode = 4

	// ResultUnsupportedOpcode 不支持的 opcode
	ResultUnsupportedOpcode ResultCode = 5
)

// ParseResultCode 将线路上的非零结果码映射到已知集合
//
// 未知结果码返回 Deserialize 错误，携带原始值。
func ParseResultCode(raw uint16) (ResultCode, error) {
	code := ResultCode(raw)
	switch code {
	case ResultUnsupportedVersion,
		ResultNotAuthorizedRefused,
		ResultNetworkFailure,
		ResultOutOfResources,
		ResultUnsupportedOpcode:
		return code, nil
	default:
		return 0, DeserializeError("unrecognized result code %d", raw)
	}
}

// String 返回结果码名称
func (c ResultCode) String() string {
	switch c {
	case ResultSuccess:
		return "success"
	case ResultUnsupportedVersion:
		return "unsupported version"
	case ResultNotAuthorizedRefused:
		return "not authorized/refused"
	case ResultNetworkFailure:
		return "network failure"
	case ResultOutOfResources:
		return "out of resources"
	case ResultUnsupportedOpcode:
		return "unsupported opcode"
	default:
		return fmt.Sprintf("result(%d)", uint16(c))
	}
}

// ============================================================================
//                              错误分类
// ============================================================================

// ErrorKind 错误类别
type ErrorKind uint8

const (
	// KindGeneric 其他错误（例如找不到默认网关）
	KindGeneric ErrorKind = iota

	// KindNetwork 与网关通信时的 I/O 错误
	KindNetwork

	// KindUnsupported 重试耗尽仍无有效响应，推断网关不支持 NAT-PMP
	KindUnsupported

	// KindResponse 网关按 RFC 6886 明确拒绝了请求
	KindResponse

	// KindDeserialize 响应格式错误或结果码无法识别
	KindDeserialize
)

// String 返回类别名称
func (k ErrorKind) String() string {
	switch k {
	case KindGeneric:
		return "generic"
	case KindNetwork:
		return "network"
	case KindUnsupported:
		return "unsupported"
	case KindResponse:
		return "response"
	case KindDeserialize:
		return "deserialize"
	default:
		return "unknown"
	}
}

// Error NAT-PMP 错误
//
// Kind 决定错误类别；Kind 为 KindResponse 时 Result 携带网关结果码；
// Cause 携带底层错误（如 socket 错误），可通过 errors.Is/As 检查。
type Error struct {
	Kind    ErrorKind
	Result  ResultCode
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := "natpmp: " + e.Kind.String()
	if e.Kind == KindResponse {
		msg += ": " + e.Result.String()
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap 解包底层错误
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is 按类别匹配哨兵错误
//
// 哨兵的 Result 非零时还要求结果码一致。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Result == ResultSuccess || t.Result == e.Result
}

// 类别哨兵，配合 errors.Is 使用
var (
	ErrGeneric     = &Error{Kind: KindGeneric}
	ErrNetwork     = &Error{Kind: KindNetwork}
	ErrUnsupported = &Error{Kind: KindUnsupported}
	ErrResponse    = &Error{Kind: KindResponse}
	ErrDeserialize = &Error{Kind: KindDeserialize}
)

// 结果码哨兵
var (
	ErrUnsupportedVersion = &Error{Kind: KindResponse, Result: ResultUnsupportedVersion}
	ErrNotAuthorized      = &Error{Kind: KindResponse, Result: ResultNotAuthorizedRefused}
	ErrNetworkFailure     = &Error{Kind: KindResponse, Result: ResultNetworkFailure}
	ErrOutOfResources     = &Error{Kind: KindResponse, Result: ResultOutOfResources}
	ErrUnsupportedOpcode  = &Error{Kind: KindResponse, Result: ResultUnsupportedOpcode}
)

// 构造参数校验错误
var (
	// ErrZeroInternalPort 映射请求的内部端口不能为 0
	ErrZeroInternalPort = errors.New("natpmp: internal port must be non-zero")

	// ErrInvalidProtocol 协议不是 UDP/TCP
	ErrInvalidProtocol = errors.New("natpmp: invalid mapping protocol")
)

// NetworkError 包装网络 I/O 错误
func NetworkError(cause error) *Error {
	return &Error{Kind: KindNetwork, Cause: cause}
}

// UnsupportedError 重试耗尽
func UnsupportedError(tries uint) *Error {
	return &Error{Kind: KindUnsupported, Message: fmt.Sprintf("no valid response after %d tries", tries)}
}

// ResponseError 网关拒绝
func ResponseError(code ResultCode) *Error {
	return &Error{Kind: KindResponse, Result: code}
}

// DeserializeError 响应无法解析
func DeserializeError(format string, args ...any) *Error {
	return &Error{Kind: KindDeserialize, Message: fmt.Sprintf(format, args...)}
}

// GenericError 其他错误
func GenericError(msg string, cause error) *Error {
	return &Error{Kind: KindGeneric, Message: msg, Cause: cause}
}
