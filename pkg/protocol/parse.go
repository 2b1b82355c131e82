package protocol

import "encoding/binary"

// ParseRawResponse 解析网关响应
//
// 所有响应共用的校验顺序：
//  1. version 必须为 0，否则视为网关返回 UnsupportedVersion
//  2. opcode 去掉响应位后必须等于请求 opcode，否则为 Deserialize 错误
//  3. 结果码非零时映射为 Response 错误（未知结果码为 Deserialize），不再读取后续字节
//  4. 结果码为零时交给请求对应的响应体解析
func ParseRawResponse[R any](req Request[R], buf []byte) (R, error) {
	var zero R

	if len(buf) < HeaderSize {
		return zero, DeserializeError("response too short: %d bytes", len(buf))
	}

	if buf[0] != Version {
		return zero, ResponseError(ResultUnsupportedVersion)
	}

	opcode := maskOpcode(buf[1])
	if opcode != req.Opcode() {
		return zero, DeserializeError("response opcode %d does not match request opcode %d",
			uint8(opcode), uint8(req.Opcode()))
	}

	if raw := binary.BigEndian.Uint16(buf[2:4]); raw != uint16(ResultSuccess) {
		code, err := ParseResultCode(raw)
		if err != nil {
			return zero, err
		}
		return zero, ResponseError(code)
	}

	return req.ParseBody(opcode, buf[HeaderSize:])
}
