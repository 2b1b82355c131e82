// Package protocol 定义 NAT-PMP (RFC 6886) 的线路格式
//
// 本包是 NAT-PMP 报文布局的单一真相源：请求编码、响应解析以及
// 网关结果码到类型化错误的映射都集中在这里，传输层只负责收发字节。
//
// # 报文分类
//
// 请求（客户端 → 网关，UDP 5351）：
//
//   - ExternalAddressRequest: 2 字节，查询网关公网 IPv4 地址
//   - MappingRequest: 12 字节，创建/续期端口映射
//   - UnmapPortRequest: 12 字节，删除单个内部端口的映射
//   - UnmapAllPortsRequest: 12 字节，删除某协议的全部映射
//
// 响应（网关 → 客户端，opcode 带 0x80 响应位）：
//
//   - ExternalAddressResponse: 12 字节
//   - MappingResponse: 16 字节
//
// 所有多字节字段均为网络字节序（大端）。
//
// # 使用示例
//
//	req, err := protocol.NewMappingRequest(protocol.ProtocolTCP, 9999, 0, 7200)
//	if err != nil {
//	    return err
//	}
//	payload, _ := req.MarshalBinary()
//	// ... 发送 payload，接收 buf ...
//	resp, err := protocol.ParseRawResponse(req, buf)
package protocol
