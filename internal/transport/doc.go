// Package transport 实现 NAT-PMP 请求的发送与重试
//
// 每次调用使用一个新的 UDP 套接字，按 RFC 6886 的退避规则重发请求：
// 第 n 次尝试等待 250ms * 2^n。只接受来自网关 IP 的数据报，
// 收到网关响应后交给 protocol.ParseRawResponse 解析。
//
// 重试过程由一个纯函数状态机驱动：
//
//	Attempt(n) --超时/非网关来源--> Attempt(n+1) 或 Exhausted
//	Attempt(n) --网关响应--------> Success
//	Attempt(n) --其他套接字错误--> Fatal
//
// 使用示例：
//
//	e := transport.New(transport.DefaultConfig())
//	resp, err := transport.Send[*protocol.ExternalAddressResponse](ctx, e, gw,
//	    protocol.NewExternalAddressRequest(), 9)
package transport
