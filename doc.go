// Package natpmp 是 NAT-PMP（RFC 6886）客户端
//
// NAT-PMP 让主机向 NAT 网关查询公网 IPv4 地址，并创建或删除端口映射。
//
// # 快速开始
//
//	// 查询公网地址（自动发现默认网关）
//	addr, err := natpmp.GetPublicAddress(ctx)
//
//	// 将本机 TCP 9999 映射到任意外部端口，租期 2 小时
//	m, err := natpmp.MapTCPPort(ctx, 9999)
//	fmt.Println(m.ExternalPort, m.TTL())
//
//	// 删除映射
//	_, err = natpmp.UnmapPort(ctx, natpmp.TCP, 9999)
//
// # 客户端
//
// 需要复用配置时使用 Client：
//
//	c, err := natpmp.NewClient(
//	    natpmp.WithGateway(netip.MustParseAddr("192.168.1.1")),
//	    natpmp.WithRetry(4),
//	)
//	m, err := c.MapPort(ctx, natpmp.UDP, 5000, natpmp.WithExternalPort(5000))
//
// Client 只保存不可变配置，可并发使用。每次调用都会创建并关闭自己的 UDP 套接字。
//
// # 错误
//
// 所有错误都是 *Error，按类别用 errors.Is 判断：
//
//	switch {
//	case errors.Is(err, natpmp.ErrNotAuthorized):   // 网关拒绝
//	case errors.Is(err, natpmp.ErrUnsupported):     // 重试耗尽，网关不支持 NAT-PMP
//	case errors.Is(err, natpmp.ErrNetwork):         // 套接字错误或 ctx 取消
//	}
//
// 网关拒绝与畸形响应不会重试；超时按 250ms * 2^n 退避重试，默认 9 次。
//
// # Fx 集成
//
// Module 提供 *Client，配置来自 config.Config。
package natpmp
