// Package stun 通过 STUN 服务器发现公网映射地址
//
// Client 向配置的 STUN 服务器发送 Binding Request（RFC 5389），
// 从响应的 XOR-MAPPED-ADDRESS（或旧版 MAPPED-ADDRESS）取得本机经 NAT
// 映射后的地址。多个服务器依次尝试，每个服务器失败后指数退避重试，
// 成功结果缓存一段时间。
//
// # 使用示例
//
//	client := stun.NewClient(stun.Config{Servers: []string{"stun.l.google.com:19302"}})
//	addr, err := client.GetExternalAddr(ctx)
package stun
