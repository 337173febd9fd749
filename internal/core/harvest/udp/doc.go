// Package udp 实现单端口 UDP 采集器工厂
//
// 每个可用的本地地址绑定一个 UDP socket（同一端口），并包装为
// pion/ice 的 UDPMuxDefault。所有 ICE 会话共享这些 socket，按 ufrag 分流。
//
// # 地址选择
//
//   - 跳过未启用的网卡
//   - 默认跳过回环地址（IncludeLoopback 可打开）
//   - 跳过链路本地地址
//   - Interfaces 非空时只使用列出的网卡
//   - Networks 控制地址族（udp4 / udp6）
//
// # 失败处理
//
// 单个地址绑定失败只记录警告并跳过，不影响其他地址。
// 没有任何可用地址时返回空切片，由上层决定健康状态。
package udp
