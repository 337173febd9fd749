// Package harvest 提供进程级 ICE 候选采集器
//
// 一个进程只持有一组采集器：每个可用网卡地址一个单端口 UDP 采集器，
// 外加一个可选的 TCP 采集器。集合在第一次使用时构造，此后所有 ICE
// 会话共享同一组 socket。
//
// # 快速开始
//
//	cfg := config.NewConfig()
//	cfg.ICE.TCP.Enabled = true
//
//	node, err := harvest.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := node.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer node.Stop(context.Background())
//
//	m := node.Harvesters()
//	if !m.Healthy() {
//	    // 没有任何 UDP 采集器，ICE 只能依赖 TCP 或中继候选
//	}
//
// # 降级
//
// 构造过程不会失败：
//   - 没有可用网卡时 UDP 列表为空，Healthy 返回 false
//   - TCP 端口被占用时只记录 BindFailure，TCP 采集器缺失
//   - 网关映射失败只记录调试日志
//
// # 组成
//
//	┌──────────────────────────────────────────────────────────┐
//	│  Node          harvest.New() / Start() / Stop()           │
//	├──────────────────────────────────────────────────────────┤
//	│  harvest       采集器管理器（UDP / TCP 工厂）             │
//	│  portmap       UPnP / NAT-PMP 网关映射                    │
//	│  stun          公网映射地址发现                           │
//	│  metrics       Prometheus 指标                            │
//	│  introspect    /health、/metrics、/debug/*                │
//	└──────────────────────────────────────────────────────────┘
package harvest
