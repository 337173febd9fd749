// Package portmap 实现网关端口映射
//
// 支持两种协议：
//
//   - upnp：UPnP IGD（依次尝试 IGDv2 / IGDv1 的 WANIPConnection 与 WANPPPConnection）
//   - natpmp：NAT-PMP，网关地址取自默认路由
//
// 网关发现延迟到第一次 MapPort，不阻塞启动。映射租期 1 小时，
// 后台按租期的 2/3 续期；Close 删除全部映射。
//
// # 使用示例
//
//	pm, err := portmap.New(portmap.ProtocolUPnP, 5*time.Second)
//	if err != nil {
//	    return err
//	}
//	defer pm.Close()
//
//	ext, err := pm.MapPort(ctx, "TCP", 4443)
package portmap
