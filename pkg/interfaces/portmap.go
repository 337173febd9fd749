// Package interfaces 定义 go-harvest 公共接口
//
// 本文件定义 NAT 相关接口：端口映射与 STUN 地址发现。
package interfaces

import (
	"context"
	"net"
)

// PortMapper 网关端口映射器
//
// 实现位置：internal/core/nat/portmap/
type PortMapper interface {
	// Name 映射协议名（upnp / natpmp）
	Name() string

	// MapPort 为 internalPort 申请映射，返回网关分配的外部端口
	//
	// proto 取值 "TCP" 或 "UDP"。
	MapPort(ctx context.Context, proto string, internalPort int) (int, error)

	// UnmapPort 删除映射
	UnmapPort(proto string, externalPort int) error

	// Close 删除全部映射并释放资源
	Close() error
}

// AddressDiscoverer 公网地址发现
//
// 实现位置：internal/core/nat/stun/
type AddressDiscoverer interface {
	// GetExternalAddr 返回本机经 NAT 映射后的地址
	GetExternalAddr(ctx context.Context) (*net.UDPAddr, error)
}
