package harvest

import (
	"slices"
	"time"

	"github.com/google/uuid"

	pkgif "github.com/dep2p/go-harvest/pkg/interfaces"
)

// DegradationKind 降级类型
type DegradationKind int

const (
	// ResourceUnavailable 没有可用的 UDP 采集器
	ResourceUnavailable DegradationKind = iota + 1
	// BindFailure TCP 采集器绑定失败
	BindFailure
)

// String 返回降级类型名称
func (k DegradationKind) String() string {
	switch k {
	case ResourceUnavailable:
		return "resource_unavailable"
	case BindFailure:
		return "bind_failure"
	default:
		return "unknown"
	}
}

// Degradation 构造过程中记录的一次降级
type Degradation struct {
	Kind DegradationKind
	Err  error
}

// Set 采集器集合
//
// 构造后不可变。TCP 采集器要么在构造时存在，要么永远不存在。
type Set struct {
	id        uuid.UUID
	createdAt time.Time

	tcp pkgif.TCPHarvester
	udp []pkgif.UDPHarvester

	// gatewayPort 通过网关端口映射申请到的外部端口，0 表示没有
	gatewayPort int

	degradations []Degradation
}

// ID 返回集合标识
func (s *Set) ID() uuid.UUID {
	return s.id
}

// CreatedAt 返回构造时间
func (s *Set) CreatedAt() time.Time {
	return s.createdAt
}

// TCP 返回 TCP 采集器
func (s *Set) TCP() (pkgif.TCPHarvester, bool) {
	return s.tcp, s.tcp != nil
}

// UDP 返回单端口 UDP 采集器（副本）
func (s *Set) UDP() []pkgif.UDPHarvester {
	return slices.Clone(s.udp)
}

// Healthy 至少有一个 UDP 采集器时为 true，与 TCP 无关
func (s *Set) Healthy() bool {
	return len(s.udp) > 0
}

// GatewayPort 返回网关端口映射分配的外部 TCP 端口
func (s *Set) GatewayPort() (int, bool) {
	return s.gatewayPort, s.gatewayPort > 0
}

// Degradations 返回构造时记录的降级
func (s *Set) Degradations() []Degradation {
	return slices.Clone(s.degradations)
}
