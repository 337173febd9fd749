// Package interfaces 定义 go-harvest 公共接口
//
// 本文件定义候选采集器接口。ICE Agent 通过这些接口取得共享的 UDP / TCP 复用器。
package interfaces

import (
	"io"
	"net"

	"github.com/pion/ice/v2"
)

// ════════════════════════════════════════════════════════════════════════════
// 采集器
// 实现位置：internal/core/harvest/udp/、internal/core/harvest/tcp/
// ════════════════════════════════════════════════════════════════════════════

// UDPHarvester 单端口 UDP 采集器
//
// 一个采集器绑定一个本地地址上的 UDP socket，由所有会话按 ufrag 分流共享。
type UDPHarvester interface {
	io.Closer

	// Mux 返回交给 ICE Agent 使用的 UDP 复用器
	Mux() ice.UDPMux

	// LocalAddr 返回绑定的本地地址
	LocalAddr() *net.UDPAddr
}

// TCPHarvester 共享 TCP 监听采集器
type TCPHarvester interface {
	io.Closer

	// Mux 返回交给 ICE Agent 使用的 TCP 复用器
	Mux() ice.TCPMux

	// LocalPort 返回本地监听端口
	LocalPort() int

	// SSLTCP 是否启用伪 SSL 握手帧头
	SSLTCP() bool

	// AddMappedPort 登记对外映射端口（静态 NAT / 端口转发）
	AddMappedPort(port int)

	// MappedPorts 返回已登记的映射端口
	MappedPorts() []int

	// AdvertisedPort 返回候选中通告的端口：
	// 有映射端口时为第一个映射端口，否则为本地监听端口
	AdvertisedPort() int
}

// ════════════════════════════════════════════════════════════════════════════
// 采集器工厂
// ════════════════════════════════════════════════════════════════════════════

// UDPFactory 创建单端口 UDP 采集器
type UDPFactory interface {
	// CreateHarvesters 在每个可用的本地地址上绑定 port
	//
	// 没有可用网卡时返回空切片；返回的切片不含 nil 元素。
	CreateHarvesters(port int) []UDPHarvester
}

// TCPFactory 创建 TCP 采集器
type TCPFactory interface {
	// CreateHarvester 在 port 上创建 TCP 采集器，ssltcp 控制是否使用伪 SSL 帧头
	CreateHarvester(port int, ssltcp bool) TCPResult
}

// TCPResultKind TCP 采集器创建结果类型
type TCPResultKind int

const (
	// TCPResultOK 创建成功
	TCPResultOK TCPResultKind = iota
	// TCPResultBindFailure 端口绑定失败（端口被占用、权限不足）
	TCPResultBindFailure
	// TCPResultIOFailure 其他 I/O 错误
	TCPResultIOFailure
)

// String 返回结果类型名称
func (k TCPResultKind) String() string {
	switch k {
	case TCPResultOK:
		return "ok"
	case TCPResultBindFailure:
		return "bind-failure"
	case TCPResultIOFailure:
		return "io-failure"
	default:
		return "unknown"
	}
}

// TCPResult TCP 采集器创建结果
//
// Kind 为 TCPResultOK 时 Harvester 非空、Err 为空；否则 Harvester 为空、Err 携带原因。
type TCPResult struct {
	Kind      TCPResultKind
	Harvester TCPHarvester
	Err       error
}

// TCPResultOf 返回成功结果
func TCPResultOf(h TCPHarvester) TCPResult {
	return TCPResult{Kind: TCPResultOK, Harvester: h}
}

// TCPFailure 返回失败结果
func TCPFailure(kind TCPResultKind, err error) TCPResult {
	return TCPResult{Kind: kind, Err: err}
}
