package tcp

import (
	"errors"
	"net"
	"slices"
	"sync"

	"github.com/pion/ice/v2"
	"go.uber.org/multierr"

	pkgif "github.com/dep2p/go-harvest/pkg/interfaces"
)

// Harvester 共享 TCP 监听采集器
//
// 所有 ICE-TCP 会话共享同一个监听端口，由 TCPMux 按首个 STUN 请求的 ufrag 分流。
type Harvester struct {
	listener net.Listener
	mux      ice.TCPMux
	port     int
	ssltcp   bool

	mu     sync.RWMutex
	mapped []int

	closeOnce sync.Once
	closeErr  error
}

// 确保实现接口
var _ pkgif.TCPHarvester = (*Harvester)(nil)

func newHarvester(l net.Listener, mux ice.TCPMux, port int, ssltcp bool) *Harvester {
	return &Harvester{
		listener: l,
		mux:      mux,
		port:     port,
		ssltcp:   ssltcp,
	}
}

// Mux 返回 TCP 复用器
func (h *Harvester) Mux() ice.TCPMux {
	return h.mux
}

// LocalAddr 返回监听地址
func (h *Harvester) LocalAddr() net.Addr {
	return h.listener.Addr()
}

// LocalPort 返回监听端口
func (h *Harvester) LocalPort() int {
	return h.port
}

// SSLTCP 是否启用伪 SSL 帧头
func (h *Harvester) SSLTCP() bool {
	return h.ssltcp
}

// AddMappedPort 登记对外映射端口，重复登记会被忽略
func (h *Harvester) AddMappedPort(port int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if port <= 0 || slices.Contains(h.mapped, port) {
		return
	}
	h.mapped = append(h.mapped, port)
}

// MappedPorts 返回已登记的映射端口
func (h *Harvester) MappedPorts() []int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.mapped)
}

// AdvertisedPort 返回候选通告端口
func (h *Harvester) AdvertisedPort() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.mapped) > 0 {
		return h.mapped[0]
	}
	return h.port
}

// Close 关闭复用器与监听器
//
// 可重复调用，只有第一次调用真正关闭。
func (h *Harvester) Close() error {
	h.closeOnce.Do(func() {
		muxErr := h.mux.Close()
		lnErr := h.listener.Close()
		if errors.Is(lnErr, net.ErrClosed) {
			lnErr = nil
		}
		h.closeErr = multierr.Combine(muxErr, lnErr)
		log.Debug("TCP 采集器已关闭", "port", h.port)
	})
	return h.closeErr
}
