package udp

import (
	"errors"
	"net"
	"sync"

	"github.com/pion/ice/v2"
	"go.uber.org/multierr"

	pkgif "github.com/dep2p/go-harvest/pkg/interfaces"
)

// Harvester 单端口 UDP 采集器
//
// 持有一个已绑定的 UDP socket 及其上的 UDPMux，独占所有权。
type Harvester struct {
	conn net.PacketConn
	mux  ice.UDPMux
	addr *net.UDPAddr

	closeOnce sync.Once
	closeErr  error
}

// 确保实现接口
var _ pkgif.UDPHarvester = (*Harvester)(nil)

func newHarvester(conn net.PacketConn, mux ice.UDPMux, addr *net.UDPAddr) *Harvester {
	return &Harvester{
		conn: conn,
		mux:  mux,
		addr: addr,
	}
}

// Mux 返回 UDP 复用器
func (h *Harvester) Mux() ice.UDPMux {
	return h.mux
}

// LocalAddr 返回绑定地址
func (h *Harvester) LocalAddr() *net.UDPAddr {
	return h.addr
}

// Network 返回地址族（udp4 / udp6）
func (h *Harvester) Network() string {
	return networkOf(h.addr.IP)
}

// Close 关闭复用器并释放 socket
//
// 可重复调用，只有第一次调用真正关闭。
func (h *Harvester) Close() error {
	h.closeOnce.Do(func() {
		muxErr := h.mux.Close()
		// UDPMux 通常已经关闭了底层 socket
		connErr := h.conn.Close()
		if errors.Is(connErr, net.ErrClosed) {
			connErr = nil
		}
		h.closeErr = multierr.Combine(muxErr, connErr)
		log.Debug("单端口 UDP 采集器已关闭", "addr", h.addr.String())
	})
	return h.closeErr
}
