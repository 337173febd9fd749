package portmap

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/huin/goupnp/dcps/internetgateway1"
	"github.com/huin/goupnp/dcps/internetgateway2"
	"github.com/jackpal/gateway"
)

// mappingDescription 网关上显示的映射描述
const mappingDescription = "go-harvest"

// IGDClient UPnP IGD 客户端
//
// goupnp 的 WANIPConnection1 与 WANPPPConnection1 客户端都实现了这些方法。
type IGDClient interface {
	AddPortMapping(
		NewRemoteHost string,
		NewExternalPort uint16,
		NewProtocol string,
		NewInternalPort uint16,
		NewInternalClient string,
		NewEnabled bool,
		NewPortMappingDescription string,
		NewLeaseDuration uint32,
	) error

	DeletePortMapping(
		NewRemoteHost string,
		NewExternalPort uint16,
		NewProtocol string,
	) error

	GetExternalIPAddress() (string, error)
}

type upnpBackend struct {
	discoverFn func() (IGDClient, error)
	localIP    func() (net.IP, error)
	client     IGDClient
}

// NewUPnPMapper 创建 UPnP 映射器
func NewUPnPMapper(timeout time.Duration) *Mapper {
	return newMapper(&upnpBackend{
		discoverFn: discoverIGD,
		localIP:    gateway.DiscoverInterface,
	}, timeout)
}

func (b *upnpBackend) name() string {
	return ProtocolUPnP
}

func (b *upnpBackend) discover(ctx context.Context) error {
	if b.client != nil {
		return nil
	}

	type result struct {
		client IGDClient
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := b.discoverFn()
		ch <- result{client: c, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return r.err
		}
		b.client = r.client
		if ip, err := r.client.GetExternalIPAddress(); err == nil {
			log.Info("已发现 UPnP 网关", "externalIP", ip)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrDiscoveryTimeout, ctx.Err())
	}
}

func (b *upnpBackend) add(proto string, internalPort, externalPort int, lease time.Duration) (int, error) {
	ip, err := b.localIP()
	if err != nil {
		return 0, fmt.Errorf("local address: %w", err)
	}

	err = b.client.AddPortMapping(
		"",
		uint16(externalPort),
		proto,
		uint16(internalPort),
		ip.String(),
		true,
		mappingDescription,
		uint32(lease/time.Second),
	)
	if err != nil {
		return 0, err
	}
	return externalPort, nil
}

func (b *upnpBackend) remove(proto string, _, externalPort int) error {
	return b.client.DeletePortMapping("", uint16(externalPort), proto)
}

// discoverIGD 依次尝试 IGDv2 / IGDv1 的 WANIP 与 WANPPP 服务
func discoverIGD() (IGDClient, error) {
	if clients, _, err := internetgateway2.NewWANIPConnection1Clients(); err == nil && len(clients) > 0 {
		return clients[0], nil
	}
	if clients, _, err := internetgateway2.NewWANPPPConnection1Clients(); err == nil && len(clients) > 0 {
		return clients[0], nil
	}
	if clients, _, err := internetgateway1.NewWANIPConnection1Clients(); err == nil && len(clients) > 0 {
		return clients[0], nil
	}
	if clients, _, err := internetgateway1.NewWANPPPConnection1Clients(); err == nil && len(clients) > 0 {
		return clients[0], nil
	}
	return nil, ErrNoDevice
}
