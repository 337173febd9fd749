package portmap

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jackpal/gateway"
	natpmp "github.com/jackpal/go-nat-pmp"
)

// natpmpClient go-nat-pmp 客户端中用到的方法
type natpmpClient interface {
	AddPortMapping(protocol string, internalPort, requestedExternalPort int, lifetime int) (*natpmp.AddPortMappingResult, error)
	GetExternalAddress() (*natpmp.GetExternalAddressResult, error)
}

type natpmpBackend struct {
	dial   func(timeout time.Duration) (natpmpClient, error)
	client natpmpClient
}

// NewNATPMPMapper 创建 NAT-PMP 映射器
func NewNATPMPMapper(timeout time.Duration) *Mapper {
	return newMapper(&natpmpBackend{dial: dialNATPMP}, timeout)
}

func (b *natpmpBackend) name() string {
	return ProtocolNATPMP
}

func (b *natpmpBackend) discover(ctx context.Context) error {
	if b.client != nil {
		return nil
	}

	timeout := DefaultTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	type result struct {
		client natpmpClient
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := b.dial(timeout)
		ch <- result{client: c, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return r.err
		}
		b.client = r.client
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrDiscoveryTimeout, ctx.Err())
	}
}

func (b *natpmpBackend) add(proto string, internalPort, externalPort int, lease time.Duration) (int, error) {
	res, err := b.client.AddPortMapping(strings.ToLower(proto), internalPort, externalPort, int(lease/time.Second))
	if err != nil {
		return 0, err
	}
	return int(res.MappedExternalPort), nil
}

// remove 租期为 0 表示删除映射
func (b *natpmpBackend) remove(proto string, internalPort, _ int) error {
	_, err := b.client.AddPortMapping(strings.ToLower(proto), internalPort, 0, 0)
	return err
}

// dialNATPMP 发现默认网关并确认其支持 NAT-PMP
func dialNATPMP(timeout time.Duration) (natpmpClient, error) {
	gw, err := gateway.DiscoverGateway()
	if err != nil {
		return nil, fmt.Errorf("discover gateway: %w", err)
	}

	client := natpmp.NewClientWithTimeout(gw, timeout)
	res, err := client.GetExternalAddress()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDevice, err)
	}

	log.Info("已发现 NAT-PMP 网关",
		"gateway", gw.String(),
		"externalIP", net.IP(res.ExternalIPAddress[:]).String())
	return client, nil
}
