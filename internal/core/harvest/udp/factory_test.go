package udp

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loopbackSource() ([]net.IP, error) {
	return []net.IP{net.IPv4(127, 0, 0, 1)}, nil
}

// TestFactory_CreateHarvesters 测试在回环地址上创建采集器
func TestFactory_CreateHarvesters(t *testing.T) {
	f := NewFactory(Config{}, WithAddrSource(loopbackSource))

	harvesters := f.CreateHarvesters(0)
	require.Len(t, harvesters, 1)

	h := harvesters[0]
	t.Cleanup(func() { _ = h.Close() })

	assert.NotNil(t, h.Mux())
	assert.True(t, h.LocalAddr().IP.Equal(net.IPv4(127, 0, 0, 1)))
	assert.NotZero(t, h.LocalAddr().Port)
	assert.Equal(t, "udp4", h.(*Harvester).Network())
}

// TestFactory_EmptySource 测试没有可用地址时返回空切片
func TestFactory_EmptySource(t *testing.T) {
	f := NewFactory(Config{}, WithAddrSource(func() ([]net.IP, error) { return nil, nil }))

	harvesters := f.CreateHarvesters(0)
	require.NotNil(t, harvesters)
	assert.Empty(t, harvesters)
}

// TestFactory_SourceError 测试枚举地址失败时返回空切片
func TestFactory_SourceError(t *testing.T) {
	f := NewFactory(Config{}, WithAddrSource(func() ([]net.IP, error) {
		return nil, errors.New("no interfaces")
	}))

	harvesters := f.CreateHarvesters(0)
	require.NotNil(t, harvesters)
	assert.Empty(t, harvesters)
}

// TestFactory_SkipsBusyAddress 测试单个地址绑定失败不影响返回
func TestFactory_SkipsBusyAddress(t *testing.T) {
	busy, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = busy.Close() })

	port := busy.LocalAddr().(*net.UDPAddr).Port
	f := NewFactory(Config{}, WithAddrSource(loopbackSource))

	harvesters := f.CreateHarvesters(port)
	assert.Empty(t, harvesters)
}

// TestFactory_NetworkFilter 测试地址族过滤
func TestFactory_NetworkFilter(t *testing.T) {
	f := NewFactory(Config{Networks: []string{"udp6"}}, WithAddrSource(loopbackSource))
	assert.Empty(t, f.CreateHarvesters(0))
}

// TestHarvester_CloseReleasesPort 测试关闭后端口可以重新绑定，且可重复关闭
func TestHarvester_CloseReleasesPort(t *testing.T) {
	f := NewFactory(Config{}, WithAddrSource(loopbackSource))
	harvesters := f.CreateHarvesters(0)
	require.Len(t, harvesters, 1)

	addr := harvesters[0].LocalAddr()
	require.NoError(t, harvesters[0].Close())
	assert.NoError(t, harvesters[0].Close())

	conn, err := net.ListenUDP("udp4", addr)
	require.NoError(t, err)
	_ = conn.Close()
}

// TestUsableIP 测试地址过滤规则
func TestUsableIP(t *testing.T) {
	tests := []struct {
		name     string
		addr     net.Addr
		loopback bool
		want     bool
	}{
		{"ipv4", &net.IPNet{IP: net.ParseIP("192.168.1.10")}, false, true},
		{"ipv6 global", &net.IPNet{IP: net.ParseIP("2001:db8::1")}, false, true},
		{"loopback excluded", &net.IPNet{IP: net.ParseIP("127.0.0.1")}, false, false},
		{"loopback included", &net.IPNet{IP: net.ParseIP("127.0.0.1")}, true, true},
		{"link local", &net.IPNet{IP: net.ParseIP("fe80::1")}, false, false},
		{"unspecified", &net.IPAddr{IP: net.IPv4zero}, false, false},
		{"unknown type", &net.UDPAddr{IP: net.ParseIP("10.0.0.1")}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := usableIP(tt.addr, tt.loopback)
			assert.Equal(t, tt.want, got != nil)
		})
	}
}

// TestInterfaceAllowed 测试网卡过滤规则
func TestInterfaceAllowed(t *testing.T) {
	f := NewFactory(Config{Interfaces: []string{"eth0"}})

	assert.True(t, f.interfaceAllowed(net.Interface{Name: "eth0", Flags: net.FlagUp}))
	assert.False(t, f.interfaceAllowed(net.Interface{Name: "eth1", Flags: net.FlagUp}))
	assert.False(t, f.interfaceAllowed(net.Interface{Name: "eth0"}))
	assert.False(t, f.interfaceAllowed(net.Interface{Name: "eth0", Flags: net.FlagUp | net.FlagLoopback}))
}
