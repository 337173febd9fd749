package stun

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/stun"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startServer 在回环地址上启动一个只回复一次的 STUN 服务器
//
// reply 决定回复内容；为 nil 时回复 XOR-MAPPED-ADDRESS。
func startServer(t *testing.T, reply func(req *stun.Message, from *net.UDPAddr) *stun.Message) string {
	t.Helper()

	srv, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	go func() {
		buf := make([]byte, 1500)
		n, from, err := srv.ReadFromUDP(buf)
		if err != nil {
			return
		}
		req := &stun.Message{Raw: append([]byte{}, buf[:n]...)}
		if err := req.Decode(); err != nil {
			return
		}

		var resp *stun.Message
		if reply != nil {
			resp = reply(req, from)
		} else {
			resp = stun.MustBuild(
				stun.NewTransactionIDSetter(req.TransactionID),
				stun.BindingSuccess,
				&stun.XORMappedAddress{IP: from.IP, Port: from.Port},
			)
		}
		_, _ = srv.WriteToUDP(resp.Raw, from)
	}()

	return srv.LocalAddr().String()
}

// TestClient_QueryLoopbackServer 测试从真实 STUN 响应中取得映射地址
func TestClient_QueryLoopbackServer(t *testing.T) {
	server := startServer(t, nil)
	client := NewClient(Config{Servers: []string{server}, Timeout: 2 * time.Second, Retries: 1})

	addr, err := client.GetExternalAddr(context.Background())
	require.NoError(t, err)
	assert.True(t, addr.IP.Equal(net.IPv4(127, 0, 0, 1)))
	assert.NotZero(t, addr.Port)

	last, ok := client.LastAddr()
	assert.True(t, ok)
	assert.Equal(t, addr, last)
}

// TestClient_LegacyMappedAddress 测试旧版 MAPPED-ADDRESS
func TestClient_LegacyMappedAddress(t *testing.T) {
	server := startServer(t, func(req *stun.Message, _ *net.UDPAddr) *stun.Message {
		return stun.MustBuild(
			stun.NewTransactionIDSetter(req.TransactionID),
			stun.BindingSuccess,
			&stun.MappedAddress{IP: net.IPv4(203, 0, 113, 9), Port: 40000},
		)
	})
	client := NewClient(Config{Servers: []string{server}, Timeout: 2 * time.Second, Retries: 1})

	addr, err := client.GetExternalAddr(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.9:40000", addr.String())
}

// TestClient_WrongTransaction 测试事务 ID 不匹配的响应被拒绝
func TestClient_WrongTransaction(t *testing.T) {
	server := startServer(t, func(_ *stun.Message, from *net.UDPAddr) *stun.Message {
		return stun.MustBuild(
			stun.TransactionID,
			stun.BindingSuccess,
			&stun.XORMappedAddress{IP: from.IP, Port: from.Port},
		)
	})
	client := NewClient(Config{Servers: []string{server}, Timeout: 2 * time.Second, Retries: 1})

	_, err := client.GetExternalAddr(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoResponse)
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

// TestClient_NoServers 测试空服务器列表
func TestClient_NoServers(t *testing.T) {
	_, err := NewClient(Config{}).GetExternalAddr(context.Background())
	assert.ErrorIs(t, err, ErrNoServers)
}

// TestClient_Failover 测试第一个服务器失败后切换到下一个
func TestClient_Failover(t *testing.T) {
	want := &net.UDPAddr{IP: net.IPv4(198, 51, 100, 1), Port: 5000}
	var calls []string
	client := NewClient(
		Config{Servers: []string{"a:3478", "b:3478"}, Retries: 2, Backoff: time.Millisecond},
		WithQueryFunc(func(_ context.Context, server string) (*net.UDPAddr, error) {
			calls = append(calls, server)
			if server == "a:3478" {
				return nil, errors.New("timeout")
			}
			return want, nil
		}),
	)

	addr, err := client.GetExternalAddr(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, addr)
	assert.Equal(t, []string{"a:3478", "a:3478", "b:3478"}, calls)
}

// TestClient_Cache 测试成功结果被缓存
func TestClient_Cache(t *testing.T) {
	var calls atomic.Int32
	client := NewClient(
		Config{Servers: []string{"a:3478"}},
		WithQueryFunc(func(context.Context, string) (*net.UDPAddr, error) {
			calls.Add(1)
			return &net.UDPAddr{IP: net.IPv4(198, 51, 100, 1), Port: 5000}, nil
		}),
	)

	for i := 0; i < 3; i++ {
		_, err := client.GetExternalAddr(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), calls.Load())
}

// TestClient_ContextCanceled 测试上下文取消时停止重试
func TestClient_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := NewClient(
		Config{Servers: []string{"a:3478"}, Retries: 5, Backoff: time.Hour},
		WithQueryFunc(func(context.Context, string) (*net.UDPAddr, error) {
			cancel()
			return nil, errors.New("timeout")
		}),
	)

	_, err := client.GetExternalAddr(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
