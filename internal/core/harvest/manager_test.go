package harvest

import (
	"context"
	"errors"
	"net"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/ice/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-harvest/config"
	"github.com/dep2p/go-harvest/internal/core/harvest/tcp"
	pkgif "github.com/dep2p/go-harvest/pkg/interfaces"
)

// ============================================================================
//                              测试替身
// ============================================================================

type fakeUDPHarvester struct {
	addr     *net.UDPAddr
	closeErr error
	closes   atomic.Int32
}

func (h *fakeUDPHarvester) Mux() ice.UDPMux { return nil }
func (h *fakeUDPHarvester) LocalAddr() *net.UDPAddr { return h.addr }
func (h *fakeUDPHarvester) Close() error {
	h.closes.Add(1)
	return h.closeErr
}

type fakeUDPFactory struct {
	harvesters []pkgif.UDPHarvester
	calls      atomic.Int32
	ports      []int
	mu         sync.Mutex
}

func (f *fakeUDPFactory) CreateHarvesters(port int) []pkgif.UDPHarvester {
	f.calls.Add(1)
	f.mu.Lock()
	f.ports = append(f.ports, port)
	f.mu.Unlock()
	return f.harvesters
}

func newUDPFactory(n int) (*fakeUDPFactory, []*fakeUDPHarvester) {
	f := &fakeUDPFactory{harvesters: make([]pkgif.UDPHarvester, 0, n)}
	hs := make([]*fakeUDPHarvester, 0, n)
	for i := 0; i < n; i++ {
		h := &fakeUDPHarvester{addr: &net.UDPAddr{IP: net.IPv4(10, 0, 0, byte(i+1)), Port: 10000}}
		hs = append(hs, h)
		f.harvesters = append(f.harvesters, h)
	}
	return f, hs
}

type fakeTCPHarvester struct {
	port     int
	ssltcp   bool
	mapped   []int
	closeErr error
	closes   atomic.Int32
}

func (h *fakeTCPHarvester) Mux() ice.TCPMux { return nil }
func (h *fakeTCPHarvester) LocalPort() int { return h.port }
func (h *fakeTCPHarvester) SSLTCP() bool { return h.ssltcp }
func (h *fakeTCPHarvester) MappedPorts() []int { return slices.Clone(h.mapped) }
func (h *fakeTCPHarvester) AddMappedPort(p int) {
	h.mapped = append(h.mapped, p)
}
func (h *fakeTCPHarvester) AdvertisedPort() int {
	if len(h.mapped) > 0 {
		return h.mapped[0]
	}
	return h.port
}
func (h *fakeTCPHarvester) Close() error {
	h.closes.Add(1)
	return h.closeErr
}

type fakeTCPFactory struct {
	result pkgif.TCPResult
	calls  atomic.Int32
	port   int
	ssltcp bool
}

func (f *fakeTCPFactory) CreateHarvester(port int, ssltcp bool) pkgif.TCPResult {
	f.calls.Add(1)
	f.port = port
	f.ssltcp = ssltcp
	return f.result
}

type fakeMapper struct {
	ext      int
	err      error
	mapped   []int
	unmapped []int
}

func (m *fakeMapper) Name() string { return "fake" }
func (m *fakeMapper) MapPort(_ context.Context, _ string, port int) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.mapped = append(m.mapped, port)
	return m.ext, nil
}
func (m *fakeMapper) UnmapPort(_ string, ext int) error {
	m.unmapped = append(m.unmapped, ext)
	return nil
}
func (m *fakeMapper) Close() error { return nil }

func tcpConfig(port int) Config {
	return Config{Port: 10000, TCPEnabled: true, TCPPort: port, SSLTCP: true}
}

// ============================================================================
//                              单例
// ============================================================================

// TestManager_SingletonIdentity 测试多次访问返回同一个集合
func TestManager_SingletonIdentity(t *testing.T) {
	udpF, _ := newUDPFactory(1)
	m := NewManager(Config{Port: 10000}, udpF, &fakeTCPFactory{})

	first := m.Set()
	m.Init()
	second := m.Set()

	require.NotNil(t, first)
	assert.Same(t, first, second)
	assert.Equal(t, int32(1), udpF.calls.Load())
	assert.Equal(t, []int{10000}, udpF.ports)
}

// TestManager_ConcurrentInit 测试并发初始化只构造一次
func TestManager_ConcurrentInit(t *testing.T) {
	udpF, _ := newUDPFactory(2)
	m := NewManager(Config{Port: 10000}, udpF, &fakeTCPFactory{})

	const n = 64
	sets := make([]*Set, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				m.Init()
			}
			sets[i] = m.Set()
		}(i)
	}
	wg.Wait()

	for _, s := range sets {
		assert.Same(t, sets[0], s)
		assert.Len(t, s.UDP(), 2)
	}
	assert.Equal(t, int32(1), udpF.calls.Load())
}

// TestManager_NotInitialized 测试构造前读取状态会 panic
func TestManager_NotInitialized(t *testing.T) {
	udpF, _ := newUDPFactory(1)
	m := NewManager(Config{}, udpF, &fakeTCPFactory{})

	for name, fn := range map[string]func(){
		"Healthy": func() { m.Healthy() },
		"TCP":     func() { m.TCP() },
		"UDP":     func() { m.UDP() },
	} {
		t.Run(name, func(t *testing.T) {
			defer func() {
				r := recover()
				require.NotNil(t, r)
				err, ok := r.(error)
				require.True(t, ok)
				assert.ErrorIs(t, err, ErrNotInitialized)
			}()
			fn()
		})
	}
	assert.Zero(t, udpF.calls.Load())

	_, ok := m.Current()
	assert.False(t, ok)
	m.Init()
	s, ok := m.Current()
	assert.True(t, ok)
	assert.Same(t, m.Set(), s)
}

// ============================================================================
//                              健康状态
// ============================================================================

// TestManager_HealthDerivation 测试健康状态只取决于 UDP 采集器数量
func TestManager_HealthDerivation(t *testing.T) {
	tests := []struct {
		name       string
		udp        int
		tcpEnabled bool
		want       bool
	}{
		{"no udp, no tcp", 0, false, false},
		{"no udp, tcp", 0, true, false},
		{"one udp, no tcp", 1, false, true},
		{"one udp, tcp", 1, true, true},
		{"many udp, tcp", 3, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			udpF, _ := newUDPFactory(tt.udp)
			tcpF := &fakeTCPFactory{result: pkgif.TCPResultOf(&fakeTCPHarvester{port: 4443})}
			cfg := Config{Port: 10000, TCPEnabled: tt.tcpEnabled, TCPPort: 4443}

			m := NewManager(cfg, udpF, tcpF)
			m.Init()

			assert.Equal(t, tt.want, m.Healthy())
			assert.Equal(t, len(m.UDP()) > 0, m.Healthy())
			_, hasTCP := m.TCP()
			assert.Equal(t, tt.tcpEnabled, hasTCP)
		})
	}
}

// TestManager_ZeroInterfaces 测试 UDP 工厂返回空集合
func TestManager_ZeroInterfaces(t *testing.T) {
	udpF, _ := newUDPFactory(0)
	m := NewManager(Config{Port: 10000}, udpF, &fakeTCPFactory{})

	require.NotPanics(t, m.Init)

	s := m.Set()
	assert.Empty(t, s.UDP())
	assert.False(t, m.Healthy())

	degr := s.Degradations()
	require.Len(t, degr, 1)
	assert.Equal(t, ResourceUnavailable, degr[0].Kind)
	assert.ErrorIs(t, degr[0].Err, ErrNoUDPHarvesters)
}

// TestManager_NilUDPHarvestersDropped 测试集合中不含 nil 元素
func TestManager_NilUDPHarvestersDropped(t *testing.T) {
	udpF, hs := newUDPFactory(1)
	udpF.harvesters = []pkgif.UDPHarvester{nil, hs[0], nil}

	m := NewManager(Config{}, udpF, &fakeTCPFactory{})
	m.Init()

	require.Len(t, m.UDP(), 1)
	assert.Same(t, hs[0], m.UDP()[0])
}

// ============================================================================
//                              TCP 采集器
// ============================================================================

// TestManager_TCPDisabled 测试关闭 TCP 时不调用 TCP 工厂
func TestManager_TCPDisabled(t *testing.T) {
	udpF, _ := newUDPFactory(1)
	tcpF := &fakeTCPFactory{result: pkgif.TCPResultOf(&fakeTCPHarvester{})}

	m := NewManager(Config{Port: 10000, TCPPort: 4443}, udpF, tcpF)
	m.Init()

	h, ok := m.TCP()
	assert.False(t, ok)
	assert.Nil(t, h)
	assert.Zero(t, tcpF.calls.Load())
	assert.Empty(t, m.Set().Degradations())
}

// TestManager_TCPSuccess 测试空闲端口上 TCP 采集器通告绑定端口
func TestManager_TCPSuccess(t *testing.T) {
	l, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	udpF, _ := newUDPFactory(1)
	m := NewManager(tcpConfig(port), udpF, tcp.NewFactory(tcp.Config{}))
	m.Init()
	t.Cleanup(func() { _ = m.Close() })

	h, ok := m.TCP()
	require.True(t, ok)
	assert.Equal(t, port, h.LocalPort())
	assert.Equal(t, port, h.AdvertisedPort())
	assert.True(t, h.SSLTCP())
	assert.True(t, m.Healthy())
}

// TestManager_TCPMappedPort 测试配置的映射端口被登记
func TestManager_TCPMappedPort(t *testing.T) {
	udpF, _ := newUDPFactory(1)
	th := &fakeTCPHarvester{port: 4443}
	tcpF := &fakeTCPFactory{result: pkgif.TCPResultOf(th)}
	mapper := &fakeMapper{ext: 30000}

	cfg := tcpConfig(4443)
	cfg.TCPMappedPort = 443
	m := NewManager(cfg, udpF, tcpF, WithPortMapper(mapper))
	m.Init()

	assert.Equal(t, 4443, tcpF.port)
	assert.True(t, tcpF.ssltcp)
	assert.Equal(t, []int{443}, th.MappedPorts())
	assert.Equal(t, 443, th.AdvertisedPort())
	assert.Empty(t, mapper.mapped, "configured mapped port takes precedence")
}

// TestManager_TCPBindFailure 测试端口被占用时降级
func TestManager_TCPBindFailure(t *testing.T) {
	busy, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = busy.Close() })
	port := busy.Addr().(*net.TCPAddr).Port

	for _, udpCount := range []int{0, 2} {
		udpF, _ := newUDPFactory(udpCount)
		m := NewManager(tcpConfig(port), udpF, tcp.NewFactory(tcp.Config{}))

		require.NotPanics(t, m.Init)

		_, ok := m.TCP()
		assert.False(t, ok)
		assert.Equal(t, udpCount > 0, m.Healthy())

		var bind *Degradation
		for _, d := range m.Set().Degradations() {
			if d.Kind == BindFailure {
				d := d
				bind = &d
			}
		}
		require.NotNil(t, bind)
		assert.Error(t, bind.Err)
		assert.NoError(t, m.Close())
	}
}

// TestManager_TCPIOFailure 测试其他 I/O 错误同样降级
func TestManager_TCPIOFailure(t *testing.T) {
	udpF, _ := newUDPFactory(1)
	cause := errors.New("too many open files")
	tcpF := &fakeTCPFactory{result: pkgif.TCPFailure(pkgif.TCPResultIOFailure, cause)}

	m := NewManager(tcpConfig(4443), udpF, tcpF)
	m.Init()

	_, ok := m.TCP()
	assert.False(t, ok)
	assert.True(t, m.Healthy())

	degr := m.Set().Degradations()
	require.Len(t, degr, 1)
	assert.Equal(t, BindFailure, degr[0].Kind)
	assert.ErrorIs(t, degr[0].Err, cause)
}

// ============================================================================
//                              网关端口映射
// ============================================================================

// TestManager_GatewayMapping 测试自动申请映射端口并在关闭时删除
func TestManager_GatewayMapping(t *testing.T) {
	udpF, _ := newUDPFactory(1)
	th := &fakeTCPHarvester{port: 4443}
	mapper := &fakeMapper{ext: 30443}

	m := NewManager(tcpConfig(4443), udpF, &fakeTCPFactory{result: pkgif.TCPResultOf(th)}, WithPortMapper(mapper))
	m.Init()

	assert.Equal(t, []int{4443}, mapper.mapped)
	assert.Equal(t, 30443, th.AdvertisedPort())
	port, ok := m.Set().GatewayPort()
	assert.True(t, ok)
	assert.Equal(t, 30443, port)

	require.NoError(t, m.Close())
	assert.Equal(t, []int{30443}, mapper.unmapped)
}

// TestManager_GatewayMappingFailure 测试映射失败不影响 TCP 采集器
func TestManager_GatewayMappingFailure(t *testing.T) {
	udpF, _ := newUDPFactory(1)
	th := &fakeTCPHarvester{port: 4443}
	mapper := &fakeMapper{err: errors.New("no gateway")}

	m := NewManager(tcpConfig(4443), udpF, &fakeTCPFactory{result: pkgif.TCPResultOf(th)}, WithPortMapper(mapper))
	m.Init()

	h, ok := m.TCP()
	require.True(t, ok)
	assert.Equal(t, 4443, h.AdvertisedPort())
	_, mapped := m.Set().GatewayPort()
	assert.False(t, mapped)
	assert.Empty(t, m.Set().Degradations())

	require.NoError(t, m.Close())
	assert.Empty(t, mapper.unmapped)
}

// ============================================================================
//                              关闭
// ============================================================================

// TestManager_CloseCompleteness 测试每个采集器恰好关闭一次
func TestManager_CloseCompleteness(t *testing.T) {
	udpF, hs := newUDPFactory(3)
	th := &fakeTCPHarvester{port: 4443}
	m := NewManager(tcpConfig(4443), udpF, &fakeTCPFactory{result: pkgif.TCPResultOf(th)})
	m.Init()
	assert.False(t, m.Closed())

	require.NoError(t, m.Close())
	assert.True(t, m.Closed())
	require.NoError(t, m.Close())

	for _, h := range hs {
		assert.Equal(t, int32(1), h.closes.Load())
	}
	assert.Equal(t, int32(1), th.closes.Load())

	// 关闭后仍是同一个集合，不会重新构造
	assert.Equal(t, int32(1), udpF.calls.Load())
	assert.NotNil(t, m.Set())
	assert.Equal(t, int32(1), udpF.calls.Load())
}

// TestManager_CloseAggregatesErrors 测试关闭错误合并且不跳过后续资源
func TestManager_CloseAggregatesErrors(t *testing.T) {
	udpF, hs := newUDPFactory(2)
	hs[0].closeErr = errors.New("udp boom")
	th := &fakeTCPHarvester{port: 4443, closeErr: errors.New("tcp boom")}
	m := NewManager(tcpConfig(4443), udpF, &fakeTCPFactory{result: pkgif.TCPResultOf(th)})
	m.Init()

	err := m.Close()
	require.Error(t, err)
	assert.ErrorIs(t, err, hs[0].closeErr)
	assert.ErrorIs(t, err, th.closeErr)

	assert.Equal(t, int32(1), hs[1].closes.Load())
	assert.Equal(t, int32(1), th.closes.Load())
	assert.NoError(t, m.Close())
}

// TestManager_CloseBeforeInit 测试构造前关闭不做任何事
func TestManager_CloseBeforeInit(t *testing.T) {
	udpF, _ := newUDPFactory(1)
	tcpF := &fakeTCPFactory{}
	m := NewManager(tcpConfig(4443), udpF, tcpF)

	require.NoError(t, m.Close())
	assert.True(t, m.Closed())
	assert.Nil(t, m.Set())
	assert.Zero(t, udpF.calls.Load())
	assert.Zero(t, tcpF.calls.Load())
}

// TestConfigFromICE 测试从 ICE 配置转换
func TestConfigFromICE(t *testing.T) {
	iceCfg := config.DefaultICEConfig()
	iceCfg.TCP.Enabled = true
	iceCfg.TCP.MappedPort = 443

	cfg := ConfigFromICE(iceCfg)
	assert.Equal(t, 10000, cfg.Port)
	assert.True(t, cfg.TCPEnabled)
	assert.Equal(t, 4443, cfg.TCPPort)
	assert.True(t, cfg.SSLTCP)
	assert.Equal(t, 5*time.Second, cfg.PortMappingTimeout)

	port, ok := cfg.mappedPort()
	assert.True(t, ok)
	assert.Equal(t, 443, port)

	_, ok = ConfigFromICE(config.DefaultICEConfig()).mappedPort()
	assert.False(t, ok)
}

// TestDegradationKind_String 测试降级类型名称
func TestDegradationKind_String(t *testing.T) {
	assert.Equal(t, "resource_unavailable", ResourceUnavailable.String())
	assert.Equal(t, "bind_failure", BindFailure.String())
	assert.Equal(t, "unknown", DegradationKind(0).String())
}
