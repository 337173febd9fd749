package metrics

import (
	"errors"
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pion/ice/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-harvest/internal/core/harvest"
	pkgif "github.com/dep2p/go-harvest/pkg/interfaces"
)

type stubUDP struct{}

func (stubUDP) Mux() ice.UDPMux { return nil }
func (stubUDP) LocalAddr() *net.UDPAddr { return &net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 10000} }
func (stubUDP) Close() error { return nil }

type udpFactory int

func (n udpFactory) CreateHarvesters(int) []pkgif.UDPHarvester {
	out := make([]pkgif.UDPHarvester, 0, int(n))
	for i := 0; i < int(n); i++ {
		out = append(out, stubUDP{})
	}
	return out
}

type failingTCP struct{}

func (failingTCP) CreateHarvester(int, bool) pkgif.TCPResult {
	return pkgif.TCPFailure(pkgif.TCPResultBindFailure, errors.New("address already in use"))
}

// TestCollector_Observe 测试从集合更新指标
func TestCollector_Observe(t *testing.T) {
	m := harvest.NewManager(harvest.Config{Port: 10000, TCPEnabled: true, TCPPort: 4443}, udpFactory(2), failingTCP{})
	c := New()

	c.Observe(m.Set())

	assert.Equal(t, 2.0, testutil.ToFloat64(c.udpHarvesters))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.tcpPresent))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.healthy))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.degradations.WithLabelValues("bind_failure")))

	// 同一个集合重复观察不重复计数
	c.Observe(m.Set())
	assert.Equal(t, 1.0, testutil.ToFloat64(c.degradations.WithLabelValues("bind_failure")))
}

// TestCollector_Unhealthy 测试没有 UDP 采集器时的指标
func TestCollector_Unhealthy(t *testing.T) {
	m := harvest.NewManager(harvest.Config{Port: 10000}, udpFactory(0), failingTCP{})
	c := New()

	c.Observe(m.Set())
	c.Observe(nil)

	assert.Equal(t, 0.0, testutil.ToFloat64(c.udpHarvesters))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.healthy))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.degradations.WithLabelValues("resource_unavailable")))
}

// TestCollector_Handler 测试 /metrics 输出
func TestCollector_Handler(t *testing.T) {
	m := harvest.NewManager(harvest.Config{Port: 10000}, udpFactory(1), failingTCP{})
	c := New()
	c.Observe(m.Set())

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "harvest_udp_harvesters 1"))
	assert.True(t, strings.Contains(string(body), "harvest_healthy 1"))
	assert.True(t, strings.Contains(string(body), "harvest_tcp_harvester_present 0"))
}
