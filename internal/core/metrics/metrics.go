package metrics

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dep2p/go-harvest/internal/core/harvest"
	"github.com/dep2p/go-harvest/internal/util/logger"
)

var log = logger.Logger("metrics")

const namespace = "harvest"

// Collector 采集器指标
type Collector struct {
	registry *prometheus.Registry

	udpHarvesters prometheus.Gauge
	tcpPresent    prometheus.Gauge
	healthy       prometheus.Gauge
	degradations  *prometheus.CounterVec

	mu       sync.Mutex
	observed uuid.UUID
}

// New 创建指标收集器，使用独立的 registry
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		udpHarvesters: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "udp_harvesters",
			Help:      "Number of single-port UDP harvesters.",
		}),
		tcpPresent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tcp_harvester_present",
			Help:      "Whether the shared TCP harvester exists (0 or 1).",
		}),
		healthy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "healthy",
			Help:      "Whether at least one UDP harvester exists (0 or 1).",
		}),
		degradations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degradations_total",
			Help:      "Degradations recorded while constructing the harvester set.",
		}, []string{"kind"}),
	}

	c.registry.MustRegister(
		c.udpHarvesters,
		c.tcpPresent,
		c.healthy,
		c.degradations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Handler 返回 /metrics 处理器
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Observe 用集合更新指标
//
// 同一个集合只计数一次降级。
func (c *Collector) Observe(s *harvest.Set) {
	if s == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, hasTCP := s.TCP()
	c.udpHarvesters.Set(float64(len(s.UDP())))
	c.tcpPresent.Set(boolToFloat(hasTCP))
	c.healthy.Set(boolToFloat(s.Healthy()))

	if c.observed == s.ID() {
		return
	}
	c.observed = s.ID()
	for _, d := range s.Degradations() {
		c.degradations.WithLabelValues(d.Kind.String()).Inc()
	}
	log.Debug("指标已更新", "set", s.ID().String())
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
