package harvest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/dep2p/go-harvest/config"
	"github.com/dep2p/go-harvest/internal/util/logger"
	pkgif "github.com/dep2p/go-harvest/pkg/interfaces"
)

var log = logger.Logger("harvest")

// defaultPortMappingTimeout 网关映射申请的默认超时
const defaultPortMappingTimeout = 5 * time.Second

// Config 采集器管理器配置
type Config struct {
	// Port 单端口 UDP 采集器绑定端口
	Port int

	// TCPEnabled 是否尝试创建 TCP 采集器
	TCPEnabled bool

	// TCPPort TCP 采集器绑定端口
	TCPPort int

	// SSLTCP TCP 采集器是否使用伪 SSL 帧头
	SSLTCP bool

	// TCPMappedPort 对外通告的 TCP 端口，0 表示未设置
	TCPMappedPort int

	// PortMappingTimeout 网关映射申请超时
	PortMappingTimeout time.Duration
}

// ConfigFromICE 从 ICE 配置构造管理器配置
func ConfigFromICE(c config.ICEConfig) Config {
	return Config{
		Port:               c.Port,
		TCPEnabled:         c.TCP.Enabled,
		TCPPort:            c.TCP.Port,
		SSLTCP:             c.TCP.SSLTCP,
		TCPMappedPort:      c.TCP.MappedPort,
		PortMappingTimeout: c.TCP.PortMappingTimeout.Duration(),
	}
}

// mappedPort 返回配置的映射端口
func (c Config) mappedPort() (int, bool) {
	return c.TCPMappedPort, c.TCPMappedPort > 0
}

// Option 管理器选项
type Option func(*Manager)

// WithPortMapper 设置网关端口映射器
//
// 未配置 TCPMappedPort 时，TCP 采集器创建成功后通过它申请映射。
func WithPortMapper(pm pkgif.PortMapper) Option {
	return func(m *Manager) {
		m.mapper = pm
	}
}

// Manager 采集器管理器
type Manager struct {
	cfg    Config
	udp    pkgif.UDPFactory
	tcp    pkgif.TCPFactory
	mapper pkgif.PortMapper

	initOnce sync.Once
	set      atomic.Pointer[Set]

	closeOnce sync.Once
	closed    atomic.Bool
}

// NewManager 创建采集器管理器
//
// 不做任何绑定；集合在第一次 Init 或 Set 时构造。
func NewManager(cfg Config, udp pkgif.UDPFactory, tcp pkgif.TCPFactory, opts ...Option) *Manager {
	m := &Manager{
		cfg: cfg,
		udp: udp,
		tcp: tcp,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Init 确保集合已构造
//
// 幂等，可并发调用；失败只降级，不返回错误。
func (m *Manager) Init() {
	m.initOnce.Do(func() {
		m.set.Store(m.build())
	})
}

// Set 返回集合，必要时先构造
//
// 每次返回同一个指针。Close 早于任何 Init 时返回 nil。
func (m *Manager) Set() *Set {
	m.Init()
	return m.set.Load()
}

// Current 返回已构造的集合，不触发构造
//
// Close 之后仍返回原集合，其中的采集器已经释放；用 Closed 区分。
func (m *Manager) Current() (*Set, bool) {
	s := m.set.Load()
	return s, s != nil
}

// Closed Close 已被调用时为 true
func (m *Manager) Closed() bool {
	return m.closed.Load()
}

// Healthy 至少有一个 UDP 采集器时为 true
//
// 集合尚未构造时 panic。
func (m *Manager) Healthy() bool {
	return m.mustSet("Healthy").Healthy()
}

// TCP 返回 TCP 采集器
func (m *Manager) TCP() (pkgif.TCPHarvester, bool) {
	return m.mustSet("TCP").TCP()
}

// UDP 返回单端口 UDP 采集器
func (m *Manager) UDP() []pkgif.UDPHarvester {
	return m.mustSet("UDP").UDP()
}

func (m *Manager) mustSet(op string) *Set {
	s := m.set.Load()
	if s == nil {
		panic(fmt.Errorf("harvest: %s: %w", op, ErrNotInitialized))
	}
	return s
}

// Close 释放所有采集器
//
// 先关闭全部 UDP 采集器，再关闭 TCP 采集器，最后删除网关映射。
// 任何一个关闭失败都不会跳过其余资源，错误合并返回。
// 第二次及以后的调用直接返回 nil；早于 Init 调用时不做任何事，
// 且此后不会再构造集合。
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.closed.Store(true)

		// 阻止 Close 之后再构造
		m.initOnce.Do(func() {})

		s := m.set.Load()
		if s == nil {
			return
		}

		for _, h := range s.udp {
			if cerr := h.Close(); cerr != nil {
				err = multierr.Append(err, fmt.Errorf("close udp harvester %v: %w", h.LocalAddr(), cerr))
			}
		}
		if s.tcp != nil {
			if cerr := s.tcp.Close(); cerr != nil {
				err = multierr.Append(err, fmt.Errorf("close tcp harvester: %w", cerr))
			}
		}
		if s.gatewayPort > 0 && m.mapper != nil {
			if cerr := m.mapper.UnmapPort("TCP", s.gatewayPort); cerr != nil {
				err = multierr.Append(err, fmt.Errorf("unmap tcp port %d: %w", s.gatewayPort, cerr))
			}
		}

		log.Info("采集器已释放", "set", s.id.String(), "udp", len(s.udp), "tcp", s.tcp != nil)
	})
	return err
}

// ============================================================================
//                              集合构造
// ============================================================================

func (m *Manager) build() *Set {
	s := &Set{
		id:        uuid.New(),
		createdAt: time.Now(),
	}

	s.udp = m.buildUDP()
	if len(s.udp) == 0 {
		log.Warn("未创建任何单端口 UDP 采集器", "port", m.cfg.Port)
		s.degradations = append(s.degradations, Degradation{Kind: ResourceUnavailable, Err: ErrNoUDPHarvesters})
	}

	if m.cfg.TCPEnabled {
		m.buildTCP(s)
	}

	log.Info("采集器集合已构造",
		"set", s.id.String(),
		"udp", len(s.udp),
		"tcp", s.tcp != nil,
		"healthy", s.Healthy())
	return s
}

func (m *Manager) buildUDP() []pkgif.UDPHarvester {
	created := m.udp.CreateHarvesters(m.cfg.Port)
	harvesters := make([]pkgif.UDPHarvester, 0, len(created))
	for _, h := range created {
		if h != nil {
			harvesters = append(harvesters, h)
		}
	}
	return harvesters
}

func (m *Manager) buildTCP(s *Set) {
	res := m.tcp.CreateHarvester(m.cfg.TCPPort, m.cfg.SSLTCP)
	if res.Kind != pkgif.TCPResultOK || res.Harvester == nil {
		log.Warn("创建 TCP 采集器失败",
			"port", m.cfg.TCPPort,
			"kind", res.Kind.String(),
			"err", res.Err)
		s.degradations = append(s.degradations, Degradation{Kind: BindFailure, Err: res.Err})
		return
	}

	h := res.Harvester
	s.tcp = h
	log.Info("已创建 TCP 采集器", "port", m.cfg.TCPPort, "ssltcp", m.cfg.SSLTCP)

	if port, ok := m.cfg.mappedPort(); ok {
		h.AddMappedPort(port)
		log.Info("已登记 TCP 映射端口", "mappedPort", port)
		return
	}

	if m.mapper != nil {
		s.gatewayPort = m.requestMapping(h.LocalPort())
		if s.gatewayPort > 0 {
			h.AddMappedPort(s.gatewayPort)
		}
	}
}

// requestMapping 向网关申请 TCP 映射，失败返回 0
func (m *Manager) requestMapping(localPort int) int {
	timeout := m.cfg.PortMappingTimeout
	if timeout <= 0 {
		timeout = defaultPortMappingTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ext, err := m.mapper.MapPort(ctx, "TCP", localPort)
	if err != nil {
		log.Debug("网关端口映射失败", "mapper", m.mapper.Name(), "port", localPort, "err", err)
		return 0
	}
	log.Info("网关端口映射成功", "mapper", m.mapper.Name(), "port", localPort, "externalPort", ext)
	return ext
}
