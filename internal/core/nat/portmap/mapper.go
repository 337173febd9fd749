package portmap

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/dep2p/go-harvest/internal/util/logger"
	pkgif "github.com/dep2p/go-harvest/pkg/interfaces"
)

var log = logger.Logger("nat/portmap")

// 映射协议
const (
	ProtocolNone   = "none"
	ProtocolUPnP   = "upnp"
	ProtocolNATPMP = "natpmp"
)

const (
	// DefaultTimeout 默认网关发现超时
	DefaultTimeout = 5 * time.Second

	// leaseDuration 映射租期
	leaseDuration = time.Hour

	// renewCheckInterval 续期检查间隔
	renewCheckInterval = 20 * time.Minute
)

// New 按协议名创建映射器
//
// protocol 为空或 none 时返回 nil, nil。
func New(protocol string, timeout time.Duration) (pkgif.PortMapper, error) {
	switch strings.ToLower(protocol) {
	case "", ProtocolNone:
		return nil, nil
	case ProtocolUPnP:
		return NewUPnPMapper(timeout), nil
	case ProtocolNATPMP:
		return NewNATPMPMapper(timeout), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProtocol, protocol)
	}
}

// backend 具体映射协议
//
// 方法只在 Mapper.mu 持有期间调用。
type backend interface {
	name() string

	// discover 发现网关，已发现时直接返回
	discover(ctx context.Context) error

	// add 申请映射，返回网关分配的外部端口
	add(proto string, internalPort, externalPort int, lease time.Duration) (int, error)

	// remove 删除映射
	remove(proto string, internalPort, externalPort int) error
}

// Mapping 端口映射记录
type Mapping struct {
	Protocol     string
	InternalPort int
	ExternalPort int
	CreatedAt    time.Time
}

// Mapper 网关端口映射器
type Mapper struct {
	backend backend
	timeout time.Duration

	mu       sync.Mutex
	mappings map[string]*Mapping
	closed   bool

	renewOnce sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// 确保实现接口
var _ pkgif.PortMapper = (*Mapper)(nil)

func newMapper(b backend, timeout time.Duration) *Mapper {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Mapper{
		backend:  b,
		timeout:  timeout,
		mappings: make(map[string]*Mapping),
	}
}

// Name 返回映射协议名
func (m *Mapper) Name() string {
	return m.backend.name()
}

// MapPort 为 internalPort 申请映射，优先请求相同的外部端口
func (m *Mapper) MapPort(ctx context.Context, proto string, internalPort int) (int, error) {
	proto = strings.ToUpper(proto)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}

	dctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := m.backend.discover(dctx); err != nil {
		return 0, m.mappingError(proto, internalPort, err)
	}

	ext, err := m.backend.add(proto, internalPort, internalPort, leaseDuration)
	if err != nil {
		return 0, m.mappingError(proto, internalPort, err)
	}

	m.mappings[mappingKey(proto, ext)] = &Mapping{
		Protocol:     proto,
		InternalPort: internalPort,
		ExternalPort: ext,
		CreatedAt:    time.Now(),
	}
	m.renewOnce.Do(m.startRenew)

	log.Debug("端口映射成功",
		"mapper", m.backend.name(),
		"proto", proto,
		"internalPort", internalPort,
		"externalPort", ext)
	return ext, nil
}

// UnmapPort 删除映射
func (m *Mapper) UnmapPort(proto string, externalPort int) error {
	proto = strings.ToUpper(proto)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	return m.unmapLocked(proto, externalPort)
}

func (m *Mapper) unmapLocked(proto string, externalPort int) error {
	key := mappingKey(proto, externalPort)
	internalPort := externalPort
	if rec, ok := m.mappings[key]; ok {
		internalPort = rec.InternalPort
	}

	if err := m.backend.remove(proto, internalPort, externalPort); err != nil {
		return m.mappingError(proto, externalPort, err)
	}
	delete(m.mappings, key)
	return nil
}

// Mappings 返回当前映射（副本）
func (m *Mapper) Mappings() []Mapping {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Mapping, 0, len(m.mappings))
	for _, rec := range m.mappings {
		out = append(out, *rec)
	}
	return out
}

// Close 停止续期并删除全部映射
func (m *Mapper) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	cancel := m.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	for _, rec := range m.mappings {
		err = multierr.Append(err, m.unmapLocked(rec.Protocol, rec.ExternalPort))
	}
	return err
}

// ============================================================================
//                              续期
// ============================================================================

// startRenew 启动续期循环，调用方持有 m.mu
func (m *Mapper) startRenew() {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.renewLoop(ctx, renewCheckInterval)
	}()
}

func (m *Mapper) renewLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.renew(time.Now())
		}
	}
}

// renew 在租期过去 2/3 后重新申请映射
func (m *Mapper) renew(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	threshold := leaseDuration * 2 / 3
	for key, rec := range m.mappings {
		if now.Sub(rec.CreatedAt) < threshold {
			continue
		}
		ext, err := m.backend.add(rec.Protocol, rec.InternalPort, rec.ExternalPort, leaseDuration)
		if err != nil {
			log.Warn("端口映射续期失败",
				"mapper", m.backend.name(),
				"proto", rec.Protocol,
				"externalPort", rec.ExternalPort,
				"err", err)
			continue
		}
		rec.CreatedAt = now
		if ext != rec.ExternalPort {
			delete(m.mappings, key)
			rec.ExternalPort = ext
			m.mappings[mappingKey(rec.Protocol, ext)] = rec
		}
	}
}

func (m *Mapper) mappingError(proto string, port int, err error) error {
	return &MappingError{Mapper: m.backend.name(), Protocol: proto, Port: port, Cause: err}
}

func mappingKey(proto string, externalPort int) string {
	return proto + "/" + strconv.Itoa(externalPort)
}
