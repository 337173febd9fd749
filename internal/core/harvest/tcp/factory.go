package tcp

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"syscall"
	"time"

	"github.com/pion/ice/v2"
	"github.com/pion/logging"

	"github.com/dep2p/go-harvest/internal/util/logger"
	pkgif "github.com/dep2p/go-harvest/pkg/interfaces"
)

var log = logger.Logger("harvest/tcp")

// defaultMuxReadBuffer 每个 ICE-TCP 连接缓存的待读包数
const defaultMuxReadBuffer = 8

// DefaultFirstStunBindTimeout 新连接等待首个 STUN Binding 的默认时间
const DefaultFirstStunBindTimeout = 30 * time.Second

// Config TCP 采集器工厂配置
type Config struct {
	// HandshakeTimeout 伪 SSL 握手超时，0 使用 DefaultHandshakeTimeout
	HandshakeTimeout time.Duration

	// MuxReadBuffer 每个连接缓存的待读包数，0 使用默认值
	MuxReadBuffer int

	// FirstStunBindTimeout 新连接等待首个 STUN Binding 的时间，超时关闭连接
	// 0 使用 DefaultFirstStunBindTimeout
	FirstStunBindTimeout time.Duration
}

// ListenFunc 创建 TCP 监听器
type ListenFunc func(network, address string) (net.Listener, error)

// Option 工厂选项
type Option func(*Factory)

// WithListenFunc 替换监听函数（测试用）
func WithListenFunc(fn ListenFunc) Option {
	return func(f *Factory) {
		f.listen = fn
	}
}

// WithLoggerFactory 设置交给 pion 的日志工厂
func WithLoggerFactory(lf logging.LoggerFactory) Option {
	return func(f *Factory) {
		f.loggerFactory = lf
	}
}

// Factory TCP 采集器工厂
type Factory struct {
	cfg           Config
	listen        ListenFunc
	loggerFactory logging.LoggerFactory
}

// 确保实现接口
var _ pkgif.TCPFactory = (*Factory)(nil)

// NewFactory 创建 TCP 采集器工厂
func NewFactory(cfg Config, opts ...Option) *Factory {
	if cfg.MuxReadBuffer <= 0 {
		cfg.MuxReadBuffer = defaultMuxReadBuffer
	}
	if cfg.FirstStunBindTimeout <= 0 {
		cfg.FirstStunBindTimeout = DefaultFirstStunBindTimeout
	}
	f := &Factory{
		cfg:           cfg,
		listen:        net.Listen,
		loggerFactory: logger.NewPionFactory(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateHarvester 在 port 上创建 TCP 采集器
//
// 绑定失败不会 panic 也不会返回 nil 结果，而是以 TCPResult 区分失败类型。
func (f *Factory) CreateHarvester(port int, ssltcp bool) pkgif.TCPResult {
	l, err := f.listen("tcp", net.JoinHostPort("", strconv.Itoa(port)))
	if err != nil {
		return pkgif.TCPFailure(classify(err), &BindError{Port: port, Cause: err})
	}

	addr, ok := l.Addr().(*net.TCPAddr)
	if !ok {
		_ = l.Close()
		return pkgif.TCPFailure(pkgif.TCPResultIOFailure,
			fmt.Errorf("tcp: unexpected listener address type %T", l.Addr()))
	}

	muxListener := l
	if ssltcp {
		muxListener = newPseudoSSLListener(l, f.cfg.HandshakeTimeout)
	}

	mux := ice.NewTCPMuxDefault(ice.TCPMuxParams{
		Listener:             muxListener,
		Logger:               f.loggerFactory.NewLogger("ice"),
		ReadBufferSize:       f.cfg.MuxReadBuffer,
		FirstStunBindTimeout: f.cfg.FirstStunBindTimeout,
	})

	log.Debug("TCP 监听已建立", "addr", addr.String(), "ssltcp", ssltcp)
	return pkgif.TCPResultOf(newHarvester(l, mux, addr.Port, ssltcp))
}

// classify 区分绑定失败与其他 I/O 错误
func classify(err error) pkgif.TCPResultKind {
	switch {
	case errors.Is(err, syscall.EADDRINUSE),
		errors.Is(err, syscall.EACCES),
		errors.Is(err, syscall.EADDRNOTAVAIL):
		return pkgif.TCPResultBindFailure
	default:
		return pkgif.TCPResultIOFailure
	}
}

// BindError TCP 端口绑定错误
type BindError struct {
	Port  int
	Cause error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("tcp: bind port %d: %v", e.Port, e.Cause)
}

func (e *BindError) Unwrap() error {
	return e.Cause
}
