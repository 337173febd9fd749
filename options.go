package harvest

import (
	"go.uber.org/fx"

	pkgif "github.com/dep2p/go-harvest/pkg/interfaces"
)

// Option 节点选项函数
type Option func(*options) error

// options 内部选项结构
type options struct {
	// fxLog 是否输出 fx 依赖注入日志
	fxLog bool

	// udpFactory / tcpFactory 替换默认采集器工厂
	udpFactory pkgif.UDPFactory
	tcpFactory pkgif.TCPFactory

	// fxOptions 追加的 fx 选项
	fxOptions []fx.Option
}

func (o *options) apply(opts ...Option) error {
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(o); err != nil {
			return err
		}
	}
	return nil
}

// WithFxLogger 输出 fx 启动日志（调试依赖注入时使用）
func WithFxLogger(enabled bool) Option {
	return func(o *options) error {
		o.fxLog = enabled
		return nil
	}
}

// WithUDPFactory 替换单端口 UDP 采集器工厂
func WithUDPFactory(f pkgif.UDPFactory) Option {
	return func(o *options) error {
		o.udpFactory = f
		return nil
	}
}

// WithTCPFactory 替换 TCP 采集器工厂
func WithTCPFactory(f pkgif.TCPFactory) Option {
	return func(o *options) error {
		o.tcpFactory = f
		return nil
	}
}

// WithFxOptions 追加 fx 选项
func WithFxOptions(opts ...fx.Option) Option {
	return func(o *options) error {
		o.fxOptions = append(o.fxOptions, opts...)
		return nil
	}
}
