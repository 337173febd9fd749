package harvest

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-harvest/config"
	"github.com/dep2p/go-harvest/internal/core/harvest/tcp"
	"github.com/dep2p/go-harvest/internal/core/harvest/udp"
	pkgif "github.com/dep2p/go-harvest/pkg/interfaces"
)

// ============================================================================
//                              模块输入依赖
// ============================================================================

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	// Config 配置（可选）
	Config *config.Config `optional:"true"`

	// UDPFactory / TCPFactory 替换默认工厂（可选，测试用）
	UDPFactory pkgif.UDPFactory `optional:"true"`
	TCPFactory pkgif.TCPFactory `optional:"true"`

	// PortMapper 网关端口映射器（可选）
	PortMapper pkgif.PortMapper `optional:"true"`
}

// ============================================================================
//                              模块输出服务
// ============================================================================

// ModuleOutput 定义模块输出服务
type ModuleOutput struct {
	fx.Out

	// Manager 采集器管理器
	Manager *Manager
}

// ============================================================================
//                              服务提供
// ============================================================================

// ProvideServices 提供模块服务
func ProvideServices(input ModuleInput) ModuleOutput {
	cfg := config.NewConfig()
	if input.Config != nil {
		cfg = input.Config
	}

	udpFactory := input.UDPFactory
	if udpFactory == nil {
		udpFactory = udp.NewFactory(udp.Config{
			Interfaces:      cfg.ICE.UDP.Interfaces,
			Networks:        cfg.ICE.UDP.Networks,
			IncludeLoopback: cfg.ICE.UDP.IncludeLoopback,
			ReadBufferSize:  cfg.ICE.UDP.ReadBufferSize,
			WriteBufferSize: cfg.ICE.UDP.WriteBufferSize,
		})
	}

	tcpFactory := input.TCPFactory
	if tcpFactory == nil {
		tcpFactory = tcp.NewFactory(tcp.Config{
			FirstStunBindTimeout: cfg.ICE.TCP.FirstStunBindTimeout.Duration(),
		})
	}

	var opts []Option
	if input.PortMapper != nil {
		opts = append(opts, WithPortMapper(input.PortMapper))
	}

	return ModuleOutput{
		Manager: NewManager(ConfigFromICE(cfg.ICE), udpFactory, tcpFactory, opts...),
	}
}

// ============================================================================
//                              模块定义
// ============================================================================

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("harvest",
		fx.Provide(ProvideServices),
		fx.Invoke(registerLifecycle),
	)
}

// lifecycleInput 生命周期输入参数
type lifecycleInput struct {
	fx.In
	LC      fx.Lifecycle
	Manager *Manager
}

// registerLifecycle 注册生命周期
//
// 启动时构造集合，停止时释放。
func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			input.Manager.Init()
			return nil
		},
		OnStop: func(_ context.Context) error {
			if err := input.Manager.Close(); err != nil {
				log.Warn("释放采集器失败", "err", err)
			}
			return nil
		},
	})
}
