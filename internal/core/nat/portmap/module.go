package portmap

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-harvest/config"
	pkgif "github.com/dep2p/go-harvest/pkg/interfaces"
)

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	Config *config.Config `optional:"true"`
}

// ModuleOutput 定义模块输出服务
type ModuleOutput struct {
	fx.Out

	// PortMapper 未启用映射时为 nil
	PortMapper pkgif.PortMapper
}

// ProvideServices 按配置创建映射器
func ProvideServices(input ModuleInput) (ModuleOutput, error) {
	cfg := config.NewConfig()
	if input.Config != nil {
		cfg = input.Config
	}

	pm, err := New(cfg.ICE.TCP.PortMapping, cfg.ICE.TCP.PortMappingTimeout.Duration())
	if err != nil {
		return ModuleOutput{}, err
	}
	return ModuleOutput{PortMapper: pm}, nil
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("portmap",
		fx.Provide(ProvideServices),
		fx.Invoke(registerLifecycle),
	)
}

type lifecycleInput struct {
	fx.In
	LC         fx.Lifecycle
	PortMapper pkgif.PortMapper
}

// registerLifecycle 停止时删除剩余映射
func registerLifecycle(input lifecycleInput) {
	if input.PortMapper == nil {
		return
	}
	input.LC.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			if err := input.PortMapper.Close(); err != nil {
				log.Warn("删除端口映射失败", "err", err)
			}
			return nil
		},
	})
}
