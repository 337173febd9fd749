package metrics

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-harvest/internal/core/harvest"
)

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("metrics",
		fx.Provide(New),
		fx.Invoke(registerLifecycle),
	)
}

type lifecycleInput struct {
	fx.In
	LC        fx.Lifecycle
	Collector *Collector
	Manager   *harvest.Manager
}

// registerLifecycle 集合构造后更新指标
func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			input.Collector.Observe(input.Manager.Set())
			return nil
		},
	})
}
