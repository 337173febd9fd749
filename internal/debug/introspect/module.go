package introspect

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-harvest/config"
	"github.com/dep2p/go-harvest/internal/core/harvest"
	"github.com/dep2p/go-harvest/internal/core/metrics"
	"github.com/dep2p/go-harvest/internal/core/nat/stun"
)

// Module 返回自省服务 Fx 模块
func Module() fx.Option {
	return fx.Module("introspect",
		fx.Provide(NewFromParams),
		fx.Invoke(registerLifecycle),
	)
}

// IntrospectParams 自省服务依赖参数
type IntrospectParams struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
	Manager    *harvest.Manager
	Metrics    *metrics.Collector `optional:"true"`
	STUN       *stun.Client       `optional:"true"`
}

// IntrospectOutput 自省服务输出
type IntrospectOutput struct {
	fx.Out

	// Server 未启用时为 nil
	Server *Server
}

// NewFromParams 从参数创建自省服务
func NewFromParams(params IntrospectParams) IntrospectOutput {
	cfg := params.UnifiedCfg
	if cfg == nil || !cfg.Diagnostics.EnableIntrospect {
		return IntrospectOutput{}
	}

	sc := Config{
		Addr:    cfg.Diagnostics.IntrospectAddr,
		Manager: params.Manager,
	}
	if params.Metrics != nil {
		sc.Metrics = params.Metrics.Handler()
	}
	if params.STUN != nil {
		sc.PublicAddr = params.STUN.LastAddr
	}

	return IntrospectOutput{Server: New(sc)}
}

// registerLifecycle 注册生命周期钩子
func registerLifecycle(lc fx.Lifecycle, server *Server) {
	if server == nil {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return server.Start(ctx)
		},
		OnStop: func(_ context.Context) error {
			return server.Stop()
		},
	})
}
