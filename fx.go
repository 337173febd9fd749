package harvest

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-harvest/config"
	harvestcore "github.com/dep2p/go-harvest/internal/core/harvest"
	"github.com/dep2p/go-harvest/internal/core/metrics"
	"github.com/dep2p/go-harvest/internal/core/nat/portmap"
	"github.com/dep2p/go-harvest/internal/core/nat/stun"
	"github.com/dep2p/go-harvest/internal/debug/introspect"
	pkgif "github.com/dep2p/go-harvest/pkg/interfaces"
)

// buildFxApp 构建 fx 应用
//
// 模块顺序决定生命周期钩子顺序：OnStart 按注册顺序执行，OnStop 逆序。
// portmap 排在 harvest 之前，保证管理器先删除自己的映射、映射器最后关闭；
// introspect 最后启动、最先停止。
func buildFxApp(cfg *config.Config, o *options, populate ...interface{}) (*fx.App, error) {
	var modules []fx.Option

	modules = append(modules, fx.Supply(cfg))

	if o.udpFactory != nil {
		f := o.udpFactory
		modules = append(modules, fx.Provide(func() pkgif.UDPFactory { return f }))
	}
	if o.tcpFactory != nil {
		f := o.tcpFactory
		modules = append(modules, fx.Provide(func() pkgif.TCPFactory { return f }))
	}

	modules = append(modules,
		portmap.Module(),
		harvestcore.Module(),
		metrics.Module(),
		stun.Module(),
		introspect.Module(),
	)

	modules = append(modules, o.fxOptions...)

	if len(populate) > 0 {
		modules = append(modules, fx.Populate(populate...))
	}

	modules = append(modules, fx.WithLogger(func() fxevent.Logger {
		if o.fxLog {
			if l, err := zap.NewDevelopment(); err == nil {
				return &fxevent.ZapLogger{Logger: l}
			}
		}
		return &fxevent.ZapLogger{Logger: zap.NewNop()}
	}))

	app := fx.New(modules...)
	if err := app.Err(); err != nil {
		return nil, err
	}
	return app, nil
}
