package stun

import (
	"context"
	"sync"

	"go.uber.org/fx"

	"github.com/dep2p/go-harvest/config"
	"github.com/dep2p/go-harvest/internal/core/harvest"
)

// ============================================================================
//                              模块输入依赖
// ============================================================================

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	Config *config.Config `optional:"true"`
}

// ============================================================================
//                              模块输出服务
// ============================================================================

// ModuleOutput 定义模块输出服务
type ModuleOutput struct {
	fx.Out

	// Client 未配置 STUN 服务器时为 nil
	Client *Client
}

// ProvideServices 提供模块服务
func ProvideServices(input ModuleInput) ModuleOutput {
	cfg := config.NewConfig()
	if input.Config != nil {
		cfg = input.Config
	}
	if len(cfg.ICE.STUNMappingServers) == 0 {
		return ModuleOutput{}
	}
	return ModuleOutput{
		Client: NewClient(Config{Servers: cfg.ICE.STUNMappingServers}),
	}
}

// ============================================================================
//                              模块定义
// ============================================================================

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("stun",
		fx.Provide(ProvideServices),
		fx.Invoke(registerLifecycle),
	)
}

// lifecycleInput 生命周期输入参数
type lifecycleInput struct {
	fx.In
	LC      fx.Lifecycle
	Client  *Client
	Manager *harvest.Manager
}

// registerLifecycle 启动后在后台查询一次公网映射地址
func registerLifecycle(input lifecycleInput) {
	if input.Client == nil {
		return
	}

	var (
		cancel context.CancelFunc
		wg     sync.WaitGroup
	)
	input.LC.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithTimeout(context.Background(), DefaultTimeout*DefaultRetries)
			wg.Add(1)
			go func() {
				defer wg.Done()
				resolve(ctx, input.Client, input.Manager)
			}()
			return nil
		},
		OnStop: func(_ context.Context) error {
			cancel()
			wg.Wait()
			return nil
		},
	})
}

// resolve 查询公网地址并与本地 UDP 采集器一起记录
func resolve(ctx context.Context, client *Client, m *harvest.Manager) {
	addr, err := client.GetExternalAddr(ctx)
	if err != nil {
		log.Debug("STUN 映射发现失败", "servers", client.Servers(), "err", err)
		return
	}

	locals := make([]string, 0)
	if s := m.Set(); s != nil {
		for _, h := range s.UDP() {
			locals = append(locals, h.LocalAddr().String())
		}
	}
	log.Info("已发现公网映射地址", "public", addr.String(), "local", locals)
}
