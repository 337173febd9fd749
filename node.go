package harvest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/fx"

	"github.com/dep2p/go-harvest/config"
	harvestcore "github.com/dep2p/go-harvest/internal/core/harvest"
	"github.com/dep2p/go-harvest/internal/core/metrics"
	"github.com/dep2p/go-harvest/internal/debug/introspect"
	"github.com/dep2p/go-harvest/internal/util/logger"
)

var log = logger.Logger("node")

// DefaultStartTimeout Start 未带截止时间时的默认超时
const DefaultStartTimeout = 30 * time.Second

type nodeState int

const (
	stateIdle nodeState = iota
	stateStarted
	stateClosed
)

// Node 进程级采集器节点
//
// 持有 fx 应用及其构造出的采集器管理器。
type Node struct {
	cfg *config.Config
	app *fx.App

	manager    *harvestcore.Manager
	collector  *metrics.Collector
	introspect *introspect.Server

	mu    sync.Mutex
	state nodeState
}

// New 创建节点
//
// cfg 为 nil 时使用默认配置。此时不做任何绑定，采集器在 Start 时构造。
func New(cfg *config.Config, opts ...Option) (*Node, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	o := &options{}
	if err := o.apply(opts...); err != nil {
		return nil, err
	}

	logger.Configure(cfg.Log.Level, cfg.Log.Format)

	n := &Node{cfg: cfg}
	app, err := buildFxApp(cfg, o, &n.manager, &n.collector, &n.introspect)
	if err != nil {
		return nil, fmt.Errorf("build fx app: %w", err)
	}
	n.app = app
	return n, nil
}

// Start 启动节点
//
// 构造采集器集合并启动可选服务。启动失败后节点不可再用。
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch n.state {
	case stateStarted:
		return ErrAlreadyStarted
	case stateClosed:
		return ErrNodeClosed
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultStartTimeout)
		defer cancel()
	}

	if err := n.app.Start(ctx); err != nil {
		n.state = stateClosed
		return fmt.Errorf("start node: %w", err)
	}
	n.state = stateStarted

	set := n.manager.Set()
	log.Info("节点已启动",
		"set", set.ID().String(),
		"udp", len(set.UDP()),
		"healthy", set.Healthy())
	return nil
}

// Stop 停止节点并释放全部采集器
//
// 幂等；未启动的节点直接进入关闭状态。
func (n *Node) Stop(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch n.state {
	case stateClosed:
		return nil
	case stateIdle:
		n.state = stateClosed
		return n.manager.Close()
	}

	n.state = stateClosed
	if err := n.app.Stop(ctx); err != nil {
		return fmt.Errorf("stop node: %w", err)
	}
	log.Info("节点已停止")
	return nil
}

// Harvesters 返回采集器管理器，供 ICE agent 使用
func (n *Node) Harvesters() *harvestcore.Manager {
	return n.manager
}

// Metrics 返回指标收集器
func (n *Node) Metrics() *metrics.Collector {
	return n.collector
}

// IntrospectAddr 返回自省服务的监听地址，未启用时返回 false
func (n *Node) IntrospectAddr() (string, bool) {
	if n.introspect == nil {
		return "", false
	}
	return n.introspect.Addr(), true
}

// Config 返回节点配置
func (n *Node) Config() *config.Config {
	return n.cfg
}
