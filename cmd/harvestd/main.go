// Package main 提供 harvestd 命令行入口
//
// harvestd 构造进程级采集器集合并保持运行，便于在部署前检查
// 本机能创建哪些 UDP / TCP 候选采集器。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	harvest "github.com/dep2p/go-harvest"
	"github.com/dep2p/go-harvest/config"
	"github.com/dep2p/go-harvest/internal/util/logger"
)

var log = logger.Logger("harvestd")

// ═══════════════════════════════════════════════════════════════════════════
// 命令行参数
// ═══════════════════════════════════════════════════════════════════════════
//
//   命令行参数：运行时覆盖（「这次运行」想怎么跑）
//   配置文件：持久化配置（JSON / YAML / TOML，环境变量 HARVEST_* 覆盖）
//
// ═══════════════════════════════════════════════════════════════════════════
var (
	// ─────────────────────────────────────────────────────────────────────
	// 运行时参数
	// ─────────────────────────────────────────────────────────────────────
	configFile = flag.String("config", "", "配置文件路径（.json / .yaml / .toml）")
	port       = flag.Int("port", -1, "单端口 UDP 采集器端口（-1 = 使用配置）")
	enableTCP  = flag.Bool("tcp", false, "启用 TCP 采集器")

	// ─────────────────────────────────────────────────────────────────────
	// 日志参数
	// ─────────────────────────────────────────────────────────────────────
	logLevel = flag.String("log-level", "", "日志级别，例如 \"info\" 或 \"harvest=debug,info\"")
	fxLog    = flag.Bool("fx-log", false, "输出 fx 依赖注入日志")

	// ─────────────────────────────────────────────────────────────────────
	// 其他
	// ─────────────────────────────────────────────────────────────────────
	showVersion = flag.Bool("version", false, "显示版本信息")
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	if *showVersion {
		printVersion()
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	node, err := harvest.New(cfg, harvest.WithFxLogger(*fxLog))
	if err != nil {
		return fmt.Errorf("创建节点失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := node.Start(ctx); err != nil {
		return fmt.Errorf("启动节点失败: %w", err)
	}

	printSummary(node)

	waitForSignal()
	log.Info("收到退出信号，正在关闭")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	return node.Stop(stopCtx)
}

// loadConfig 加载配置文件并应用命令行覆盖
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(*configFile)
	if err != nil {
		return nil, err
	}

	if *port >= 0 {
		cfg.ICE.Port = *port
	}
	if *enableTCP {
		cfg.ICE.TCP.Enabled = true
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// printSummary 打印采集器集合概要
func printSummary(node *harvest.Node) {
	set := node.Harvesters().Set()

	fmt.Println("═══════════════════════════════════════════════════════")
	fmt.Printf("  %s\n", harvest.VersionInfo())
	fmt.Printf("  集合:     %s\n", set.ID())
	fmt.Printf("  健康:     %v\n", set.Healthy())
	fmt.Printf("  UDP 采集器: %d\n", len(set.UDP()))
	for _, h := range set.UDP() {
		fmt.Printf("    - %s\n", h.LocalAddr())
	}
	if h, ok := set.TCP(); ok {
		fmt.Printf("  TCP 采集器: 端口 %d（通告 %d, ssltcp=%v）\n", h.LocalPort(), h.AdvertisedPort(), h.SSLTCP())
	} else {
		fmt.Println("  TCP 采集器: 无")
	}
	for _, d := range set.Degradations() {
		fmt.Printf("  降级:     %s: %v\n", d.Kind, d.Err)
	}
	if addr, ok := node.IntrospectAddr(); ok {
		fmt.Printf("  自省服务: http://%s\n", addr)
	}
	fmt.Println("═══════════════════════════════════════════════════════")
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("harvestd %s\n", harvest.Version)
	if harvest.GitCommit != "" {
		fmt.Printf("  commit: %s\n", harvest.GitCommit)
	}
	if harvest.BuildDate != "" {
		fmt.Printf("  built:  %s\n", harvest.BuildDate)
	}
}

// waitForSignal 等待 SIGINT / SIGTERM
func waitForSignal() {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals
}
