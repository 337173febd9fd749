// Package config 提供统一的配置管理
//
// 本包采用混合配置模式：
//   - 主 Config 结构体嵌入所有子配置
//   - 每个子配置在独立文件中定义
//   - 支持从 JSON / YAML / TOML 文件加载，环境变量（HARVEST_ 前缀）覆盖
//
// 使用示例：
//
//	// 创建默认配置
//	cfg := config.NewConfig()
//	cfg.ICE.TCP.Enabled = true
//
//	// 从文件加载（格式由扩展名决定）
//	cfg, err := config.Load("harvest.yaml")
package config

import "fmt"

// EnvPrefix 环境变量前缀
const EnvPrefix = "HARVEST"

// Config 是 go-harvest 的完整配置结构
//
// 配置按照功能模块组织：
//   - ICE: 候选采集器（UDP 单端口、TCP、端口映射、STUN 映射）
//   - Log: 日志级别与格式
//   - Diagnostics: 本地自省与健康检查服务
type Config struct {
	// ICE 候选采集配置
	ICE ICEConfig `json:"ice" yaml:"ice" toml:"ice"`

	// Log 日志配置
	Log LogConfig `json:"log" yaml:"log" toml:"log"`

	// Diagnostics 诊断服务配置
	Diagnostics DiagnosticsConfig `json:"diagnostics" yaml:"diagnostics" toml:"diagnostics"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		ICE:         DefaultICEConfig(),
		Log:         DefaultLogConfig(),
		Diagnostics: DefaultDiagnosticsConfig(),
	}
}

// Validate 验证配置的有效性
//
// 建议在使用配置前调用此方法。
func (c *Config) Validate() error {
	if err := c.ICE.Validate(); err != nil {
		return fmt.Errorf("ice: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if err := c.Diagnostics.Validate(); err != nil {
		return fmt.Errorf("diagnostics: %w", err)
	}
	return nil
}
