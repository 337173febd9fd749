package config

import "errors"

// DiagnosticsConfig 诊断服务配置
type DiagnosticsConfig struct {
	// EnableIntrospect 启用自省服务（/health、/metrics、/debug/*）
	EnableIntrospect bool `json:"enable_introspect" yaml:"enable_introspect" toml:"enable_introspect" split_words:"true"`

	// IntrospectAddr 自省服务监听地址
	// 默认 "127.0.0.1:6060"
	IntrospectAddr string `json:"introspect_addr" yaml:"introspect_addr" toml:"introspect_addr" split_words:"true"`
}

// DefaultDiagnosticsConfig 返回默认诊断配置
func DefaultDiagnosticsConfig() DiagnosticsConfig {
	return DiagnosticsConfig{
		EnableIntrospect: false, // 默认禁用
		IntrospectAddr:   "127.0.0.1:6060",
	}
}

// Validate 验证诊断配置
func (c *DiagnosticsConfig) Validate() error {
	if c.EnableIntrospect && c.IntrospectAddr == "" {
		return errors.New("introspect_addr is required when introspect is enabled")
	}
	return nil
}
