package config

import "fmt"

// LogConfig 日志配置
//
// 为空的字段不覆盖 HARVEST_LOG_LEVEL / HARVEST_LOG_FORMAT 的解析结果。
type LogConfig struct {
	// Level 日志级别，语法同 HARVEST_LOG_LEVEL，例如 "harvest=debug,info"
	Level string `json:"level,omitempty" yaml:"level,omitempty" toml:"level,omitempty"`

	// Format 输出格式：text 或 json
	Format string `json:"format,omitempty" yaml:"format,omitempty" toml:"format,omitempty"`
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{}
}

// Validate 验证日志配置
func (c *LogConfig) Validate() error {
	switch c.Format {
	case "", "text", "json":
		return nil
	default:
		return fmt.Errorf("unknown format %q", c.Format)
	}
}
