package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// ErrUnknownFormat 无法从扩展名识别配置格式
var ErrUnknownFormat = errors.New("config: unknown file format")

// Load 加载配置
//
// 优先级（从低到高）：
//  1. 默认值
//  2. 配置文件（path 为空时跳过；格式由扩展名决定：.json / .yaml / .yml / .toml）
//  3. 环境变量（HARVEST_ 前缀，例如 HARVEST_ICE_PORT、HARVEST_ICE_TCP_ENABLED）
//
// 返回前会调用 Validate。
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := decode(cfg, filepath.Ext(path), data); err != nil {
			return nil, err
		}
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ApplyEnv 用环境变量覆盖配置，只有实际设置的变量才生效
func ApplyEnv(cfg *Config) error {
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return fmt.Errorf("failed to process environment variables: %w", err)
	}
	return nil
}

// FromJSON 从 JSON 数据创建配置（未出现的字段保持默认值）
//
// 示例 JSON:
//
//	{
//	  "ice": {"port": 10000, "tcp": {"enabled": true, "port": 443}}
//	}
func FromJSON(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := decode(cfg, ".json", data); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromYAML 从 YAML 数据创建配置
func FromYAML(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := decode(cfg, ".yaml", data); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromTOML 从 TOML 数据创建配置
func FromTOML(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := decode(cfg, ".toml", data); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(cfg *Config, ext string, data []byte) error {
	var err error
	switch strings.ToLower(ext) {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(cfg)
		if errors.Is(err, io.EOF) {
			err = nil
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(cfg)
		// 空文件
		if errors.Is(err, io.EOF) {
			err = nil
		}
	case ".toml":
		var meta toml.MetaData
		meta, err = toml.Decode(string(data), cfg)
		if err == nil {
			if undecoded := meta.Undecoded(); len(undecoded) > 0 {
				err = fmt.Errorf("unknown keys: %v", undecoded)
			}
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, ext)
	}
	if err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return nil
}
