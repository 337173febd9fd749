package config

import (
	"errors"
	"fmt"
	"time"
)

// 端口映射协议
const (
	PortMappingNone   = "none"
	PortMappingUPnP   = "upnp"
	PortMappingNATPMP = "natpmp"
)

// ICEConfig 候选采集配置
//
// Port 同时用于所有单端口 UDP 采集器；TCP 采集器使用独立的 TCP.Port。
type ICEConfig struct {
	// Port 单端口 UDP 采集器绑定端口
	Port int `json:"port" yaml:"port" toml:"port"`

	// UDP 单端口 UDP 采集器配置
	UDP UDPConfig `json:"udp" yaml:"udp" toml:"udp"`

	// TCP TCP 采集器配置
	TCP TCPConfig `json:"tcp" yaml:"tcp" toml:"tcp"`

	// STUNMappingServers 用于发现公网地址的 STUN 服务器（host:port）
	// 为空时不做 STUN 映射发现
	STUNMappingServers []string `json:"stun_mapping_servers,omitempty" yaml:"stun_mapping_servers,omitempty" toml:"stun_mapping_servers,omitempty" split_words:"true"`
}

// UDPConfig 单端口 UDP 采集器配置
type UDPConfig struct {
	// Interfaces 允许使用的网卡名；为空表示全部
	Interfaces []string `json:"interfaces,omitempty" yaml:"interfaces,omitempty" toml:"interfaces,omitempty"`

	// Networks 地址族，取值 udp4 / udp6
	Networks []string `json:"networks,omitempty" yaml:"networks,omitempty" toml:"networks,omitempty"`

	// IncludeLoopback 是否在回环地址上也创建采集器
	IncludeLoopback bool `json:"include_loopback" yaml:"include_loopback" toml:"include_loopback" split_words:"true"`

	// ReadBufferSize / WriteBufferSize socket 缓冲区大小，0 使用系统默认值
	ReadBufferSize  int `json:"read_buffer_size,omitempty" yaml:"read_buffer_size,omitempty" toml:"read_buffer_size,omitempty" split_words:"true"`
	WriteBufferSize int `json:"write_buffer_size,omitempty" yaml:"write_buffer_size,omitempty" toml:"write_buffer_size,omitempty" split_words:"true"`
}

// TCPConfig TCP 采集器配置
type TCPConfig struct {
	// Enabled 是否尝试创建 TCP 采集器
	Enabled bool `json:"enabled" yaml:"enabled" toml:"enabled"`

	// Port TCP 采集器绑定端口（与 UDP 端口无关）
	Port int `json:"port" yaml:"port" toml:"port"`

	// SSLTCP 是否使用伪 SSL 握手帧头
	SSLTCP bool `json:"ssltcp" yaml:"ssltcp" toml:"ssltcp"`

	// MappedPort 静态 NAT / 端口转发时对外通告的端口，0 表示不设置
	MappedPort int `json:"mapped_port,omitempty" yaml:"mapped_port,omitempty" toml:"mapped_port,omitempty" split_words:"true"`

	// PortMapping 未设置 MappedPort 时自动申请映射的协议：none / upnp / natpmp
	PortMapping string `json:"port_mapping,omitempty" yaml:"port_mapping,omitempty" toml:"port_mapping,omitempty" split_words:"true"`

	// PortMappingTimeout 网关发现与映射申请的超时
	PortMappingTimeout Duration `json:"port_mapping_timeout,omitempty" yaml:"port_mapping_timeout,omitempty" toml:"port_mapping_timeout,omitempty" split_words:"true"`

	// FirstStunBindTimeout 新连接等待首个 STUN Binding 的时间，0 使用默认值（30s）
	FirstStunBindTimeout Duration `json:"first_stun_bind_timeout,omitempty" yaml:"first_stun_bind_timeout,omitempty" toml:"first_stun_bind_timeout,omitempty" split_words:"true"`
}

// DefaultICEConfig 返回默认 ICE 配置
func DefaultICEConfig() ICEConfig {
	return ICEConfig{
		Port: 10000,
		UDP: UDPConfig{
			Networks: []string{"udp4", "udp6"},
		},
		TCP: TCPConfig{
			Enabled:            false,
			Port:               4443,
			SSLTCP:             true,
			PortMapping:        PortMappingNone,
			PortMappingTimeout: Duration(5 * time.Second),
		},
	}
}

// HasMappedPort 是否配置了对外映射端口
func (c TCPConfig) HasMappedPort() bool {
	return c.MappedPort > 0
}

// Validate 验证 ICE 配置
func (c *ICEConfig) Validate() error {
	if err := validatePort("port", c.Port); err != nil {
		return err
	}
	for _, n := range c.UDP.Networks {
		if n != "udp4" && n != "udp6" {
			return fmt.Errorf("udp.networks: unknown network %q", n)
		}
	}
	if c.UDP.ReadBufferSize < 0 || c.UDP.WriteBufferSize < 0 {
		return errors.New("udp: buffer size must not be negative")
	}
	if err := validatePort("tcp.port", c.TCP.Port); err != nil {
		return err
	}
	if c.TCP.MappedPort < 0 || c.TCP.MappedPort > 65535 {
		return fmt.Errorf("tcp.mapped_port: %d out of range", c.TCP.MappedPort)
	}
	switch c.TCP.PortMapping {
	case "", PortMappingNone, PortMappingUPnP, PortMappingNATPMP:
	default:
		return fmt.Errorf("tcp.port_mapping: unknown protocol %q", c.TCP.PortMapping)
	}
	if c.TCP.PortMappingTimeout < 0 {
		return errors.New("tcp.port_mapping_timeout must not be negative")
	}
	if c.TCP.FirstStunBindTimeout < 0 {
		return errors.New("tcp.first_stun_bind_timeout must not be negative")
	}
	return nil
}

func validatePort(name string, port int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("%s: %d out of range", name, port)
	}
	return nil
}
