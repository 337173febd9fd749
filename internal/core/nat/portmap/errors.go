package portmap

import (
	"errors"
	"fmt"
)

// Sentinel errors
var (
	// ErrNoDevice 没有发现支持映射的网关
	ErrNoDevice = errors.New("portmap: no gateway device found")

	// ErrUnknownProtocol 未知的映射协议
	ErrUnknownProtocol = errors.New("portmap: unknown protocol")

	// ErrClosed 映射器已关闭
	ErrClosed = errors.New("portmap: mapper closed")

	// ErrDiscoveryTimeout 网关发现超时
	ErrDiscoveryTimeout = errors.New("portmap: gateway discovery timeout")
)

// MappingError 端口映射错误
type MappingError struct {
	Mapper   string
	Protocol string
	Port     int
	Cause    error
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("portmap: %s mapping %s port %d failed: %v", e.Mapper, e.Protocol, e.Port, e.Cause)
}

func (e *MappingError) Unwrap() error {
	return e.Cause
}
