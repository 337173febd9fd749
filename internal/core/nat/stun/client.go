package stun

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"sync"
	"time"

	"github.com/pion/stun"

	"github.com/dep2p/go-harvest/internal/util/logger"
	pkgif "github.com/dep2p/go-harvest/pkg/interfaces"
)

var log = logger.Logger("nat/stun")

// 默认参数
const (
	DefaultTimeout       = 5 * time.Second
	DefaultRetries       = 3
	DefaultBackoff       = time.Second
	DefaultCacheDuration = 5 * time.Minute
)

// Sentinel errors
var (
	// ErrNoServers 没有配置 STUN 服务器
	ErrNoServers = errors.New("stun: no STUN servers")

	// ErrNoResponse 所有服务器都没有返回有效响应
	ErrNoResponse = errors.New("stun: no valid response from any server")

	// ErrInvalidResponse 响应不是对应请求的 Binding Success
	ErrInvalidResponse = errors.New("stun: invalid response")
)

// QueryError 单个服务器查询错误
type QueryError struct {
	Server  string
	Message string
	Cause   error
}

func (e *QueryError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("stun: %s: %s: %v", e.Server, e.Message, e.Cause)
	}
	return fmt.Sprintf("stun: %s: %s", e.Server, e.Message)
}

func (e *QueryError) Unwrap() error {
	return e.Cause
}

// Config STUN 客户端配置
type Config struct {
	// Servers STUN 服务器（host:port），按顺序尝试
	Servers []string

	// Timeout 单次请求超时
	Timeout time.Duration

	// Retries 每个服务器的尝试次数
	Retries int

	// Backoff 第一次重试前的等待时间，之后每次翻倍
	Backoff time.Duration

	// CacheDuration 成功结果的缓存时间
	CacheDuration time.Duration
}

// QueryFunc 查询单个服务器
type QueryFunc func(ctx context.Context, server string) (*net.UDPAddr, error)

// Option 客户端选项
type Option func(*Client)

// WithQueryFunc 替换查询函数（测试用）
func WithQueryFunc(fn QueryFunc) Option {
	return func(c *Client) {
		c.query = fn
	}
}

// Client STUN 客户端
type Client struct {
	cfg   Config
	query QueryFunc

	mu         sync.RWMutex
	cachedAddr *net.UDPAddr
	cachedAt   time.Time
}

// 确保实现接口
var _ pkgif.AddressDiscoverer = (*Client)(nil)

// NewClient 创建 STUN 客户端
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries <= 0 {
		cfg.Retries = DefaultRetries
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.CacheDuration <= 0 {
		cfg.CacheDuration = DefaultCacheDuration
	}

	c := &Client{cfg: cfg}
	c.query = c.queryServer
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Servers 返回配置的服务器
func (c *Client) Servers() []string {
	return slices.Clone(c.cfg.Servers)
}

// GetExternalAddr 获取公网映射地址
func (c *Client) GetExternalAddr(ctx context.Context) (*net.UDPAddr, error) {
	if addr, ok := c.cached(); ok {
		return addr, nil
	}
	if len(c.cfg.Servers) == 0 {
		return nil, ErrNoServers
	}

	var lastErr error
	for _, server := range c.cfg.Servers {
		backoff := c.cfg.Backoff
		for attempt := 0; attempt < c.cfg.Retries; attempt++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			addr, err := c.query(ctx, server)
			if err == nil {
				c.setCached(addr)
				log.Debug("STUN 映射地址", "server", server, "addr", addr.String())
				return addr, nil
			}
			lastErr = err
			log.Debug("STUN 查询失败", "server", server, "attempt", attempt+1, "err", err)

			if attempt == c.cfg.Retries-1 {
				break
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	return nil, fmt.Errorf("%w: %w", ErrNoResponse, lastErr)
}

// LastAddr 返回最近一次成功查询的地址（不论是否过期）
func (c *Client) LastAddr() (*net.UDPAddr, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cachedAddr, c.cachedAddr != nil
}

// queryServer 向单个服务器发送 Binding Request
func (c *Client) queryServer(ctx context.Context, server string) (*net.UDPAddr, error) {
	raddr, err := net.ResolveUDPAddr("udp", server)
	if err != nil {
		return nil, &QueryError{Server: server, Message: "resolve server address", Cause: err}
	}

	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, &QueryError{Server: server, Message: "dial server", Cause: err}
	}
	defer conn.Close()

	// 上下文取消时立即中断读取
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	deadline := time.Now().Add(c.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	req, err := stun.Build(stun.TransactionID, stun.BindingRequest)
	if err != nil {
		return nil, &QueryError{Server: server, Message: "build request", Cause: err}
	}
	if _, err := req.WriteTo(conn); err != nil {
		return nil, &QueryError{Server: server, Message: "send request", Cause: err}
	}

	buf := make([]byte, 1500)
	n, err := conn.Read(buf)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &QueryError{Server: server, Message: "read response", Cause: err}
	}

	res := &stun.Message{Raw: buf[:n]}
	if err := res.Decode(); err != nil {
		return nil, &QueryError{Server: server, Message: "decode response", Cause: err}
	}
	if res.Type != stun.BindingSuccess || res.TransactionID != req.TransactionID {
		return nil, &QueryError{Server: server, Message: "unexpected message", Cause: ErrInvalidResponse}
	}

	var xor stun.XORMappedAddress
	if err := xor.GetFrom(res); err == nil {
		return &net.UDPAddr{IP: xor.IP, Port: xor.Port}, nil
	}

	// 旧版服务器只返回 MAPPED-ADDRESS
	var mapped stun.MappedAddress
	if err := mapped.GetFrom(res); err != nil {
		return nil, &QueryError{Server: server, Message: "no mapped address in response", Cause: err}
	}
	return &net.UDPAddr{IP: mapped.IP, Port: mapped.Port}, nil
}

func (c *Client) cached() (*net.UDPAddr, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.cachedAddr != nil && time.Since(c.cachedAt) < c.cfg.CacheDuration {
		return c.cachedAddr, true
	}
	return nil, false
}

func (c *Client) setCached(addr *net.UDPAddr) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cachedAddr = addr
	c.cachedAt = time.Now()
}
