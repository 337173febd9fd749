package tcp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// ErrBadHandshake 连接开头不是预期的伪 SSL ClientHello
var ErrBadHandshake = errors.New("tcp: unexpected ssltcp client hello")

// 伪 SSL 握手报文（与 libjingle / ice4j 的 ssltcp 实现一致）
//
// 客户端先发送固定的 SSLv2 ClientHello，服务端回固定的 ServerHello，
// 此后连接上承载的是普通的 RFC 4571 帧。
var (
	sslClientHello = []byte{
		0x80, 0x46, // msg len
		0x01,       // CLIENT_HELLO
		0x03, 0x01, // SSL 3.1
		0x00, 0x2d, // ciphersuite len
		0x00, 0x00, // session id len
		0x00, 0x10, // challenge len
		0x01, 0x00, 0x80, 0x03, 0x00, 0x80, 0x07, 0x00, 0xc0, // ciphersuites
		0x06, 0x00, 0x40, 0x02, 0x00, 0x80, 0x04, 0x00, 0x80,
		0x00, 0x00, 0x04, 0x00, 0xfe, 0xff, 0x00, 0x00, 0x0a,
		0x00, 0xfe, 0xfe, 0x00, 0x00, 0x09, 0x00, 0x00, 0x64,
		0x00, 0x00, 0x62, 0x00, 0x00, 0x03, 0x00, 0x00, 0x06,
		0x1f, 0x17, 0x0c, 0xa6, 0x2f, 0x00, 0x78, 0xfc, // challenge
		0x46, 0x55, 0x2e, 0xb1, 0x83, 0x39, 0xf1, 0xea,
	}

	sslServerHello = []byte{
		0x16,       // handshake message
		0x03, 0x01, // SSL 3.1
		0x00, 0x4a, // message len
		0x02,             // SERVER_HELLO
		0x00, 0x00, 0x46, // handshake len
		0x03, 0x01, // SSL 3.1
		0x42, 0x85, 0x45, 0xa7, 0x27, 0xa9, 0x5d, 0xa0, // server random
		0xb3, 0xc5, 0xe7, 0x53, 0xda, 0x48, 0x2b, 0x3f,
		0xc6, 0x5a, 0xca, 0x89, 0xc1, 0x58, 0x52, 0xa1,
		0x78, 0x3c, 0x5b, 0x17, 0x46, 0x00, 0x85, 0x3f,
		0x20,                                           // session id len
		0x0e, 0xd3, 0x06, 0x72, 0x5b, 0x5b, 0x1b, 0x5f, // session id
		0x15, 0xac, 0x13, 0xf9, 0x88, 0x53, 0x9d, 0x9b,
		0xe8, 0x3d, 0x7b, 0x0c, 0x30, 0x32, 0x6e, 0x38,
		0x4d, 0xa2, 0x75, 0x57, 0x41, 0x6c, 0x34, 0x5c,
		0x00, 0x04, // RSA/RC4-128/MD5
		0x00, // null compression
	}
)

// DefaultHandshakeTimeout 等待 ClientHello 的最长时间
const DefaultHandshakeTimeout = 10 * time.Second

// pseudoSSLListener 在 Accept 返回的连接上叠加伪 SSL 握手
//
// 握手在连接第一次 Read 时执行，不阻塞 Accept 循环。
type pseudoSSLListener struct {
	net.Listener
	timeout time.Duration
}

func newPseudoSSLListener(l net.Listener, timeout time.Duration) net.Listener {
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	return &pseudoSSLListener{Listener: l, timeout: timeout}
}

// Accept 接受连接
func (l *pseudoSSLListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	return &pseudoSSLConn{Conn: conn, timeout: l.timeout}, nil
}

// pseudoSSLConn 首次读取前完成伪 SSL 握手的连接
//
// 调用方在握手前设置的读超时会被记录，握手期间取它与握手超时中较早的一个，
// 握手完成后恢复为调用方的值。
type pseudoSSLConn struct {
	net.Conn
	timeout time.Duration

	once         sync.Once
	handshakeErr error

	mu           sync.Mutex
	handshook    bool
	readDeadline time.Time
}

// Read 首次调用时先消费 ClientHello 并回复 ServerHello
func (c *pseudoSSLConn) Read(p []byte) (int, error) {
	c.once.Do(func() {
		c.handshakeErr = c.handshake()
		if c.handshakeErr != nil {
			_ = c.Conn.Close()
		}
	})
	if c.handshakeErr != nil {
		return 0, c.handshakeErr
	}
	return c.Conn.Read(p)
}

// SetReadDeadline 记录调用方的读超时；握手完成前不下发到底层连接
func (c *pseudoSSLConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.readDeadline = t
	if !c.handshook {
		return nil
	}
	return c.Conn.SetReadDeadline(t)
}

// SetDeadline 同时设置读写超时，读超时按 SetReadDeadline 处理
func (c *pseudoSSLConn) SetDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.readDeadline = t
	if !c.handshook {
		return c.Conn.SetWriteDeadline(t)
	}
	return c.Conn.SetDeadline(t)
}

func (c *pseudoSSLConn) handshake() error {
	c.mu.Lock()
	deadline := time.Now().Add(c.timeout)
	if !c.readDeadline.IsZero() && c.readDeadline.Before(deadline) {
		deadline = c.readDeadline
	}
	c.mu.Unlock()

	if err := c.Conn.SetReadDeadline(deadline); err != nil {
		return err
	}

	hello := make([]byte, len(sslClientHello))
	if _, err := io.ReadFull(c.Conn, hello); err != nil {
		return fmt.Errorf("tcp: read ssltcp client hello: %w", err)
	}
	if !bytes.Equal(hello, sslClientHello) {
		return ErrBadHandshake
	}

	c.mu.Lock()
	c.handshook = true
	err := c.Conn.SetReadDeadline(c.readDeadline)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	if _, err := c.Conn.Write(sslServerHello); err != nil {
		return fmt.Errorf("tcp: write ssltcp server hello: %w", err)
	}
	return nil
}
