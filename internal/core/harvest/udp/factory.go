package udp

import (
	"fmt"
	"net"
	"slices"

	"github.com/pion/ice/v2"
	"github.com/pion/logging"

	"github.com/dep2p/go-harvest/internal/util/logger"
	pkgif "github.com/dep2p/go-harvest/pkg/interfaces"
)

var log = logger.Logger("harvest/udp")

// Config UDP 采集器工厂配置
type Config struct {
	// Interfaces 允许的网卡名，为空表示全部
	Interfaces []string

	// Networks 地址族（udp4 / udp6），为空表示两者
	Networks []string

	// IncludeLoopback 是否使用回环地址
	IncludeLoopback bool

	// ReadBufferSize / WriteBufferSize socket 缓冲区，0 表示系统默认
	ReadBufferSize  int
	WriteBufferSize int
}

// AddrSource 返回候选本地地址
type AddrSource func() ([]net.IP, error)

// Option 工厂选项
type Option func(*Factory)

// WithAddrSource 替换本地地址来源（测试用）
func WithAddrSource(src AddrSource) Option {
	return func(f *Factory) {
		f.addrs = src
	}
}

// WithLoggerFactory 设置交给 pion 的日志工厂
func WithLoggerFactory(lf logging.LoggerFactory) Option {
	return func(f *Factory) {
		f.loggerFactory = lf
	}
}

// Factory 单端口 UDP 采集器工厂
type Factory struct {
	cfg           Config
	addrs         AddrSource
	loggerFactory logging.LoggerFactory
}

// 确保实现接口
var _ pkgif.UDPFactory = (*Factory)(nil)

// NewFactory 创建 UDP 采集器工厂
func NewFactory(cfg Config, opts ...Option) *Factory {
	f := &Factory{
		cfg:           cfg,
		loggerFactory: logger.NewPionFactory(),
	}
	f.addrs = f.interfaceAddrs
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateHarvesters 在每个可用本地地址上绑定 port
//
// 返回值不为 nil；没有可用地址时为空切片。
func (f *Factory) CreateHarvesters(port int) []pkgif.UDPHarvester {
	harvesters := make([]pkgif.UDPHarvester, 0)

	ips, err := f.addrs()
	if err != nil {
		log.Warn("枚举本地地址失败", "err", err)
		return harvesters
	}

	for _, ip := range ips {
		network := networkOf(ip)
		if !f.networkAllowed(network) {
			continue
		}

		h, err := f.bind(network, ip, port)
		if err != nil {
			log.Warn("绑定 UDP 端口失败，跳过该地址", "ip", ip.String(), "port", port, "err", err)
			continue
		}

		log.Info("单端口 UDP 采集器已创建", "addr", h.LocalAddr().String())
		harvesters = append(harvesters, h)
	}

	return harvesters
}

// bind 在 ip:port 上创建 socket 并包装为 UDPMux
func (f *Factory) bind(network string, ip net.IP, port int) (*Harvester, error) {
	conn, err := net.ListenUDP(network, &net.UDPAddr{IP: ip, Port: port})
	if err != nil {
		return nil, err
	}

	if f.cfg.ReadBufferSize > 0 {
		if err := conn.SetReadBuffer(f.cfg.ReadBufferSize); err != nil {
			log.Debug("设置读缓冲区失败", "err", err)
		}
	}
	if f.cfg.WriteBufferSize > 0 {
		if err := conn.SetWriteBuffer(f.cfg.WriteBufferSize); err != nil {
			log.Debug("设置写缓冲区失败", "err", err)
		}
	}

	laddr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		_ = conn.Close()
		return nil, fmt.Errorf("unexpected local address type %T", conn.LocalAddr())
	}

	mux := ice.NewUDPMuxDefault(ice.UDPMuxParams{
		Logger:  f.loggerFactory.NewLogger("ice"),
		UDPConn: conn,
	})

	return newHarvester(conn, mux, laddr), nil
}

func (f *Factory) networkAllowed(network string) bool {
	if len(f.cfg.Networks) == 0 {
		return true
	}
	return slices.Contains(f.cfg.Networks, network)
}

// interfaceAddrs 枚举本机网卡地址
func (f *Factory) interfaceAddrs() ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var ips []net.IP
	for _, iface := range ifaces {
		if !f.interfaceAllowed(iface) {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			log.Debug("读取网卡地址失败", "iface", iface.Name, "err", err)
			continue
		}

		for _, addr := range addrs {
			if ip := usableIP(addr, f.cfg.IncludeLoopback); ip != nil {
				ips = append(ips, ip)
			}
		}
	}
	return ips, nil
}

func (f *Factory) interfaceAllowed(iface net.Interface) bool {
	if iface.Flags&net.FlagUp == 0 {
		return false
	}
	if iface.Flags&net.FlagLoopback != 0 && !f.cfg.IncludeLoopback {
		return false
	}
	if len(f.cfg.Interfaces) > 0 && !slices.Contains(f.cfg.Interfaces, iface.Name) {
		return false
	}
	return true
}

// usableIP 从网卡地址中取出可用于绑定的 IP
func usableIP(addr net.Addr, includeLoopback bool) net.IP {
	var ip net.IP
	switch v := addr.(type) {
	case *net.IPNet:
		ip = v.IP
	case *net.IPAddr:
		ip = v.IP
	default:
		return nil
	}

	switch {
	case ip == nil, ip.IsUnspecified():
		return nil
	case ip.IsLoopback() && !includeLoopback:
		return nil
	case ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast():
		// 链路本地地址需要 zone，不作为候选
		return nil
	}
	return ip
}

func networkOf(ip net.IP) string {
	if ip.To4() != nil {
		return "udp4"
	}
	return "udp6"
}
