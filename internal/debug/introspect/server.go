package introspect

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"sync"
	"time"

	"github.com/dep2p/go-harvest/internal/core/harvest"
	"github.com/dep2p/go-harvest/internal/util/logger"
)

var log = logger.Logger("introspect")

// DefaultAddr 默认监听地址
const DefaultAddr = "127.0.0.1:6060"

// PublicAddrFunc 返回已发现的公网映射地址
type PublicAddrFunc func() (*net.UDPAddr, bool)

// Config 服务配置
type Config struct {
	// Addr 监听地址，默认 "127.0.0.1:6060"
	Addr string

	// Manager 采集器管理器（必需）
	Manager *harvest.Manager

	// Metrics /metrics 处理器（可选）
	Metrics http.Handler

	// PublicAddr 公网映射地址来源（可选）
	PublicAddr PublicAddrFunc
}

// Server 本地自省 HTTP 服务
type Server struct {
	config    Config
	startedAt time.Time

	server   *http.Server
	listener net.Listener

	running bool
	mu      sync.Mutex
}

// New 创建自省服务
func New(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	return &Server{config: cfg, startedAt: time.Now()}
}

// Handler 返回路由
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/debug/introspect/harvesters", s.handleHarvesters)

	if s.config.Metrics != nil {
		mux.Handle("/metrics", s.config.Metrics)
	}

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	return mux
}

// Start 启动服务
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	s.listener = listener

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("自省服务异常退出", "err", err)
		}
	}()

	s.running = true
	log.Info("自省服务已启动", "addr", listener.Addr().String())
	return nil
}

// Stop 停止服务
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		log.Error("关闭自省服务失败", "err", err)
		return err
	}

	s.running = false
	log.Info("自省服务已停止")
	return nil
}

// Addr 返回实际监听地址
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Addr
}

// ============================================================================
//                              HTTP 处理器
// ============================================================================

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string    `json:"status"`
	SetID     string    `json:"set_id,omitempty"`
	Uptime    string    `json:"uptime"`
	Timestamp time.Time `json:"timestamp"`
}

// 健康状态
const (
	StatusOK           = "ok"
	StatusDegraded     = "degraded"
	StatusInitializing = "initializing"
	StatusClosed       = "closed"
)

// handleHealth 处理健康检查请求
//
// 集合未构造、已释放或没有 UDP 采集器时返回 503。
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := HealthResponse{
		Status:    StatusInitializing,
		Uptime:    time.Since(s.startedAt).Round(time.Second).String(),
		Timestamp: time.Now(),
	}
	code := http.StatusServiceUnavailable

	if set, ok := s.current(); ok {
		resp.SetID = set.ID().String()
		resp.Status = StatusDegraded
		if s.closed() {
			resp.Status = StatusClosed
		} else if set.Healthy() {
			resp.Status = StatusOK
			code = http.StatusOK
		}
	}

	s.writeJSON(w, code, resp)
}

// HarvestersResponse 采集器集合快照
type HarvestersResponse struct {
	SetID        string            `json:"set_id"`
	CreatedAt    time.Time         `json:"created_at"`
	Healthy      bool              `json:"healthy"`
	UDP          []UDPInfo         `json:"udp"`
	TCP          *TCPInfo          `json:"tcp,omitempty"`
	Degradations []DegradationInfo `json:"degradations,omitempty"`
	PublicAddr   string            `json:"public_addr,omitempty"`
}

// UDPInfo 单端口 UDP 采集器信息
type UDPInfo struct {
	LocalAddr string `json:"local_addr"`
}

// TCPInfo TCP 采集器信息
type TCPInfo struct {
	LocalPort      int   `json:"local_port"`
	AdvertisedPort int   `json:"advertised_port"`
	MappedPorts    []int `json:"mapped_ports,omitempty"`
	SSLTCP         bool  `json:"ssltcp"`
	GatewayPort    int   `json:"gateway_port,omitempty"`
}

// DegradationInfo 降级信息
type DegradationInfo struct {
	Kind  string `json:"kind"`
	Error string `json:"error,omitempty"`
}

// handleHarvesters 处理采集器快照请求
func (s *Server) handleHarvesters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	set, ok := s.current()
	if !ok {
		http.Error(w, "Harvester set not initialized", http.StatusServiceUnavailable)
		return
	}
	if s.closed() {
		http.Error(w, "Harvester set closed", http.StatusServiceUnavailable)
		return
	}

	s.writeJSON(w, http.StatusOK, s.snapshot(set))
}

func (s *Server) snapshot(set *harvest.Set) HarvestersResponse {
	resp := HarvestersResponse{
		SetID:     set.ID().String(),
		CreatedAt: set.CreatedAt(),
		Healthy:   set.Healthy(),
		UDP:       make([]UDPInfo, 0),
	}

	for _, h := range set.UDP() {
		info := UDPInfo{}
		if addr := h.LocalAddr(); addr != nil {
			info.LocalAddr = addr.String()
		}
		resp.UDP = append(resp.UDP, info)
	}

	if h, ok := set.TCP(); ok {
		resp.TCP = &TCPInfo{
			LocalPort:      h.LocalPort(),
			AdvertisedPort: h.AdvertisedPort(),
			MappedPorts:    h.MappedPorts(),
			SSLTCP:         h.SSLTCP(),
		}
		if port, ok := set.GatewayPort(); ok {
			resp.TCP.GatewayPort = port
		}
	}

	for _, d := range set.Degradations() {
		info := DegradationInfo{Kind: d.Kind.String()}
		if d.Err != nil {
			info.Error = d.Err.Error()
		}
		resp.Degradations = append(resp.Degradations, info)
	}

	if s.config.PublicAddr != nil {
		if addr, ok := s.config.PublicAddr(); ok {
			resp.PublicAddr = addr.String()
		}
	}
	return resp
}

// ============================================================================
//                              辅助方法
// ============================================================================

func (s *Server) current() (*harvest.Set, bool) {
	if s.config.Manager == nil {
		return nil, false
	}
	return s.config.Manager.Current()
}

func (s *Server) closed() bool {
	return s.config.Manager != nil && s.config.Manager.Closed()
}

// writeJSON 写入 JSON 响应
func (s *Server) writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		log.Error("编码 JSON 失败", "err", err)
	}
}
