package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"grimm.is/tollgate/internal/brand"
	"grimm.is/tollgate/internal/control"
	"grimm.is/tollgate/internal/events"
	"grimm.is/tollgate/internal/firewall"
	"grimm.is/tollgate/internal/logging"
	"grimm.is/tollgate/internal/metrics"
)

// ServerConfig holds HTTP server limits.
type ServerConfig struct {
	ReadHeaderTimeout time.Duration // Slowloris prevention
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	MaxBodyBytes      int64
}

// DefaultServerConfig returns the default limits.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
		MaxBodyBytes:      1 << 20,
	}
}

// ServerOptions holds dependencies for the API server.
type ServerOptions struct {
	Engine  *firewall.Engine
	Control *control.Loop
	Hub     *events.Hub       // Optional: enables /api/ws/logs
	Metrics *metrics.Registry // Optional: enables /metrics
	Logger  *logging.Logger
}

// Server handles API requests.
type Server struct {
	engine  *firewall.Engine
	control *control.Loop
	hub     *events.Hub
	metrics *metrics.Registry
	logger  *logging.Logger
	cfg     *ServerConfig

	mux *http.ServeMux

	mu       sync.Mutex
	http     *http.Server
	shutdown chan struct{}
	closed   bool
}

// NewServer creates a new API server with the provided options.
func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Engine == nil {
		return nil, errors.New("api: engine is required")
	}
	if opts.Control == nil {
		return nil, errors.New("api: control loop is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.WithComponent("api")
	}

	s := &Server{
		engine:   opts.Engine,
		control:  opts.Control,
		hub:      opts.Hub,
		metrics:  opts.Metrics,
		logger:   logger,
		cfg:      DefaultServerConfig(),
		mux:      http.NewServeMux(),
		shutdown: make(chan struct{}),
	}
	s.initRoutes()
	return s, nil
}

func (s *Server) initRoutes() {
	s.mux.HandleFunc("GET /api/version", s.handleVersion)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)

	// Rules
	s.mux.HandleFunc("GET /api/rules", s.handleGetRules)
	s.mux.HandleFunc("POST /api/rules", s.handleAddRule)
	s.mux.HandleFunc("POST /api/rules/bulk", s.handleLoadRules)
	s.mux.HandleFunc("DELETE /api/rules", s.handleClearRules)
	s.mux.HandleFunc("DELETE /api/rules/{name}", s.handleRemoveRule)

	// Address lists
	s.mux.HandleFunc("GET /api/whitelist", s.listHandler(listWhitelist, methodGet))
	s.mux.HandleFunc("POST /api/whitelist", s.listHandler(listWhitelist, methodAdd))
	s.mux.HandleFunc("DELETE /api/whitelist", s.listHandler(listWhitelist, methodClear))
	s.mux.HandleFunc("GET /api/blacklist", s.listHandler(listBlacklist, methodGet))
	s.mux.HandleFunc("POST /api/blacklist", s.listHandler(listBlacklist, methodAdd))
	s.mux.HandleFunc("DELETE /api/blacklist", s.listHandler(listBlacklist, methodClear))

	s.mux.HandleFunc("GET /api/default-action", s.handleGetDefaultAction)
	s.mux.HandleFunc("PUT /api/default-action", s.handleSetDefaultAction)

	s.mux.HandleFunc("GET /api/logs", s.handleGetLogs)

	// Proxy lifecycle
	s.mux.HandleFunc("GET /api/proxy", s.handleProxyStatus)
	s.mux.HandleFunc("POST /api/proxy/start", s.handleProxyStart)
	s.mux.HandleFunc("POST /api/proxy/stop", s.handleProxyStop)
	s.mux.HandleFunc("PUT /api/proxy/config", s.handleProxyConfig)

	if s.hub != nil {
		s.mux.HandleFunc("GET /api/ws/logs", s.handleLogsWS)
	}
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = s.maxBodyMiddleware(s.cfg.MaxBodyBytes)(h)
	h = s.loggingMiddleware(h)
	return serverHeader(h)
}

func serverHeader(next http.Handler) http.Handler {
	ident := brand.UserAgent(brand.Version)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", ident)
		next.ServeHTTP(w, r)
	})
}

// Serve accepts API connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
		MaxHeaderBytes:    s.cfg.MaxHeaderBytes,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return http.ErrServerClosed
	}
	s.http = server
	s.mu.Unlock()

	s.logger.Info("API server listening", "addr", ln.Addr().String())
	err := server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// ListenAndServe binds addr and serves until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Shutdown stops accepting requests, ends websocket streams and waits for
// in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.shutdown)
	}
	server := s.http
	s.mu.Unlock()

	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

type versionResponse struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	BuildTime string `json:"build_time,omitempty"`
	GitCommit string `json:"git_commit,omitempty"`
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, versionResponse{
		Name:      brand.Get().Name,
		Version:   brand.Version,
		BuildTime: brand.BuildTime,
		GitCommit: brand.GitCommit,
	})
}

// StatusResponse summarizes engine and proxy state.
type StatusResponse struct {
	Proxy         ProxyStatus `json:"proxy"`
	DefaultAction string      `json:"default_action"`
	Rules         int         `json:"rules"`
	Whitelist     int         `json:"whitelist"`
	Blacklist     int         `json:"blacklist"`
	LogCount      int         `json:"log_count"`
	LogLimit      int         `json:"log_limit"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, StatusResponse{
		Proxy:         s.proxyStatus(),
		DefaultAction: s.engine.DefaultAction().String(),
		Rules:         len(s.engine.Rules()),
		Whitelist:     len(s.engine.Whitelist()),
		Blacklist:     len(s.engine.Blacklist()),
		LogCount:      len(s.engine.RecentLogs()),
		LogLimit:      s.engine.LogLimit(),
	})
}
