// Package proxy enforces firewall decisions on live TCP and UDP traffic
// relayed between clients and a single upstream backend.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"grimm.is/tollgate/internal/events"
	"grimm.is/tollgate/internal/firewall"
	"grimm.is/tollgate/internal/logging"
	"grimm.is/tollgate/internal/metrics"
)

// ErrAlreadyRunning is returned by Start when the service is not stopped.
var ErrAlreadyRunning = errors.New("proxy service already running")

// Config describes where the proxy listens and where it forwards to.
type Config struct {
	ListenHost string `json:"listen_host" validate:"required"`
	ListenPort int    `json:"listen_port" validate:"gte=1,lte=65535"`
	TargetHost string `json:"target_host" validate:"required"`
	TargetPort int    `json:"target_port" validate:"gte=1,lte=65535"`
	EnableTCP  bool   `json:"enable_tcp"`
	EnableUDP  bool   `json:"enable_udp"`
}

// DefaultConfig returns the stock configuration: 0.0.0.0:9000 relayed to
// 127.0.0.1:8000 over TCP only.
func DefaultConfig() Config {
	return Config{
		ListenHost: "0.0.0.0",
		ListenPort: 9000,
		TargetHost: "127.0.0.1",
		TargetPort: 8000,
		EnableTCP:  true,
		EnableUDP:  false,
	}
}

// ListenAddr returns host:port for the listening side.
func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.ListenHost, strconv.Itoa(c.ListenPort))
}

// TargetAddr returns host:port for the upstream backend.
func (c Config) TargetAddr() string {
	return net.JoinHostPort(c.TargetHost, strconv.Itoa(c.TargetPort))
}

// Service owns the listening sockets and the per-connection relays.
//
// Lifecycle: Stopped -> Starting -> Running -> Stopping -> Stopped.
// Start is only valid from Stopped; Stop from any other state is a no-op.
type Service struct {
	engine  *firewall.Engine
	logger  *logging.Logger
	metrics *metrics.Registry
	hub     *events.Hub

	mu       sync.Mutex
	cfg      Config
	active   Config
	state    State
	listener net.Listener
	udp      *udpRelay
	cancel   context.CancelFunc
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
	stopped  chan struct{}
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the service's operational logger.
func WithLogger(l *logging.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = l
	}
}

// WithMetrics sets the metrics registry. Default: the engine's registry.
func WithMetrics(r *metrics.Registry) ServiceOption {
	return func(s *Service) {
		s.metrics = r
	}
}

// WithEventHub publishes lifecycle changes to hub.
func WithEventHub(hub *events.Hub) ServiceOption {
	return func(s *Service) {
		s.hub = hub
	}
}

// NewService creates a stopped service bound to engine.
func NewService(engine *firewall.Engine, cfg Config, opts ...ServiceOption) *Service {
	s := &Service{
		engine: engine,
		cfg:    cfg,
		state:  StateStopped,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.WithComponent("proxy")
	}
	if s.metrics == nil {
		s.metrics = engine.Metrics()
	}
	return s
}

// Config returns the configuration the next Start will use.
func (s *Service) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// UpdateConfig replaces the configuration for subsequent starts. Sockets and
// connections that are already open keep the configuration they started with.
func (s *Service) UpdateConfig(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

// State returns the current lifecycle state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Running reports whether a TCP listener or UDP endpoint is open.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listener != nil || s.udp != nil
}

// TCPAddr returns the bound TCP address, or nil when TCP is not listening.
func (s *Service) TCPAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// UDPAddr returns the bound UDP address, or nil when UDP is not listening.
func (s *Service) UDPAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.udp == nil {
		return nil
	}
	return s.udp.conn.LocalAddr()
}

// Start binds the enabled listeners and begins relaying. ctx bounds only the
// bind; the relays live until Stop. A bind failure is returned and leaves the
// service stopped with nothing open.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateStopped {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.state = StateStarting
	cfg := s.cfg
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.Background())
	lc := listenConfig()

	var ln net.Listener
	if cfg.EnableTCP {
		var err error
		ln, err = lc.Listen(ctx, "tcp", cfg.ListenAddr())
		if err != nil {
			cancel()
			s.setState(StateStopped)
			return fmt.Errorf("failed to bind tcp %s: %w", cfg.ListenAddr(), err)
		}
	}

	var relay *udpRelay
	if cfg.EnableUDP {
		pc, err := lc.ListenPacket(ctx, "udp", cfg.ListenAddr())
		if err != nil {
			if ln != nil {
				ln.Close()
			}
			cancel()
			s.setState(StateStopped)
			return fmt.Errorf("failed to bind udp %s: %w", cfg.ListenAddr(), err)
		}
		relay = newUDPRelay(s, pc, cfg)
	}

	s.mu.Lock()
	s.active = cfg
	s.listener = ln
	s.udp = relay
	s.cancel = cancel
	s.conns = make(map[net.Conn]struct{})
	s.stopped = make(chan struct{})
	s.state = StateRunning
	s.mu.Unlock()

	if ln != nil {
		s.wg.Add(1)
		go s.acceptLoop(runCtx, ln, cfg)
		s.logger.Info("TCP proxy started", "listen", ln.Addr().String(), "target", cfg.TargetAddr())
	}
	if relay != nil {
		relay.start(runCtx)
		s.logger.Info("UDP proxy started", "listen", relay.conn.LocalAddr().String(), "target", cfg.TargetAddr())
	}

	s.metrics.SetRunning(true)
	s.emitState(StateRunning, cfg)
	return nil
}

// Stop closes the listeners, tears down every in-flight connection and waits
// for their relays to exit. If ctx expires first Stop returns ctx.Err() and
// the service finishes stopping in the background.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return nil
	}
	s.state = StateStopping
	ln, relay, cancel, cfg := s.listener, s.udp, s.cancel, s.active
	stopped := s.stopped
	s.mu.Unlock()

	cancel()
	if ln != nil {
		ln.Close()
	}
	if relay != nil {
		relay.close()
	}
	s.closeConns()

	go func() {
		s.wg.Wait()
		s.mu.Lock()
		s.listener = nil
		s.udp = nil
		s.cancel = nil
		s.conns = nil
		s.state = StateStopped
		s.mu.Unlock()

		s.metrics.SetRunning(false)
		s.emitState(StateStopped, cfg)
		s.logger.Info("Proxy stopped", "listen", cfg.ListenAddr())
		close(stopped)
	}()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Service) emitState(st State, cfg Config) {
	if s.hub != nil {
		s.hub.EmitProxyState(st.String(), cfg.ListenAddr(), cfg.TargetAddr())
	}
}

// track registers a socket for teardown on Stop. It returns false, having
// closed conn, when the service is already stopping.
func (s *Service) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning || s.conns == nil {
		conn.Close()
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Service) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

func (s *Service) closeConns() {
	s.mu.Lock()
	conns := make([]net.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
