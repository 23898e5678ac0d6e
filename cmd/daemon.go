package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"grimm.is/tollgate/internal/api"
	"grimm.is/tollgate/internal/config"
	"grimm.is/tollgate/internal/control"
	"grimm.is/tollgate/internal/events"
	"grimm.is/tollgate/internal/firewall"
	"grimm.is/tollgate/internal/logging"
	"grimm.is/tollgate/internal/metrics"
	"grimm.is/tollgate/internal/proxy"
)

// shutdownTimeout bounds how long the daemon waits for relays and API
// requests to drain.
const shutdownTimeout = 10 * time.Second

// Daemon wires the engine, proxy service, control loop and API together.
type Daemon struct {
	cfg     *config.Config
	logger  *logging.Logger
	metrics *metrics.Registry

	Hub     *events.Hub
	Engine  *firewall.Engine
	Service *proxy.Service
	Loop    *control.Loop
	API     *api.Server

	apiAddr net.Addr
	ready   chan struct{}
}

// NewDaemon builds every component from cfg without opening any socket.
func NewDaemon(cfg *config.Config, logger *logging.Logger, reg *metrics.Registry) (*Daemon, error) {
	hub := events.NewHub()

	engine, err := cfg.NewEngine(
		firewall.WithLogger(logger.WithComponent("firewall")),
		firewall.WithMetrics(reg),
		firewall.WithEventHub(hub),
	)
	if err != nil {
		return nil, err
	}

	svc := proxy.NewService(engine, cfg.ProxyConfig(),
		proxy.WithLogger(logger.WithComponent("proxy")),
		proxy.WithMetrics(reg),
		proxy.WithEventHub(hub),
	)
	loop := control.NewLoop(svc, control.WithLogger(logger.WithComponent("control")))

	d := &Daemon{
		cfg:     cfg,
		logger:  logger,
		metrics: reg,
		Hub:     hub,
		Engine:  engine,
		Service: svc,
		Loop:    loop,
		ready:   make(chan struct{}),
	}

	if cfg.APIEnabled() {
		opts := api.ServerOptions{
			Engine:  engine,
			Control: loop,
			Hub:     hub,
			Logger:  logger.WithComponent("api"),
		}
		if cfg.MetricsEnabled() {
			opts.Metrics = reg
		}
		d.API, err = api.NewServer(opts)
		if err != nil {
			loop.Close()
			return nil, err
		}
	}
	return d, nil
}

// Ready is closed once the API is listening and the proxy has started.
func (d *Daemon) Ready() <-chan struct{} {
	return d.ready
}

// APIAddr returns the bound API address once Ready is closed.
func (d *Daemon) APIAddr() net.Addr {
	return d.apiAddr
}

// Run starts the API and, when autoStart is set, the proxy. It blocks until
// ctx is cancelled or the API server fails, then shuts everything down.
func (d *Daemon) Run(ctx context.Context, autoStart bool) error {
	defer d.Loop.Close()

	apiErr := make(chan error, 1)
	if d.API != nil {
		ln, err := net.Listen("tcp", d.cfg.APIListen())
		if err != nil {
			return fmt.Errorf("failed to bind api %s: %w", d.cfg.APIListen(), err)
		}
		d.apiAddr = ln.Addr()
		go func() {
			apiErr <- d.API.Serve(ln)
		}()
	}

	if autoStart {
		if err := d.Loop.StartProxy().Err(ctx); err != nil {
			d.shutdown()
			return fmt.Errorf("proxy failed to start: %w", err)
		}
	}

	pc := d.Service.Config()
	d.logger.Info("Daemon ready",
		"proxy_running", d.Service.Running(),
		"listen", pc.ListenAddr(),
		"target", pc.TargetAddr(),
		"default_action", d.Engine.DefaultAction().String(),
		"rules", len(d.Engine.Rules()),
	)
	close(d.ready)

	var runErr error
	select {
	case <-ctx.Done():
		d.logger.Info("Shutting down...")
	case err := <-apiErr:
		if err != nil {
			runErr = fmt.Errorf("api server failed: %w", err)
		}
	}

	if err := d.shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func (d *Daemon) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if d.API != nil {
		if err := d.API.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("api shutdown: %w", err))
		}
	}
	if err := d.Loop.StopProxy().Err(ctx); err != nil {
		errs = append(errs, fmt.Errorf("proxy stop: %w", err))
	}
	return errors.Join(errs...)
}
