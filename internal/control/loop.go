// Package control serializes commands against the proxy service.
//
// Callers on any goroutine (HTTP handlers, signal handlers, the CLI) submit
// work to a Loop, which runs it one task at a time on its own goroutine and
// hands the outcome back through a Future.
package control

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"grimm.is/tollgate/internal/logging"
	"grimm.is/tollgate/internal/proxy"
)

// ErrClosed resolves every future submitted after Close, and any that were
// still queued when the loop shut down.
var ErrClosed = errors.New("control loop closed")

// TaskFunc is a unit of work. ctx is cancelled when the loop closes.
type TaskFunc func(ctx context.Context) (any, error)

// Future is the pending result of a submitted task.
type Future struct {
	done  chan struct{}
	value any
	err   error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(v any, err error) {
	f.value, f.err = v, err
	close(f.done)
}

// Done is closed once the result is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the task finishes or ctx is done. Abandoning a wait does
// not cancel the task.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Err waits like Wait and discards the value.
func (f *Future) Err(ctx context.Context) error {
	_, err := f.Wait(ctx)
	return err
}

type job struct {
	fn     TaskFunc
	future *Future
}

// Loop executes submitted tasks serially.
type Loop struct {
	svc    *proxy.Service
	logger *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	tasks  chan job
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithLogger sets the loop's logger.
func WithLogger(l *logging.Logger) LoopOption {
	return func(lp *Loop) {
		lp.logger = l
	}
}

// NewLoop starts a loop that owns svc.
func NewLoop(svc *proxy.Service, opts ...LoopOption) *Loop {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Loop{
		svc:    svc,
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(chan job, 16),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = logging.WithComponent("control")
	}

	go l.run()
	return l
}

// Submit queues fn and returns its future. After Close the future is already
// resolved with ErrClosed.
func (l *Loop) Submit(fn TaskFunc) *Future {
	f := newFuture()

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		f.resolve(nil, ErrClosed)
		return f
	}
	l.tasks <- job{fn: fn, future: f}
	return f
}

// Close cancels the running task's context, fails queued tasks with
// ErrClosed and waits for the loop goroutine to exit. It does not stop the
// proxy service.
func (l *Loop) Close() {
	l.cancel()

	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.tasks)
	}
	l.mu.Unlock()

	<-l.done
}

func (l *Loop) run() {
	defer close(l.done)
	for j := range l.tasks {
		if l.ctx.Err() != nil {
			j.future.resolve(nil, ErrClosed)
			continue
		}
		l.execute(j)
	}
}

func (l *Loop) execute(j job) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("task panicked", "panic", r)
			j.future.resolve(nil, fmt.Errorf("task panicked: %v", r))
		}
	}()
	v, err := j.fn(l.ctx)
	j.future.resolve(v, err)
}

// StartProxy starts the service on the loop.
func (l *Loop) StartProxy() *Future {
	return l.Submit(func(ctx context.Context) (any, error) {
		if err := l.svc.Start(ctx); err != nil {
			return nil, err
		}
		return l.svc.Config(), nil
	})
}

// StopProxy stops the service on the loop.
func (l *Loop) StopProxy() *Future {
	return l.Submit(func(ctx context.Context) (any, error) {
		return nil, l.svc.Stop(ctx)
	})
}

// UpdateConfig replaces the service configuration for its next start.
func (l *Loop) UpdateConfig(cfg proxy.Config) *Future {
	return l.Submit(func(context.Context) (any, error) {
		l.svc.UpdateConfig(cfg)
		return cfg, nil
	})
}

// Running resolves to a bool reporting whether the service is listening.
func (l *Loop) Running() *Future {
	return l.Submit(func(context.Context) (any, error) {
		return l.svc.Running(), nil
	})
}

// Service returns the proxy service the loop owns.
func (l *Loop) Service() *proxy.Service {
	return l.svc
}
