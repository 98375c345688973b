package gizmosql

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/flightbridge/flightbridge/pkg/core"
	"github.com/flightbridge/flightbridge/pkg/dialect"
)

// pool is a bounded set of connection slots with explicit checkout/return.
// The semaphore enforces the descriptor's concurrency ceiling; idle holds
// connections available for reuse. Ownership of a checked-out connection is
// traceable to exactly one in-flight caller at a time.
type pool struct {
	desc   Descriptor
	d      *dialect.Dialect
	logger *slog.Logger
	sem    *semaphore.Weighted

	mu     sync.Mutex
	idle   []*conn
	closed bool
}

func newPool(desc Descriptor, d *dialect.Dialect, logger *slog.Logger) *pool {
	return &pool{
		desc:   desc,
		d:      d,
		logger: logger,
		sem:    semaphore.NewWeighted(int64(desc.ConcurrentTasks)),
	}
}

// checkout acquires a connection slot and returns a live connection, dialing
// a new one when no idle connection is available. At the concurrency ceiling
// it either queues until a slot frees or fails with ResourceExhausted,
// depending on the descriptor's checkout_wait setting. Pre-ping, when
// enabled, runs here synchronously: dead idle connections are evicted and
// replaced transparently.
func (p *pool) checkout(ctx context.Context) (*conn, error) {
	if p.desc.CheckoutWait {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("waiting for connection slot: %w", err)
		}
	} else if !p.sem.TryAcquire(1) {
		return nil, &core.ResourceExhausted{Limit: p.desc.ConcurrentTasks}
	}

	for {
		c := p.popIdle()
		if c == nil {
			break
		}
		if !p.desc.PrePing {
			return c, nil
		}
		if err := c.ping(ctx); err == nil {
			return c, nil
		}
		p.logger.Debug("evicting dead pooled connection", slog.String("endpoint", p.desc.URI()))
		_ = c.close()
	}

	c, err := dial(ctx, p.desc, p.d, p.logger)
	if err != nil {
		p.sem.Release(1)
		return nil, err
	}
	return c, nil
}

// put returns a connection to the pool. Broken connections, and every
// connection once the pool is closed, are closed instead of pooled.
func (p *pool) put(c *conn) {
	defer p.sem.Release(1)

	p.mu.Lock()
	closed := p.closed
	if !closed && !c.broken {
		p.idle = append(p.idle, c)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	_ = c.close()
}

func (p *pool) popIdle() *conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.idle) == 0 {
		return nil
	}
	c := p.idle[len(p.idle)-1]
	p.idle = p.idle[:len(p.idle)-1]
	return c
}

// close tears down all idle connections. Checked-out connections are closed
// when returned.
func (p *pool) close() error {
	p.mu.Lock()
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	var firstErr error
	for _, c := range idle {
		if err := c.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
