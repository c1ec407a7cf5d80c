package cleanup

import (
	"context"
	"errors"
	"sync"
	"time"

	"dataledge/internal/queue"
	"dataledge/internal/shared/telemetry"
)

// ErrShutdownTimeout is returned by Run when in-flight events did not finish
// within the shutdown timeout.
var ErrShutdownTimeout = errors.New("shutdown timeout reached with in-flight events")

// Pool fans deliveries out to a bounded number of goroutines.
type Pool struct {
	Handler         *Handler
	Workers         int
	ShutdownTimeout time.Duration
}

// Run dispatches deliveries until ctx is done or the channel is closed, then
// waits up to ShutdownTimeout for in-flight events. In-flight events are not
// cancelled by ctx.
func (p *Pool) Run(ctx context.Context, deliveries <-chan queue.Delivery) error {
	workers := p.Workers
	if workers < 1 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	work := context.WithoutCancel(ctx)

	telemetry.Info("cleanup.pool.started", map[string]any{"workers": workers})

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case d, ok := <-deliveries:
			if !ok {
				break loop
			}
			select {
			case <-ctx.Done():
				// Unacked; the broker redelivers it.
				break loop
			case sem <- struct{}{}:
			}
			wg.Add(1)
			go func(d queue.Delivery) {
				defer wg.Done()
				defer func() { <-sem }()
				p.Handler.HandleDelivery(work, d)
			}(d)
		}
	}

	telemetry.Info("cleanup.pool.draining", map[string]any{"timeout": p.ShutdownTimeout.String()})
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	if p.ShutdownTimeout <= 0 {
		<-done
		return nil
	}
	select {
	case <-done:
		return nil
	case <-time.After(p.ShutdownTimeout):
		telemetry.Warn("cleanup.pool.shutdown_timeout", map[string]any{"timeout": p.ShutdownTimeout.String()})
		return ErrShutdownTimeout
	}
}
