package agent

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Target is anything the refresher keeps in sync with the authority.
type Target interface {
	Refresh(ctx context.Context) error
}

// Refresher polls the stores on a fixed interval. One target failing does
// not stop the others; errors are logged and the next tick tries again.
type Refresher struct {
	interval time.Duration
	targets  []Target
	log      *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRefresher creates a refresher over the given targets.
func NewRefresher(interval time.Duration, targets []Target, log *zap.Logger) *Refresher {
	return &Refresher{
		interval: interval,
		targets:  targets,
		log:      log.Named("refresher"),
	}
}

// Start launches the poll loop. Calling Start twice is a no-op.
func (r *Refresher) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.loop(ctx)
	r.log.Info("started", zap.Duration("interval", r.interval))
}

// Stop halts the loop and waits for an in-flight pass to finish.
func (r *Refresher) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel = nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	r.log.Info("stopped")
}

func (r *Refresher) loop(ctx context.Context) {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RefreshAll(ctx)
		}
	}
}

// RefreshAll runs one pass over every target.
func (r *Refresher) RefreshAll(ctx context.Context) {
	for _, t := range r.targets {
		if ctx.Err() != nil {
			return
		}
		if err := t.Refresh(ctx); err != nil {
			r.log.Warn("refresh failed", zap.Error(err))
		}
	}
}
