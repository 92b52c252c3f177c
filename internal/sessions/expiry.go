package sessions

import (
	"context"
	"time"

	"github.com/regdesk/regdesk/internal/observability"
)

// Janitor periodically sweeps idle sessions out of a store.
type Janitor struct {
	store       Store
	idleTimeout time.Duration
	interval    time.Duration
	logger      *observability.Logger
	stop        chan struct{}
}

// NewJanitor creates a sweeper. interval <= 0 defaults to 10 minutes.
func NewJanitor(store Store, idleTimeout, interval time.Duration, logger *observability.Logger) *Janitor {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Janitor{
		store:       store,
		idleTimeout: idleTimeout,
		interval:    interval,
		logger:      logger,
		stop:        make(chan struct{}),
	}
}

// Run sweeps until Stop is called or ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-j.stop:
			return
		case now := <-ticker.C:
			if removed := j.store.Sweep(ctx, now, j.idleTimeout); removed > 0 {
				j.logger.Info("swept idle sessions", "removed", removed)
			}
		}
	}
}

// Stop terminates the sweep loop.
func (j *Janitor) Stop() {
	close(j.stop)
}
