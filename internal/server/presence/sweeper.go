package presence

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically evicts stale entries from a MemoryStore.
type Sweeper struct {
	store    *MemoryStore
	interval time.Duration
	done     chan struct{}
}

// NewSweeper creates a new sweeper.
func NewSweeper(store *MemoryStore, interval time.Duration) *Sweeper {
	return &Sweeper{
		store:    store,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins the sweep loop in a background goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	slog.Info("presence sweeper started", "interval", s.interval)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-ctx.Done():
				slog.Info("presence sweeper stopping")
				close(s.done)
				return
			}
		}
	}()
}

// Wait blocks until the sweeper has fully stopped.
func (s *Sweeper) Wait() {
	<-s.done
}

func (s *Sweeper) sweep() {
	if n := s.store.Evict(); n > 0 {
		slog.Info("evicted stale presence entries", "count", n)
	}
}
