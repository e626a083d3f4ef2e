package sqlitestore

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Housekeeper periodically deletes expired sessions so a shared database
// does not grow without bound.
type Housekeeper struct {
	store    *Store
	logger   *slog.Logger
	interval time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// StartHousekeeping runs DeleteExpired immediately and then every interval
// until Stop is called. An interval of zero or less defaults to one hour.
func (s *Store) StartHousekeeping(logger *slog.Logger, interval time.Duration) *Housekeeper {
	if interval <= 0 {
		interval = time.Hour
	}

	h := &Housekeeper{
		store:    s,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go h.run()
	logger.Debug("session housekeeping started", "interval", interval)
	return h
}

// Stop shuts the worker down, waiting for any in-progress cleanup. Later
// calls return once the worker has exited.
func (h *Housekeeper) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
		<-h.doneCh
		h.logger.Debug("session housekeeping stopped")
	})
	<-h.doneCh
}

func (h *Housekeeper) run() {
	defer close(h.doneCh)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.cleanup()

	for {
		select {
		case <-ticker.C:
			h.cleanup()
		case <-h.stopCh:
			return
		}
	}
}

func (h *Housekeeper) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	deleted, err := h.store.DeleteExpired(ctx)
	if err != nil {
		h.logger.Error("failed to delete expired sessions", "error", err)
		return
	}
	h.logger.Debug("deleted expired sessions", "count", deleted)
}
