package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultSaveInterval = 30 * time.Minute

// CacheMaintainer is the part of the player cache the worker drives
type CacheMaintainer interface {
	Cleanup() int
	Persist() error
}

// CacheWorker periodically drops expired cache entries and saves the cache to disk
type CacheWorker struct {
	cache    CacheMaintainer
	interval time.Duration
	logger   *slog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
	mu       sync.Mutex
	running  bool
}

// NewCacheWorker creates a new cache worker
func NewCacheWorker(cache CacheMaintainer, interval time.Duration, logger *slog.Logger) *CacheWorker {
	if interval <= 0 {
		interval = defaultSaveInterval
	}
	return &CacheWorker{
		cache:    cache,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background maintenance loop
func (w *CacheWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("cache worker started", "interval", w.interval)

	go w.run(ctx)
	return nil
}

// Stop ends the loop and saves the cache one last time
func (w *CacheWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	if err := w.cache.Persist(); err != nil {
		w.logger.Error("final cache save failed", "error", err)
		return err
	}
	w.logger.Info("cache worker stopped")
	return nil
}

func (w *CacheWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.RunOnce()
		}
	}
}

// RunOnce runs a single cleanup and save cycle
func (w *CacheWorker) RunOnce() {
	start := time.Now()
	removed := w.cache.Cleanup()
	if err := w.cache.Persist(); err != nil {
		w.logger.Error("cache save failed", "error", err)
		return
	}
	w.logger.Info("cache maintenance completed", "expired_removed", removed, "duration", time.Since(start))
}

// IsRunning returns whether the worker is currently running
func (w *CacheWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
