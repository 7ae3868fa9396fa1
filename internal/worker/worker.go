package worker

import (
	"context"
	"log/slog"
	"time"
)

const (
	defaultInterval = 30 * time.Second
	reloadTimeout   = 10 * time.Second
	initialBackoff  = 1 * time.Second
	maxBackoff      = 5 * time.Minute
)

// Reloader re-reads a configuration source and reports whether it changed.
type Reloader interface {
	Reload(ctx context.Context) (bool, error)
}

// ConfigReloader polls a Reloader on a fixed interval and backs off while
// reloads keep failing. The last good configuration stays active meanwhile.
type ConfigReloader struct {
	reloader Reloader
	interval time.Duration
	logger   *slog.Logger
	stopChan chan struct{}
	done     chan struct{}
	backoff  time.Duration
}

func NewConfigReloader(reloader Reloader, interval time.Duration, logger *slog.Logger) *ConfigReloader {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &ConfigReloader{
		reloader: reloader,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (w *ConfigReloader) Start() {
	w.logger.Info("Starting ConfigReloader", "interval", w.interval)
	go w.run()
}

// Stop signals the loop and waits for an in-flight reload to finish.
func (w *ConfigReloader) Stop() {
	w.logger.Info("Stopping ConfigReloader")
	close(w.stopChan)
	<-w.done
}

func (w *ConfigReloader) run() {
	defer close(w.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.reloadOnce()
			if w.backoff > 0 {
				ticker.Reset(w.backoff)
			} else {
				ticker.Reset(w.interval)
			}
		}
	}
}

func (w *ConfigReloader) reloadOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
	defer cancel()

	changed, err := w.reloader.Reload(ctx)
	if err != nil {
		w.backoff = w.nextBackoff(w.backoff)
		w.logger.Warn("Config reload failed, keeping previous snapshot", "backoff", w.backoff, "error", err)
		return
	}
	w.backoff = 0
	if changed {
		w.logger.Info("Config reload applied")
	}
}

func (w *ConfigReloader) nextBackoff(current time.Duration) time.Duration {
	if current == 0 {
		return initialBackoff
	}
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}
