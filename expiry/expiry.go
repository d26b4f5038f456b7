// Package expiry removes stale cache entries on a schedule.
package expiry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/trackside/f1radio-cache/telemetry"
)

// Purger is the slice of the store the manager needs.
type Purger interface {
	PurgeOlderThan(ctx context.Context, maxAge time.Duration) bool
}

// Config holds purge configuration.
type Config struct {
	// MaxAge is how long cached entries are kept.
	// Entries older than this are removed on each sweep.
	MaxAge time.Duration

	// CheckInterval is how often to run purge sweeps.
	// Default is 1 hour.
	CheckInterval time.Duration

	// Logger for purge events.
	Logger *slog.Logger
}

// Manager runs periodic purge sweeps over the cache.
type Manager struct {
	config Config
	purger Purger
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	running bool
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewManager creates a new purge manager.
func NewManager(p Purger, cfg Config) *Manager {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 1 * time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Manager{
		config: cfg,
		purger: p,
		logger: cfg.Logger,
		now:    time.Now,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins background purge sweeps.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true
	m.mu.Unlock()

	go m.run(ctx)
	return nil
}

// Stop stops background purge sweeps.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running || m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.mu.Unlock()

	close(m.stopCh)
	<-m.doneCh
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	// Run immediately on start
	m.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.runOnce(ctx)
		}
	}
}

// RunOnce performs a single purge sweep.
func (m *Manager) RunOnce(ctx context.Context) bool {
	return m.runOnce(ctx)
}

func (m *Manager) runOnce(ctx context.Context) bool {
	start := m.now()

	m.logger.Debug("starting purge sweep", "max_age", m.config.MaxAge)

	ok := m.purger.PurgeOlderThan(ctx, m.config.MaxAge)
	duration := m.now().Sub(start)

	outcome := "success"
	if !ok {
		outcome = "error"
		m.logger.Warn("purge sweep finished with errors", "duration", duration)
	} else {
		m.logger.Debug("purge sweep complete", "duration", duration)
	}

	telemetry.RecordPurgeRun(ctx, outcome, duration)
	return ok
}
