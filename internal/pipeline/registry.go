package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/open-beagle/ndiview/internal/config"
	"github.com/open-beagle/ndiview/internal/transport"
)

// SourceRegistry polls the discovery service at a bounded cadence and caches
// the advertised source set. It owns no network code itself; failures from
// the discovery collaborator are logged, counted and retried on the next
// poll, and never propagate.
type SourceRegistry struct {
	discovery transport.Discovery
	cfg       *config.PipelineConfig
	stats     *StatsTracker
	logger    *logrus.Entry

	mu       sync.RWMutex
	sources  []transport.Source
	lastPoll time.Time
}

// NewSourceRegistry creates a registry over the given discovery service.
func NewSourceRegistry(discovery transport.Discovery, cfg *config.PipelineConfig, stats *StatsTracker, logger *logrus.Entry) *SourceRegistry {
	if logger == nil {
		logger = logrus.WithField("component", "registry")
	}
	return &SourceRegistry{
		discovery: discovery,
		cfg:       cfg,
		stats:     stats,
		logger:    logger,
	}
}

// Run is the discovery poll loop. It blocks until ctx is cancelled, polling
// at PollInterval with PollTimeout per poll. Always returns nil: discovery
// problems are not fatal.
func (r *SourceRegistry) Run(ctx context.Context) error {
	r.logger.Info("Source discovery loop started")
	defer r.logger.Info("Source discovery loop stopped")

	// First poll immediately so a fresh daemon has sources before the first
	// interval elapses.
	r.pollOnce(r.cfg.PollTimeout)

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.pollOnce(r.cfg.PollTimeout)
		}
	}
}

// pollOnce performs one discovery poll and replaces the cache wholesale on
// success. On error the cache is left unchanged.
func (r *SourceRegistry) pollOnce(timeout time.Duration) {
	sources, err := r.discovery.FindSources(timeout)
	r.stats.RecordDiscoveryPoll(err)

	if err != nil {
		r.logger.Warnf("Discovery poll failed: %v", err)
		return
	}

	r.mu.Lock()
	r.sources = sources
	r.lastPoll = time.Now()
	r.mu.Unlock()

	r.logger.Debugf("Discovery poll found %d sources", len(sources))
}

// Refresh performs an out-of-cadence poll with the given timeout (zero means
// the configured RefreshTimeout) and returns the fresh result. The cache is
// replaced on success.
func (r *SourceRegistry) Refresh(timeout time.Duration) ([]transport.Source, error) {
	if timeout <= 0 {
		timeout = r.cfg.RefreshTimeout
	}

	sources, err := r.discovery.FindSources(timeout)
	r.stats.RecordDiscoveryPoll(err)

	if err != nil {
		r.logger.Warnf("Manual source refresh failed: %v", err)
		return nil, err
	}

	r.mu.Lock()
	r.sources = sources
	r.lastPoll = time.Now()
	r.mu.Unlock()

	r.logger.Infof("Manual source refresh found %d sources", len(sources))
	return sources, nil
}

// Sources returns a copy of the cached source set.
func (r *SourceRegistry) Sources() []transport.Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]transport.Source, len(r.sources))
	copy(sources, r.sources)
	return sources
}

// Lookup returns the cached descriptor with the given name.
func (r *SourceRegistry) Lookup(name string) (transport.Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.sources {
		if s.Name == name {
			return s, true
		}
	}
	return transport.Source{}, false
}

// LastPoll returns when the cache was last replaced.
func (r *SourceRegistry) LastPoll() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastPoll
}

// Close releases the discovery handle.
func (r *SourceRegistry) Close() error {
	return r.discovery.Close()
}
