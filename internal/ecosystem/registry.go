package ecosystem

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/antigravity-dev/overlord/internal/config"
)

// Registry holds the parsed project configuration and a TTL-cached
// ecosystem scan. Concurrent scan requests within the TTL window
// collapse onto a single in-flight scan via singleflight.
type Registry struct {
	cfg *config.Config
	ttl time.Duration

	group singleflight.Group

	mu        sync.RWMutex
	cached    []ProjectStatus
	cachedAt  time.Time
}

// NewRegistry constructs a Registry backed by cfg, caching scans for ttl.
func NewRegistry(cfg *config.Config, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Registry{cfg: cfg, ttl: ttl}
}

// Projects returns the configured project names.
func (r *Registry) Projects() []string {
	names := make([]string, 0, len(r.cfg.Projects))
	for name := range r.cfg.Projects {
		names = append(names, name)
	}
	return names
}

// Scan returns the ecosystem scan, reusing a cached result younger than
// the configured TTL and collapsing concurrent misses into one scan.
func (r *Registry) Scan(ctx context.Context) ([]ProjectStatus, error) {
	r.mu.RLock()
	if r.cached != nil && time.Since(r.cachedAt) < r.ttl {
		defer r.mu.RUnlock()
		return r.cached, nil
	}
	r.mu.RUnlock()

	v, err, _ := r.group.Do("scan", func() (any, error) {
		result := ScanEcosystem(ctx, r.cfg)
		r.mu.Lock()
		r.cached = result
		r.cachedAt = time.Now()
		r.mu.Unlock()
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]ProjectStatus), nil
}

// Invalidate clears the cached scan, forcing the next Scan to re-run.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	r.cached = nil
	r.mu.Unlock()
}
