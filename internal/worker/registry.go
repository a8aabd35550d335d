package worker

import (
	"strings"
	"time"

	"github.com/antigravity-dev/overlord/internal/config"
	"github.com/antigravity-dev/overlord/internal/errs"
)

// Tier is the abstract routing category a task is assigned to before a
// concrete worker is resolved.
type Tier string

const (
	TierLocal      Tier = "local"
	TierCloudFast  Tier = "cloud-fast"
	TierCloudHeavy Tier = "cloud-heavy"
)

// tierKeywords maps a task-type keyword to a tier; first hit wins.
var tierKeywords = []struct {
	keyword string
	tier    Tier
}{
	{"format", TierLocal},
	{"lint", TierLocal},
	{"boilerplate", TierLocal},
	{"review", TierCloudFast},
	{"architecture", TierCloudHeavy},
	{"planning", TierCloudHeavy},
}

// tierToWorker is the preferred worker name for a tier.
var tierToWorker = map[Tier]string{
	TierLocal:      "local",
	TierCloudFast:  "claude",
	TierCloudHeavy: "claude",
}

// FallbackOrder is the fixed worker fallback chain used when the
// preferred worker is unavailable.
var FallbackOrder = []string{"claude", "gemini", "local"}

// CloudHeavyModel is the model override forced for the cloud-heavy tier.
const CloudHeavyModel = "opus"

// InferTier maps task keywords and complexity to a tier, per spec §4.2:
// keyword match first, falling back to complexity (low -> local,
// high -> cloud-heavy, else cloud-fast).
func InferTier(taskTypeText, complexity string) Tier {
	lower := strings.ToLower(taskTypeText)
	for _, k := range tierKeywords {
		if strings.Contains(lower, k.keyword) {
			return k.tier
		}
	}
	switch complexity {
	case "low":
		return TierLocal
	case "high":
		return TierCloudHeavy
	default:
		return TierCloudFast
	}
}

// Registry holds the constructed worker backends by name.
type Registry struct {
	workers map[string]Worker
}

// NewRegistry constructs every configured, enabled worker backend.
func NewRegistry(cfg *config.Config) *Registry {
	r := &Registry{workers: map[string]Worker{}}
	for name, w := range cfg.Workers {
		if !w.Enabled {
			continue
		}
		timeout := w.Timeout.Duration
		if timeout <= 0 {
			timeout = 10 * time.Minute
		}
		switch config.WorkerKind(name) {
		case config.WorkerLocal:
			r.workers[name] = NewSubprocess(name, w.BinaryPath, w.DefaultModel, w.ModelOverrides, timeout)
		default:
			if w.Sandbox == "docker" {
				r.workers[name] = NewDocker(name, w.BinaryPath, w.BinaryPath, w.DefaultModel, w.ModelOverrides, timeout)
			} else if w.Endpoint != "" {
				r.workers[name] = NewHTTP(name, w.Endpoint, w.ResolveAPIKey(), w.DefaultModel, w.ModelOverrides, timeout)
			} else {
				r.workers[name] = NewSDK(name, w.ResolveAPIKey(), w.DefaultModel, w.ModelOverrides, timeout)
			}
		}
	}
	return r
}

// Get returns the named worker, or nil if not registered.
func (r *Registry) Get(name string) Worker { return r.workers[name] }

// Select resolves a worker per spec §4.2 step 4: an explicit name if
// given (must be available), else tier inference with fallback order.
func (r *Registry) Select(explicitName string, taskTypeText, complexity string) (Worker, Tier, error) {
	if explicitName != "" {
		w, ok := r.workers[explicitName]
		if !ok || !w.Available() {
			return nil, "", &errs.WorkerUnavailable{Requested: explicitName}
		}
		return w, "", nil
	}

	tier := InferTier(taskTypeText, complexity)
	preferred := tierToWorker[tier]
	if w, ok := r.workers[preferred]; ok && w.Available() {
		return w, tier, nil
	}
	for _, name := range FallbackOrder {
		if w, ok := r.workers[name]; ok && w.Available() {
			return w, tier, nil
		}
	}
	return nil, tier, &errs.WorkerUnavailable{}
}

// SelectReviewer picks a worker different from executorName, if any
// available worker remains.
func (r *Registry) SelectReviewer(executorName string) (Worker, error) {
	for _, name := range FallbackOrder {
		if name == executorName {
			continue
		}
		if w, ok := r.workers[name]; ok && w.Available() {
			return w, nil
		}
	}
	// No alternative: fall back to the executor itself if available.
	if w, ok := r.workers[executorName]; ok && w.Available() {
		return w, nil
	}
	return nil, &errs.WorkerUnavailable{}
}
