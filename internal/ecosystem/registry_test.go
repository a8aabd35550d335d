package ecosystem

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antigravity-dev/overlord/internal/config"
)

func TestRegistryProjectsListsConfiguredNames(t *testing.T) {
	cfg := &config.Config{Projects: map[string]config.Project{"api": {}, "frontend": {}}}
	r := NewRegistry(cfg, time.Minute)
	assert.ElementsMatch(t, []string{"api", "frontend"}, r.Projects())
}

func TestRegistryScanCachesWithinTTL(t *testing.T) {
	cfg := &config.Config{Projects: map[string]config.Project{"api": {Path: t.TempDir()}}}
	r := NewRegistry(cfg, time.Hour)

	first, err := r.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := r.Scan(context.Background())
	require.NoError(t, err)
	assert.Same(t, &first[0], &second[0], "a cache hit must return the exact same backing slice")
}

func TestRegistryInvalidateForcesRescan(t *testing.T) {
	cfg := &config.Config{Projects: map[string]config.Project{"api": {Path: t.TempDir()}}}
	r := NewRegistry(cfg, time.Hour)

	_, err := r.Scan(context.Background())
	require.NoError(t, err)
	r.Invalidate()

	results, err := r.Scan(context.Background())
	require.NoError(t, err)
	assert.Len(t, results, 1, "a fresh scan after invalidation still finds the configured project")
}

func TestNewRegistryDefaultsZeroTTL(t *testing.T) {
	cfg := &config.Config{}
	r := NewRegistry(cfg, 0)
	assert.Equal(t, 5*time.Minute, r.ttl)
}
