package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antigravity-dev/overlord/internal/config"
	"github.com/antigravity-dev/overlord/internal/errs"
)

func TestInferTierKeywordTakesPriorityOverComplexity(t *testing.T) {
	assert.Equal(t, TierLocal, InferTier("run the formatter", "high"))
	assert.Equal(t, TierCloudFast, InferTier("code review please", "low"))
	assert.Equal(t, TierCloudHeavy, InferTier("architecture redesign", "low"))
}

func TestInferTierFallsBackToComplexity(t *testing.T) {
	assert.Equal(t, TierLocal, InferTier("", "low"))
	assert.Equal(t, TierCloudHeavy, InferTier("", "high"))
	assert.Equal(t, TierCloudFast, InferTier("", "medium"))
	assert.Equal(t, TierCloudFast, InferTier("", ""))
}

func TestNewRegistrySkipsDisabledWorkers(t *testing.T) {
	cfg := &config.Config{Workers: map[string]config.Worker{
		"claude": {Enabled: false, BinaryPath: "claude"},
		"local":  {Enabled: true, BinaryPath: "true"},
	}}
	r := NewRegistry(cfg)
	assert.Nil(t, r.Get("claude"))
	assert.NotNil(t, r.Get("local"))
}

func TestRegistrySelectExplicitNameRequiresAvailability(t *testing.T) {
	cfg := &config.Config{Workers: map[string]config.Worker{
		"local": {Enabled: true, BinaryPath: "/no/such/binary-xyz"},
	}}
	r := NewRegistry(cfg)

	_, _, err := r.Select("local", "", "")
	require.Error(t, err)
	var unavailable *errs.WorkerUnavailable
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "local", unavailable.Requested)

	_, _, err = r.Select("nonexistent", "", "")
	require.Error(t, err)
	require.ErrorAs(t, err, &unavailable)
}

func TestRegistrySelectUsesTierPreferredWorker(t *testing.T) {
	cfg := &config.Config{Workers: map[string]config.Worker{
		"claude": {Enabled: true, BinaryPath: "/no/such/binary-xyz"},
		"local":  {Enabled: true, BinaryPath: "true"},
	}}
	r := NewRegistry(cfg)

	w, tier, err := r.Select("", "format this file", "")
	require.NoError(t, err)
	assert.Equal(t, TierLocal, tier)
	assert.Equal(t, "local", w.Name())
}

func TestRegistrySelectNoWorkerAvailable(t *testing.T) {
	cfg := &config.Config{Workers: map[string]config.Worker{
		"claude": {Enabled: true, BinaryPath: "/no/such/binary-xyz"},
	}}
	r := NewRegistry(cfg)

	_, _, err := r.Select("", "review this", "")
	require.Error(t, err)
	var unavailable *errs.WorkerUnavailable
	require.ErrorAs(t, err, &unavailable)
	assert.Empty(t, unavailable.Requested)
}

func TestSelectReviewerAvoidsExecutor(t *testing.T) {
	cfg := &config.Config{Workers: map[string]config.Worker{
		"claude": {Enabled: true, BinaryPath: "true"},
		"gemini": {Enabled: true, BinaryPath: "true"},
	}}
	r := NewRegistry(cfg)

	w, err := r.SelectReviewer("claude")
	require.NoError(t, err)
	assert.Equal(t, "gemini", w.Name())
}

func TestSelectReviewerFallsBackToExecutorWhenNoAlternative(t *testing.T) {
	cfg := &config.Config{Workers: map[string]config.Worker{
		"claude": {Enabled: true, BinaryPath: "true"},
	}}
	r := NewRegistry(cfg)

	w, err := r.SelectReviewer("claude")
	require.NoError(t, err)
	assert.Equal(t, "claude", w.Name())
}
