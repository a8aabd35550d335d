package chatbot

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antigravity-dev/overlord/internal/config"
	"github.com/antigravity-dev/overlord/internal/ecosystem"
	"github.com/antigravity-dev/overlord/internal/memory"
)

func TestNewLLMFallbackDisabledWithoutAPIKey(t *testing.T) {
	cfg := &config.Config{}
	registry := ecosystem.NewRegistry(cfg, 0)

	f := NewLLMFallback(config.ChatLLM{Enabled: true}, registry, nil)
	assert.False(t, f.enabled, "no API key resolves, so the fallback stays disabled")
	assert.Equal(t, "claude-3-5-haiku-latest", f.model, "falls back to the default model")
}

func TestLLMFallbackRespondDisabledReturnsUnknownCommand(t *testing.T) {
	f := NewLLMFallback(config.ChatLLM{}, nil, nil)

	reply, err := f.Respond(context.Background(), "what's the weather", "user1", "chan1")
	require.NoError(t, err)
	assert.Contains(t, reply, "Unknown command")
	assert.Contains(t, reply, "help")
}

func TestBuildSystemPromptDegradesGracefullyWithoutRegistryOrMemory(t *testing.T) {
	f := &LLMFallback{history: map[string][]chatTurn{}}
	prompt := f.buildSystemPrompt(context.Background(), "anything")
	assert.Contains(t, prompt, "(no projects)")
	assert.Contains(t, prompt, "(no recent observations)")
}

func TestBuildSystemPromptIncludesScanAndMemory(t *testing.T) {
	cfg := &config.Config{Projects: map[string]config.Project{"api": {Path: t.TempDir()}}}
	registry := ecosystem.NewRegistry(cfg, 0)

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	mem, err := memory.Open(db)
	require.NoError(t, err)
	require.NoError(t, mem.Remember(context.Background(), "decision", "approved release for api", "api"))

	f := &LLMFallback{history: map[string][]chatTurn{}, registry: registry, memory: mem}
	prompt := f.buildSystemPrompt(context.Background(), "release")

	assert.Contains(t, prompt, "api: branch=")
	assert.Contains(t, prompt, "approved release for api")
}

func TestRecordTurnTrimsToHistoryWindow(t *testing.T) {
	f := &LLMFallback{history: map[string][]chatTurn{}}
	for i := 0; i < historyTurns*2+4; i++ {
		f.recordTurn("chan1", chatTurn{role: "user", content: "msg"})
	}
	assert.Len(t, f.history["chan1"], historyTurns*2)
}
