package chatbot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/antigravity-dev/overlord/internal/config"
	"github.com/antigravity-dev/overlord/internal/ecosystem"
	"github.com/antigravity-dev/overlord/internal/memory"
)

// historyTurns is the number of user/assistant exchanges kept per
// channel. Each exchange is two entries (user, assistant), so the
// stored slice is capped at 2*historyTurns.
const historyTurns = 5

// chatTurn is one message in a channel's sliding conversation window.
type chatTurn struct {
	role    string
	content string
}

// LLMFallback answers chat text that matched no fixed command. It
// grounds the model in the current ecosystem scan and recent memory
// entries, and keeps a short per-channel conversation history so
// follow-up questions read naturally.
type LLMFallback struct {
	client   anthropic.Client
	model    string
	timeout  time.Duration
	enabled  bool
	registry *ecosystem.Registry
	memory   *memory.Log

	mu      sync.Mutex
	history map[string][]chatTurn
}

// NewLLMFallback constructs the LLM fallback from cfg.ChatLLM. The
// returned fallback reports itself enabled only when an API key
// resolves; callers should still pass a nil *LLMFallback to disable it
// outright rather than relying on the Enabled check inside Respond.
func NewLLMFallback(cfg config.ChatLLM, registry *ecosystem.Registry, mem *memory.Log) *LLMFallback {
	f := &LLMFallback{
		model:    cfg.Model,
		timeout:  cfg.Timeout.Duration,
		registry: registry,
		memory:   mem,
		history:  make(map[string][]chatTurn),
	}
	if f.model == "" {
		f.model = "claude-3-5-haiku-latest"
	}
	if f.timeout <= 0 {
		f.timeout = 15 * time.Second
	}
	apiKey := cfg.ResolveAPIKey()
	if cfg.Enabled && apiKey != "" {
		f.client = anthropic.NewClient(option.WithAPIKey(apiKey))
		f.enabled = true
	}
	return f
}

// Respond answers free-form chat text for the given channel/thread,
// using channelID as the conversation-history key.
func (f *LLMFallback) Respond(ctx context.Context, text, userID, channelID string) (string, error) {
	if !f.enabled {
		return fmt.Sprintf("Unknown command: `%s`\nType `help` to see available commands.", text), nil
	}

	systemPrompt := f.buildSystemPrompt(ctx, text)

	f.mu.Lock()
	history := append([]chatTurn(nil), f.history[channelID]...)
	f.mu.Unlock()

	messages := make([]anthropic.MessageParam, 0, len(history)+1)
	for _, turn := range history {
		if turn.role == "assistant" {
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(turn.content)))
		} else {
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(turn.content)))
		}
	}
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))

	callCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	resp, err := f.client.Messages.New(callCtx, anthropic.MessageNewParams{
		Model:     anthropic.Model(f.model),
		MaxTokens: 512,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:  messages,
	})
	if err != nil {
		if callCtx.Err() != nil {
			return "I couldn't process that in time. Try `help` to see available commands.", nil
		}
		return "I couldn't process that right now. Try `help` to see available commands.", nil
	}

	var reply string
	for _, block := range resp.Content {
		reply += block.Text
	}

	f.recordTurn(channelID, chatTurn{role: "user", content: text})
	f.recordTurn(channelID, chatTurn{role: "assistant", content: reply})

	return reply, nil
}

func (f *LLMFallback) recordTurn(channelID string, turn chatTurn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := append(f.history[channelID], turn)
	if max := historyTurns * 2; len(h) > max {
		h = h[len(h)-max:]
	}
	f.history[channelID] = h
}

// buildSystemPrompt grounds the fallback in the current ecosystem scan
// and the five most recent memory entries whose content contains query. Scan or memory
// failures degrade to an empty section rather than failing the whole
// response.
func (f *LLMFallback) buildSystemPrompt(ctx context.Context, query string) string {
	var projectLines []string
	if f.registry != nil {
		if statuses, err := f.registry.Scan(ctx); err == nil {
			for _, s := range statuses {
				health := "clean"
				if !s.Git.Clean {
					health = "dirty"
				}
				line := fmt.Sprintf("- %s: branch=%s, %s", s.Name, s.Git.Branch, health)
				if s.Git.Ahead > 0 {
					line += fmt.Sprintf(", %d ahead", s.Git.Ahead)
				}
				if len(s.Issues) > 0 {
					line += ", issues: " + strings.Join(s.Issues, "; ")
				}
				projectLines = append(projectLines, line)
			}
		}
	}
	projectsText := "(no projects)"
	if len(projectLines) > 0 {
		projectsText = strings.Join(projectLines, "\n")
	}

	var memoryLines []string
	if f.memory != nil {
		if entries, err := f.memory.Search(ctx, query, 5); err == nil {
			for _, e := range entries {
				proj := "global"
				if e.Project.Valid {
					proj = e.Project.String
				}
				content := e.Content
				if len(content) > 120 {
					content = content[:120]
				}
				memoryLines = append(memoryLines, fmt.Sprintf("- [%s] %s", proj, content))
			}
		}
	}
	memoryText := "(no recent observations)"
	if len(memoryLines) > 0 {
		memoryText = strings.Join(memoryLines, "\n")
	}

	return fmt.Sprintf(
		"You are Overlord, the ecosystem orchestrator.\n"+
			"You manage %d projects. Current state:\n\n%s\n\n"+
			"Recent observations:\n%s\n\n"+
			"The user can also run these commands directly:\n"+
			"status [project], scan [project], merge <project> <src> to <target>, "+
			"release <project> <version>, autonomy [level], memory <query>, approve/deny <id>, help\n\n"+
			"Answer concisely. If a command would help, suggest it.\n"+
			"Do not generate destructive shell commands.",
		len(projectLines), projectsText, memoryText,
	)
}
