package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTP is the OpenAI-compatible chat-completions backend. Health is
// probed once at construction with GET /models.
type HTTP struct {
	name           string
	endpoint       string
	apiKey         string
	defaultModel   string
	modelOverrides map[string]string
	timeout        time.Duration
	client         *http.Client
	available      bool
}

// NewHTTP constructs an HTTP worker and probes its /models endpoint.
func NewHTTP(name, endpoint, apiKey, defaultModel string, overrides map[string]string, timeout time.Duration) *HTTP {
	h := &HTTP{
		name: name, endpoint: endpoint, apiKey: apiKey, defaultModel: defaultModel,
		modelOverrides: overrides, timeout: timeout, client: &http.Client{Timeout: 10 * time.Second},
	}
	h.available = h.probe()
	return h
}

func (h *HTTP) probe() bool {
	if h.endpoint == "" {
		return false
	}
	req, err := http.NewRequest(http.MethodGet, h.endpoint+"/models", nil)
	if err != nil {
		return false
	}
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func (h *HTTP) Name() string      { return h.name }
func (h *HTTP) Available() bool   { return h.available }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type chatResponse struct {
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

func (h *HTTP) Execute(ctx context.Context, prompt, projectPath, taskType, model string) Result {
	selected := SelectModel(model, taskType, h.defaultModel, h.modelOverrides)

	timeout := h.timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(chatRequest{
		Model: selected,
		Messages: []chatMessage{
			{Role: "system", Content: "Working directory: " + projectPath},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return Result{Success: false, Error: err.Error(), ModelUsed: selected, WorkerType: h.name}
	}

	req, err := http.NewRequestWithContext(execCtx, http.MethodPost, h.endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Result{Success: false, Error: err.Error(), ModelUsed: selected, WorkerType: h.name}
	}
	req.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	start := time.Now()
	resp, err := h.client.Do(req)
	duration := time.Since(start).Seconds()
	if err != nil {
		return Result{Success: false, Error: err.Error(), DurationSec: duration, ModelUsed: selected, WorkerType: h.name}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{Success: false, Error: err.Error(), DurationSec: duration, ModelUsed: selected, WorkerType: h.name}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{Success: false, Error: fmt.Sprintf("http %d: %s", resp.StatusCode, string(raw)), DurationSec: duration, ModelUsed: selected, WorkerType: h.name}
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Result{Success: false, Error: err.Error(), DurationSec: duration, ModelUsed: selected, WorkerType: h.name}
	}

	output := ""
	if len(parsed.Choices) > 0 {
		output = parsed.Choices[0].Message.Content
	}
	return Result{
		Success:      true,
		Output:       output,
		DurationSec:  duration,
		ModelUsed:    selected,
		WorkerType:   h.name,
		TokensInput:  parsed.Usage.PromptTokens,
		TokensOutput: parsed.Usage.CompletionTokens,
		TokensTotal:  parsed.Usage.TotalTokens,
	}
}
