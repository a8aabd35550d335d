package worker

import (
	"context"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// SDK is the native REST SDK backend. It surfaces token counts directly
// from the provider response metadata rather than parsing output text.
type SDK struct {
	name           string
	defaultModel   string
	modelOverrides map[string]string
	timeout        time.Duration
	client         anthropic.Client
	available      bool
}

// NewSDK constructs an SDK worker. It is available iff apiKey is non-empty.
func NewSDK(name, apiKey, defaultModel string, overrides map[string]string, timeout time.Duration) *SDK {
	s := &SDK{name: name, defaultModel: defaultModel, modelOverrides: overrides, timeout: timeout}
	if apiKey != "" {
		s.client = anthropic.NewClient(option.WithAPIKey(apiKey))
		s.available = true
	}
	return s
}

func (s *SDK) Name() string    { return s.name }
func (s *SDK) Available() bool { return s.available }

func (s *SDK) Execute(ctx context.Context, prompt, projectPath, taskType, model string) Result {
	selected := SelectModel(model, taskType, s.defaultModel, s.modelOverrides)
	if !s.available {
		return Result{Success: false, Error: "sdk worker is not available: missing api key", WorkerType: s.name, ModelUsed: selected}
	}

	timeout := s.timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resp, err := s.client.Messages.New(execCtx, anthropic.MessageNewParams{
		Model:     anthropic.Model(selected),
		MaxTokens: 4096,
		System: []anthropic.TextBlockParam{
			{Text: "Working directory: " + projectPath},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	duration := time.Since(start).Seconds()
	if err != nil {
		return Result{Success: false, Error: err.Error(), DurationSec: duration, ModelUsed: selected, WorkerType: s.name}
	}

	var output string
	for _, block := range resp.Content {
		if text := block.Text; text != "" {
			output += text
		}
	}

	tokensIn := int(resp.Usage.InputTokens)
	tokensOut := int(resp.Usage.OutputTokens)
	return Result{
		Success:      true,
		Output:       output,
		DurationSec:  duration,
		ModelUsed:    string(resp.Model),
		WorkerType:   s.name,
		TokensInput:  tokensIn,
		TokensOutput: tokensOut,
		TokensTotal:  tokensIn + tokensOut,
	}
}
