package chatbot

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const defaultReadLimit = 25

// Runner executes an external command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands via os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// InboundMessage is a single message read from the chat transport.
type InboundMessage struct {
	ID        string
	Channel   string
	Sender    string
	Body      string
	Timestamp time.Time
}

// Transport sends and reads messages through the `openclaw` CLI bridge,
// Overlord's chat control plane. It implements daemon.Notifier and
// proposal.Notifier (Post/Reply) and feeds inbound text to a Router via
// Poller.
type Transport struct {
	runner         Runner
	account        string
	defaultChannel string
	readLimit      int
}

// NewTransport constructs a Transport. runner defaults to ExecRunner
// when nil; account selects the openclaw-configured identity to send
// as, and may be empty; defaultChannel is where Post lands absent a
// more specific thread to Reply into.
func NewTransport(runner Runner, account, defaultChannel string, readLimit int) *Transport {
	if runner == nil {
		runner = ExecRunner{}
	}
	if readLimit <= 0 {
		readLimit = defaultReadLimit
	}
	return &Transport{
		runner:         runner,
		account:        strings.TrimSpace(account),
		defaultChannel: strings.TrimSpace(defaultChannel),
		readLimit:      readLimit,
	}
}

// Post sends text to the configured default channel and returns the
// channel as its "thread" (openclaw channels are already message
// threads; there is no separate sub-thread concept to return).
func (t *Transport) Post(ctx context.Context, text string) (string, error) {
	return t.defaultChannel, t.send(ctx, t.defaultChannel, text)
}

// Reply posts text back into channel threadID.
func (t *Transport) Reply(ctx context.Context, threadID, text string) error {
	return t.send(ctx, threadID, text)
}

func (t *Transport) send(ctx context.Context, channel, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("chatbot: message is required")
	}
	args := []string{"message", "send", "--message", text, "--json"}
	if channel != "" {
		args = append(args, "--target", channel)
	}
	if t.account != "" {
		args = append(args, "--account", t.account)
	}
	out, err := t.runner.Run(ctx, "openclaw", args...)
	if err != nil {
		return fmt.Errorf("openclaw message send failed: %w (%s)", err, compactOutput(out))
	}
	return nil
}

// Read fetches messages for channel newer than cursor after, returning
// the messages and the cursor to pass on the next call.
func (t *Transport) Read(ctx context.Context, channel, after string) ([]InboundMessage, string, error) {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return nil, "", fmt.Errorf("chatbot: channel is required")
	}
	args := []string{"message", "read", "--target", channel, "--limit", strconv.Itoa(t.readLimit), "--json"}
	if strings.TrimSpace(after) != "" {
		args = append(args, "--after", strings.TrimSpace(after))
	}
	out, err := t.runner.Run(ctx, "openclaw", args...)
	if err != nil {
		return nil, "", fmt.Errorf("openclaw message read failed: %w (%s)", err, compactOutput(out))
	}
	return parseReadOutput(out, channel)
}

func parseReadOutput(out []byte, defaultChannel string) ([]InboundMessage, string, error) {
	payload := extractJSONPayload(string(out))
	if payload == "" {
		return nil, "", nil
	}
	var decoded any
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		return nil, "", fmt.Errorf("chatbot: parse openclaw read json: %w", err)
	}
	messages := decodeMessages(decoded, defaultChannel)
	next := decodeCursor(decoded, messages)
	return messages, next, nil
}

func decodeMessages(decoded any, defaultChannel string) []InboundMessage {
	items := findMessageArray(decoded)
	if len(items) == 0 {
		return nil
	}
	out := make([]InboundMessage, 0, len(items))
	for _, item := range items {
		msg := decodeMessageItem(item, defaultChannel)
		if strings.TrimSpace(msg.Body) == "" {
			continue
		}
		out = append(out, msg)
	}
	return out
}

func findMessageArray(node any) []any {
	switch v := node.(type) {
	case []any:
		return v
	case map[string]any:
		for _, key := range []string{"messages", "events", "items", "results"} {
			if arr, ok := v[key].([]any); ok {
				return arr
			}
		}
		if nested, ok := v["data"]; ok {
			if arr := findMessageArray(nested); len(arr) > 0 {
				return arr
			}
		}
		if nested, ok := v["payload"]; ok {
			if arr := findMessageArray(nested); len(arr) > 0 {
				return arr
			}
		}
	}
	return nil
}

func decodeMessageItem(item any, defaultChannel string) InboundMessage {
	obj, ok := item.(map[string]any)
	if !ok {
		return InboundMessage{}
	}
	body := firstString(obj, "body", "text", "message")
	if body == "" {
		if content, ok := obj["content"].(map[string]any); ok {
			body = firstString(content, "body", "text", "message")
		}
	}
	msg := InboundMessage{
		ID:      firstString(obj, "id", "event_id", "message_id"),
		Channel: firstString(obj, "channel", "room", "room_id", "target"),
		Sender:  decodeSender(obj),
		Body:    body,
	}
	if msg.Channel == "" {
		msg.Channel = defaultChannel
	}
	msg.Timestamp = decodeTimestamp(obj)
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	return msg
}

func decodeSender(obj map[string]any) string {
	if sender := firstString(obj, "sender", "from", "user"); sender != "" {
		return sender
	}
	if author, ok := obj["author"].(map[string]any); ok {
		return firstString(author, "id", "user_id", "sender")
	}
	return ""
}

func decodeTimestamp(obj map[string]any) time.Time {
	for _, key := range []string{"timestamp", "ts", "created_at", "time"} {
		if raw, ok := obj[key]; ok {
			if ts := decodeAnyTime(raw); !ts.IsZero() {
				return ts
			}
		}
	}
	if content, ok := obj["content"].(map[string]any); ok {
		for _, key := range []string{"timestamp", "ts"} {
			if ts := decodeAnyTime(content[key]); !ts.IsZero() {
				return ts
			}
		}
	}
	return time.Time{}
}

func decodeAnyTime(value any) time.Time {
	switch v := value.(type) {
	case float64:
		return unixSeconds(int64(v))
	case int64:
		return unixSeconds(v)
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return time.Time{}
		}
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
			return unixSeconds(unix)
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
			if parsed, err := time.Parse(layout, v); err == nil {
				return parsed.UTC()
			}
		}
	}
	return time.Time{}
}

func unixSeconds(v int64) time.Time {
	if v > 1_000_000_000_000 {
		v /= 1000
	}
	return time.Unix(v, 0).UTC()
}

func decodeCursor(decoded any, messages []InboundMessage) string {
	if m, ok := decoded.(map[string]any); ok {
		for _, key := range []string{"next", "next_cursor", "cursor", "since", "after"} {
			if value := firstString(m, key); value != "" {
				return value
			}
		}
		for _, nestedKey := range []string{"data", "payload"} {
			if nested, ok := m[nestedKey].(map[string]any); ok {
				for _, key := range []string{"next", "next_cursor", "cursor", "since", "after"} {
					if value := firstString(nested, key); value != "" {
						return value
					}
				}
			}
		}
	}
	for i := len(messages) - 1; i >= 0; i-- {
		if strings.TrimSpace(messages[i].ID) != "" {
			return messages[i].ID
		}
	}
	return ""
}

func firstString(obj map[string]any, keys ...string) string {
	for _, key := range keys {
		value, ok := obj[key]
		if !ok {
			continue
		}
		switch v := value.(type) {
		case string:
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				return trimmed
			}
		case json.Number:
			if trimmed := strings.TrimSpace(v.String()); trimmed != "" {
				return trimmed
			}
		case float64:
			return strconv.FormatInt(int64(v), 10)
		}
	}
	return ""
}

func extractJSONPayload(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	start := strings.IndexAny(trimmed, "{[")
	if start < 0 {
		return ""
	}
	return strings.TrimSpace(trimmed[start:])
}

func compactOutput(out []byte) string {
	trimmed := strings.TrimSpace(string(out))
	if trimmed == "" {
		return "no output"
	}
	const maxLen = 280
	if len(trimmed) <= maxLen {
		return trimmed
	}
	return trimmed[:maxLen] + "..."
}
