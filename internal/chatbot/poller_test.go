package chatbot

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sequencedRunner struct {
	mu    sync.Mutex
	reads []string
	sends []string
}

func (s *sequencedRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range args {
		if a == "read" {
			s.reads = append(s.reads, fmt.Sprintf("%v", args))
			return []byte(`{"messages":[{"id":"m1","body":"help","sender":"alice","channel":"general"}]}`), nil
		}
	}
	s.sends = append(s.sends, fmt.Sprintf("%v", args))
	return []byte(`{"ok":true}`), nil
}

func TestPollerPollRepliesToInboundMessages(t *testing.T) {
	runner := &sequencedRunner{}
	tr := NewTransport(runner, "", "general", 0)
	router := newTestRouter(t)
	p := NewPoller(tr, router, "general", time.Hour)

	p.poll(context.Background())

	runner.mu.Lock()
	defer runner.mu.Unlock()
	require.Len(t, runner.sends, 1, "the router's help reply should be sent back")
}

func TestPollerPollAdvancesCursor(t *testing.T) {
	runner := &sequencedRunner{}
	tr := NewTransport(runner, "", "general", 0)
	router := newTestRouter(t)
	p := NewPoller(tr, router, "general", time.Hour)

	assert.Empty(t, p.cursor)
	p.poll(context.Background())
	assert.Equal(t, "m1", p.cursor)
}

func TestNewPollerDefaultsInterval(t *testing.T) {
	p := NewPoller(nil, nil, "general", 0)
	assert.Equal(t, 10*time.Second, p.interval)
}

func TestPollerRunStopsOnContextCancellation(t *testing.T) {
	runner := &sequencedRunner{}
	tr := NewTransport(runner, "", "general", 0)
	router := newTestRouter(t)
	p := NewPoller(tr, router, "general", time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := p.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
