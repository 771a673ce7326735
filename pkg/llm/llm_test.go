package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider scripts per-call failures so fallback and retry paths
// can be exercised deterministically.
type fakeProvider struct {
	mu          sync.Mutex
	streamCalls int
	chatCalls   int
	failFirst   int // first N StreamChat calls fail
	transient   bool
	chatErr     error
	chunk       string
}

func (p *fakeProvider) StreamChat(ctx context.Context, messages []Message, tools []Tool) (<-chan StreamChunk, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.streamCalls++
	if p.streamCalls <= p.failFirst {
		return nil, errors.New("provider unavailable")
	}

	ch := make(chan StreamChunk, 1)
	ch <- NewTextChunk(p.chunk)
	close(ch)
	return ch, nil
}

func (p *fakeProvider) Chat(ctx context.Context, messages []Message) (Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chatCalls++
	if p.chatErr != nil {
		return Message{}, p.chatErr
	}
	return NewAssistantMessage(p.chunk), nil
}

func (p *fakeProvider) IsTransientError(err error) bool { return p.transient }

func collect(t *testing.T, ch <-chan StreamChunk) string {
	t.Helper()
	var out string
	for chunk := range ch {
		out += chunk.Content
	}
	return out
}

func TestFallbackStreamFirstProviderWins(t *testing.T) {
	a := &fakeProvider{chunk: "from a"}
	b := &fakeProvider{chunk: "from b"}
	f := &FallbackClient{Clients: []LLMClient{a, b}, MaxRetries: 3, RetryDelay: time.Millisecond}

	ch, err := f.StreamChat(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "from a", collect(t, ch))
	assert.Equal(t, 0, b.streamCalls)
}

func TestFallbackStreamMovesToNextProvider(t *testing.T) {
	a := &fakeProvider{chunk: "from a", failFirst: 99}
	b := &fakeProvider{chunk: "from b"}
	f := &FallbackClient{Clients: []LLMClient{a, b}, MaxRetries: 2, RetryDelay: time.Millisecond}

	ch, err := f.StreamChat(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "from b", collect(t, ch))

	// A permanent error does not burn the retry budget.
	assert.Equal(t, 1, a.streamCalls)
}

func TestFallbackStreamRetriesTransientErrors(t *testing.T) {
	a := &fakeProvider{chunk: "eventually", failFirst: 2, transient: true}
	f := &FallbackClient{Clients: []LLMClient{a}, MaxRetries: 3, RetryDelay: time.Millisecond}

	ch, err := f.StreamChat(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "eventually", collect(t, ch))
	assert.Equal(t, 3, a.streamCalls)
}

func TestFallbackStreamAllProvidersFail(t *testing.T) {
	a := &fakeProvider{failFirst: 99}
	b := &fakeProvider{failFirst: 99}
	f := &FallbackClient{Clients: []LLMClient{a, b}, MaxRetries: 1, RetryDelay: time.Millisecond}

	_, err := f.StreamChat(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all fallback providers failed")
}

func TestFallbackChatIteratesProviders(t *testing.T) {
	a := &fakeProvider{chatErr: errors.New("down")}
	b := &fakeProvider{chunk: "summary"}
	f := &FallbackClient{Clients: []LLMClient{a, b}}

	msg, err := f.Chat(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "summary", msg.Content)
	assert.Equal(t, 1, a.chatCalls)
	assert.Equal(t, 1, b.chatCalls)
}

func TestFallbackIsNeverTransient(t *testing.T) {
	f := &FallbackClient{}
	assert.False(t, f.IsTransientError(errors.New("anything")))
}
