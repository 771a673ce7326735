package llm

import (
	"context"
	"fmt"
	"log"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// json is used for all JSON handling inside package llm.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Param describes one advertised tool parameter.
type Param struct {
	Name     string `json:"name"`
	Type     string `json:"type"` // string, integer, number, boolean, array, object
	Required bool   `json:"required"`
}

// Tool is the provider-facing definition of one callable tool.
type Tool struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Params      []Param `json:"params"`
}

// LLMClient is the common interface every model provider implements.
type LLMClient interface {
	// StreamChat starts a streaming completion. The returned channel is
	// finite and closed by the provider; tools may be nil for plain chat.
	StreamChat(ctx context.Context, messages []Message, tools []Tool) (<-chan StreamChunk, error)

	// Chat performs a non-streaming completion, used for summarization.
	Chat(ctx context.Context, messages []Message) (Message, error)

	// IsTransientError reports whether an error is worth retrying
	// (503, rate limit, connection reset).
	IsTransientError(err error) bool
}

// FallbackClient tries multiple clients in priority order.
type FallbackClient struct {
	Clients    []LLMClient
	MaxRetries int
	RetryDelay time.Duration
}

func (f *FallbackClient) StreamChat(ctx context.Context, messages []Message, tools []Tool) (<-chan StreamChunk, error) {
	var lastErr error
	for i, client := range f.Clients {
		if i > 0 {
			log.Printf("⚠️ Previous provider failed. Trying fallback provider #%d...", i+1)
		}

		maxRetries := f.MaxRetries
		if maxRetries <= 0 {
			maxRetries = 1
		}

		for retry := 1; retry <= maxRetries; retry++ {
			if retry > 1 {
				log.Printf("🔄 Retrying provider #%d (attempt %d/%d)...", i+1, retry, maxRetries)
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(time.Duration(retry-1) * f.RetryDelay):
				}
			}

			ch, err := client.StreamChat(ctx, messages, tools)
			if err == nil {
				return ch, nil
			}

			lastErr = err

			if client.IsTransientError(err) && retry < maxRetries {
				log.Printf("❌ Provider #%d failed with transient error: %v. Retrying...", i+1, err)
				continue
			}

			log.Printf("❌ Provider #%d failed: %v", i+1, err)
			break
		}
	}
	return nil, fmt.Errorf("all fallback providers failed. Last error: %v", lastErr)
}

func (f *FallbackClient) Chat(ctx context.Context, messages []Message) (Message, error) {
	var lastErr error
	for i, client := range f.Clients {
		msg, err := client.Chat(ctx, messages)
		if err == nil {
			return msg, nil
		}
		lastErr = err
		log.Printf("❌ Provider #%d chat failed: %v", i+1, err)
		if ctx.Err() != nil {
			return Message{}, ctx.Err()
		}
	}
	return Message{}, fmt.Errorf("all fallback providers failed. Last error: %v", lastErr)
}

// IsTransientError implements LLMClient. A FallbackClient error means every
// child already failed, so it is treated as permanent.
func (f *FallbackClient) IsTransientError(err error) bool {
	return false
}
