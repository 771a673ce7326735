package openaix

import (
	"context"
	"fmt"
	"strings"

	"aura/pkg/llm"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

// Client wraps the official OpenAI Go SDK using the chat completions API.
// With a custom base URL it also serves Groq, DeepSeek and other
// OpenAI-compatible endpoints.
type Client struct {
	client   *openai.Client
	provider string
	model    string
	options  map[string]any
}

// NewClient creates a new OpenAI-compatible client.
func NewClient(provider string, apiKey string, model string, baseURL string, options map[string]any) (*Client, error) {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(opts...)

	return &Client{
		client:   &client,
		provider: provider,
		model:    model,
		options:  options,
	}, nil
}

func (c *Client) Provider() string {
	return c.provider
}

func (c *Client) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())

	// Transient: network-level issues
	if strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "timeout") {
		return true
	}

	// Transient: server-side temporary failures
	if strings.Contains(msg, "429") ||
		strings.Contains(msg, "500 internal") ||
		strings.Contains(msg, "502 bad gateway") ||
		strings.Contains(msg, "503 service unavailable") ||
		strings.Contains(msg, "overloaded") {
		return true
	}

	// Everything else (400 Bad Request, 401 Unauthorized, etc.) is non-transient
	return false
}

func (c *Client) StreamChat(ctx context.Context, messages []llm.Message, tools []llm.Tool) (<-chan llm.StreamChunk, error) {
	chunkCh := make(chan llm.StreamChunk, 100)

	params := c.buildParams(messages, tools)
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}

	go func() {
		defer close(chunkCh)

		stream := c.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		var lastFinishReason string
		var lastUsage *llm.LLMUsage

		for stream.Next() {
			chunk := stream.Current()

			if chunk.Usage.TotalTokens > 0 {
				lastUsage = &llm.LLMUsage{
					PromptTokens:     int(chunk.Usage.PromptTokens),
					CompletionTokens: int(chunk.Usage.CompletionTokens),
					TotalTokens:      int(chunk.Usage.TotalTokens),
				}
			}

			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]

			if choice.Delta.Content != "" {
				chunkCh <- llm.NewTextChunk(choice.Delta.Content)
			}

			if len(choice.Delta.ToolCalls) > 0 {
				deltas := make([]llm.ToolCallDelta, 0, len(choice.Delta.ToolCalls))
				for _, tc := range choice.Delta.ToolCalls {
					deltas = append(deltas, llm.ToolCallDelta{
						Index:     int(tc.Index),
						ID:        tc.ID,
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					})
				}
				chunkCh <- llm.StreamChunk{ToolCallDeltas: deltas}
			}

			if choice.FinishReason != "" {
				lastFinishReason = choice.FinishReason
			}
		}

		if err := stream.Err(); err != nil {
			if ctx.Err() != nil {
				chunkCh <- llm.StreamChunk{RawError: ctx.Err(), IsFinal: true}
				return
			}
			chunkCh <- llm.NewErrorChunk(fmt.Sprintf("Stream error: %v", err))
			chunkCh <- llm.NewFinalChunk(llm.StopReasonStop, lastUsage)
			return
		}

		reason := llm.StopReasonStop
		if lastFinishReason != "" {
			reason = normalizeStopReason(lastFinishReason)
		}
		if lastUsage != nil {
			lastUsage.StopReason = reason
		}
		chunkCh <- llm.NewFinalChunk(reason, lastUsage)
	}()

	return chunkCh, nil
}

func (c *Client) Chat(ctx context.Context, messages []llm.Message) (llm.Message, error) {
	params := c.buildParams(messages, nil)

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return llm.Message{}, err
	}
	if len(resp.Choices) == 0 {
		return llm.Message{}, fmt.Errorf("empty response from %s", c.provider)
	}

	return llm.NewAssistantMessage(resp.Choices[0].Message.Content), nil
}

func (c *Client) buildParams(messages []llm.Message, tools []llm.Tool) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.model),
		Messages: c.convertMessages(messages),
	}

	// Handle unified "temperature" option (optional)
	if t, ok := c.options["temperature"].(float64); ok {
		params.Temperature = openai.Float(t)
	}

	// Handle unified "top_p" option (optional)
	if p, ok := c.options["top_p"].(float64); ok {
		params.TopP = openai.Float(p)
	}

	// Handle unified "max_tokens" option
	if maxTok, ok := c.options["max_tokens"].(float64); ok {
		params.MaxCompletionTokens = openai.Int(int64(maxTok))
	}

	if converted := convertTools(tools); len(converted) > 0 {
		params.Tools = converted
	}

	return params
}

func (c *Client) convertMessages(messages []llm.Message) []openai.ChatCompletionMessageParamUnion {
	items := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))

	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			items = append(items, openai.SystemMessage(m.Content))
		case llm.RoleUser:
			items = append(items, openai.UserMessage(m.Content))
		case llm.RoleAssistant:
			if len(m.ToolCalls) == 0 {
				items = append(items, openai.AssistantMessage(m.Content))
				continue
			}
			asst := openai.ChatCompletionAssistantMessageParam{}
			if m.Content != "" {
				asst.Content.OfString = openai.String(m.Content)
			}
			for _, tc := range m.ToolCalls {
				asst.ToolCalls = append(asst.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Function.Name,
							Arguments: tc.Function.Arguments,
						},
					},
				})
			}
			items = append(items, openai.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		case llm.RoleTool:
			items = append(items, openai.ToolMessage(m.Content, m.ToolCallID))
		}
	}

	return items
}

func convertTools(tools []llm.Tool) []openai.ChatCompletionToolUnionParam {
	if len(tools) == 0 {
		return nil
	}

	converted := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		properties := make(map[string]any, len(t.Params))
		required := []string{}
		for _, p := range t.Params {
			properties[p.Name] = map[string]any{"type": p.Type}
			if p.Required {
				required = append(required, p.Name)
			}
		}

		converted = append(converted, openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        t.Name,
			Description: openai.String(t.Description),
			Parameters: shared.FunctionParameters{
				"type":       "object",
				"properties": properties,
				"required":   required,
			},
		}))
	}
	return converted
}

// normalizeStopReason converts OpenAI-specific finish_reason to
// a standardized lowercase format.
func normalizeStopReason(reason string) string {
	switch strings.ToLower(reason) {
	case "stop":
		return llm.StopReasonStop
	case "length":
		return llm.StopReasonLength
	case "tool_calls":
		return llm.StopReasonToolCalls
	default:
		return reason
	}
}
