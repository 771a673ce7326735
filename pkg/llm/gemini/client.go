package gemini

import (
	"context"
	"fmt"
	"log"
	"strings"

	"aura/pkg/llm"
	"aura/pkg/utils"

	jsoniter "github.com/json-iterator/go"
	"google.golang.org/genai"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client wraps the Google Gemini API.
type Client struct {
	client *genai.Client
	model  string
}

// NewClient creates a Gemini client with a single model and API key.
func NewClient(apiKey string, model string) (*Client, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{
		client: client,
		model:  model,
	}, nil
}

func (g *Client) Provider() string {
	return "gemini"
}

// StreamChat implements llm.LLMClient.StreamChat.
func (g *Client) StreamChat(ctx context.Context, messages []llm.Message, tools []llm.Tool) (<-chan llm.StreamChunk, error) {
	apiMessages, systemInstruction := convertMessages(messages)
	genaiTools := convertTools(tools)

	chunkCh := make(chan llm.StreamChunk, 100)
	startResultCh := make(chan error, 1)

	log.Printf("[Gemini] 🌊 Streaming with model: %s...", g.model)

	go func() {
		defer close(chunkCh)

		iter := g.client.Models.GenerateContentStream(ctx, g.model, apiMessages, &genai.GenerateContentConfig{
			SystemInstruction: systemInstruction,
			Tools:             genaiTools,
		})

		started := false
		var lastUsage *llm.LLMUsage
		// Gemini delivers function calls whole within a single part.
		nextIndex := 0

		for resp, err := range iter {
			if err != nil {
				// The iterator may still carry data alongside the error.
				if resp == nil {
					if ctx.Err() != nil {
						if started {
							chunkCh <- llm.StreamChunk{RawError: ctx.Err(), IsFinal: true}
						} else {
							startResultCh <- ctx.Err()
						}
						return
					}
					log.Printf("Gemini Stream Error: %v", err)
					if !started {
						startResultCh <- err
					} else {
						chunkCh <- llm.NewErrorChunk(fmt.Sprintf("Stream interrupted: %v", err))
						chunkCh <- llm.NewFinalChunk(llm.StopReasonStop, lastUsage)
					}
					return
				}
				log.Printf("Gemini Stream Error (with data): %v", err)
			}

			if !started {
				started = true
				startResultCh <- nil
			}

			// Usage metadata usually arrives in the last chunk
			if resp.UsageMetadata != nil {
				u := resp.UsageMetadata
				lastUsage = &llm.LLMUsage{
					PromptTokens:     int(u.PromptTokenCount),
					CompletionTokens: int(u.CandidatesTokenCount),
					TotalTokens:      int(u.TotalTokenCount),
				}
			}

			for _, candidate := range resp.Candidates {
				if candidate.FinishReason != "" && lastUsage != nil {
					lastUsage.StopReason = normalizeStopReason(string(candidate.FinishReason))
				}

				if candidate.Content == nil {
					continue
				}

				var text strings.Builder
				var deltas []llm.ToolCallDelta

				for _, part := range candidate.Content.Parts {
					if part.Text != "" && !part.Thought {
						text.WriteString(part.Text)
					}

					if part.FunctionCall != nil {
						argsB, _ := json.Marshal(part.FunctionCall.Args)
						deltas = append(deltas, llm.ToolCallDelta{
							Index:     nextIndex,
							ID:        utils.GenerateID(),
							Name:      part.FunctionCall.Name,
							Arguments: string(argsB),
						})
						nextIndex++
						log.Printf("[Gemini] 🛠️ Tool Call: %s(%s)", part.FunctionCall.Name, string(argsB))
					}
				}

				if text.Len() > 0 || len(deltas) > 0 {
					chunkCh <- llm.StreamChunk{
						Content:        text.String(),
						ToolCallDeltas: deltas,
					}
				}
			}
		}

		reason := llm.StopReasonStop
		if lastUsage != nil && lastUsage.StopReason != "" {
			reason = lastUsage.StopReason
		}
		chunkCh <- llm.NewFinalChunk(reason, lastUsage)
	}()

	// Wait for initialization result (first chunk or immediate error)
	select {
	case err := <-startResultCh:
		if err != nil {
			return nil, err
		}
		return chunkCh, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Chat implements llm.LLMClient.Chat.
func (g *Client) Chat(ctx context.Context, messages []llm.Message) (llm.Message, error) {
	apiMessages, systemInstruction := convertMessages(messages)

	resp, err := g.client.Models.GenerateContent(ctx, g.model, apiMessages, &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction,
	})
	if err != nil {
		return llm.Message{}, err
	}

	var text strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.Text != "" && !part.Thought {
				text.WriteString(part.Text)
			}
		}
	}

	return llm.NewAssistantMessage(text.String()), nil
}

// convertMessages converts the message list to GenAI format.
func convertMessages(messages []llm.Message) ([]*genai.Content, *genai.Content) {
	var genaiContents []*genai.Content
	var systemInstruction *genai.Content

	for _, msg := range messages {
		if msg.Role == llm.RoleSystem {
			if msg.Content != "" {
				systemInstruction = &genai.Content{
					Parts: []*genai.Part{{Text: msg.Content}},
				}
			}
			continue
		}

		if msg.Role == llm.RoleTool {
			// Tool results travel as user-role function responses in Gemini
			genaiContents = append(genaiContents, &genai.Content{
				Role: "user",
				Parts: []*genai.Part{
					{
						FunctionResponse: &genai.FunctionResponse{
							Name:     msg.ToolName,
							Response: map[string]any{"result": msg.Content},
						},
					},
				},
			})
			continue
		}

		role := "user"
		if msg.Role == llm.RoleAssistant {
			role = "model"
		}

		var parts []*genai.Part

		// Gemini requires echoing previous function calls before responses
		for _, tc := range msg.ToolCalls {
			var args map[string]any
			json.Unmarshal([]byte(tc.Function.Arguments), &args)
			parts = append(parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{
					Name: tc.Function.Name,
					Args: args,
				},
			})
		}

		if msg.Content != "" {
			parts = append(parts, &genai.Part{Text: msg.Content})
		}

		if len(parts) > 0 {
			genaiContents = append(genaiContents, &genai.Content{
				Role:  role,
				Parts: parts,
			})
		}
	}

	return genaiContents, systemInstruction
}

// convertTools builds genai declarations, converting the parameter schema
// through a JSON round trip into genai.Schema.
func convertTools(tools []llm.Tool) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}

	var fds []*genai.FunctionDeclaration
	for _, t := range tools {
		fd := &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
		}

		properties := make(map[string]any, len(t.Params))
		required := []string{}
		for _, p := range t.Params {
			properties[p.Name] = map[string]any{"type": p.Type}
			if p.Required {
				required = append(required, p.Name)
			}
		}
		schemaB, _ := json.Marshal(map[string]any{
			"type":       "object",
			"properties": properties,
			"required":   required,
		})
		var schema genai.Schema
		json.Unmarshal(schemaB, &schema)
		fd.Parameters = &schema

		fds = append(fds, fd)
	}

	return []*genai.Tool{{FunctionDeclarations: fds}}
}

func normalizeStopReason(reason string) string {
	switch strings.ToUpper(reason) {
	case "STOP", "FINISH_REASON_STOP":
		return llm.StopReasonStop
	case "MAX_TOKENS", "FINISH_REASON_MAX_TOKENS":
		return llm.StopReasonLength
	default:
		return strings.ToLower(reason)
	}
}

// IsTransientError implements the llm.LLMClient interface.
func (g *Client) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := err.Error()

	// Google API common 503 Service Unavailable / Overloaded
	if strings.Contains(errMsg, "503") || strings.Contains(strings.ToLower(errMsg), "overloaded") {
		return true
	}

	// 429 Too Many Requests (Rate Limit)
	if strings.Contains(errMsg, "429") || strings.Contains(strings.ToLower(errMsg), "resource exhausted") {
		return true
	}

	// 500 Internal Error (Occasional Gemini crashes)
	if strings.Contains(errMsg, "500") || strings.Contains(strings.ToLower(errMsg), "internal error") {
		return true
	}

	return false
}
