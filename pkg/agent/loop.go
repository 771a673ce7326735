package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"aura/pkg/api"
	"aura/pkg/config"
	"aura/pkg/llm"
	"aura/pkg/tools"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const truncationSuffix = "... (truncated)"

// toolDescriptionsNotice replaces the {tool_descriptions} prompt
// placeholder; tool schemas travel structurally with every request.
const toolDescriptionsNotice = "Tools are provided via API."

// Agent drives the reason-act loop: call the model, execute requested
// tools, feed observations back, repeat until a plain answer arrives.
type Agent struct {
	client       llm.LLMClient
	registry     *tools.Registry
	systemPrompt string
	maxTurns     int
	obsLimit     int
}

// New builds an agent. systemPrompt may contain the {tool_descriptions}
// placeholder.
func New(client llm.LLMClient, registry *tools.Registry, systemPrompt string, sys *config.SystemConfig) *Agent {
	if systemPrompt == "" {
		systemPrompt = "You are a helpful AI agent."
	}
	return &Agent{
		client:       client,
		registry:     registry,
		systemPrompt: systemPrompt,
		maxTurns:     sys.MaxTurns,
		obsLimit:     sys.ObservationLimit,
	}
}

// toolOutcome pairs a finished call with its observation text.
type toolOutcome struct {
	call   llm.ToolCall
	result string
}

// Run executes one full agent run over a private copy of the history.
// It returns the extended working history and the final answer text.
// Progress flows out through events; the caller owns and closes the
// channel. A non-nil error means the run was genuinely interrupted and
// no final event was emitted.
func (a *Agent) Run(ctx context.Context, history []llm.Message, userInput string, invocation map[string]any, events chan<- api.Event) ([]llm.Message, string, error) {
	// Seed the user turn unless the caller already appended it
	if len(history) == 0 || history[len(history)-1].Role != llm.RoleUser {
		history = append(history, llm.NewUserMessage(userInput))
	}

	definitions := a.registry.Definitions()

	for turn := 0; turn < a.maxTurns; turn++ {
		events <- api.NewThinkingEvent("Analysing request...")

		stream, err := a.client.StreamChat(ctx, a.buildPrompt(history), definitions)
		if err != nil {
			if ctx.Err() != nil {
				return history, "", ctx.Err()
			}
			return history, "", fmt.Errorf("model call failed: %w", err)
		}

		var content strings.Builder
		assembler := &callAssembler{}

		for chunk := range stream {
			if chunk.RawError != nil {
				return history, "", chunk.RawError
			}
			if chunk.Err != "" {
				// Provider-side failure arrives as data; keep whatever
				// was produced so far and let the loop continue
				slog.Warn("Stream reported an error", "error", chunk.Err)
				continue
			}
			if chunk.Content != "" {
				content.WriteString(chunk.Content)
				events <- api.NewFinalStreamEvent(chunk.Content)
			}
			for _, delta := range chunk.ToolCallDeltas {
				assembler.add(delta)
			}
		}
		if ctx.Err() != nil {
			return history, "", ctx.Err()
		}

		calls := assembler.calls()

		assistantMsg := llm.NewAssistantMessage(content.String())
		assistantMsg.ToolCalls = calls
		history = append(history, assistantMsg)

		// No tool calls means the content is the final answer
		if len(calls) == 0 {
			events <- api.NewFinalEvent(content.String())
			return history, content.String(), nil
		}

		history = a.executeCalls(ctx, calls, invocation, events, history)
		if ctx.Err() != nil {
			return history, "", ctx.Err()
		}
	}

	events <- api.NewFinalEvent("Error: Maximum turns reached.")
	return history, "Error: Maximum turns reached.", nil
}

// executeCalls runs every requested tool concurrently and folds the
// observations back into history in declaration order, so the transcript
// stays deterministic regardless of completion order.
func (a *Agent) executeCalls(ctx context.Context, calls []llm.ToolCall, invocation map[string]any, events chan<- api.Event, history []llm.Message) []llm.Message {
	outcomes := make([]toolOutcome, len(calls))
	var wg sync.WaitGroup

	for i, call := range calls {
		args := decodeArgs(call.Function.Arguments)
		events <- api.NewToolUseEvent(call.Function.Name, args)

		wg.Add(1)
		go func(i int, call llm.ToolCall, args map[string]any) {
			defer wg.Done()
			result := a.registry.Execute(ctx, call.Function.Name, invocation, args)
			outcomes[i] = toolOutcome{call: call, result: result}
		}(i, call, args)
	}
	wg.Wait()

	if ctx.Err() != nil {
		return history
	}

	for _, out := range outcomes {
		result := out.result
		if len(result) > a.obsLimit {
			result = result[:a.obsLimit] + truncationSuffix
		}

		history = append(history, llm.NewToolMessage(out.call.ID, out.call.Function.Name, result))
		events <- api.NewObservationEvent(fmt.Sprintf("Tool '%s' output:\n%s", out.call.Function.Name, result))
	}

	return history
}

// buildPrompt prefixes the history with the resolved system message.
func (a *Agent) buildPrompt(history []llm.Message) []llm.Message {
	systemMsg := strings.ReplaceAll(a.systemPrompt, "{tool_descriptions}", toolDescriptionsNotice)

	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, llm.NewSystemMessage(systemMsg))
	messages = append(messages, history...)
	return messages
}

// decodeArgs parses a tool call argument payload; malformed JSON yields
// an empty argument set rather than a failed call.
func decodeArgs(raw string) map[string]any {
	args := make(map[string]any)
	if raw == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		slog.Warn("Failed to decode tool arguments", "raw", raw, "error", err)
		return make(map[string]any)
	}
	return args
}
