package agent

import (
	"context"
	"strings"
	"sync"
	"testing"

	"aura/pkg/api"
	"aura/pkg/config"
	"aura/pkg/llm"
	"aura/pkg/tools"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedClient replays one prepared chunk sequence per StreamChat call.
type scriptedClient struct {
	mu      sync.Mutex
	scripts [][]llm.StreamChunk
	call    int
	prompts [][]llm.Message
	tools   [][]llm.Tool
}

func (c *scriptedClient) StreamChat(ctx context.Context, messages []llm.Message, toolDefs []llm.Tool) (<-chan llm.StreamChunk, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.prompts = append(c.prompts, append([]llm.Message(nil), messages...))
	c.tools = append(c.tools, toolDefs)

	if c.call >= len(c.scripts) {
		panic("scriptedClient: no script for call")
	}
	script := c.scripts[c.call]
	c.call++

	ch := make(chan llm.StreamChunk, len(script))
	for _, chunk := range script {
		ch <- chunk
	}
	close(ch)
	return ch, nil
}

func (c *scriptedClient) Chat(ctx context.Context, messages []llm.Message) (llm.Message, error) {
	return llm.Message{}, nil
}

func (c *scriptedClient) IsTransientError(err error) bool { return false }

func testSys() *config.SystemConfig {
	sys := config.DefaultSystemConfig()
	sys.MaxTurns = 5
	return sys
}

func echoRegistry(t *testing.T) (*tools.Registry, *[]map[string]any) {
	t.Helper()
	var seen []map[string]any
	var mu sync.Mutex

	reg := tools.NewRegistry("", nil)
	reg.Register(tools.Spec{
		Name:        "echo",
		Description: "Echoes the text argument.",
		Params:      []tools.Param{{Name: "text", Type: "string", Required: true}},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			mu.Lock()
			seen = append(seen, args)
			mu.Unlock()
			text, _ := args["text"].(string)
			return "echo: " + text, nil
		},
	})
	return reg, &seen
}

func runAgent(t *testing.T, a *Agent, history []llm.Message, input string) ([]llm.Message, string, []api.Event, error) {
	t.Helper()
	events := make(chan api.Event, 256)
	hist, final, err := a.Run(context.Background(), history, input, nil, events)
	close(events)

	var collected []api.Event
	for ev := range events {
		collected = append(collected, ev)
	}
	return hist, final, collected, err
}

func eventsOfType(events []api.Event, typ api.EventType) []api.Event {
	var out []api.Event
	for _, ev := range events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func TestRunDirectAnswer(t *testing.T) {
	client := &scriptedClient{scripts: [][]llm.StreamChunk{
		{
			llm.NewTextChunk("Hello"),
			llm.NewTextChunk(", world"),
			llm.NewFinalChunk("stop", nil),
		},
	}}
	reg, _ := echoRegistry(t)
	a := New(client, reg, "", testSys())

	hist, final, events, err := runAgent(t, a, nil, "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello, world", final)

	// user + assistant
	require.Len(t, hist, 2)
	assert.Equal(t, llm.RoleUser, hist[0].Role)
	assert.Equal(t, "hi", hist[0].Content)
	assert.Equal(t, llm.RoleAssistant, hist[1].Role)
	assert.Equal(t, "Hello, world", hist[1].Content)

	streamed := eventsOfType(events, api.EventFinalStream)
	require.Len(t, streamed, 2)
	assert.Equal(t, "Hello", streamed[0].Content)

	finals := eventsOfType(events, api.EventFinal)
	require.Len(t, finals, 1)
	assert.Equal(t, "Hello, world", finals[0].Content)
}

func TestRunSystemPromptPlaceholder(t *testing.T) {
	client := &scriptedClient{scripts: [][]llm.StreamChunk{
		{llm.NewTextChunk("ok")},
	}}
	reg, _ := echoRegistry(t)
	a := New(client, reg, "You can use: {tool_descriptions}", testSys())

	_, _, _, err := runAgent(t, a, nil, "hi")
	require.NoError(t, err)

	require.NotEmpty(t, client.prompts)
	sysMsg := client.prompts[0][0]
	assert.Equal(t, llm.RoleSystem, sysMsg.Role)
	assert.Equal(t, "You can use: Tools are provided via API.", sysMsg.Content)
}

func TestRunToolRoundTripWithFragmentedDeltas(t *testing.T) {
	// The call id, name and arguments all arrive split across chunks.
	client := &scriptedClient{scripts: [][]llm.StreamChunk{
		{
			{ToolCallDeltas: []llm.ToolCallDelta{{Index: 0, ID: "call", Name: "ec"}}},
			{ToolCallDeltas: []llm.ToolCallDelta{{Index: 0, ID: "_1", Name: "ho"}}},
			{ToolCallDeltas: []llm.ToolCallDelta{{Index: 0, Arguments: `{"text":`}}},
			{ToolCallDeltas: []llm.ToolCallDelta{{Index: 0, Arguments: `"ping"}`}}},
		},
		{
			llm.NewTextChunk("done"),
		},
	}}
	reg, seen := echoRegistry(t)
	a := New(client, reg, "", testSys())

	hist, final, events, err := runAgent(t, a, nil, "call the tool")
	require.NoError(t, err)
	assert.Equal(t, "done", final)

	require.Len(t, *seen, 1)
	assert.Equal(t, "ping", (*seen)[0]["text"])

	// user, assistant(with call), tool, assistant(final)
	require.Len(t, hist, 4)
	require.Len(t, hist[1].ToolCalls, 1)
	assert.Equal(t, "call_1", hist[1].ToolCalls[0].ID)
	assert.Equal(t, "echo", hist[1].ToolCalls[0].Function.Name)

	assert.Equal(t, llm.RoleTool, hist[2].Role)
	assert.Equal(t, "call_1", hist[2].ToolCallID)
	assert.Equal(t, "echo: ping", hist[2].Content)

	uses := eventsOfType(events, api.EventToolUse)
	require.Len(t, uses, 1)
	assert.Equal(t, "echo", uses[0].Tool)

	obs := eventsOfType(events, api.EventObservation)
	require.Len(t, obs, 1)
	assert.Equal(t, "Tool 'echo' output:\necho: ping", obs[0].Result)
}

func TestRunParallelCallsKeepDeclarationOrder(t *testing.T) {
	client := &scriptedClient{scripts: [][]llm.StreamChunk{
		{
			// Interleaved fragments of two parallel calls.
			{ToolCallDeltas: []llm.ToolCallDelta{{Index: 0, ID: "a", Name: "echo"}}},
			{ToolCallDeltas: []llm.ToolCallDelta{{Index: 1, ID: "b", Name: "echo"}}},
			{ToolCallDeltas: []llm.ToolCallDelta{{Index: 1, Arguments: `{"text":"second"}`}}},
			{ToolCallDeltas: []llm.ToolCallDelta{{Index: 0, Arguments: `{"text":"first"}`}}},
		},
		{
			llm.NewTextChunk("done"),
		},
	}}
	reg, _ := echoRegistry(t)
	a := New(client, reg, "", testSys())

	hist, _, events, err := runAgent(t, a, nil, "go")
	require.NoError(t, err)

	// Observations land in declaration order regardless of completion order.
	require.Len(t, hist, 5)
	assert.Equal(t, "echo: first", hist[2].Content)
	assert.Equal(t, "a", hist[2].ToolCallID)
	assert.Equal(t, "echo: second", hist[3].Content)
	assert.Equal(t, "b", hist[3].ToolCallID)

	obs := eventsOfType(events, api.EventObservation)
	require.Len(t, obs, 2)
	assert.Contains(t, obs[0].Result, "first")
	assert.Contains(t, obs[1].Result, "second")
}

func TestRunObservationTruncation(t *testing.T) {
	reg := tools.NewRegistry("", nil)
	reg.Register(tools.Spec{
		Name: "big",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return strings.Repeat("x", 3000), nil
		},
	})

	client := &scriptedClient{scripts: [][]llm.StreamChunk{
		{{ToolCallDeltas: []llm.ToolCallDelta{{Index: 0, ID: "c1", Name: "big", Arguments: "{}"}}}},
		{llm.NewTextChunk("done")},
	}}
	sys := testSys()
	a := New(client, reg, "", sys)

	hist, _, _, err := runAgent(t, a, nil, "go")
	require.NoError(t, err)

	obs := hist[2].Content
	assert.Len(t, obs, sys.ObservationLimit+len("... (truncated)"))
	assert.True(t, strings.HasSuffix(obs, "... (truncated)"))
}

func TestRunMalformedArgumentsYieldEmptyMap(t *testing.T) {
	client := &scriptedClient{scripts: [][]llm.StreamChunk{
		{{ToolCallDeltas: []llm.ToolCallDelta{{Index: 0, ID: "c1", Name: "echo", Arguments: `{not json`}}}},
		{llm.NewTextChunk("done")},
	}}
	reg, seen := echoRegistry(t)
	a := New(client, reg, "", testSys())

	_, _, _, err := runAgent(t, a, nil, "go")
	require.NoError(t, err)

	require.Len(t, *seen, 1)
	assert.Empty(t, (*seen)[0])
}

func TestRunUnknownToolBecomesObservation(t *testing.T) {
	client := &scriptedClient{scripts: [][]llm.StreamChunk{
		{{ToolCallDeltas: []llm.ToolCallDelta{{Index: 0, ID: "c1", Name: "missing", Arguments: "{}"}}}},
		{llm.NewTextChunk("done")},
	}}
	reg, _ := echoRegistry(t)
	a := New(client, reg, "", testSys())

	hist, final, _, err := runAgent(t, a, nil, "go")
	require.NoError(t, err)
	assert.Equal(t, "done", final)
	assert.Equal(t, "Error: Tool 'missing' not found.", hist[2].Content)
}

func TestRunMaxTurnsReached(t *testing.T) {
	loop := []llm.StreamChunk{
		{ToolCallDeltas: []llm.ToolCallDelta{{Index: 0, ID: "c", Name: "echo", Arguments: `{"text":"again"}`}}},
	}
	sys := testSys()
	sys.MaxTurns = 3

	client := &scriptedClient{scripts: [][]llm.StreamChunk{loop, loop, loop}}
	reg, _ := echoRegistry(t)
	a := New(client, reg, "", sys)

	_, final, events, err := runAgent(t, a, nil, "go")
	require.NoError(t, err)
	assert.Equal(t, "Error: Maximum turns reached.", final)
	assert.Equal(t, 3, client.call)

	finals := eventsOfType(events, api.EventFinal)
	require.Len(t, finals, 1)
	assert.Equal(t, "Error: Maximum turns reached.", finals[0].Content)
}

func TestRunCancelledContext(t *testing.T) {
	client := &scriptedClient{scripts: [][]llm.StreamChunk{
		{llm.NewTextChunk("partial")},
	}}
	reg, _ := echoRegistry(t)
	a := New(client, reg, "", testSys())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	events := make(chan api.Event, 256)
	_, final, err := a.Run(ctx, nil, "go", nil, events)
	close(events)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, final)

	var collected []api.Event
	for ev := range events {
		collected = append(collected, ev)
	}
	assert.Empty(t, eventsOfType(collected, api.EventFinal))
}

func TestRunStreamRawErrorAborts(t *testing.T) {
	client := &scriptedClient{scripts: [][]llm.StreamChunk{
		{{RawError: assert.AnError}},
	}}
	reg, _ := echoRegistry(t)
	a := New(client, reg, "", testSys())

	_, final, events, err := runAgent(t, a, nil, "go")
	require.Error(t, err)
	assert.Empty(t, final)
	assert.Empty(t, eventsOfType(events, api.EventFinal))
}

func TestRunDoesNotDuplicateUserTurn(t *testing.T) {
	client := &scriptedClient{scripts: [][]llm.StreamChunk{
		{llm.NewTextChunk("ok")},
	}}
	reg, _ := echoRegistry(t)
	a := New(client, reg, "", testSys())

	history := []llm.Message{llm.NewUserMessage("already here")}
	hist, _, _, err := runAgent(t, a, history, "already here")
	require.NoError(t, err)

	// user + assistant only; no second user turn was seeded
	require.Len(t, hist, 2)
	assert.Equal(t, llm.RoleUser, hist[0].Role)
	assert.Equal(t, llm.RoleAssistant, hist[1].Role)
}

func TestCallAssemblerGrowsSparseIndexes(t *testing.T) {
	a := &callAssembler{}
	a.add(llm.ToolCallDelta{Index: 2, ID: "c3", Name: "third"})
	a.add(llm.ToolCallDelta{Index: 0, ID: "c1", Name: "first"})

	calls := a.calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "c1", calls[0].ID)
	assert.Empty(t, calls[1].ID)
	assert.Equal(t, "third", calls[2].Function.Name)
}
