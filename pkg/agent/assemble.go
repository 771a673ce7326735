package agent

import "aura/pkg/llm"

// callAssembler reconstructs complete tool calls from the fragments a
// provider streams out. Fragments are addressed by index; every field is
// rebuilt by concatenating its fragments in arrival order.
type callAssembler struct {
	buffer []llm.ToolCall
}

func (a *callAssembler) add(delta llm.ToolCallDelta) {
	for len(a.buffer) <= delta.Index {
		a.buffer = append(a.buffer, llm.ToolCall{})
	}

	tc := &a.buffer[delta.Index]
	tc.ID += delta.ID
	if delta.Name != "" {
		tc.Name += delta.Name
		tc.Function.Name += delta.Name
	}
	tc.Function.Arguments += delta.Arguments
}

func (a *callAssembler) calls() []llm.ToolCall {
	return a.buffer
}
