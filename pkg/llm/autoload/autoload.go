// Package autoload registers all built-in LLM providers via side effects.
// Import it for its init functions only.
package autoload

import (
	_ "aura/pkg/llm/gemini"
	_ "aura/pkg/llm/ollamalm"
	_ "aura/pkg/llm/openaix"
)
