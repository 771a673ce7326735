package builtin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"aura/pkg/tools"

	jsoniter "github.com/json-iterator/go"
)

// MemoryModule gives the model an append-only notebook of facts about
// the user that survives history compaction and restarts.
type MemoryModule struct {
	mu sync.Mutex
}

func (m *MemoryModule) Name() string { return "memory" }

func (m *MemoryModule) Register(reg *tools.Registry, cfg jsoniter.RawMessage) error {
	var manifest struct {
		File string `json:"file"`
	}
	if cfg != nil {
		json.Unmarshal(cfg, &manifest)
	}
	file := manifest.File
	if file == "" {
		file = filepath.Join("data", "permanent_memory.txt")
	}

	reg.Register(tools.Spec{
		Name:        "update_memory",
		Description: "Appends important facts about the user to permanent memory. Arguments: info (string).",
		Params: []tools.Param{
			{Name: "info", Type: "string", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			info, _ := args["info"].(string)
			if info == "" {
				return "", fmt.Errorf("missing 'info' argument")
			}

			m.mu.Lock()
			defer m.mu.Unlock()

			if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
				return "", fmt.Errorf("updating memory: %w", err)
			}
			f, err := os.OpenFile(file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				return "", fmt.Errorf("updating memory: %w", err)
			}
			defer f.Close()

			if _, err := f.WriteString("\n" + info); err != nil {
				return "", fmt.Errorf("updating memory: %w", err)
			}
			return fmt.Sprintf("Memory updated: %s", info), nil
		},
	})

	reg.Register(tools.Spec{
		Name:        "read_memory",
		Description: "Reads the permanent memory to retrieve stored facts about the user.",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			m.mu.Lock()
			defer m.mu.Unlock()

			content, err := os.ReadFile(file)
			if err != nil {
				if os.IsNotExist(err) {
					return "Memory is empty.", nil
				}
				return "", fmt.Errorf("reading memory: %w", err)
			}
			if len(content) == 0 {
				return "Memory is empty.", nil
			}
			return string(content), nil
		},
	})

	return nil
}
