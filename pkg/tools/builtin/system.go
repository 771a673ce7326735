package builtin

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"aura/pkg/tools"

	jsoniter "github.com/json-iterator/go"
)

// SystemModule gives the model shell and filesystem access on the host.
// Disabled by default unless a manifest exists with "enabled": true.
type SystemModule struct{}

func (m *SystemModule) Name() string { return "system" }

func (m *SystemModule) Register(reg *tools.Registry, cfg jsoniter.RawMessage) error {
	var manifest struct {
		Enabled        bool `json:"enabled"`
		TimeoutSeconds int  `json:"timeout_seconds"`
	}
	if cfg != nil {
		json.Unmarshal(cfg, &manifest)
	}
	if !manifest.Enabled {
		return nil
	}

	cmdTimeout := 30 * time.Second
	if manifest.TimeoutSeconds > 0 {
		cmdTimeout = time.Duration(manifest.TimeoutSeconds) * time.Second
	}

	reg.Register(tools.Spec{
		Name:        "execute_command",
		Description: "Executes a shell command. Arguments: command (string).",
		Params: []tools.Param{
			{Name: "command", Type: "string", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			command, _ := args["command"].(string)
			if command == "" {
				return "", fmt.Errorf("missing 'command' argument")
			}

			cmdCtx, cancel := context.WithTimeout(ctx, cmdTimeout)
			defer cancel()

			cmd := exec.CommandContext(cmdCtx, "sh", "-c", command)
			var stdout, stderr strings.Builder
			cmd.Stdout = &stdout
			cmd.Stderr = &stderr

			err := cmd.Run()
			if cmdCtx.Err() == context.DeadlineExceeded {
				return "", fmt.Errorf("command timed out")
			}

			output := stdout.String()
			if stderr.Len() > 0 {
				output += "\nSTDERR:\n" + stderr.String()
			}
			if err != nil && output == "" {
				return "", fmt.Errorf("running command: %w", err)
			}
			return strings.TrimSpace(output), nil
		},
	})

	reg.Register(tools.Spec{
		Name:        "read_file",
		Description: "Reads content of a file. Arguments: filepath (string).",
		Params: []tools.Param{
			{Name: "filepath", Type: "string", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			path, _ := args["filepath"].(string)
			content, err := os.ReadFile(path)
			if err != nil {
				return "", fmt.Errorf("reading file: %w", err)
			}
			return string(content), nil
		},
	})

	reg.Register(tools.Spec{
		Name:        "write_file",
		Description: "Writes content to a file. Arguments: filepath (string), content (string).",
		Params: []tools.Param{
			{Name: "filepath", Type: "string", Required: true},
			{Name: "content", Type: "string", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			path, _ := args["filepath"].(string)
			content, _ := args["content"].(string)
			if path == "" {
				return "", fmt.Errorf("missing 'filepath' argument")
			}
			if dir := filepath.Dir(path); dir != "." {
				if err := os.MkdirAll(dir, 0755); err != nil {
					return "", fmt.Errorf("writing file: %w", err)
				}
			}
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				return "", fmt.Errorf("writing file: %w", err)
			}
			return "File written successfully.", nil
		},
	})

	reg.Register(tools.Spec{
		Name:        "list_files",
		Description: "Lists files in a directory. Arguments: directory (string, optional).",
		Params: []tools.Param{
			{Name: "directory", Type: "string", Required: false},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			dir, _ := args["directory"].(string)
			if dir == "" {
				dir = "."
			}
			entries, err := os.ReadDir(dir)
			if err != nil {
				return "", fmt.Errorf("listing files: %w", err)
			}
			names := make([]string, 0, len(entries))
			for _, e := range entries {
				name := e.Name()
				if e.IsDir() {
					name += "/"
				}
				names = append(names, name)
			}
			return strings.Join(names, "\n"), nil
		},
	})

	return nil
}
