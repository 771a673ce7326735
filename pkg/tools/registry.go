package tools

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"aura/pkg/llm"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Reserved context keys injected into tool arguments at execution time.
// They never appear in the schemas advertised to the model.
const (
	CtxResponder = "responder"
	CtxChatID    = "chat_id"
	CtxScheduler = "scheduler"
	CtxRegistry  = "registry"
)

var reservedKeys = []string{CtxResponder, CtxChatID, CtxScheduler, CtxRegistry}

// Param describes one declared tool parameter.
type Param struct {
	Name     string
	Type     string // string, integer, number, boolean, array, object
	Required bool
}

// Handler is the executable body of a tool. It receives the decoded call
// arguments, plus injected context values when the tool requires them.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Spec is the complete, explicit definition of one tool.
type Spec struct {
	Name            string
	Description     string
	Params          []Param
	RequiresContext bool
	Handler         Handler
}

// Module is a compile-time capability bundle. Its Register entry point
// contributes tool specs to the registry; cfg carries the optional
// per-module manifest (modules/<name>.json) and may be nil.
type Module interface {
	Name() string
	Register(reg *Registry, cfg jsoniter.RawMessage) error
}

// table is one immutable snapshot of the registered tools.
type table struct {
	specs map[string]Spec
	order []string // registration order, drives Definitions/Descriptions
}

func newTable() *table {
	return &table{specs: make(map[string]Spec)}
}

// Registry holds the live tool table and executes calls against it.
// The table is swapped atomically on reload so concurrent executions
// always see either the old or the new set, never a mix.
type Registry struct {
	cur atomic.Pointer[table]

	reloadMu sync.Mutex // serializes reloads end to end

	mu           sync.Mutex // guards staging, modules and manual registration
	staging      *table     // non-nil while a reload is building
	modules      []Module
	modulesDir   string
	allowedChats []string

	ctxMu  sync.RWMutex
	global map[string]any
}

// NewRegistry creates an empty registry. allowedChats is the optional
// tool authorization allow-list; empty permits everyone.
func NewRegistry(modulesDir string, allowedChats []string) *Registry {
	r := &Registry{
		modulesDir:   modulesDir,
		allowedChats: allowedChats,
		global:       make(map[string]any),
	}
	r.cur.Store(newTable())
	return r
}

// SetGlobalContext merges values into the global tool context.
func (r *Registry) SetGlobalContext(values map[string]any) {
	r.ctxMu.Lock()
	defer r.ctxMu.Unlock()
	for k, v := range values {
		r.global[k] = v
	}
}

// Bind attaches capability modules. Bound modules are re-invoked on
// every Reload to rebuild the tool table.
func (r *Registry) Bind(modules ...Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules = append(r.modules, modules...)
}

// Register adds or overwrites a tool by name. During a reload the spec
// lands in the staging table; otherwise the live table is copied and
// swapped.
func (r *Registry) Register(spec Spec) {
	spec.Params = filterReserved(spec.Params)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.staging != nil {
		r.staging.add(spec)
		return
	}

	old := r.cur.Load()
	next := newTable()
	for _, name := range old.order {
		next.add(old.specs[name])
	}
	next.add(spec)
	r.cur.Store(next)
}

func (t *table) add(spec Spec) {
	if _, exists := t.specs[spec.Name]; !exists {
		t.order = append(t.order, spec.Name)
	}
	t.specs[spec.Name] = spec
}

func filterReserved(params []Param) []Param {
	filtered := params[:0:0]
	for _, p := range params {
		reserved := false
		for _, k := range reservedKeys {
			if p.Name == k {
				reserved = true
				break
			}
		}
		if !reserved {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

// Reload rebuilds the tool table from scratch by re-invoking every bound
// module with its current manifest. Module failures are logged and skip
// only that module. The finished table replaces the live one atomically.
//
// r.mu is never held across module callbacks; modules register back into
// the staging table through Register, which takes the lock per call.
func (r *Registry) Reload() {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	r.mu.Lock()
	r.staging = newTable()
	modules := append([]Module(nil), r.modules...)
	r.mu.Unlock()

	for _, mod := range modules {
		cfg := r.readManifest(mod.Name())

		func() {
			defer func() {
				if rec := recover(); rec != nil {
					slog.Error("Module registration panicked", "module", mod.Name(), "panic", rec)
				}
			}()
			if err := mod.Register(r, cfg); err != nil {
				slog.Error("Failed to load module", "module", mod.Name(), "error", err)
				return
			}
			slog.Info("Loaded module", "module", mod.Name())
		}()
	}

	r.mu.Lock()
	next := r.staging
	r.staging = nil
	r.mu.Unlock()

	r.cur.Store(next)
	slog.Info("Tool registry reloaded", "tools", len(next.specs))
}

// readManifest loads modules/<name>.json if present.
func (r *Registry) readManifest(name string) jsoniter.RawMessage {
	if r.modulesDir == "" {
		return nil
	}
	data, err := os.ReadFile(filepath.Join(r.modulesDir, name+".json"))
	if err != nil {
		return nil
	}
	return jsoniter.RawMessage(data)
}

// Has reports whether a tool is currently registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.cur.Load().specs[name]
	return ok
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	return len(r.cur.Load().specs)
}

// Definitions returns the provider-facing tool definitions in
// registration order.
func (r *Registry) Definitions() []llm.Tool {
	t := r.cur.Load()
	defs := make([]llm.Tool, 0, len(t.order))
	for _, name := range t.order {
		spec := t.specs[name]
		params := make([]llm.Param, 0, len(spec.Params))
		for _, p := range spec.Params {
			typ := p.Type
			switch typ {
			case "string", "integer", "number", "boolean", "array", "object":
			default:
				typ = "string"
			}
			params = append(params, llm.Param{Name: p.Name, Type: typ, Required: p.Required})
		}
		defs = append(defs, llm.Tool{
			Name:        spec.Name,
			Description: spec.Description,
			Params:      params,
		})
	}
	return defs
}

// Descriptions returns a human-readable tool list for prompt injection,
// one "- name(p1, p2): description" line per tool.
func (r *Registry) Descriptions() string {
	t := r.cur.Load()
	var sb strings.Builder
	for i, name := range t.order {
		spec := t.specs[name]
		names := make([]string, 0, len(spec.Params))
		for _, p := range spec.Params {
			names = append(names, p.Name)
		}
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "- %s(%s): %s", spec.Name, strings.Join(names, ", "), spec.Description)
	}
	return sb.String()
}

// Execute runs a tool and always returns an observation string.
// Failures of every kind (unknown tool, authorization, handler error,
// handler panic) become error text rather than Go errors, so the agent
// loop can fold them back into the conversation.
func (r *Registry) Execute(ctx context.Context, name string, invocation map[string]any, args map[string]any) string {
	spec, ok := r.cur.Load().specs[name]
	if !ok {
		return fmt.Sprintf("Error: Tool '%s' not found.", name)
	}

	if chatID, ok := invocation[CtxChatID]; ok && len(r.allowedChats) > 0 {
		id := fmt.Sprintf("%v", chatID)
		allowed := false
		for _, a := range r.allowedChats {
			if a == id {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Sprintf("Error: User %s is not authorized to use tools.", id)
		}
	}

	if args == nil {
		args = make(map[string]any)
	}

	if spec.RequiresContext {
		r.ctxMu.RLock()
		merged := make(map[string]any, len(r.global)+len(invocation))
		for k, v := range r.global {
			merged[k] = v
		}
		r.ctxMu.RUnlock()
		for k, v := range invocation {
			merged[k] = v
		}
		for k, v := range merged {
			if _, exists := args[k]; !exists {
				args[k] = v
			}
		}
	}

	result, err := runSafely(ctx, spec, args)
	if err != nil {
		return fmt.Sprintf("Error executing tool '%s': %v", name, err)
	}
	return result
}

func runSafely(ctx context.Context, spec Spec, args map[string]any) (result string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return spec.Handler(ctx, args)
}
