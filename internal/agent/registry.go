package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// MaxToolParamsSize bounds tool parameter JSON to prevent resource exhaustion.
const MaxToolParamsSize = 1 << 20

// maxRecordLen bounds the summary stored in the session history per tool call.
const maxRecordLen = 200

type registeredTool struct {
	tool   Tool
	schema *jsonschema.Schema
}

// ToolRegistry manages available tools with thread-safe registration and
// lookup. Parameters are validated against the tool's JSON Schema before
// execution; validation failures come back as error results rather than
// aborting the turn.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]registeredTool
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]registeredTool)}
}

// Register adds a tool, compiling its parameter schema. A tool with the same
// name is replaced.
func (r *ToolRegistry) Register(tool Tool) error {
	name := tool.Name()
	compiler := jsonschema.NewCompiler()
	url := name + ".schema.json"
	if err := compiler.AddResource(url, strings.NewReader(string(tool.Schema()))); err != nil {
		return fmt.Errorf("tool %s: add schema: %w", name, err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return fmt.Errorf("tool %s: compile schema: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = registeredTool{tool: tool, schema: schema}
	return nil
}

// MustRegister registers a tool and panics on a bad schema. Schemas are
// static so a failure is a programming error caught at startup.
func (r *ToolRegistry) MustRegister(tool Tool) {
	if err := r.Register(tool); err != nil {
		panic(err)
	}
}

// Filtered returns a registry view limited to the named tools, sharing the
// already-compiled schemas. Names without a registered tool are skipped.
func (r *ToolRegistry) Filtered(names []string) *ToolRegistry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := NewToolRegistry()
	for _, name := range names {
		if rt, ok := r.tools[name]; ok {
			out.tools[name] = rt
		}
	}
	return out
}

// Get returns a tool by name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.tools[name]
	return rt.tool, ok
}

// Specs returns the tool descriptions for the provider request, sorted by
// name so prompts are stable across turns.
func (r *ToolRegistry) Specs() []ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]ToolSpec, 0, len(r.tools))
	for _, rt := range r.tools {
		specs = append(specs, ToolSpec{
			Name:        rt.tool.Name(),
			Description: rt.tool.Description(),
			Schema:      rt.tool.Schema(),
		})
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Execute validates the parameters and runs the named tool. Unknown tools,
// oversized or invalid parameters come back as error results.
func (r *ToolRegistry) Execute(ctx context.Context, name string, params json.RawMessage) (*ToolResult, error) {
	if len(params) > MaxToolParamsSize {
		return &ToolResult{
			Content: fmt.Sprintf("tool parameters exceed maximum size of %d bytes", MaxToolParamsSize),
			IsError: true,
			ErrKind: "invalid_params",
		}, nil
	}

	r.mu.RLock()
	rt, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return &ToolResult{
			Content: "tool not found: " + name,
			IsError: true,
			ErrKind: "unknown_tool",
		}, nil
	}

	if len(params) == 0 {
		params = json.RawMessage("{}")
	}
	var decoded any
	if err := json.Unmarshal(params, &decoded); err != nil {
		return &ToolResult{
			Content: "invalid parameters: " + err.Error(),
			IsError: true,
			ErrKind: "invalid_params",
		}, nil
	}
	if err := rt.schema.Validate(decoded); err != nil {
		return &ToolResult{
			Content: "invalid parameters: " + err.Error(),
			IsError: true,
			ErrKind: "invalid_params",
		}, nil
	}

	return rt.tool.Execute(ctx, params)
}

// FormatRecord renders the compact per-call summary appended to the session
// history. These records are preserved through history eviction.
func FormatRecord(name string, result *ToolResult) string {
	status := "ok"
	if result.IsError {
		kind := result.ErrKind
		if kind == "" {
			kind = "error"
		}
		status = "err:" + kind
	}
	summary := strings.Join(strings.Fields(result.Content), " ")
	if len(summary) > maxRecordLen {
		summary = summary[:maxRecordLen] + "..."
	}
	if summary == "" {
		return fmt.Sprintf("tool=%s status=%s", name, status)
	}
	return fmt.Sprintf("tool=%s status=%s %s", name, status, summary)
}
