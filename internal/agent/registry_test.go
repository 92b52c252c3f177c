package agent

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

type echoTool struct {
	name   string
	schema string
	result *ToolResult
}

func (e *echoTool) Name() string        { return e.name }
func (e *echoTool) Description() string { return "echoes input" }
func (e *echoTool) Schema() json.RawMessage {
	if e.schema != "" {
		return json.RawMessage(e.schema)
	}
	return json.RawMessage(`{
		"type": "object",
		"properties": {"value": {"type": "string"}},
		"required": ["value"],
		"additionalProperties": false
	}`)
}
func (e *echoTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	if e.result != nil {
		return e.result, nil
	}
	return &ToolResult{Content: "echo: " + string(params)}, nil
}

func TestRegistryValidatesParams(t *testing.T) {
	r := NewToolRegistry()
	r.MustRegister(&echoTool{name: "echo"})

	res, err := r.Execute(context.Background(), "echo", json.RawMessage(`{"value": "hi"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("valid params rejected: %s", res.Content)
	}

	res, err = r.Execute(context.Background(), "echo", json.RawMessage(`{"value": 42}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.IsError || res.ErrKind != "invalid_params" {
		t.Fatalf("wrong-typed params must fail validation, got %+v", res)
	}

	res, _ = r.Execute(context.Background(), "echo", json.RawMessage(`{"value": "hi", "extra": true}`))
	if !res.IsError {
		t.Fatal("unknown properties must fail validation")
	}
}

func TestRegistryUnknownTool(t *testing.T) {
	r := NewToolRegistry()
	res, err := r.Execute(context.Background(), "missing", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.IsError || res.ErrKind != "unknown_tool" {
		t.Fatalf("unknown tool must return an error result, got %+v", res)
	}
}

func TestRegistryRejectsBadSchema(t *testing.T) {
	r := NewToolRegistry()
	err := r.Register(&echoTool{name: "broken", schema: `{"type": 42}`})
	if err == nil {
		t.Fatal("Register() must reject an invalid schema")
	}
}

func TestRegistrySpecsSorted(t *testing.T) {
	r := NewToolRegistry()
	r.MustRegister(&echoTool{name: "zeta"})
	r.MustRegister(&echoTool{name: "alpha"})
	r.MustRegister(&echoTool{name: "mid"})

	specs := r.Specs()
	if len(specs) != 3 {
		t.Fatalf("len(Specs()) = %d, want 3", len(specs))
	}
	for i := 1; i < len(specs); i++ {
		if specs[i-1].Name > specs[i].Name {
			t.Fatalf("specs out of order: %s > %s", specs[i-1].Name, specs[i].Name)
		}
	}
}

func TestFormatRecord(t *testing.T) {
	got := FormatRecord("child_dob_validation", &ToolResult{Content: `{"valid": true, "age_group": "U9"}`})
	if !strings.HasPrefix(got, "tool=child_dob_validation status=ok ") {
		t.Fatalf("FormatRecord() = %q", got)
	}

	got = FormatRecord("address_lookup", &ToolResult{Content: "postcode not found", IsError: true, ErrKind: "not_found"})
	if !strings.HasPrefix(got, "tool=address_lookup status=err:not_found ") {
		t.Fatalf("FormatRecord() = %q", got)
	}

	long := strings.Repeat("x", 500)
	got = FormatRecord("echo", &ToolResult{Content: long})
	if len(got) > len("tool=echo status=ok ")+maxRecordLen+3 {
		t.Fatalf("record not truncated: %d chars", len(got))
	}

	got = FormatRecord("noop", &ToolResult{Content: "  "})
	if got != "tool=noop status=ok" {
		t.Fatalf("FormatRecord() = %q", got)
	}
}
