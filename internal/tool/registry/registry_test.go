package registry

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/schema"

	"triage-platform/internal/tool"
)

type fakeTool struct {
	name string
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Description() string { return "fake tool " + f.name }
func (f *fakeTool) Schema() tool.Schema {
	return tool.Schema{
		Type: "object",
		Properties: map[string]tool.SchemaProperty{
			"service_name": {Type: "string", Description: "服务名"},
			"num_results":  {Type: "integer", Description: "返回条数"},
		},
		Required: []string{"service_name"},
	}
}
func (f *fakeTool) Execute(ctx context.Context, input map[string]any) (tool.ToolResult, error) {
	return tool.ToolResult{Content: "ok"}, nil
}

func TestRegisterAndGet(t *testing.T) {
	reg := New()
	reg.Register(&fakeTool{name: "b"})
	reg.Register(&fakeTool{name: "a"})

	if _, ok := reg.Get("a"); !ok {
		t.Fatal("tool a not found")
	}
	if _, ok := reg.Get("missing"); ok {
		t.Fatal("unexpected tool")
	}

	list := reg.List()
	if len(list) != 2 || list[0].Name() != "a" || list[1].Name() != "b" {
		t.Errorf("List not sorted: %v", list)
	}
}

func TestToolInfos(t *testing.T) {
	reg := New()
	reg.Register(&fakeTool{name: "search_logs"})

	infos := reg.ToolInfos()
	if len(infos) != 1 {
		t.Fatalf("expected 1 info, got %d", len(infos))
	}
	info := infos[0]
	if info.Name != "search_logs" {
		t.Errorf("name = %q", info.Name)
	}
	params, err := info.ParamsOneOf.ToJSONSchema()
	if err != nil {
		t.Fatalf("ToJSONSchema: %v", err)
	}
	if params == nil {
		t.Fatal("nil params schema")
	}
}

func TestToDataType(t *testing.T) {
	cases := map[string]schema.DataType{
		"string":  schema.String,
		"integer": schema.Integer,
		"number":  schema.Number,
		"boolean": schema.Boolean,
		"object":  schema.Object,
		"array":   schema.Array,
		"":        schema.String,
	}
	for in, want := range cases {
		if got := toDataType(in); got != want {
			t.Errorf("toDataType(%q) = %v, want %v", in, got, want)
		}
	}
}
