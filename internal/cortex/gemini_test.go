package cortex

import (
	"testing"

	"google.golang.org/genai"

	"alex/internal/tools"
)

func TestSchemaFor(t *testing.T) {
	s := tools.Schema{
		Required: []string{"symbol", "quantity"},
		Properties: map[string]tools.Property{
			"symbol":   {Type: "string", Description: "Ticker symbol"},
			"quantity": {Type: "integer", Description: "Number of shares"},
			"action":   {Type: "string", Enum: []any{"buy", "sell"}},
			"files":    {Type: "array", Items: &tools.PropertyItems{Type: "string"}},
			"dry_run":  {Type: "boolean"},
		},
	}

	got := schemaFor(s)

	if got.Type != genai.TypeObject {
		t.Errorf("root type = %v, want object", got.Type)
	}
	if len(got.Required) != 2 {
		t.Errorf("required = %v", got.Required)
	}
	if got.Properties["symbol"].Type != genai.TypeString {
		t.Errorf("symbol type = %v", got.Properties["symbol"].Type)
	}
	if got.Properties["quantity"].Type != genai.TypeInteger {
		t.Errorf("quantity type = %v", got.Properties["quantity"].Type)
	}
	if got.Properties["files"].Items == nil || got.Properties["files"].Items.Type != genai.TypeString {
		t.Errorf("files items = %v", got.Properties["files"].Items)
	}
	if len(got.Properties["action"].Enum) != 2 {
		t.Errorf("action enum = %v", got.Properties["action"].Enum)
	}
	if got.Properties["dry_run"].Type != genai.TypeBoolean {
		t.Errorf("dry_run type = %v", got.Properties["dry_run"].Type)
	}
}

func TestGenaiTypeFallback(t *testing.T) {
	if genaiType("unknown") != genai.TypeString {
		t.Error("unknown type should map to string")
	}
}

func TestGenConfig(t *testing.T) {
	cfg := genConfig("be brief", GenOptions{Temperature: 0.7, TopP: 0.95, TopK: 40, MaxOutputTokens: 8192})

	if cfg.SystemInstruction == nil {
		t.Fatal("system instruction missing")
	}
	if cfg.Temperature == nil || *cfg.Temperature != 0.7 {
		t.Errorf("temperature = %v", cfg.Temperature)
	}
	if cfg.MaxOutputTokens != 8192 {
		t.Errorf("max tokens = %d", cfg.MaxOutputTokens)
	}

	empty := genConfig("", GenOptions{})
	if empty.SystemInstruction != nil || empty.Temperature != nil {
		t.Error("zero options should leave provider defaults")
	}
}
