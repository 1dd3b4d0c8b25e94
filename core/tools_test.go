package streaming

import (
	"encoding/json"
	"testing"
)

func TestToolMarshalsGeneratedSchema(t *testing.T) {
	type weatherParams struct {
		City string `json:"city" jsonschema:"description=City to look up"`
		Days int    `json:"days,omitempty"`
	}

	tool := NewTool[weatherParams]("weather", "Look up the weather")

	raw, err := json.Marshal(tool)
	if err != nil {
		t.Fatalf("unexpected marshal error: %v", err)
	}

	var parsed struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Parameters  struct {
			Type       string                     `json:"type"`
			Properties map[string]json.RawMessage `json:"properties"`
		} `json:"parameters"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		t.Fatalf("unexpected unmarshal error: %v", err)
	}

	if parsed.Name != "weather" || parsed.Description != "Look up the weather" {
		t.Fatalf("unexpected tool identity %q / %q", parsed.Name, parsed.Description)
	}
	if parsed.Parameters.Type != "object" {
		t.Fatalf("expected an object schema, got %q", parsed.Parameters.Type)
	}
	if _, ok := parsed.Parameters.Properties["city"]; !ok {
		t.Fatalf("expected city property in schema, got %v", parsed.Parameters.Properties)
	}
}
