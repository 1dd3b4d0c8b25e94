package streaming

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// Tool declares one backend-callable tool for a request. The parameter
// schema is generated from a Go struct so call sites keep a typed
// definition while the wire carries plain JSON schema.
type Tool struct {
	Name        string
	Description string

	parameters *jsonschema.Schema
}

// NewTool builds a tool declaration whose parameters are described by the
// fields of T. Field tags (`json`, `jsonschema`) shape the schema the same
// way they would shape the payload.
func NewTool[T any](name, description string) Tool {
	reflector := jsonschema.Reflector{DoNotReference: true}
	var parameters T

	return Tool{
		Name:        name,
		Description: description,
		parameters:  reflector.Reflect(parameters),
	}
}

func (t Tool) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name        string             `json:"name"`
		Description string             `json:"description,omitempty"`
		Parameters  *jsonschema.Schema `json:"parameters,omitempty"`
	}{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  t.parameters,
	})
}
