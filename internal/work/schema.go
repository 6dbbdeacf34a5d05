package work

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Schema wraps a compiled JSON Schema document used to strict-validate
// a raw Work payload before struct-level rules run. Grounded on the
// teacher's contract validator's compiler/AddResource/Compile/Validate
// sequence, here applied to the Work payload itself rather than a
// step's output artifact.
type Schema struct {
	compiled *jsonschema.Schema
}

// NewSchema compiles schemaDoc (already unmarshaled from JSON) into a
// reusable Schema.
func NewSchema(schemaDoc interface{}) (*Schema, error) {
	compiler := jsonschema.NewCompiler()
	const resourceURL = "work-schema.json"
	if err := compiler.AddResource(resourceURL, schemaDoc); err != nil {
		return nil, fmt.Errorf("work: add schema resource: %w", err)
	}
	compiled, err := compiler.Compile(resourceURL)
	if err != nil {
		return nil, fmt.Errorf("work: compile schema: %w", err)
	}
	return &Schema{compiled: compiled}, nil
}

// Validate checks raw (a JSON-encoded Work) against the compiled
// schema.
func (s *Schema) Validate(raw json.RawMessage) error {
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("work: payload is not valid JSON: %w", err)
	}
	if err := s.compiled.Validate(doc); err != nil {
		return fmt.Errorf("work: schema validation failed: %w", err)
	}
	return nil
}
