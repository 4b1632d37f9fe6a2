// Package schema implements the Spec record consumed by tool argument
// validation, structured-output parsing, and model declarations. Validation
// is backed by santhosh-tekuri/jsonschema.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Spec is a compiled JSON-Schema document plus the raw schema bytes the LLM
// client needs to advertise to a model (tool declaration, structured output
// declaration).
type Spec struct {
	Name   string
	Raw    json.RawMessage
	schema *jsonschema.Schema
}

// Compile parses and compiles a JSON-Schema document for name.
func Compile(name string, raw json.RawMessage) (*Spec, error) {
	compiler := jsonschema.NewCompiler()
	url := "mem://" + name + ".json"
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("schema %s: add resource: %w", name, err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("schema %s: compile: %w", name, err)
	}
	return &Spec{Name: name, Raw: raw, schema: compiled}, nil
}

// Validate checks data (as decoded JSON, per jsonschema/v5's convention)
// against the compiled schema, returning a descriptive error on mismatch.
func (s *Spec) Validate(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("schema %s: invalid json: %w", s.Name, err)
	}
	if err := s.schema.Validate(v); err != nil {
		return fmt.Errorf("schema %s: %w", s.Name, err)
	}
	return nil
}

// ParseStructured validates data against the schema and, on success,
// returns it unchanged as a json.RawMessage ready to attach to an
// Assistant message's StructuredContent. Used when a provider does not
// support native structured output and the engine must parse JSON out of
// the textual completion.
func ParseStructured(spec *Spec, text []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(text)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("structured output: empty completion text")
	}
	if err := spec.Validate(trimmed); err != nil {
		return nil, err
	}
	return json.RawMessage(trimmed), nil
}
