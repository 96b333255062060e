package openai

import (
	"encoding/json"
	"fmt"
	"strings"

	invopop "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// schema pairs the JSON schema of a decision type with its compiled
// validator.
type schema struct {
	raw      json.RawMessage
	compiled *jsonschema.Schema
}

// schemaFor reflects the JSON schema of v and compiles it.
func schemaFor(name string, v interface{}) (*schema, error) {
	r := &invopop.Reflector{DoNotReference: true, AllowAdditionalProperties: true}
	raw, err := json.Marshal(r.Reflect(v))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s schema: %w", name, err)
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s schema: %w", name, err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name+".json", doc); err != nil {
		return nil, fmt.Errorf("failed to add %s schema: %w", name, err)
	}
	compiled, err := c.Compile(name + ".json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s schema: %w", name, err)
	}
	return &schema{raw: raw, compiled: compiled}, nil
}

// validate checks a model reply against the schema.
func (s *schema) validate(reply string) error {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(reply))
	if err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := s.compiled.Validate(doc); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}
