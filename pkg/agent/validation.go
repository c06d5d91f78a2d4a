package agent

import (
	"encoding/json"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidateFunc validates data against a JSON schema (bytes) and returns error on failure.
type ValidateFunc func(schema []byte, data any) error

// compiled schemas keyed by their source text; tool schemas are static so the
// cache stays small.
var compiled sync.Map

func compile(schema []byte) (*jsonschema.Schema, error) {
	key := string(schema)
	if v, ok := compiled.Load(key); ok {
		return v.(*jsonschema.Schema), nil
	}
	c := jsonschema.NewCompiler()
	// anonymous in-memory schema from parsed JSON
	var doc any
	if err := json.Unmarshal(schema, &doc); err != nil {
		return nil, err
	}
	if err := c.AddResource("mem://schema.json", doc); err != nil {
		return nil, err
	}
	sch, err := c.Compile("mem://schema.json")
	if err != nil {
		return nil, err
	}
	compiled.Store(key, sch)
	return sch, nil
}

// JSONSchemaValidator is a ValidateFunc using jsonschema/v6.
func JSONSchemaValidator(schema []byte, data any) error {
	if len(schema) == 0 {
		return nil
	}
	sch, err := compile(schema)
	if err != nil {
		return err
	}
	// Marshal/unmarshal to generic for validation
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return sch.Validate(v)
}

// CompileJSONSchema compiles the provided JSON schema and returns error only if the schema is invalid.
// It does not validate any instance data.
func CompileJSONSchema(schema []byte) error {
	if len(schema) == 0 {
		return nil
	}
	_, err := compile(schema)
	return err
}
