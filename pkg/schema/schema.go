package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// Info describes a generated schema.
type Info struct {
	ID          string
	Title       string
	Description string
}

// Generate produces a JSON Schema Draft 2020-12 document for v.
// Objects accept additional properties so documents may carry their own keys.
func Generate(v any, info Info) ([]byte, error) {
	r := new(jsonschema.Reflector)
	r.AllowAdditionalProperties = true
	r.DoNotReference = false

	s := r.Reflect(v)
	s.ID = jsonschema.ID(info.ID)
	s.Title = info.Title
	s.Description = info.Description

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return data, nil
}

// Validate checks doc against a JSON Schema document.
// doc must be JSON-compatible (maps, slices, strings, numbers, booleans).
func Validate(schemaJSON []byte, doc any) error {
	var schemaDoc any
	if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
		return fmt.Errorf("unmarshal schema: %w", err)
	}

	c := sjsonschema.NewCompiler()
	if err := c.AddResource("schema.json", schemaDoc); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	sch, err := c.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	normalized, err := normalize(doc)
	if err != nil {
		return &AggregateError{Errors: []error{&ValidationError{Phase: "semantic", Message: err.Error()}}}
	}

	if err := sch.Validate(normalized); err != nil {
		ve, ok := err.(*sjsonschema.ValidationError)
		if !ok {
			return &AggregateError{Errors: []error{&ValidationError{Phase: "semantic", Message: err.Error()}}}
		}
		var errs []error
		for _, cause := range flatten(ve) {
			errs = append(errs, &ValidationError{
				Phase:   "semantic",
				Path:    strings.Join(cause.InstanceLocation, "/"),
				Message: fmt.Sprintf("%v", cause.ErrorKind),
			})
		}
		return &AggregateError{Errors: errs}
	}
	return nil
}

// normalize round-trips doc through JSON so numbers and maps have the shapes the validator expects.
func normalize(doc any) (any, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("document is not JSON-compatible: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// flatten recursively collects all leaf validation errors.
func flatten(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flatten(cause)...)
	}
	return flat
}
