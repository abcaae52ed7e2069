package config

import (
	"sync"

	"github.com/aretw0/stagecraft/pkg/schema"
)

var (
	schemaOnce sync.Once
	schemaData []byte
	schemaErr  error
)

// JSONSchema returns the JSON Schema of agent configuration documents.
func JSONSchema() ([]byte, error) {
	schemaOnce.Do(func() {
		schemaData, schemaErr = schema.Generate(&Agent{}, schema.Info{
			ID:          "https://github.com/aretw0/stagecraft/schemas/agent-v1.json",
			Title:       "stagecraft agent",
			Description: "Schema for stagecraft agent configuration documents",
		})
	})
	return schemaData, schemaErr
}
