package ports

import "context"

// Document is a raw agent configuration.
type Document struct {
	Agent  string
	Format string // yaml, json or toml
	Origin string // file path or other description, for error messages
	Data   []byte
}

// ConfigSource reads agent configuration documents.
type ConfigSource interface {
	// Read returns the document of the named agent or domain.ErrAgentNotFound.
	Read(ctx context.Context, agent string) (*Document, error)
	// List returns the names of all known agents.
	List(ctx context.Context) ([]string, error)
}
