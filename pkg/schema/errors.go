package schema

import "fmt"

// ValidationError represents a single validation failure.
type ValidationError struct {
	Phase   string // structural, semantic or domain
	Path    string // location inside the document, e.g. "stages/login/iteration"
	Message string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("[%s] %s", e.Phase, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message)
}

// AggregateError represents multiple validation failures.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:\n", len(e.Errors))
	for i, err := range e.Errors {
		msg += fmt.Sprintf("  %d. %s\n", i+1, err.Error())
	}
	return msg
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// ValidationErrors returns all validation errors if err is an AggregateError.
// Otherwise returns nil.
func ValidationErrors(err error) []error {
	if aggr, ok := err.(*AggregateError); ok {
		return aggr.Errors
	}
	return nil
}

// Join returns nil for no errors and an AggregateError otherwise.
func Join(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return &AggregateError{Errors: errs}
}
