package fieldvoice

import "fmt"

// ValidationError indicates a missing or malformed required field in a
// request. Adapters map it to a 400 response.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s is required", e.Field)
}

func missingField(field string) *ValidationError {
	return &ValidationError{Field: field}
}
