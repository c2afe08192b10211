package behavior

import "fmt"

// ValidationError reports the first field of an event that broke its contract.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid behavior event: " + e.Reason
	}
	return fmt.Sprintf("invalid behavior event: %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
