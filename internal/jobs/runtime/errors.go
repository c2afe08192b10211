package runtime

import (
	"errors"
	"fmt"
)

// ErrMalformedInput marks a task whose arguments can never succeed. The
// worker drops it without retrying, whatever the policy says.
var ErrMalformedInput = errors.New("malformed task input")

func Malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedInput, fmt.Sprintf(format, args...))
}
