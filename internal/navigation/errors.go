package navigation

import (
	"fmt"
	"strings"
)

// Error reports a category that could not be reached or verified.
type Error struct {
	Path    []string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	path := strings.Join(e.Path, "/")
	if e.Cause != nil {
		return fmt.Sprintf("navigation to %q: %s: %v", path, e.Message, e.Cause)
	}
	return fmt.Sprintf("navigation to %q: %s", path, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}
