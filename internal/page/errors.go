package page

import "fmt"

// ControlNotFoundError reports a page control that is not rendered.
type ControlNotFoundError struct {
	Control  string
	Selector string
}

func (e *ControlNotFoundError) Error() string {
	return fmt.Sprintf("page control not found: %s (%s)", e.Control, e.Selector)
}
