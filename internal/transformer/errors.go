package transformer

import "fmt"

// EmptyResultError reports a payload whose "results" list is absent or empty.
type EmptyResultError struct{}

func (*EmptyResultError) Error() string { return "user payload has no results" }

// MissingFieldError reports a nested key that is absent from the first result.
type MissingFieldError struct {
	// Path is the dotted key path, e.g. "login.password".
	Path string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("user payload: missing field %q", e.Path)
}
