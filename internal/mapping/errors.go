package mapping

import (
	"fmt"
	"strings"
)

// SpecError reports a malformed field declaration. Compile aggregates every
// SpecError it finds with multierr; use multierr.Errors to list them.
type SpecError struct {
	// Path is the dotted object-space path of the offending field.
	Path string

	// Message is a human-readable description.
	Message string
}

func (e *SpecError) Error() string {
	return fmt.Sprintf("mapping %s: %s", e.Path, e.Message)
}

// TransformError wraps a failing transform with the key path it ran on.
type TransformError struct {
	Path []string
	Err  error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform %s: %v", strings.Join(e.Path, "."), e.Err)
}

func (e *TransformError) Unwrap() error {
	return e.Err
}

func joinPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}
