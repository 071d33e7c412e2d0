package regcache

import (
	"fmt"
)

// PatternError reports a regex pattern that failed to compile. Every
// pattern operation returns it as a structured result instead of panicking
// or propagating a bare regexp error.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("regcache: invalid pattern %q: %v", e.Pattern, e.Err)
}

func (e *PatternError) Unwrap() error { return e.Err }

// UnknownNamespaceError reports a cross-namespace inspection call naming a
// subsystem outside the configured list.
type UnknownNamespaceError struct {
	Namespace string
	Available []string
}

func (e *UnknownNamespaceError) Error() string {
	return fmt.Sprintf("regcache: unknown namespace %q (available: %v)", e.Namespace, e.Available)
}
