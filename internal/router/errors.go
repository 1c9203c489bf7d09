package router

import "fmt"

// RegistrationError is returned by Register for mistakes made at startup
// (malformed pattern, duplicate route). These
// are distinct from the apperrors.Kind taxonomy, which covers request-time
// failures converted into HTTP responses — registration happens once,
// before the router ever serves a request, and its errors are meant to be
// fatal to program startup, not converted to a response.
type RegistrationError struct {
	Reason string
}

func (e *RegistrationError) Error() string { return e.Reason }

func newInvalidPattern(pattern, reason string) *RegistrationError {
	return &RegistrationError{Reason: fmt.Sprintf("invalid pattern %q: %s", pattern, reason)}
}

func newRouteConflict(method, pattern string) *RegistrationError {
	return &RegistrationError{Reason: fmt.Sprintf("route already registered: %s %s", method, pattern)}
}
