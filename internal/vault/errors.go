package vault

import "errors"

// ErrNotFound indicates no credential row matched the owner-scoped lookup.
var ErrNotFound = errors.New("vault: provider not found")

// ValidationError indicates a missing or malformed caller input.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// ConflictError indicates the user already has a credential for the provider.
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string { return e.Msg }

// UpstreamError indicates a failed exchange with an external token endpoint.
type UpstreamError struct {
	Msg string
}

func (e *UpstreamError) Error() string { return e.Msg }
