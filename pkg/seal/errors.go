package seal

import "fmt"

// ErrAccessDenied means the key servers or the on-chain policy rejected the
// proof for the identifier candidate, or the released key failed to open
// the ciphertext (a wrong identifier guess is indistinguishable from a
// rejection at this layer). Recoverable by trying another candidate.
var ErrAccessDenied = errorString("seal: access denied")

// ErrSessionUnauthorized means the session key was unsigned or expired.
// No key fetch is attempted in that case.
var ErrSessionUnauthorized = errorString("seal: session key is not authorized")

type errorString string

func (e errorString) Error() string { return string(e) }

// FormatError means the ciphertext envelope could not be parsed. For retry
// purposes it ranks with ErrAccessDenied, but it is logged distinctly.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return "seal: malformed ciphertext: " + e.Reason
}

// NetworkError is a transport failure reaching the key-server network. It
// says nothing about the identifier candidate, so callers must not burn
// further candidates on it.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("seal: key server network failure: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }
