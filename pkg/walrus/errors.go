package walrus

import "fmt"

// StorageError is a non-success HTTP status from the storage network. The
// upstream response body is carried verbatim; storage-side failures are
// often only diagnosable from that text.
type StorageError struct {
	StatusCode int
	Body       string
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("walrus: storage returned status %d: %s", e.StatusCode, e.Body)
}

// TransportError is a connectivity failure before any storage-side verdict
// was reached. Unlike StorageError it says nothing about the blob itself.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("walrus: %s transport failure: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
