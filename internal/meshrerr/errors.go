// Package meshrerr defines the closed error taxonomy returned by the
// protocol plane. Callers should use errors.Is/errors.As against these
// sentinels and types rather than matching error strings.
package meshrerr

import (
    "errors"
    "fmt"

    "meshnode/pkg/wire"
)

// Sentinel errors forming the closed taxonomy.
var (
    ErrSendFailed           = errors.New("meshnode: send failed")
    ErrEndpointNotContactable = errors.New("meshnode: endpoint not contactable")
    ErrTimeout              = errors.New("meshnode: timed out waiting for response")
    ErrCancelled            = errors.New("meshnode: operation cancelled")
    ErrVersionMismatch      = errors.New("meshnode: no compatible protocol version")
    ErrDuplicateRegistration = errors.New("meshnode: endpoint already registered")
    ErrMaxRestarts          = errors.New("meshnode: exceeded maximum channel restarts")
)

// EndpointError wraps a sentinel with the endpoint it concerns, so callers
// can errors.As into it for the offending id while still errors.Is-matching
// the sentinel via Unwrap.
type EndpointError struct {
    Endpoint wire.EndpointId
    Err      error
}

func (e *EndpointError) Error() string {
    return fmt.Sprintf("meshnode: endpoint %s: %v", e.Endpoint, e.Err)
}

func (e *EndpointError) Unwrap() error { return e.Err }

// ForEndpoint wraps err with the endpoint it concerns.
func ForEndpoint(id wire.EndpointId, err error) error {
    return &EndpointError{Endpoint: id, Err: err}
}
