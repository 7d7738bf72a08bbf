// Package transports resolves platform-specific transport factories that
// cannot live in pkg/transport itself because they depend on build-tagged
// implementations (winpipe is windows-only).
package transports

import "meshnode/pkg/transport"

// NewWinPipe constructs the named-pipe transport on windows, or returns an
// error on every other platform.
func NewWinPipe() (transport.Transport, error) { return newWinPipeTransport() }
