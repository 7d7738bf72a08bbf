//go:build windows

package transports

import (
    "meshnode/pkg/transport"
    "meshnode/pkg/transport/winpipe"
)

func newWinPipeTransport() (transport.Transport, error) { return winpipe.New(), nil }

