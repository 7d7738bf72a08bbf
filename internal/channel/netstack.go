package channel

import (
    "fmt"
    "strings"

    "meshnode/pkg/transport"
    "meshnode/pkg/transport/mem"
    "meshnode/pkg/transport/quic"
    "meshnode/pkg/transport/tcp"
    "meshnode/pkg/transport/udp"
    "meshnode/pkg/transports"
)

// ErrUnknownKind is returned by NewByKind for an unrecognized transport kind string.
type ErrUnknownKind struct{ Kind string }

func (e *ErrUnknownKind) Error() string { return fmt.Sprintf("channel: unknown transport kind %q", e.Kind) }

// NewByKind constructs a transport.Transport from a configuration string
// ("tcp", "udp", "quic", "mem", "winpipe"). winpipe is only available on
// the windows build; on other platforms the stub factory in
// pkg/transports returns an unsupported-platform error.
func NewByKind(kind string) (transport.Transport, error) {
    switch strings.ToLower(strings.TrimSpace(kind)) {
    case "tcp":
        return tcp.New(), nil
    case "udp":
        return udp.New(), nil
    case "quic":
        return quic.New(), nil
    case "mem":
        return mem.New(), nil
    case "winpipe":
        return transports.NewWinPipe()
    default:
        return nil, &ErrUnknownKind{Kind: kind}
    }
}
