package wire

// ProtocolDescription is the static capability advertisement for one
// protocol implementation: the wire versions it speaks and the data
// subjects it can serve on request.
type ProtocolDescription struct {
    Versions []ProtocolVersion `cbor:"versions" json:"versions"`
    Subjects []string          `cbor:"subjects" json:"subjects"`
}

// Intersects reports the versions and subjects this description shares
// with other. A handshake only converges to Approved when both are
// non-empty.
func (d ProtocolDescription) Intersects(other ProtocolDescription) (versions []ProtocolVersion, subjects []string) {
    vset := make(map[ProtocolVersion]bool, len(other.Versions))
    for _, v := range other.Versions {
        vset[v] = true
    }
    for _, v := range d.Versions {
        if vset[v] {
            versions = append(versions, v)
        }
    }
    sset := make(map[string]bool, len(other.Subjects))
    for _, s := range other.Subjects {
        sset[s] = true
    }
    for _, s := range d.Subjects {
        if sset[s] {
            subjects = append(subjects, s)
        }
    }
    return
}

// DiscoveryInformation tells a peer how to reach this endpoint directly,
// independent of the session the handshake arrived on (useful for
// transports where the accepting side needs a return address).
type DiscoveryInformation struct {
    ListenAddresses []string `cbor:"listen_addresses" json:"listen_addresses"`
    TransportKinds  []string `cbor:"transport_kinds" json:"transport_kinds"`
}

// ProtocolInformation is the negotiable half of a handshake: what protocol
// versions and subjects this side supports.
type ProtocolInformation struct {
    Description ProtocolDescription `cbor:"description" json:"description"`
}

// EndpointInformation is the full self-description an endpoint presents
// when initiating or accepting a connection.
type EndpointInformation struct {
    ID        EndpointId            `cbor:"id" json:"id"`
    Protocol  ProtocolInformation   `cbor:"protocol" json:"protocol"`
    Discovery DiscoveryInformation  `cbor:"discovery" json:"discovery"`
}

// EndpointConnectFrame opens a handshake, presenting the sender's
// self-description to the remote endpoint.
type EndpointConnectFrame struct {
    FrameHeader
    Info EndpointInformation `cbor:"info" json:"info"`
}

// EndpointConnectResponseFrame answers an EndpointConnectFrame (or a
// concurrent EndpointConnectFrame the two sides exchanged simultaneously),
// converging the handshake to Approved or Rejected.
type EndpointConnectResponseFrame struct {
    FrameHeader
    Accepted bool                `cbor:"accepted" json:"accepted"`
    Info     EndpointInformation `cbor:"info" json:"info"`
    Reason   string              `cbor:"reason,omitempty" json:"reason,omitempty"`
}

// EndpointDisconnectFrame announces a graceful endpoint departure.
type EndpointDisconnectFrame struct {
    FrameHeader
    Reason string `cbor:"reason,omitempty" json:"reason,omitempty"`
}

// ConnectionVerificationFrame is a liveness probe sent by the Connection
// Monitor.
type ConnectionVerificationFrame struct {
    FrameHeader
    Nonce uint64 `cbor:"nonce" json:"nonce"`
}

// ConnectionVerificationResponseFrame answers a liveness probe, echoing
// its nonce.
type ConnectionVerificationResponseFrame struct {
    FrameHeader
    Nonce uint64 `cbor:"nonce" json:"nonce"`
}

// DataDownloadRequestFrame asks a peer to open a bulk data stream for the
// named subject.
type DataDownloadRequestFrame struct {
    FrameHeader
    Subject string            `cbor:"subject" json:"subject"`
    Params  map[string]string `cbor:"params,omitempty" json:"params,omitempty"`
}

// SuccessFrame is a generic positive acknowledgement, correlated via
// InResponseTo.
type SuccessFrame struct {
    FrameHeader
}

// FailureFrame is a generic negative acknowledgement, correlated via
// InResponseTo.
type FailureFrame struct {
    FrameHeader
    Code    string `cbor:"code" json:"code"`
    Message string `cbor:"message,omitempty" json:"message,omitempty"`
}

// UnknownMessageTypeFrame is returned when a peer receives a frame type it
// does not understand or is not yet admitted to process (e.g. before the
// endpoint reaches Approved).
type UnknownMessageTypeFrame struct {
    FrameHeader
    OriginalType FrameType `cbor:"original_type" json:"original_type"`
}

// DataTransferFrame carries one chunk of a bulk data stream.
type DataTransferFrame struct {
    FrameHeader
    Subject  string `cbor:"subject" json:"subject"`
    SeqIndex uint32 `cbor:"seq_index" json:"seq_index"`
    SeqTotal uint32 `cbor:"seq_total" json:"seq_total"`
    Chunk    []byte `cbor:"chunk" json:"chunk"`
    Final    bool   `cbor:"final" json:"final"`
}
