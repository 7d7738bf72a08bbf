package wire

import (
    "crypto/rand"
    "encoding/hex"
    "io"

    "meshnode/pkg/transport"
)

// EndpointId identifies a peer on the mesh. It reuses the transport layer's
// PeerID representation (temp:<kind>:<addr> pre-handshake, pk:<alg>:<pub>
// once a canonical identity has been established) so that a Protocol Channel
// and its underlying transport.Session always agree on who a message is
// to or from.
type EndpointId = transport.PeerID

// MessageId uniquely identifies a single wire frame. The zero value is the
// "none" sentinel used in InResponseTo when a frame is not a reply.
type MessageId [16]byte

// NoMessageId is the sentinel value meaning "not a response to anything".
var NoMessageId = MessageId{}

// NewMessageId generates a random message id.
func NewMessageId() (MessageId, error) {
    var id MessageId
    if _, err := io.ReadFull(rand.Reader, id[:]); err != nil {
        return id, err
    }
    return id, nil
}

func (m MessageId) IsNone() bool { return m == NoMessageId }

func (m MessageId) String() string { return hex.EncodeToString(m[:]) }

// ProtocolVersion identifies a wire protocol revision. Two endpoints only
// converge on a handshake if they share at least one common version.
type ProtocolVersion uint32

// FrameHeader is carried inside every frame body (not the fixed binary
// Header) because sender/id/in_response_to need the full EndpointId and
// MessageId representations that the fixed 16-byte binary header cannot
// hold without imposing a length limit on EndpointId.
type FrameHeader struct {
    Sender       EndpointId `cbor:"sender" json:"sender"`
    ID           MessageId  `cbor:"id" json:"id"`
    InResponseTo MessageId  `cbor:"in_response_to" json:"in_response_to"`
}

// IsResponse reports whether this frame is a reply to another message.
func (h FrameHeader) IsResponse() bool { return !h.InResponseTo.IsNone() }

// Stamp fills in the header fields a sender is responsible for before a
// frame goes out over the wire.
func (h *FrameHeader) Stamp(sender EndpointId, id, inResponseTo MessageId) {
    h.Sender = sender
    h.ID = id
    h.InResponseTo = inResponseTo
}

// Framed is satisfied by a pointer to any frame body, via the promoted
// Stamp method on its embedded FrameHeader. The Protocol Layer façade
// takes frame bodies as Framed so it can stamp sender/id/in_response_to
// generically without a type switch over every frame type.
type Framed interface {
    Stamp(sender EndpointId, id, inResponseTo MessageId)
}
