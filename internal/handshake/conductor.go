// Package handshake implements the Handshake Conductor: a two-party
// convergence state machine that brings a pair of endpoints from no
// relationship to a mutually Approved (or Rejected) connection,
// regardless of which side initiates first or whether both initiate at
// once.
package handshake

import (
    "sync"

    "meshnode/pkg/wire"
)

// State is a handshake's convergence state, distinct from the Endpoint
// Registry's connectivity State: a handshake can be Started while the
// registry still shows Contacted, and only reaching Approved here drives
// the registry's TryCompleteApproval.
type State uint8

const (
    None State = iota
    Started
    InformationReceived
    Approved
    Rejected
)

func (s State) String() string {
    switch s {
    case Started:
        return "Started"
    case InformationReceived:
        return "InformationReceived"
    case Approved:
        return "Approved"
    case Rejected:
        return "Rejected"
    default:
        return "None"
    }
}

// AcceptancePolicy decides whether to accept a peer's offered
// ProtocolInformation given the local one, returning the negotiated
// intersection to record if accepted.
type AcceptancePolicy func(local, remote wire.ProtocolInformation) (accept bool, negotiated wire.ProtocolInformation)

// DefaultAcceptancePolicy accepts whenever the two sides share at least
// one protocol version; subjects are intersected but never gate
// acceptance, since a peer with no overlapping subjects can still be a
// useful conduit for other traffic.
func DefaultAcceptancePolicy(local, remote wire.ProtocolInformation) (bool, wire.ProtocolInformation) {
    versions, subjects := local.Description.Intersects(remote.Description)
    if len(versions) == 0 {
        return false, wire.ProtocolInformation{}
    }
    return true, wire.ProtocolInformation{Description: wire.ProtocolDescription{Versions: versions, Subjects: subjects}}
}

// Conductor drives one endpoint's handshake against a single peer. It is
// not safe to share across peers; the Protocol Channel keeps one per
// endpoint id.
type Conductor struct {
    policy AcceptancePolicy

    mu       sync.Mutex
    state    State
    local    wire.EndpointInformation
    remote   wire.EndpointInformation
    negotiated wire.ProtocolInformation
}

// New builds a Conductor. policy may be nil to use DefaultAcceptancePolicy.
func New(policy AcceptancePolicy) *Conductor {
    if policy == nil {
        policy = DefaultAcceptancePolicy
    }
    return &Conductor{policy: policy}
}

// State returns the current convergence state.
func (c *Conductor) State() State {
    c.mu.Lock()
    defer c.mu.Unlock()
    return c.state
}

// Negotiated returns the protocol information both sides converged on.
// Only meaningful once State() == Approved.
func (c *Conductor) Negotiated() wire.ProtocolInformation {
    c.mu.Lock()
    defer c.mu.Unlock()
    return c.negotiated
}

// Initiate moves a fresh conductor to Started and returns the connect
// frame body to send. Calling Initiate again after the first call is a
// no-op (ok=false) so a caller that retries under contention never sends
// a duplicate connect frame.
func (c *Conductor) Initiate(local wire.EndpointInformation) (wire.EndpointConnectFrame, bool) {
    c.mu.Lock()
    defer c.mu.Unlock()
    if c.state != None {
        return wire.EndpointConnectFrame{}, false
    }
    c.local = local
    c.state = Started
    return wire.EndpointConnectFrame{Info: local}, true
}

// HandleConnect processes an inbound EndpointConnectFrame, whether this is
// the first the local side hears of the peer or the peer initiated
// concurrently with our own Initiate. It always returns a response frame
// to send back, since a connect must always be acknowledged one way or
// another (including a Rejected/duplicate response after the handshake
// already converged, so a retransmitted connect frame gets a stable
// answer instead of silence).
func (c *Conductor) HandleConnect(local, remote wire.EndpointInformation) wire.EndpointConnectResponseFrame {
    c.mu.Lock()
    defer c.mu.Unlock()

    switch c.state {
    case Approved:
        return wire.EndpointConnectResponseFrame{Accepted: true, Info: c.local}
    case Rejected:
        return wire.EndpointConnectResponseFrame{Accepted: false, Info: c.local}
    }

    if c.state == None {
        c.local = local
    }
    c.remote = remote
    c.state = InformationReceived

    accept, negotiated := c.policy(c.local.Protocol, remote.Protocol)
    if accept {
        c.state = Approved
        c.negotiated = negotiated
    } else {
        c.state = Rejected
    }
    return wire.EndpointConnectResponseFrame{Accepted: accept, Info: c.local}
}

// HandleConnectResponse processes the reply to our own Initiate. It is a
// no-op if the handshake has already converged through a concurrent
// HandleConnect (e.g. the peer's own connect frame arrived first and
// already drove this side to Approved/Rejected).
func (c *Conductor) HandleConnectResponse(resp wire.EndpointConnectResponseFrame) {
    c.mu.Lock()
    defer c.mu.Unlock()
    if c.state != Started {
        return
    }
    c.remote = resp.Info
    if resp.Accepted {
        accept, negotiated := c.policy(c.local.Protocol, resp.Info.Protocol)
        if accept {
            c.state = Approved
            c.negotiated = negotiated
            return
        }
    }
    c.state = Rejected
}
