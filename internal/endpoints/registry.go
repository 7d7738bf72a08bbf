// Package endpoints implements the Endpoint Registry: the single source of
// truth for the lifecycle state of every peer this node has ever
// contacted or been contacted by.
package endpoints

import (
    "sync"

    "meshnode/pkg/transport"
    "meshnode/pkg/wire"
)

// State is one of the four lifecycle states an endpoint can occupy.
type State uint8

const (
    // Contacted: a connect frame has been sent or received, but the
    // handshake has not yet started converging.
    Contacted State = iota
    // WaitingForApproval: the handshake has started and both connect
    // frames have been observed, pending acceptance.
    WaitingForApproval
    // Approved: the handshake converged and this endpoint may exchange
    // application traffic.
    Approved
    // Absent: the endpoint was removed, either because the handshake was
    // rejected, the transport session died, or an explicit disconnect
    // arrived.
    Absent
)

func (s State) String() string {
    switch s {
    case Contacted:
        return "Contacted"
    case WaitingForApproval:
        return "WaitingForApproval"
    case Approved:
        return "Approved"
    default:
        return "Absent"
    }
}

// Info is the registry's view of one endpoint.
type Info struct {
    ID         wire.EndpointId
    State      State
    Connection transport.Session
    Protocol   wire.ProtocolInformation
}

// Signals is invoked outside the registry's lock whenever a transition
// changes an endpoint's connectivity. Handlers must not block for long;
// they run synchronously with respect to the caller of the try_* method
// that triggered them, but never while the registry mutex is held.
type Signals struct {
    OnConnected     func(id wire.EndpointId, sess transport.Session)
    OnDisconnecting func(id wire.EndpointId)
    OnDisconnected  func(id wire.EndpointId)
}

// SessionOf is a convenience accessor used by callers that only have an
// Info value and want the concrete transport session, if any.
func SessionOf(info Info) (transport.Session, bool) { return info.Connection, info.Connection != nil }

// entry is guarded by its own mutex so that transitions on different
// endpoints never contend with each other; the registry mutex only
// protects the map itself.
type entry struct {
    mu   sync.Mutex
    info Info
}

// Registry tracks every known endpoint and its current lifecycle state.
type Registry struct {
    mu      sync.RWMutex
    entries map[wire.EndpointId]*entry
    signals Signals
}

// New constructs an empty Registry. Signal callbacks may be nil.
func New(sig Signals) *Registry {
    return &Registry{entries: make(map[wire.EndpointId]*entry), signals: sig}
}

func (r *Registry) getOrCreate(id wire.EndpointId) *entry {
    r.mu.RLock()
    e, ok := r.entries[id]
    r.mu.RUnlock()
    if ok {
        return e
    }
    r.mu.Lock()
    defer r.mu.Unlock()
    if e, ok := r.entries[id]; ok {
        return e
    }
    e = &entry{info: Info{ID: id, State: Absent}}
    r.entries[id] = e
    return e
}

// TryAdd registers a newly contacted endpoint bound to sess. It succeeds
// only when the endpoint is currently Absent (or unknown), enforcing
// single-writer-per-endpoint semantics: a concurrent second TryAdd for the
// same id fails rather than clobbering the winner's session. This is first
// contact, not connectivity: on_connected fires later, when the handshake
// actually reaches Approved.
func (r *Registry) TryAdd(id wire.EndpointId, sess transport.Session) bool {
    e := r.getOrCreate(id)
    e.mu.Lock()
    if e.info.State != Absent {
        e.mu.Unlock()
        return false
    }
    e.info.State = Contacted
    e.info.Connection = sess
    e.mu.Unlock()
    return true
}

// TryStartApproval advances a Contacted endpoint to WaitingForApproval.
// It fails if the endpoint is not currently Contacted, which makes
// duplicate or out-of-order handshake starts idempotent no-ops from the
// caller's perspective.
func (r *Registry) TryStartApproval(id wire.EndpointId) bool {
    e := r.getOrCreate(id)
    e.mu.Lock()
    defer e.mu.Unlock()
    if e.info.State != Contacted {
        return false
    }
    e.info.State = WaitingForApproval
    return true
}

// TryCompleteApproval advances a WaitingForApproval endpoint to Approved,
// recording the negotiated protocol information, and fires on_connected
// exactly once for this endpoint after releasing the lock.
func (r *Registry) TryCompleteApproval(id wire.EndpointId, proto wire.ProtocolInformation) bool {
    e := r.getOrCreate(id)
    e.mu.Lock()
    if e.info.State != WaitingForApproval {
        e.mu.Unlock()
        return false
    }
    e.info.State = Approved
    e.info.Protocol = proto
    sess := e.info.Connection
    e.mu.Unlock()

    if r.signals.OnConnected != nil {
        r.signals.OnConnected(id, sess)
    }
    return true
}

// TryRemove transitions an endpoint to Absent, whatever its prior state.
// It is a no-op if the endpoint is already Absent. before/after signal
// hooks fire outside the entry lock so they can safely call back into the
// registry.
func (r *Registry) TryRemove(id wire.EndpointId) bool {
    e := r.getOrCreate(id)
    e.mu.Lock()
    if e.info.State == Absent {
        e.mu.Unlock()
        return false
    }
    e.mu.Unlock()

    if r.signals.OnDisconnecting != nil {
        r.signals.OnDisconnecting(id)
    }

    e.mu.Lock()
    e.info.State = Absent
    e.info.Connection = nil
    e.mu.Unlock()

    if r.signals.OnDisconnected != nil {
        r.signals.OnDisconnected(id)
    }
    return true
}

// ConnectionFor returns the transport session currently backing id, if
// the endpoint has one.
func (r *Registry) ConnectionFor(id wire.EndpointId) (transport.Session, bool) {
    r.mu.RLock()
    e, ok := r.entries[id]
    r.mu.RUnlock()
    if !ok {
        return nil, false
    }
    e.mu.Lock()
    defer e.mu.Unlock()
    return e.info.Connection, e.info.Connection != nil
}

// Get returns a snapshot of an endpoint's info.
func (r *Registry) Get(id wire.EndpointId) (Info, bool) {
    r.mu.RLock()
    e, ok := r.entries[id]
    r.mu.RUnlock()
    if !ok {
        return Info{}, false
    }
    e.mu.Lock()
    defer e.mu.Unlock()
    return e.info, true
}

// IsApproved reports whether id is currently in the Approved state.
func (r *Registry) IsApproved(id wire.EndpointId) bool {
    info, ok := r.Get(id)
    return ok && info.State == Approved
}

// List returns a snapshot of every non-Absent endpoint.
func (r *Registry) List() []Info {
    r.mu.RLock()
    out := make([]Info, 0, len(r.entries))
    ents := make([]*entry, 0, len(r.entries))
    for _, e := range r.entries {
        ents = append(ents, e)
    }
    r.mu.RUnlock()
    for _, e := range ents {
        e.mu.Lock()
        if e.info.State != Absent {
            out = append(out, e.info)
        }
        e.mu.Unlock()
    }
    return out
}
