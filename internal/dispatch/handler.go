// Package dispatch implements the Message Handler and Data Handler: the
// components that route inbound frames to whoever is waiting for them, or
// to a last-chance fallback when nobody is.
package dispatch

import (
    "sync"

    "go.uber.org/zap"

    "meshnode/internal/endpoints"
    "meshnode/internal/waiter"
    "meshnode/pkg/wire"
)

// Response is what a caller of send_and_wait ultimately receives: the
// decoded response envelope plus the endpoint it arrived from.
type Response struct {
    From wire.EndpointId
    Env  wire.Envelope
}

// LastChanceHandler is invoked for an unsolicited frame (not a response to
// anything) whose type has no registered OnFrameType callback. Typical
// implementations log the frame and reply with UnknownMessageType.
type LastChanceHandler func(from wire.EndpointId, hdr wire.FrameHeader, env wire.Envelope)

// AdmissionFilter decides whether a frame type may be processed for an
// endpoint in its current registry state. Handshake and disconnect frames
// are always admitted; everything else requires Approved.
type AdmissionFilter func(state endpoints.State, ft wire.FrameType) bool

// DefaultAdmission implements the spec's admission policy: handshake
// frames (EndpointConnect/EndpointConnectResponse) and
// EndpointDisconnect are processed regardless of state so a handshake can
// complete and a disconnect can always be observed; every other frame type
// requires the endpoint to already be Approved.
func DefaultAdmission(state endpoints.State, ft wire.FrameType) bool {
    switch ft {
    case wire.FrameEndpointConnect, wire.FrameEndpointConnectResponse, wire.FrameEndpointDisconnect:
        return true
    default:
        return state == endpoints.Approved
    }
}

type waiterEntry struct {
    w        *waiter.Waiter[Response]
    endpoint wire.EndpointId
}

// Handler correlates inbound response frames with outstanding
// send_and_wait callers and dispatches unsolicited frames to registered
// per-type callbacks.
type Handler struct {
    admission AdmissionFilter
    lastChance LastChanceHandler

    mu      sync.Mutex
    waiters map[wire.MessageId]waiterEntry

    handlersMu sync.RWMutex
    handlers   map[wire.FrameType]func(from wire.EndpointId, env wire.Envelope)
}

// New builds a Handler. admission and lastChance may be nil to use
// DefaultAdmission and a no-op fallback, respectively.
func New(admission AdmissionFilter, lastChance LastChanceHandler) *Handler {
    if admission == nil {
        admission = DefaultAdmission
    }
    if lastChance == nil {
        lastChance = func(wire.EndpointId, wire.FrameHeader, wire.Envelope) {}
    }
    return &Handler{
        admission:  admission,
        lastChance: lastChance,
        waiters:    make(map[wire.MessageId]waiterEntry),
        handlers:   make(map[wire.FrameType]func(from wire.EndpointId, env wire.Envelope)),
    }
}

// RegisterWaiter records a waiter to be fulfilled when a response frame
// with InResponseTo == id arrives. Callers must eventually call
// ForgetWaiter (directly or via context cancellation racing ForwardResponse)
// to avoid leaking the map entry when no response ever comes.
func (h *Handler) RegisterWaiter(id wire.MessageId, endpoint wire.EndpointId, w *waiter.Waiter[Response]) {
    h.mu.Lock()
    h.waiters[id] = waiterEntry{w: w, endpoint: endpoint}
    h.mu.Unlock()
}

// ForgetWaiter removes a waiter without fulfilling it, used after a
// send_and_wait caller's context expires.
func (h *Handler) ForgetWaiter(id wire.MessageId) {
    h.mu.Lock()
    delete(h.waiters, id)
    h.mu.Unlock()
}

// OnFrameType registers a callback invoked for every admitted frame of
// type ft that is not itself a correlated response to a live waiter.
func (h *Handler) OnFrameType(ft wire.FrameType, fn func(from wire.EndpointId, env wire.Envelope)) {
    h.handlersMu.Lock()
    h.handlers[ft] = fn
    h.handlersMu.Unlock()
}

// ForwardResponse fulfills the waiter registered for hdr.InResponseTo, if
// any, and reports whether one was found.
func (h *Handler) ForwardResponse(from wire.EndpointId, hdr wire.FrameHeader, env wire.Envelope) bool {
    if !hdr.IsResponse() {
        return false
    }
    h.mu.Lock()
    entry, ok := h.waiters[hdr.InResponseTo]
    if ok {
        delete(h.waiters, hdr.InResponseTo)
    }
    h.mu.Unlock()
    if !ok {
        return false
    }
    entry.w.Fulfill(Response{From: from, Env: env})
    return true
}

// Admits reports whether a frame of type ft may be processed for an
// endpoint currently in state, per the handler's admission policy.
func (h *Handler) Admits(state endpoints.State, ft wire.FrameType) bool {
    return h.admission(state, ft)
}

// ProcessMessage is the dispatch algorithm run for every inbound message
// frame: a response is correlated with its outstanding waiter (and
// dropped silently if none is live) before any admission check; an
// unsolicited frame must pass admission and is then dispatched by type or
// falls back to lastChance. A panic raised by a type callback or by
// lastChance is logged and absorbed.
func (h *Handler) ProcessMessage(from wire.EndpointId, state endpoints.State, hdr wire.FrameHeader, env wire.Envelope) {
    if hdr.IsResponse() {
        h.ForwardResponse(from, hdr, env)
        return
    }
    if !h.admission(state, env.Header.Type) {
        return
    }
    defer func() {
        if r := recover(); r != nil {
            zap.L().Error("dispatch: frame handler panicked", zap.String("endpoint", string(from)),
                zap.String("type", env.Header.Type.String()), zap.Any("panic", r))
        }
    }()
    h.handlersMu.RLock()
    fn := h.handlers[env.Header.Type]
    h.handlersMu.RUnlock()
    if fn != nil {
        fn(from, env)
        return
    }
    h.lastChance(from, hdr, env)
}

// OnEndpointSignedOff cancels every outstanding waiter for id with err,
// since that endpoint going Absent means no response will ever arrive.
// The Node invokes it from the Endpoint Registry's OnDisconnecting signal
// with meshrerr.ErrCancelled wrapped for id.
func (h *Handler) OnEndpointSignedOff(id wire.EndpointId, err error) {
    h.mu.Lock()
    var dead []waiterEntry
    for mid, entry := range h.waiters {
        if entry.endpoint == id {
            dead = append(dead, entry)
            delete(h.waiters, mid)
        }
    }
    h.mu.Unlock()
    for _, entry := range dead {
        entry.w.Cancel(err)
    }
}

// OnLocalChannelClosed cancels every outstanding waiter unconditionally,
// used when the local Protocol Channel itself is shutting down.
func (h *Handler) OnLocalChannelClosed(err error) {
    h.mu.Lock()
    waiters := h.waiters
    h.waiters = make(map[wire.MessageId]waiterEntry)
    h.mu.Unlock()
    for _, entry := range waiters {
        entry.w.Cancel(err)
    }
}
