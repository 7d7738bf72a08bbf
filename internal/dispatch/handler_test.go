package dispatch

import (
    "errors"
    "testing"

    "meshnode/internal/endpoints"
    "meshnode/internal/waiter"
    "meshnode/pkg/wire"
)

func TestForwardResponseFulfillsWaiter(t *testing.T) {
    h := New(nil, nil)
    id, _ := wire.NewMessageId()
    w := waiter.New[Response]()
    h.RegisterWaiter(id, "peer-a", w)

    env := wire.Envelope{Header: wire.Header{Type: wire.FrameSuccess}}
    hdr := wire.FrameHeader{Sender: "peer-a", InResponseTo: id}
    if !h.ForwardResponse("peer-a", hdr, env) {
        t.Fatalf("expected response to be forwarded")
    }
    select {
    case <-w.Done():
    default:
        t.Fatalf("waiter should be done")
    }
}

func TestProcessMessageFallsBackToLastChance(t *testing.T) {
    var got wire.EndpointId
    h := New(nil, func(from wire.EndpointId, hdr wire.FrameHeader, env wire.Envelope) { got = from })
    env := wire.Envelope{Header: wire.Header{Type: wire.FrameSuccess}}
    hdr := wire.FrameHeader{Sender: "peer-b"}
    h.ProcessMessage("peer-b", endpoints.Approved, hdr, env)
    if got != "peer-b" {
        t.Fatalf("expected last-chance handler invoked, got %q", got)
    }
}

func TestProcessMessageDropsUncorrelatedResponseSilently(t *testing.T) {
    called := false
    h := New(nil, func(wire.EndpointId, wire.FrameHeader, wire.Envelope) { called = true })
    env := wire.Envelope{Header: wire.Header{Type: wire.FrameSuccess}}
    id, _ := wire.NewMessageId()
    hdr := wire.FrameHeader{Sender: "peer-b", InResponseTo: id}
    h.ProcessMessage("peer-b", endpoints.Approved, hdr, env)
    if called {
        t.Fatalf("a response with no live waiter must be dropped silently, not reach last-chance")
    }
}

func TestProcessMessageRejectsUnapprovedNonHandshake(t *testing.T) {
    called := false
    h := New(nil, func(wire.EndpointId, wire.FrameHeader, wire.Envelope) { called = true })
    env := wire.Envelope{Header: wire.Header{Type: wire.FrameDataTransfer}}
    h.ProcessMessage("peer-c", endpoints.Contacted, wire.FrameHeader{}, env)
    if called {
        t.Fatalf("unapproved endpoint should not reach last-chance handler")
    }
}

func TestProcessMessageAdmitsHandshakeRegardlessOfState(t *testing.T) {
    called := false
    h := New(nil, func(wire.EndpointId, wire.FrameHeader, wire.Envelope) { called = true })
    env := wire.Envelope{Header: wire.Header{Type: wire.FrameEndpointConnect}}
    h.ProcessMessage("peer-d", endpoints.Absent, wire.FrameHeader{}, env)
    if !called {
        t.Fatalf("handshake frames must be admitted regardless of state")
    }
}

func TestOnEndpointSignedOffCancelsOnlyThatEndpointsWaiters(t *testing.T) {
    h := New(nil, nil)
    idA, _ := wire.NewMessageId()
    idB, _ := wire.NewMessageId()
    wa := waiter.New[Response]()
    wb := waiter.New[Response]()
    h.RegisterWaiter(idA, "peer-a", wa)
    h.RegisterWaiter(idB, "peer-b", wb)

    sentinel := errors.New("gone")
    h.OnEndpointSignedOff("peer-a", sentinel)

    select {
    case <-wa.Done():
    default:
        t.Fatalf("peer-a waiter should be cancelled")
    }
    select {
    case <-wb.Done():
        t.Fatalf("peer-b waiter should remain pending")
    default:
    }
}
