package handshake

import (
    "testing"

    "meshnode/pkg/wire"
)

func info(id wire.EndpointId, versions ...wire.ProtocolVersion) wire.EndpointInformation {
    return wire.EndpointInformation{
        ID:       id,
        Protocol: wire.ProtocolInformation{Description: wire.ProtocolDescription{Versions: versions, Subjects: []string{"logs"}}},
    }
}

func TestOneSidedHandshakeConverges(t *testing.T) {
    a := New(nil)
    b := New(nil)

    localA := info("a", 1)
    localB := info("b", 1)

    connect, ok := a.Initiate(localA)
    if !ok {
        t.Fatalf("initiate should succeed on fresh conductor")
    }

    resp := b.HandleConnect(localB, connect.Info)
    if !resp.Accepted {
        t.Fatalf("expected acceptance on shared version")
    }
    if b.State() != Approved {
        t.Fatalf("b should be Approved, got %v", b.State())
    }

    a.HandleConnectResponse(resp)
    if a.State() != Approved {
        t.Fatalf("a should be Approved, got %v", a.State())
    }
}

func TestVersionMismatchRejects(t *testing.T) {
    a := New(nil)
    b := New(nil)
    connect, _ := a.Initiate(info("a", 1))
    resp := b.HandleConnect(info("b", 2), connect.Info)
    if resp.Accepted {
        t.Fatalf("expected rejection on disjoint versions")
    }
    if b.State() != Rejected {
        t.Fatalf("b should be Rejected, got %v", b.State())
    }
}

func TestConcurrentInitiationConverges(t *testing.T) {
    a := New(nil)
    b := New(nil)

    localA := info("a", 1)
    localB := info("b", 1)

    connectA, _ := a.Initiate(localA)
    connectB, _ := b.Initiate(localB)

    respFromB := b.HandleConnect(localB, connectA.Info)
    respFromA := a.HandleConnect(localA, connectB.Info)

    if a.State() != Approved || b.State() != Approved {
        t.Fatalf("both sides should converge to Approved: a=%v b=%v", a.State(), b.State())
    }

    // The trailing responses to each side's own Initiate must be no-ops.
    a.HandleConnectResponse(respFromB)
    b.HandleConnectResponse(respFromA)
    if a.State() != Approved || b.State() != Approved {
        t.Fatalf("trailing responses should not change converged state")
    }
}

func TestDuplicateInitiateIsNoop(t *testing.T) {
    a := New(nil)
    _, ok := a.Initiate(info("a", 1))
    if !ok {
        t.Fatalf("first initiate should succeed")
    }
    _, ok = a.Initiate(info("a", 1))
    if ok {
        t.Fatalf("second initiate should be a no-op")
    }
}

func TestRetransmittedConnectAfterApprovalGetsStableAnswer(t *testing.T) {
    a := New(nil)
    b := New(nil)
    connect, _ := a.Initiate(info("a", 1))
    resp := b.HandleConnect(info("b", 1), connect.Info)
    if !resp.Accepted {
        t.Fatalf("expected acceptance")
    }
    // Peer retransmits the same connect frame after convergence.
    resp2 := b.HandleConnect(info("b", 1), connect.Info)
    if !resp2.Accepted {
        t.Fatalf("retransmitted connect should get the same stable answer")
    }
}
