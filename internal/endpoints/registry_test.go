package endpoints

import (
    "testing"

    "meshnode/pkg/transport"
    "meshnode/pkg/wire"
)

func TestLifecycleHappyPath(t *testing.T) {
    var connected []string
    r := New(Signals{
        OnConnected: func(id wire.EndpointId, _ transport.Session) { connected = append(connected, string(id)) },
    })

    const id wire.EndpointId = "pk:ed25519:abc"
    if !r.TryAdd(id, nil) {
        t.Fatalf("TryAdd should succeed on fresh endpoint")
    }
    info, ok := r.Get(id)
    if !ok || info.State != Contacted {
        t.Fatalf("want Contacted, got %v", info.State)
    }
    if !r.TryStartApproval(id) {
        t.Fatalf("TryStartApproval should succeed from Contacted")
    }
    if r.TryStartApproval(id) {
        t.Fatalf("second TryStartApproval should fail (not idempotent-true, but safe)")
    }
    if !r.TryCompleteApproval(id, wire.ProtocolInformation{}) {
        t.Fatalf("TryCompleteApproval should succeed from WaitingForApproval")
    }
    if !r.IsApproved(id) {
        t.Fatalf("endpoint should be Approved")
    }
    if !r.TryRemove(id) {
        t.Fatalf("TryRemove should succeed on Approved endpoint")
    }
    if r.IsApproved(id) {
        t.Fatalf("endpoint should no longer be Approved")
    }
    if r.TryRemove(id) {
        t.Fatalf("second TryRemove should be a no-op")
    }
    if len(connected) != 1 {
        t.Fatalf("want exactly one OnConnected signal, got %d", len(connected))
    }
}

func TestTryAddRejectsDuplicate(t *testing.T) {
    r := New(Signals{})
    const id wire.EndpointId = "pk:ed25519:dup"
    if !r.TryAdd(id, nil) {
        t.Fatalf("first TryAdd should succeed")
    }
    if r.TryAdd(id, nil) {
        t.Fatalf("second TryAdd on a live endpoint should fail")
    }
}

func TestTryCompleteApprovalRequiresWaitingState(t *testing.T) {
    r := New(Signals{})
    const id wire.EndpointId = "pk:ed25519:skip"
    r.TryAdd(id, nil)
    if r.TryCompleteApproval(id, wire.ProtocolInformation{}) {
        t.Fatalf("TryCompleteApproval should fail without TryStartApproval first")
    }
}
