package capabilities

import (
    "testing"
    "time"

    "meshnode/pkg/memkv"
    "meshnode/pkg/wire"
)

func newStore(t *testing.T) *Store {
    t.Helper()
    kv := memkv.New(memkv.Options{})
    t.Cleanup(kv.Close)
    return NewStore(kv)
}

func TestAdvertiseAndGet(t *testing.T) {
    s := newStore(t)
    s.Advertise("peer-a", wire.ProtocolDescription{Versions: []wire.ProtocolVersion{1, 2}, Subjects: []string{"inventory"}}, 0)

    desc, ok := s.Get("peer-a")
    if !ok {
        t.Fatalf("expected advertisement to be stored")
    }
    if len(desc.Versions) != 2 || desc.Subjects[0] != "inventory" {
        t.Fatalf("unexpected advertisement: %+v", desc)
    }
}

func TestBySubjectFiltersAndSorts(t *testing.T) {
    s := newStore(t)
    s.Advertise("peer-b", wire.ProtocolDescription{Subjects: []string{"inventory"}}, 0)
    s.Advertise("peer-a", wire.ProtocolDescription{Subjects: []string{"inventory", "pricing"}}, 0)
    s.Advertise("peer-c", wire.ProtocolDescription{Subjects: []string{"pricing"}}, 0)

    got := s.BySubject("inventory")
    want := []wire.EndpointId{"peer-a", "peer-b"}
    if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
        t.Fatalf("got %v want %v", got, want)
    }
}

func TestRemoveForgetsAdvertisement(t *testing.T) {
    s := newStore(t)
    s.Advertise("peer-a", wire.ProtocolDescription{Subjects: []string{"inventory"}}, 0)
    s.Remove("peer-a")
    if _, ok := s.Get("peer-a"); ok {
        t.Fatalf("expected advertisement to be gone after Remove")
    }
    if got := s.BySubject("inventory"); len(got) != 0 {
        t.Fatalf("expected no endpoints after removal, got %v", got)
    }
}

func TestAdvertiseTTLExpires(t *testing.T) {
    s := newStore(t)
    s.Advertise("peer-a", wire.ProtocolDescription{Subjects: []string{"inventory"}}, 20*time.Millisecond)
    time.Sleep(100 * time.Millisecond)
    if _, ok := s.kv.Get(keyFor("peer-a")); ok {
        t.Fatalf("expected ttl'd advertisement to expire")
    }
}
