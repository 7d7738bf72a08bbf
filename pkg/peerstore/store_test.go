package peerstore

import (
    "testing"
    "time"

    "meshnode/pkg/memkv"
    "meshnode/pkg/transport"
)

func newStore(t *testing.T) *Store {
    t.Helper()
    kv := memkv.New(memkv.Options{})
    t.Cleanup(kv.Close)
    return NewStore(kv)
}

func TestTouchAppendsNewAddressOnly(t *testing.T) {
    s := newStore(t)
    s.Touch("peer-a", "10.0.0.1:7790", time.Now())
    s.Touch("peer-a", "10.0.0.1:7790", time.Now())
    s.Touch("peer-a", "10.0.0.2:7790", time.Now())

    m, ok := s.Get("peer-a")
    if !ok {
        t.Fatalf("expected peer-a to be stored")
    }
    if len(m.Addresses) != 2 {
        t.Fatalf("want 2 distinct addresses, got %v", m.Addresses)
    }
    if !m.Reachable {
        t.Fatalf("expected Touch to mark reachable")
    }
}

func TestRecordQualityAndExchangeAccumulate(t *testing.T) {
    s := newStore(t)
    s.Touch("peer-a", "", time.Now())
    s.RecordQuality("peer-a", transport.Quality{RTT: 50 * time.Millisecond, Score: 0.9})
    s.RecordExchange("peer-a", 100, 200, 1, 2)
    s.RecordExchange("peer-a", 50, 25, 1, 1)

    m, _ := s.Get("peer-a")
    if m.RTTms != 50 {
        t.Fatalf("want rtt 50ms, got %d", m.RTTms)
    }
    if m.BytesIn != 150 || m.BytesOut != 225 || m.MsgsIn != 2 || m.MsgsOut != 3 {
        t.Fatalf("unexpected accumulated counters: %+v", m)
    }
}

func TestForgetRemovesFromIndex(t *testing.T) {
    s := newStore(t)
    s.Touch("peer-a", "addr", time.Now())
    s.Forget("peer-a")
    if _, ok := s.Get("peer-a"); ok {
        t.Fatalf("expected peer-a to be gone")
    }
    for _, id := range s.List() {
        if id == "peer-a" {
            t.Fatalf("peer-a should not appear in List after Forget")
        }
    }
}
