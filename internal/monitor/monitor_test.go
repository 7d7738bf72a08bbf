package monitor

import (
    "context"
    "sync"
    "sync/atomic"
    "testing"
    "time"

    "meshnode/pkg/wire"
)

func TestMonitorEvictsAfterConsecutiveFailures(t *testing.T) {
    var evicted int32
    var probes int32
    m := New(5*time.Millisecond, 3, func(ctx context.Context, id wire.EndpointId) error {
        atomic.AddInt32(&probes, 1)
        return context.DeadlineExceeded
    }, func(id wire.EndpointId) {
        atomic.StoreInt32(&evicted, 1)
    }, nil)

    ctx, cancel := context.WithCancel(context.Background())
    var wg sync.WaitGroup
    wg.Add(1)
    go func() { defer wg.Done(); m.Run(ctx) }()

    m.Track("peer-a")

    deadline := time.Now().Add(500 * time.Millisecond)
    for time.Now().Before(deadline) {
        if atomic.LoadInt32(&evicted) == 1 {
            break
        }
        time.Sleep(10 * time.Millisecond)
    }
    cancel()
    wg.Wait()

    if atomic.LoadInt32(&evicted) != 1 {
        t.Fatalf("expected endpoint to be evicted after repeated failures")
    }
    if atomic.LoadInt32(&probes) < 3 {
        t.Fatalf("expected at least 3 probes before eviction, got %d", probes)
    }
}

func TestMonitorResetDeadlineClearsMissedCount(t *testing.T) {
    m := New(time.Hour, 3, func(ctx context.Context, id wire.EndpointId) error { return nil }, nil, nil)
    m.Track("peer-b")
    m.mu.Lock()
    m.missed["peer-b"] = 2
    m.mu.Unlock()
    m.ResetDeadline("peer-b")
    m.mu.Lock()
    got := m.missed["peer-b"]
    m.mu.Unlock()
    if got != 0 {
        t.Fatalf("want missed count reset to 0, got %d", got)
    }
}

func TestMonitorUntrackRemovesEndpoint(t *testing.T) {
    m := New(time.Hour, 3, func(ctx context.Context, id wire.EndpointId) error { return nil }, nil, nil)
    m.Track("peer-c")
    m.Untrack("peer-c")
    m.mu.Lock()
    _, ok := m.items["peer-c"]
    m.mu.Unlock()
    if ok {
        t.Fatalf("peer-c should have been untracked")
    }
}
