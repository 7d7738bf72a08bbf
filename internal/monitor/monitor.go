// Package monitor implements the Connection Monitor: a background
// liveness check that probes every Approved endpoint on a schedule,
// evicting endpoints that miss too many consecutive probes and resetting
// their deadline whenever any traffic (not just a probe reply) is seen.
package monitor

import (
    "container/heap"
    "context"
    "sync"
    "time"

    "meshnode/pkg/wire"
)

// Prober sends a ConnectionVerification frame to id and waits for its
// response, returning an error if the peer did not answer in time.
type Prober func(ctx context.Context, id wire.EndpointId) error

// Evictor is invoked once an endpoint has missed maxMissed consecutive
// probes.
type Evictor func(id wire.EndpointId)

type scheduledItem struct {
    id       wire.EndpointId
    deadline int64 // unix nanos
    index    int
}

type scheduleHeap []*scheduledItem

func (h scheduleHeap) Len() int            { return len(h) }
func (h scheduleHeap) Less(i, j int) bool  { return h[i].deadline < h[j].deadline }
func (h scheduleHeap) Swap(i, j int) {
    h[i], h[j] = h[j], h[i]
    h[i].index, h[j].index = i, j
}
func (h *scheduleHeap) Push(x any) {
    it := x.(*scheduledItem)
    it.index = len(*h)
    *h = append(*h, it)
}
func (h *scheduleHeap) Pop() any {
    old := *h
    n := len(old)
    it := old[n-1]
    old[n-1] = nil
    it.index = -1
    *h = old[:n-1]
    return it
}

// Monitor probes every tracked endpoint at interval, evicting an endpoint
// after maxMissed consecutive probe failures.
type Monitor struct {
    interval  time.Duration
    maxMissed int
    probe     Prober
    evict     Evictor

    mu      sync.Mutex
    h       scheduleHeap
    items   map[wire.EndpointId]*scheduledItem
    missed  map[wire.EndpointId]int
    cond    *sync.Cond
    stopped bool

    nowFn func() time.Time
}

// New constructs a Monitor. nowFn defaults to time.Now if nil (tests may
// override it).
func New(interval time.Duration, maxMissed int, probe Prober, evict Evictor, nowFn func() time.Time) *Monitor {
    if nowFn == nil {
        nowFn = time.Now
    }
    m := &Monitor{
        interval:  interval,
        maxMissed: maxMissed,
        probe:     probe,
        evict:     evict,
        items:     make(map[wire.EndpointId]*scheduledItem),
        missed:    make(map[wire.EndpointId]int),
        nowFn:     nowFn,
    }
    m.cond = sync.NewCond(&m.mu)
    return m
}

// Track schedules id for its first probe one interval from now.
func (m *Monitor) Track(id wire.EndpointId) {
    m.mu.Lock()
    defer m.mu.Unlock()
    if _, ok := m.items[id]; ok {
        return
    }
    it := &scheduledItem{id: id, deadline: m.nowFn().Add(m.interval).UnixNano()}
    m.items[id] = it
    m.missed[id] = 0
    heap.Push(&m.h, it)
    m.cond.Broadcast()
}

// Untrack removes id from the schedule entirely, used once an endpoint
// goes Absent.
func (m *Monitor) Untrack(id wire.EndpointId) {
    m.mu.Lock()
    defer m.mu.Unlock()
    it, ok := m.items[id]
    if !ok {
        return
    }
    heap.Remove(&m.h, it.index)
    delete(m.items, id)
    delete(m.missed, id)
}

// ResetDeadline is called whenever any traffic arrives from id (not just
// a probe reply), pushing its next probe one full interval out and
// clearing its missed-probe counter.
func (m *Monitor) ResetDeadline(id wire.EndpointId) {
    m.mu.Lock()
    defer m.mu.Unlock()
    it, ok := m.items[id]
    if !ok {
        return
    }
    it.deadline = m.nowFn().Add(m.interval).UnixNano()
    heap.Fix(&m.h, it.index)
    m.missed[id] = 0
}

// Run blocks, probing endpoints as their deadlines come due, until ctx is
// cancelled.
func (m *Monitor) Run(ctx context.Context) {
    done := make(chan struct{})
    go func() {
        <-ctx.Done()
        m.mu.Lock()
        m.stopped = true
        m.cond.Broadcast()
        m.mu.Unlock()
        close(done)
    }()

    for {
        id, ok := m.waitNextDue(ctx)
        if !ok {
            return
        }
        if err := m.probe(ctx, id); err != nil {
            m.onProbeFailed(id)
        } else {
            m.ResetDeadline(id)
        }
    }
}

func (m *Monitor) waitNextDue(ctx context.Context) (wire.EndpointId, bool) {
    m.mu.Lock()
    defer m.mu.Unlock()
    for {
        if m.stopped || ctx.Err() != nil {
            return "", false
        }
        if len(m.h) == 0 {
            m.cond.Wait()
            continue
        }
        next := m.h[0]
        now := m.nowFn().UnixNano()
        if next.deadline <= now {
            it := heap.Pop(&m.h).(*scheduledItem)
            // Re-push one interval out so the peer stays scheduled while
            // the probe runs; a successful probe moves it further out via
            // ResetDeadline, while a failed one keeps this deadline and
            // onProbeFailed only counts the miss.
            it.deadline = now + m.interval.Nanoseconds()
            heap.Push(&m.h, it)
            return it.id, true
        }
        wait := time.Duration(next.deadline - now)
        timer := time.AfterFunc(wait, func() {
            m.mu.Lock()
            m.cond.Broadcast()
            m.mu.Unlock()
        })
        m.cond.Wait()
        timer.Stop()
    }
}

func (m *Monitor) onProbeFailed(id wire.EndpointId) {
    m.mu.Lock()
    m.missed[id]++
    n := m.missed[id]
    m.mu.Unlock()
    if n >= m.maxMissed {
        m.Untrack(id)
        if m.evict != nil {
            m.evict(id)
        }
    }
}
