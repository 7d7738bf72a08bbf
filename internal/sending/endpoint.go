package sending

import (
    "context"
    "sync"

    "meshnode/internal/meshrerr"
    "meshnode/pkg/core/priocq"
    "meshnode/pkg/transport"
    "meshnode/pkg/wire"
)

// Endpoint is the per-peer pool of outbound channels: one lazily-opened
// RestoringChannel for control/realtime message traffic and one opened
// fresh per bulk transfer for data. Message traffic is rate-shaped by a
// shared TokenBucket so one noisy peer cannot starve the others' control
// frames on a shared link, and scheduled through the owning Pool's priority
// queue so bulk sends on other peers cannot starve this one's control
// frames either.
type Endpoint struct {
    id       wire.EndpointId
    session  transport.Session
    pool     *Pool
    restarts int

    mu      sync.Mutex
    message *RestoringChannel
}

// NewEndpoint builds a Sending Endpoint over sess, scheduled through pool.
// pool may be nil, in which case sends bypass the priority queue entirely.
func NewEndpoint(id wire.EndpointId, sess transport.Session, pool *Pool, maxRestarts int) *Endpoint {
    return &Endpoint{id: id, session: sess, pool: pool, restarts: maxRestarts}
}

// messageChannel lazily opens the shared message stream for this peer.
func (e *Endpoint) messageChannel() *RestoringChannel {
    e.mu.Lock()
    defer e.mu.Unlock()
    if e.message == nil {
        e.message = New(func(ctx context.Context) (transport.Stream, error) {
            return e.session.OpenStream(ctx, transport.StreamControl)
        }, e.restarts)
    }
    return e.message
}

// sendNow applies rate shaping and writes payload to the message channel
// directly, bypassing the priority queue. Called only by the owning Pool's
// dispatch loop, or directly when the Endpoint has no Pool.
func (e *Endpoint) sendNow(payload []byte) error {
    if e.pool != nil && e.pool.shaper != nil {
        if ok, _ := e.pool.shaper.Allow(int64(len(payload))); !ok {
            return meshrerr.ErrSendFailed
        }
    }
    return e.messageChannel().Send(context.Background(), payload)
}

// SendMessage transmits a small message-channel frame (control, handshake,
// verification). priority selects the class it competes under against
// other peers' traffic sharing the same Pool: see wire.PriorityFor.
func (e *Endpoint) SendMessage(ctx context.Context, payload []byte, priority uint8) error {
    if e.pool == nil {
        return e.sendNow(payload)
    }
    done := make(chan error, 1)
    e.pool.queue.Enqueue(priocq.Item{
        Bytes: payload,
        Dest:  string(e.id),
        Size:  len(payload),
        Class: priocq.Class(priority),
        Done:  done,
    })
    select {
    case err := <-done:
        return err
    case <-ctx.Done():
        return meshrerr.ErrCancelled
    }
}

// OpenDataChannel opens a fresh bulk stream for one data transfer. Data
// channels are not pooled: each transfer gets its own stream and is torn
// down when the transfer completes, since bulk transfers are expected to
// be long-lived and infrequent relative to control traffic.
func (e *Endpoint) OpenDataChannel(maxRestarts int) *RestoringChannel {
    return New(func(ctx context.Context) (transport.Stream, error) {
        return e.session.OpenStream(ctx, transport.StreamBulk)
    }, maxRestarts)
}

// Close tears down the pooled message channel, if open.
func (e *Endpoint) Close() error {
    e.mu.Lock()
    defer e.mu.Unlock()
    if e.message == nil {
        return nil
    }
    err := e.message.Close()
    e.message = nil
    return err
}

// Pool is a registry of Sending Endpoints keyed by peer, created lazily on
// first send. All message-channel sends across every Endpoint in the pool
// are scheduled through one shared MultiLevelQueue, so control traffic to
// one peer cannot be starved by a bulk-priority backlog to another.
type Pool struct {
    mu        sync.Mutex
    endpoints map[wire.EndpointId]*Endpoint
    shaper    *priocq.TokenBucket
    restarts  int

    queue     *priocq.MultiLevelQueue
    stop      chan struct{}
    closeOnce sync.Once
}

// NewPool constructs an empty pool and starts its dispatch loop. ratePerSec/
// burst configure a shared TokenBucket across all endpoints in the pool;
// pass 0 to disable shaping.
func NewPool(ratePerSec, burst int64, maxRestarts int) *Pool {
    var shaper *priocq.TokenBucket
    if ratePerSec > 0 {
        shaper = priocq.NewTokenBucket(ratePerSec, burst)
    }
    p := &Pool{
        endpoints: make(map[wire.EndpointId]*Endpoint),
        shaper:    shaper,
        restarts:  maxRestarts,
        queue:     priocq.New(),
        stop:      make(chan struct{}),
    }
    go p.dispatchLoop()
    return p
}

// dispatchLoop pops queued sends in priority order and hands each to the
// Endpoint it targets until the pool is closed.
func (p *Pool) dispatchLoop() {
    for {
        it, ok := p.queue.Dequeue(p.stop)
        if !ok {
            return
        }
        p.mu.Lock()
        ep, found := p.endpoints[wire.EndpointId(it.Dest)]
        p.mu.Unlock()

        var err error
        if !found {
            err = meshrerr.ForEndpoint(wire.EndpointId(it.Dest), meshrerr.ErrEndpointNotContactable)
        } else {
            err = ep.sendNow(it.Bytes)
        }
        if it.Done != nil {
            it.Done <- err
        }
    }
}

// Get returns the Sending Endpoint for id, creating it over sess if this
// is the first time id is seen.
func (p *Pool) Get(id wire.EndpointId, sess transport.Session) *Endpoint {
    p.mu.Lock()
    defer p.mu.Unlock()
    if ep, ok := p.endpoints[id]; ok {
        return ep
    }
    ep := NewEndpoint(id, sess, p, p.restarts)
    p.endpoints[id] = ep
    return ep
}

// Remove closes and drops the Sending Endpoint for id, if any.
func (p *Pool) Remove(id wire.EndpointId) {
    p.mu.Lock()
    ep, ok := p.endpoints[id]
    delete(p.endpoints, id)
    p.mu.Unlock()
    if ok {
        _ = ep.Close()
    }
}

// Close stops the dispatch loop and closes every pooled Endpoint.
func (p *Pool) Close() {
    p.closeOnce.Do(func() { close(p.stop) })
    p.mu.Lock()
    eps := make([]*Endpoint, 0, len(p.endpoints))
    for _, ep := range p.endpoints {
        eps = append(eps, ep)
    }
    p.endpoints = make(map[wire.EndpointId]*Endpoint)
    p.mu.Unlock()
    for _, ep := range eps {
        _ = ep.Close()
    }
}
