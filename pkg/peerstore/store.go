// Package peerstore keeps discovery and connection-quality metadata about
// every endpoint this node has ever seen, independent of whether that
// endpoint is currently connected. The Endpoint Registry is the source of
// truth for live connection state; this store is the longer-lived,
// TTL-backed memory of addresses and link quality used to pick a transport
// when redialing an endpoint that has gone Absent.
package peerstore

import (
    "encoding/json"
    "sync"
    "time"

    "go.uber.org/zap"

    "meshnode/pkg/memkv"
    "meshnode/pkg/transport"
    "meshnode/pkg/wire"
)

// Store persists peer metadata in the in-memory KV, evicting entries that
// go untouched past defaultPeerTTL.
type Store struct {
    kv *memkv.Store

    idxMu sync.RWMutex
    index map[wire.EndpointId]struct{}
}

func NewStore(kv *memkv.Store) *Store {
    return &Store{kv: kv, index: make(map[wire.EndpointId]struct{})}
}

// Meta is what this node remembers about an endpoint between connections.
type Meta struct {
    ID          wire.EndpointId   `json:"id"`
    Addresses   []string          `json:"addresses,omitempty"`
    Transports  []string          `json:"transports,omitempty"`
    Reachable   bool              `json:"reachable"`
    LastSeen    int64             `json:"last_seen_unix_ms"`
    Score       float32           `json:"score"`
    RTTms       uint32            `json:"rtt_ms"`
    LossRatio   float32           `json:"loss_ratio"`
    Labels      map[string]string `json:"labels,omitempty"`
    MsgsIn      uint64            `json:"msgs_in"`
    MsgsOut     uint64            `json:"msgs_out"`
    BytesIn     uint64            `json:"bytes_in"`
    BytesOut    uint64            `json:"bytes_out"`
    LastHelloTs int64             `json:"last_hello_ts_unix_ms"`
}

const defaultPeerTTL = 5 * time.Minute

func keyFor(id wire.EndpointId) string { return "peer:" + string(id) }

// Upsert replaces a peer's stored metadata wholesale.
func (s *Store) Upsert(m Meta) {
    b, err := json.Marshal(m)
    if err != nil {
        zap.L().Warn("peerstore: marshal failed", zap.String("peer", string(m.ID)), zap.Error(err))
        return
    }
    s.kv.Set(keyFor(m.ID), b, defaultPeerTTL)
    s.idxMu.Lock()
    s.index[m.ID] = struct{}{}
    s.idxMu.Unlock()
    zap.L().Debug("peer upsert", zap.String("peer", string(m.ID)), zap.Strings("addrs", m.Addresses))
}

// Get returns stored metadata for id.
func (s *Store) Get(id wire.EndpointId) (Meta, bool) {
    b, ok := s.kv.Get(keyFor(id))
    if !ok {
        return Meta{}, false
    }
    var m Meta
    if err := json.Unmarshal(b, &m); err != nil {
        return Meta{}, false
    }
    return m, true
}

// Touch refreshes last-seen and appends addr to the known address list if
// new, sliding the TTL forward. An id with no stored entry gets one.
func (s *Store) Touch(id wire.EndpointId, addr string, when time.Time) {
    apply := func(old []byte) []byte {
        var m Meta
        _ = json.Unmarshal(old, &m)
        m.ID = id
        if when.IsZero() {
            when = time.Now()
        }
        m.LastSeen = when.UnixMilli()
        m.Reachable = true
        if addr != "" {
            found := false
            for _, a := range m.Addresses {
                if a == addr {
                    found = true
                    break
                }
            }
            if !found {
                m.Addresses = append(m.Addresses, addr)
            }
        }
        b, _ := json.Marshal(m)
        return b
    }
    if !s.kv.Update(keyFor(id), apply) {
        s.kv.Set(keyFor(id), apply(nil), defaultPeerTTL)
    }
    s.kv.Expire(keyFor(id), defaultPeerTTL)
    s.idxMu.Lock()
    s.index[id] = struct{}{}
    s.idxMu.Unlock()
}

// RecordQuality merges a fresh transport.Quality sample into stored metadata.
func (s *Store) RecordQuality(id wire.EndpointId, q transport.Quality) {
    s.kv.Update(keyFor(id), func(old []byte) []byte {
        var m Meta
        _ = json.Unmarshal(old, &m)
        m.ID = id
        if q.RTT > 0 {
            m.RTTms = uint32(q.RTT / time.Millisecond)
        }
        m.LossRatio = q.LossRatio
        m.Score = q.Score
        if !q.LastSeen.IsZero() {
            m.LastSeen = q.LastSeen.UnixMilli()
        }
        b, _ := json.Marshal(m)
        return b
    })
}

// RecordExchange accumulates message/byte counters for id.
func (s *Store) RecordExchange(id wire.EndpointId, inBytes, outBytes, inMsgs, outMsgs uint64) {
    s.kv.Update(keyFor(id), func(old []byte) []byte {
        var m Meta
        _ = json.Unmarshal(old, &m)
        m.ID = id
        m.MsgsIn += inMsgs
        m.MsgsOut += outMsgs
        m.BytesIn += inBytes
        m.BytesOut += outBytes
        b, _ := json.Marshal(m)
        return b
    })
}

// Forget removes an endpoint's stored metadata, typically once a
// Disconnect frame has been observed rather than a transient drop.
func (s *Store) Forget(id wire.EndpointId) {
    s.kv.Delete(keyFor(id))
    s.idxMu.Lock()
    delete(s.index, id)
    s.idxMu.Unlock()
}

// ExpireAfter shortens or extends the retention window for id, e.g. to
// retire a temp:* pre-handshake identity shortly after it is rebound to a
// stable one instead of leaving both entries to expire independently.
func (s *Store) ExpireAfter(id wire.EndpointId, ttl time.Duration) {
    s.kv.Expire(keyFor(id), ttl)
}

// List returns a snapshot of every known endpoint id.
func (s *Store) List() []wire.EndpointId {
    s.idxMu.RLock()
    defer s.idxMu.RUnlock()
    out := make([]wire.EndpointId, 0, len(s.index))
    for id := range s.index {
        out = append(out, id)
    }
    return out
}
