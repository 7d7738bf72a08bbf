// Package capabilities keeps a queryable record of which protocol subjects
// and versions every endpoint this node has handshaked with advertised, so
// callers can pick a suitable endpoint for send_to/transfer_data without
// re-deriving it from the Endpoint Registry's live connection state.
package capabilities

import (
    "encoding/json"
    "sort"
    "strings"
    "sync"
    "time"

    "go.uber.org/zap"

    "meshnode/pkg/memkv"
    "meshnode/pkg/wire"
)

// Store is backed by memkv so advertisements can carry a TTL: a stale
// advertisement (endpoint went Absent without sending EndpointDisconnect)
// ages out on its own instead of lingering forever.
type Store struct {
    kv *memkv.Store

    mu        sync.RWMutex
    endpoints map[wire.EndpointId]struct{}
}

func NewStore(kv *memkv.Store) *Store {
    return &Store{kv: kv, endpoints: make(map[wire.EndpointId]struct{})}
}

type advertisementDoc struct {
    EndpointID    wire.EndpointId `json:"endpoint_id"`
    Versions      []uint32        `json:"versions,omitempty"`
    Subjects      []string        `json:"subjects,omitempty"`
    UpdatedUnixMs int64           `json:"updated_unix_ms"`
}

func keyFor(id wire.EndpointId) string { return "cap:endpoint:" + string(id) }

// Advertise records (or replaces) the protocol description an endpoint
// offered during its handshake, with ttl 0 meaning no expiry: a live
// endpoint's advertisement is kept fresh by re-Advertise on every
// reconnect, and explicitly removed on disconnect.
func (s *Store) Advertise(id wire.EndpointId, desc wire.ProtocolDescription, ttl time.Duration) {
    if id == "" {
        return
    }
    versions := make([]uint32, 0, len(desc.Versions))
    for _, v := range desc.Versions {
        versions = append(versions, uint32(v))
    }
    doc := advertisementDoc{
        EndpointID:    id,
        Versions:      versions,
        Subjects:      append([]string(nil), desc.Subjects...),
        UpdatedUnixMs: time.Now().UnixMilli(),
    }
    b, err := json.Marshal(doc)
    if err != nil {
        zap.L().Warn("capabilities: marshal advertisement failed", zap.String("endpoint", string(id)), zap.Error(err))
        return
    }
    s.kv.Set(keyFor(id), b, ttl)
    s.mu.Lock()
    s.endpoints[id] = struct{}{}
    s.mu.Unlock()
}

// Remove forgets an endpoint's advertisement, typically on disconnect.
func (s *Store) Remove(id wire.EndpointId) {
    s.kv.Delete(keyFor(id))
    s.mu.Lock()
    delete(s.endpoints, id)
    s.mu.Unlock()
}

// Get returns the last advertised description for id.
func (s *Store) Get(id wire.EndpointId) (wire.ProtocolDescription, bool) {
    b, ok := s.kv.Get(keyFor(id))
    if !ok {
        return wire.ProtocolDescription{}, false
    }
    var doc advertisementDoc
    if err := json.Unmarshal(b, &doc); err != nil {
        return wire.ProtocolDescription{}, false
    }
    versions := make([]wire.ProtocolVersion, 0, len(doc.Versions))
    for _, v := range doc.Versions {
        versions = append(versions, wire.ProtocolVersion(v))
    }
    return wire.ProtocolDescription{Versions: versions, Subjects: doc.Subjects}, true
}

// BySubject returns every live endpoint id that has advertised subject,
// sorted for stable iteration order across calls.
func (s *Store) BySubject(subject string) []wire.EndpointId {
    subject = strings.TrimSpace(subject)
    s.mu.RLock()
    ids := make([]wire.EndpointId, 0, len(s.endpoints))
    for id := range s.endpoints {
        ids = append(ids, id)
    }
    s.mu.RUnlock()
    sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

    var out []wire.EndpointId
    for _, id := range ids {
        desc, ok := s.Get(id)
        if !ok {
            continue
        }
        for _, subj := range desc.Subjects {
            if subj == subject {
                out = append(out, id)
                break
            }
        }
    }
    return out
}

// List returns every endpoint id with a live advertisement, sorted.
func (s *Store) List() []wire.EndpointId {
    s.mu.RLock()
    defer s.mu.RUnlock()
    ids := make([]wire.EndpointId, 0, len(s.endpoints))
    for id := range s.endpoints {
        ids = append(ids, id)
    }
    sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
    return ids
}
