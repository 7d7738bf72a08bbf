// Package codec provides pluggable marshalers for frame bodies exchanged
// between endpoints.
package codec

// Codec marshals and unmarshals frame bodies. Implementations must be
// deterministic and safe for cross-node exchange.
type Codec interface {
    ContentType() string
    Marshal(v any) ([]byte, error)
    Unmarshal(data []byte, v any) error
}

// Registry maps content types to codecs.
type Registry struct{ byType map[string]Codec }

// NewRegistry constructs a registry preloaded with the default codec set:
// JSON, CBOR and the structpb-backed protobuf codec. CBOR is the default
// wire format for the message channel.
func NewRegistry() *Registry {
    r := &Registry{byType: make(map[string]Codec)}
    r.Register(JSON())
    if c, err := CBOR(); err == nil {
        r.Register(c)
    }
    r.Register(Struct())
    return r
}

func (r *Registry) Register(c Codec) { r.byType[c.ContentType()] = c }

func (r *Registry) Get(contentType string) Codec { return r.byType[contentType] }
