package codec

import (
    "encoding/json"
    "fmt"

    "google.golang.org/protobuf/proto"
    "google.golang.org/protobuf/types/known/structpb"
)

// structCodec adapts arbitrary Go values onto the protobuf wire format by
// routing them through structpb.Struct, since none of the frame body types
// are generated proto.Message implementations. The value is first folded
// to a map[string]any via JSON (so field tags and nested structs still
// apply) and then wrapped in a structpb.Struct for deterministic protobuf
// marshaling.
type structCodec struct {
    mo proto.MarshalOptions
    uo proto.UnmarshalOptions
}

// Struct returns a protobuf codec for arbitrary Go values.
// Content-Type: application/x-protobuf
func Struct() Codec {
    return structCodec{
        mo: proto.MarshalOptions{Deterministic: true},
        uo: proto.UnmarshalOptions{},
    }
}

func (s structCodec) ContentType() string { return "application/x-protobuf" }

func (s structCodec) Marshal(v any) ([]byte, error) {
    m, err := toMap(v)
    if err != nil {
        return nil, fmt.Errorf("protobuf: %w", err)
    }
    ps, err := structpb.NewStruct(m)
    if err != nil {
        return nil, fmt.Errorf("protobuf: to struct: %w", err)
    }
    return s.mo.Marshal(ps)
}

func (s structCodec) Unmarshal(data []byte, v any) error {
    var ps structpb.Struct
    if err := s.uo.Unmarshal(data, &ps); err != nil {
        return fmt.Errorf("protobuf: %w", err)
    }
    raw, err := json.Marshal(ps.AsMap())
    if err != nil {
        return fmt.Errorf("protobuf: from struct: %w", err)
    }
    return json.Unmarshal(raw, v)
}

func toMap(v any) (map[string]any, error) {
    if m, ok := v.(map[string]any); ok {
        return m, nil
    }
    raw, err := json.Marshal(v)
    if err != nil {
        return nil, err
    }
    var m map[string]any
    if err := json.Unmarshal(raw, &m); err != nil {
        return nil, err
    }
    return m, nil
}

// Proto exposes the raw structpb-wrapping codec for callers that already
// hold a proto.Message and want deterministic marshaling without the
// JSON round-trip (e.g. tests exercising structpb directly).
func Proto() Codec {
    return protoCodec{
        mo: proto.MarshalOptions{Deterministic: true},
        uo: proto.UnmarshalOptions{},
    }
}

type protoCodec struct {
    mo proto.MarshalOptions
    uo proto.UnmarshalOptions
}

func (p protoCodec) ContentType() string { return "application/x-protobuf" }

func (p protoCodec) Marshal(v any) ([]byte, error) {
    msg, ok := v.(proto.Message)
    if !ok {
        return nil, fmt.Errorf("protobuf: value does not implement proto.Message: %T", v)
    }
    return p.mo.Marshal(msg)
}

func (p protoCodec) Unmarshal(data []byte, v any) error {
    msg, ok := v.(proto.Message)
    if !ok {
        return fmt.Errorf("protobuf: target does not implement proto.Message: %T", v)
    }
    return p.uo.Unmarshal(data, msg)
}
