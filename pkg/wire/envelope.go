package wire

import (
    "fmt"
    "io"

    "meshnode/pkg/wire/codec"
)

// Format is the on-wire body encoding, carried in the fixed Header.
type Format uint8

const (
    FormatUnknown Format = iota
    FormatJSON
    FormatCBOR
    FormatProto
)

const (
    ContentUnknown = "application/octet-stream"
    ContentCBOR    = "application/cbor"
    ContentJSON    = "application/json"
    ContentProto   = "application/x-protobuf"
)

func (f Format) String() string {
    switch f {
    case FormatJSON:
        return ContentJSON
    case FormatCBOR:
        return ContentCBOR
    case FormatProto:
        return ContentProto
    default:
        return ContentUnknown
    }
}

// CodecFor resolves a codec for a wire format from the registry, falling
// back to freshly constructed defaults if the registry has none registered.
func CodecFor(r *codec.Registry, f Format) (codec.Codec, error) {
    switch f {
    case FormatJSON:
        if c := r.Get(ContentJSON); c != nil {
            return c, nil
        }
        return codec.JSON(), nil
    case FormatCBOR:
        if c := r.Get(ContentCBOR); c != nil {
            return c, nil
        }
        return codec.CBOR()
    case FormatProto:
        if c := r.Get(ContentProto); c != nil {
            return c, nil
        }
        return codec.Struct(), nil
    default:
        return nil, fmt.Errorf("wire: unknown format %d", f)
    }
}

// Envelope pairs the fixed framing Header with an encoded frame body.
type Envelope struct {
    Header Header
    Body   []byte
}

// Encode serializes v with the codec for format and wraps it with a
// header. The frame's priority is derived from ft unless overridden.
func Encode(reg *codec.Registry, ft FrameType, format Format, v any) (Envelope, error) {
    c, err := CodecFor(reg, format)
    if err != nil {
        return Envelope{}, err
    }
    b, err := c.Marshal(v)
    if err != nil {
        return Envelope{}, err
    }
    return Envelope{
        Header: Header{
            Version:  1,
            Type:     ft,
            Format:   format,
            Priority: PriorityFor(ft),
            BodyLen:  uint32(len(b)),
        },
        Body: b,
    }, nil
}

// Decode unmarshals e.Body into v using the codec named by e.Header.Format.
func Decode(reg *codec.Registry, e Envelope, v any) error {
    c, err := CodecFor(reg, e.Header.Format)
    if err != nil {
        return err
    }
    return c.Unmarshal(e.Body, v)
}

// EncodeFrame returns header+body as a single byte slice, for transports
// whose Stream already frames whole messages (so no further length
// delimiting is needed on top).
func (e *Envelope) EncodeFrame() ([]byte, error) {
    e.Header.BodyLen = uint32(len(e.Body))
    hb, err := e.Header.MarshalBinary()
    if err != nil {
        return nil, err
    }
    out := make([]byte, headerSize+len(e.Body))
    copy(out, hb)
    copy(out[headerSize:], e.Body)
    return out, nil
}

// DecodeFrame parses a single frame previously produced by EncodeFrame.
func (e *Envelope) DecodeFrame(buf []byte) error {
    if len(buf) < headerSize {
        return io.ErrUnexpectedEOF
    }
    if err := e.Header.UnmarshalBinary(buf[:headerSize]); err != nil {
        return err
    }
    need := int(e.Header.BodyLen)
    if headerSize+need > len(buf) {
        return io.ErrUnexpectedEOF
    }
    e.Body = append(e.Body[:0], buf[headerSize:headerSize+need]...)
    return nil
}

// WriteTo writes header + body to w.
func (e *Envelope) WriteTo(w io.Writer) (int64, error) {
    e.Header.BodyLen = uint32(len(e.Body))
    hb, err := e.Header.MarshalBinary()
    if err != nil {
        return 0, err
    }
    n1, err := w.Write(hb)
    if err != nil {
        return int64(n1), err
    }
    n2, err := w.Write(e.Body)
    return int64(n1 + n2), err
}

// ReadFrom reads header + body from r.
func (e *Envelope) ReadFrom(r io.Reader) (int64, error) {
    hb := make([]byte, headerSize)
    if _, err := io.ReadFull(r, hb); err != nil {
        return 0, err
    }
    if err := e.Header.UnmarshalBinary(hb); err != nil {
        return 0, err
    }
    if e.Header.BodyLen > (1 << 28) {
        return 0, fmt.Errorf("wire: body too large: %d", e.Header.BodyLen)
    }
    if e.Header.BodyLen > 0 {
        e.Body = make([]byte, int(e.Header.BodyLen))
        if _, err := io.ReadFull(r, e.Body); err != nil {
            return 0, err
        }
    } else {
        e.Body = nil
    }
    return int64(headerSize + int(e.Header.BodyLen)), nil
}
