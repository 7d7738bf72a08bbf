package wire

import (
    "encoding/binary"
    "errors"
)

// Fixed framing header (16 bytes), little-endian. This is deliberately thin:
// it exists only to let a stream reader find frame boundaries and dispatch
// on type/priority before touching the codec-encoded body, which carries
// the full FrameHeader (sender/id/in_response_to) and typed payload.
//
//  0 ..1  Magic       'M''N' (0x4d4e)
//  2      Version     u8  (wire framing version, distinct from ProtocolVersion)
//  3      Type        u8  (FrameType)
//  4      Format      u8  (body codec: json/cbor/proto)
//  5      Priority    u8  (0=control, 1=realtime, 2=bulk)
//  6 ..7  Reserved    u16
//  8 ..11 BodyLen     u32
//  12..15 Reserved2   u32
const (
    headerSize = 16
    magicWord  = uint16(0x4d4e)
)

var (
    ErrShortHeader = errors.New("wire: short header")
    ErrBadMagic    = errors.New("wire: bad magic")
)

// Header is the fixed framing header prepended to every frame on the wire.
type Header struct {
    Version  uint8
    Type     FrameType
    Format   Format
    Priority uint8
    BodyLen  uint32
}

func (h *Header) MarshalBinary() ([]byte, error) {
    buf := make([]byte, headerSize)
    binary.LittleEndian.PutUint16(buf[0:2], magicWord)
    buf[2] = h.Version
    buf[3] = byte(h.Type)
    buf[4] = byte(h.Format)
    buf[5] = h.Priority
    binary.LittleEndian.PutUint32(buf[8:12], h.BodyLen)
    return buf, nil
}

func (h *Header) UnmarshalBinary(buf []byte) error {
    if len(buf) < headerSize {
        return ErrShortHeader
    }
    if binary.LittleEndian.Uint16(buf[0:2]) != magicWord {
        return ErrBadMagic
    }
    h.Version = buf[2]
    h.Type = FrameType(buf[3])
    h.Format = Format(buf[4])
    h.Priority = buf[5]
    h.BodyLen = binary.LittleEndian.Uint32(buf[8:12])
    return nil
}
