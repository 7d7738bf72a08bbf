package wire

import "testing"

func TestHeaderRoundtrip(t *testing.T) {
    h := Header{
        Version:  1,
        Type:     FrameConnectionVerification,
        Format:   FormatCBOR,
        Priority: PriorityRealtime,
        BodyLen:  1234,
    }
    b, err := h.MarshalBinary()
    if err != nil {
        t.Fatalf("marshal: %v", err)
    }
    if len(b) != headerSize {
        t.Fatalf("header size = %d", len(b))
    }
    var h2 Header
    if err := h2.UnmarshalBinary(b); err != nil {
        t.Fatalf("unmarshal: %v", err)
    }
    if h2 != h {
        t.Fatalf("headers differ: %#v vs %#v", h2, h)
    }
}

func TestHeaderBadMagic(t *testing.T) {
    buf := make([]byte, headerSize)
    var h Header
    if err := h.UnmarshalBinary(buf); err != ErrBadMagic {
        t.Fatalf("want ErrBadMagic, got %v", err)
    }
}

func TestHeaderShortBuffer(t *testing.T) {
    var h Header
    if err := h.UnmarshalBinary(make([]byte, 4)); err != ErrShortHeader {
        t.Fatalf("want ErrShortHeader, got %v", err)
    }
}
