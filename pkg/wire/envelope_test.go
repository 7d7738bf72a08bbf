package wire

import (
    "bytes"
    "testing"

    "meshnode/pkg/wire/codec"
)

func TestEncodeDecodeRoundtripJSON(t *testing.T) {
    reg := codec.NewRegistry()
    id, err := NewMessageId()
    if err != nil {
        t.Fatalf("new id: %v", err)
    }
    in := ConnectionVerificationFrame{
        FrameHeader: FrameHeader{Sender: "pk:ed25519:abc", ID: id},
        Nonce:       42,
    }
    e, err := Encode(reg, FrameConnectionVerification, FormatJSON, in)
    if err != nil {
        t.Fatalf("encode: %v", err)
    }
    if e.Header.Type != FrameConnectionVerification || e.Header.Priority != PriorityRealtime {
        t.Fatalf("header mismatch: %#v", e.Header)
    }
    var out ConnectionVerificationFrame
    if err := Decode(reg, e, &out); err != nil {
        t.Fatalf("decode: %v", err)
    }
    if out.Nonce != 42 || out.Sender != "pk:ed25519:abc" {
        t.Fatalf("roundtrip mismatch: %#v", out)
    }
}

func TestEnvelopeWriteReadFrom(t *testing.T) {
    reg := codec.NewRegistry()
    in := SuccessFrame{FrameHeader: FrameHeader{Sender: "temp:tcp:1.2.3.4:5"}}
    e, err := Encode(reg, FrameSuccess, FormatCBOR, in)
    if err != nil {
        t.Fatalf("encode: %v", err)
    }
    var buf bytes.Buffer
    if _, err := e.WriteTo(&buf); err != nil {
        t.Fatalf("writeto: %v", err)
    }
    var d Envelope
    if _, err := d.ReadFrom(&buf); err != nil {
        t.Fatalf("readfrom: %v", err)
    }
    var out SuccessFrame
    if err := Decode(reg, d, &out); err != nil {
        t.Fatalf("decode: %v", err)
    }
    if out.Sender != "temp:tcp:1.2.3.4:5" {
        t.Fatalf("sender mismatch: %#v", out)
    }
}

func TestDataTransferFrameCBORRoundtrip(t *testing.T) {
    reg := codec.NewRegistry()
    chunk := bytes.Repeat([]byte{0xAB}, 256)
    in := DataTransferFrame{
        FrameHeader: FrameHeader{Sender: "pk:ed25519:xyz"},
        Subject:     "logs",
        SeqIndex:    2,
        SeqTotal:    5,
        Chunk:       chunk,
    }
    e, err := Encode(reg, FrameDataTransfer, FormatCBOR, in)
    if err != nil {
        t.Fatalf("encode: %v", err)
    }
    if e.Header.Priority != PriorityBulk {
        t.Fatalf("want bulk priority, got %d", e.Header.Priority)
    }
    var out DataTransferFrame
    if err := Decode(reg, e, &out); err != nil {
        t.Fatalf("decode: %v", err)
    }
    if !bytes.Equal(out.Chunk, chunk) || out.SeqTotal != 5 {
        t.Fatalf("roundtrip mismatch")
    }
}
