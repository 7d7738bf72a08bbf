package dispatch

import (
    "context"
    "os"
    "testing"

    "meshnode/pkg/wire"
)

func TestDataHandlerWritesChunksToDisk(t *testing.T) {
    dir := t.TempDir()
    h := NewDataHandler(dir)
    w, err := h.ExpectTransfer("peer-a", "logs")
    if err != nil {
        t.Fatalf("expect: %v", err)
    }
    h.ProcessData("peer-a", wire.DataTransferFrame{Chunk: []byte("hello "), SeqIndex: 0, SeqTotal: 2})
    h.ProcessData("peer-a", wire.DataTransferFrame{Chunk: []byte("world"), SeqIndex: 1, SeqTotal: 2, Final: true})

    res, err := w.Wait(context.Background())
    if err != nil {
        t.Fatalf("wait: %v", err)
    }
    b, err := os.ReadFile(res.Path)
    if err != nil {
        t.Fatalf("read: %v", err)
    }
    if string(b) != "hello world" {
        t.Fatalf("want %q, got %q", "hello world", string(b))
    }
    if res.Size != int64(len(b)) {
        t.Fatalf("size mismatch: %d vs %d", res.Size, len(b))
    }
}

func TestDataHandlerDropsFrameWithoutExpect(t *testing.T) {
    dir := t.TempDir()
    h := NewDataHandler(dir)
    // Should not panic even though no ExpectTransfer was made.
    h.ProcessData("stranger", wire.DataTransferFrame{Chunk: []byte("x"), Final: true})
}

func TestDataHandlerCancel(t *testing.T) {
    dir := t.TempDir()
    h := NewDataHandler(dir)
    w, err := h.ExpectTransfer("peer-b", "logs")
    if err != nil {
        t.Fatalf("expect: %v", err)
    }
    sentinel := os.ErrClosed
    h.Cancel("peer-b", sentinel)
    _, err = w.Wait(context.Background())
    if err != sentinel {
        t.Fatalf("want sentinel, got %v", err)
    }
}
