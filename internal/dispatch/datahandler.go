package dispatch

import (
    "io"
    "os"
    "path/filepath"
    "sync"

    "meshnode/internal/waiter"
    "meshnode/pkg/wire"
)

// dataResult is what a transfer_data caller ultimately receives.
type dataResult struct {
    Path string
    Size int64
}

// DataHandler accepts inbound DataTransferFrame sequences and writes them
// to disk, fulfilling a one-shot waiter registered per peer before the
// transfer begins. Only one bulk stream per peer is expected at a time:
// a second ExpectTransfer call for a peer that already has one pending
// replaces it, mirroring the "one-shot per-peer" contract rather than
// queuing concurrent transfers.
type DataHandler struct {
    dataDir string

    mu      sync.Mutex
    pending map[wire.EndpointId]*transferState
}

type transferState struct {
    w    *waiter.Waiter[dataResult]
    file *os.File
    path string
}

// NewDataHandler roots written files under dataDir.
func NewDataHandler(dataDir string) *DataHandler {
    return &DataHandler{dataDir: dataDir, pending: make(map[wire.EndpointId]*transferState)}
}

// ExpectTransfer registers the waiter fulfilled when from completes its
// next bulk transfer for subject.
func (h *DataHandler) ExpectTransfer(from wire.EndpointId, subject string) (*waiter.Waiter[dataResult], error) {
    if err := os.MkdirAll(h.dataDir, 0o755); err != nil {
        return nil, err
    }
    path := filepath.Join(h.dataDir, sanitizeSubject(subject)+"-"+sanitizeSubject(string(from)))
    f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
    if err != nil {
        return nil, err
    }
    w := waiter.New[dataResult]()
    h.mu.Lock()
    if old, ok := h.pending[from]; ok {
        _ = old.file.Close()
    }
    h.pending[from] = &transferState{w: w, file: f, path: path}
    h.mu.Unlock()
    return w, nil
}

// ProcessData handles one inbound DataTransferFrame, appending its chunk
// to the file opened by ExpectTransfer and fulfilling the waiter on the
// final frame. A frame arriving with no prior ExpectTransfer is dropped.
func (h *DataHandler) ProcessData(from wire.EndpointId, f wire.DataTransferFrame) {
    h.mu.Lock()
    st, ok := h.pending[from]
    h.mu.Unlock()
    if !ok {
        return
    }
    if _, err := st.file.Write(f.Chunk); err != nil {
        h.failTransfer(from, st, err)
        return
    }
    if !f.Final {
        return
    }
    size, _ := st.file.Seek(0, io.SeekCurrent)
    _ = st.file.Close()
    h.mu.Lock()
    delete(h.pending, from)
    h.mu.Unlock()
    st.w.Fulfill(dataResult{Path: st.path, Size: size})
}

func (h *DataHandler) failTransfer(from wire.EndpointId, st *transferState, err error) {
    _ = st.file.Close()
    h.mu.Lock()
    delete(h.pending, from)
    h.mu.Unlock()
    st.w.Cancel(err)
}

// Cancel drops any pending transfer for from, cancelling its waiter.
func (h *DataHandler) Cancel(from wire.EndpointId, err error) {
    h.mu.Lock()
    st, ok := h.pending[from]
    if ok {
        delete(h.pending, from)
    }
    h.mu.Unlock()
    if ok {
        _ = st.file.Close()
        st.w.Cancel(err)
    }
}

func sanitizeSubject(s string) string {
    out := make([]rune, 0, len(s))
    for _, r := range s {
        switch {
        case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
            out = append(out, r)
        default:
            out = append(out, '_')
        }
    }
    return string(out)
}
