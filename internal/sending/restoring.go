// Package sending implements the Sending Endpoint (a per-peer pool of
// message and data channels) and the Restoring Channel it is built from: a
// fault-tolerant wrapper around a transport.Stream that transparently
// reopens the underlying stream and retries a send on failure.
package sending

import (
    "context"
    "errors"
    "io"

    "meshnode/internal/meshrerr"
    "meshnode/pkg/transport"
)

// Opener opens a fresh stream to the peer this RestoringChannel serves.
type Opener func(ctx context.Context) (transport.Stream, error)

// RestoringChannel retries a send across stream failures. maxRestarts
// bounds the number of times the underlying stream is reopened; the retry
// counter is total attempts, matching the resolved reading of the wire
// contract's retry semantics (an attempt that consumes the whole budget
// without success returns MaxRestarts, not one further attempt).
type RestoringChannel struct {
    open        Opener
    maxRestarts int

    stream transport.Stream
}

// New builds a RestoringChannel around opener with the given restart
// budget. maxRestarts is the total number of send attempts, including the
// first: 0 means Send/SendSeekable never touch the transport at all and
// return meshrerr.ErrMaxRestarts immediately. Negative values are treated
// as 0.
func New(opener Opener, maxRestarts int) *RestoringChannel {
    if maxRestarts < 0 {
        maxRestarts = 0
    }
    return &RestoringChannel{open: opener, maxRestarts: maxRestarts}
}

// Send transmits payload, transparently reopening the stream after a
// failed attempt and trying again until maxRestarts attempts have been
// made. Once that budget is spent it returns meshrerr.ErrMaxRestarts
// joined with the last error; if ctx is done before an attempt it returns
// meshrerr.ErrCancelled.
func (c *RestoringChannel) Send(ctx context.Context, payload []byte) error {
    var lastErr error
    for attempt := 0; attempt < c.maxRestarts; attempt++ {
        if err := ctx.Err(); err != nil {
            return meshrerr.ErrCancelled
        }
        s, err := c.ensureStream(ctx)
        if err != nil {
            lastErr = err
            continue
        }
        if err := s.SendBytes(payload); err != nil {
            c.invalidate()
            lastErr = err
            continue
        }
        return nil
    }
    if lastErr != nil {
        return errors.Join(meshrerr.ErrMaxRestarts, lastErr)
    }
    return meshrerr.ErrMaxRestarts
}

// SendSeekable behaves like Send but rewinds src before each retry,
// allowing a stream fault mid-write to be retried safely. A fault that
// occurs on a non-seekable src should be sent through Send instead.
func (c *RestoringChannel) SendSeekable(ctx context.Context, src io.ReadSeeker) error {
    start, err := src.Seek(0, io.SeekCurrent)
    if err != nil {
        return meshrerr.ErrSendFailed
    }

    var lastErr error
    for attempt := 0; attempt < c.maxRestarts; attempt++ {
        if err := ctx.Err(); err != nil {
            return meshrerr.ErrCancelled
        }
        if attempt > 0 {
            if _, err := src.Seek(start, io.SeekStart); err != nil {
                return errors.Join(meshrerr.ErrSendFailed, err)
            }
        }
        s, err := c.ensureStream(ctx)
        if err != nil {
            lastErr = err
            continue
        }
        buf, err := io.ReadAll(src)
        if err != nil {
            return errors.Join(meshrerr.ErrSendFailed, err)
        }
        if err := s.SendBytes(buf); err != nil {
            c.invalidate()
            lastErr = err
            continue
        }
        return nil
    }
    if lastErr != nil {
        return errors.Join(meshrerr.ErrMaxRestarts, lastErr)
    }
    return meshrerr.ErrMaxRestarts
}

func (c *RestoringChannel) ensureStream(ctx context.Context) (transport.Stream, error) {
    if c.stream != nil {
        return c.stream, nil
    }
    s, err := c.open(ctx)
    if err != nil {
        return nil, err
    }
    c.stream = s
    return s, nil
}

func (c *RestoringChannel) invalidate() {
    if c.stream != nil {
        _ = c.stream.Close()
        c.stream = nil
    }
}

// Close releases the underlying stream, if any.
func (c *RestoringChannel) Close() error {
    if c.stream == nil {
        return nil
    }
    err := c.stream.Close()
    c.stream = nil
    return err
}
