package sending

import (
    "bytes"
    "context"
    "errors"
    "testing"

    "meshnode/internal/meshrerr"
    "meshnode/pkg/transport"
)

type fakeStream struct {
    sent    [][]byte
    failN   int
    calls   int
    closed  bool
}

func (s *fakeStream) SendBytes(b []byte) error {
    s.calls++
    if s.calls <= s.failN {
        return errors.New("boom")
    }
    s.sent = append(s.sent, append([]byte(nil), b...))
    return nil
}

func (s *fakeStream) RecvBytes() ([]byte, error) { return nil, errors.New("not implemented") }
func (s *fakeStream) Close() error                { s.closed = true; return nil }

func TestRestoringChannelRetriesOnFailure(t *testing.T) {
    fs := &fakeStream{failN: 1}
    opens := 0
    ch := New(func(ctx context.Context) (transport.Stream, error) {
        opens++
        return fs, nil
    }, 3)

    if err := ch.Send(context.Background(), []byte("hello")); err != nil {
        t.Fatalf("send: %v", err)
    }
    if len(fs.sent) != 1 || !bytes.Equal(fs.sent[0], []byte("hello")) {
        t.Fatalf("expected one successful send, got %#v", fs.sent)
    }
    if opens < 2 {
        t.Fatalf("expected stream to be reopened after failure, opens=%d", opens)
    }
}

func TestRestoringChannelExhaustsRestarts(t *testing.T) {
    fs := &fakeStream{failN: 100}
    ch := New(func(ctx context.Context) (transport.Stream, error) {
        return fs, nil
    }, 2)

    err := ch.Send(context.Background(), []byte("x"))
    if !errors.Is(err, meshrerr.ErrMaxRestarts) {
        t.Fatalf("want ErrMaxRestarts, got %v", err)
    }
}

func TestRestoringChannelZeroRestartsNeverOpensTransport(t *testing.T) {
    opens := 0
    ch := New(func(ctx context.Context) (transport.Stream, error) {
        opens++
        return &fakeStream{}, nil
    }, 0)

    err := ch.Send(context.Background(), []byte("x"))
    if !errors.Is(err, meshrerr.ErrMaxRestarts) {
        t.Fatalf("want ErrMaxRestarts, got %v", err)
    }
    if opens != 0 {
        t.Fatalf("expected transport never opened, opens=%d", opens)
    }
}

func TestRestoringChannelSeekableRewindsOnRetry(t *testing.T) {
    fs := &fakeStream{failN: 1}
    ch := New(func(ctx context.Context) (transport.Stream, error) {
        return fs, nil
    }, 3)
    src := bytes.NewReader([]byte("payload"))
    if err := ch.SendSeekable(context.Background(), src); err != nil {
        t.Fatalf("send: %v", err)
    }
    if len(fs.sent) != 1 || !bytes.Equal(fs.sent[0], []byte("payload")) {
        t.Fatalf("expected full payload after rewind, got %#v", fs.sent)
    }
}
