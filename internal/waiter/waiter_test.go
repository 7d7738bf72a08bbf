package waiter

import (
    "context"
    "errors"
    "testing"
    "time"
)

func TestWaiterFulfill(t *testing.T) {
    w := New[int]()
    go w.Fulfill(7)
    v, err := w.Wait(context.Background())
    if err != nil {
        t.Fatalf("wait: %v", err)
    }
    if v != 7 {
        t.Fatalf("want 7, got %d", v)
    }
}

func TestWaiterCancel(t *testing.T) {
    w := New[int]()
    sentinel := errors.New("boom")
    go w.Cancel(sentinel)
    _, err := w.Wait(context.Background())
    if !errors.Is(err, sentinel) {
        t.Fatalf("want sentinel error, got %v", err)
    }
}

func TestWaiterFulfillThenCancelIsNoop(t *testing.T) {
    w := New[int]()
    w.Fulfill(1)
    w.Cancel(errors.New("ignored"))
    v, err := w.Wait(context.Background())
    if err != nil || v != 1 {
        t.Fatalf("first completion should win: v=%d err=%v", v, err)
    }
}

func TestWaiterContextTimeout(t *testing.T) {
    w := New[int]()
    ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
    defer cancel()
    _, err := w.Wait(ctx)
    if !errors.Is(err, context.DeadlineExceeded) {
        t.Fatalf("want deadline exceeded, got %v", err)
    }
}
