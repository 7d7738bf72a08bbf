package channel

import (
    "context"
    "testing"
    "time"

    "meshnode/internal/dispatch"
    "meshnode/internal/endpoints"
    "meshnode/internal/sending"
    "meshnode/pkg/transport"
    "meshnode/pkg/transport/mem"
    "meshnode/pkg/wire"
    "meshnode/pkg/wire/codec"
)

func newTestChannel(selfID wire.EndpointId) *Channel {
    reg := endpoints.New(endpoints.Signals{})
    return New(Config{
        Self: wire.EndpointInformation{
            ID: selfID,
            Protocol: wire.ProtocolInformation{
                Description: wire.ProtocolDescription{
                    Versions: []wire.ProtocolVersion{1},
                    Subjects: []string{"demo"},
                },
            },
        },
        Codecs:   codec.NewRegistry(),
        Format:   wire.FormatCBOR,
        Registry: reg,
        Handler:  dispatch.New(nil, nil),
        Data:     dispatch.NewDataHandler(""),
        SendPool: sending.NewPool(0, 0, 3),
    })
}

func TestChannelHandshakeConverges(t *testing.T) {
    tr := mem.New()
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()

    server := newTestChannel("peer-server")
    client := newTestChannel("peer-client")

    if err := server.Listen(ctx, tr, "rendezvous"); err != nil {
        t.Fatalf("listen: %v", err)
    }
    time.Sleep(10 * time.Millisecond)

    if err := client.Dial(ctx, tr, "rendezvous", transport.PeerID("link-1")); err != nil {
        t.Fatalf("dial: %v", err)
    }

    deadline := time.Now().Add(2 * time.Second)
    for time.Now().Before(deadline) {
        ci, cok := client.registry.Get("link-1")
        si, sok := server.registry.Get("link-1")
        if cok && sok && ci.State == endpoints.Approved && si.State == endpoints.Approved {
            return
        }
        time.Sleep(10 * time.Millisecond)
    }
    t.Fatalf("handshake did not converge within deadline")
}
