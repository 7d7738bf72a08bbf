package meshnode

import (
    "context"
    "testing"
    "time"

    "meshnode/pkg/config"
    "meshnode/pkg/transport"
    "meshnode/pkg/transport/mem"
    "meshnode/pkg/wire"
)

func newTestNode(t *testing.T, nodeID string, subjects ...string) *Node {
    t.Helper()
    cfg := config.Default()
    cfg.NodeID = nodeID
    cfg.DataDir = t.TempDir()
    cfg.Protocol.Subjects = subjects
    n, err := New(cfg, nil)
    if err != nil {
        t.Fatalf("New: %v", err)
    }
    t.Cleanup(func() { _ = n.Close() })
    return n
}

// connectOverMem wires two nodes together directly through the internal
// channel, bypassing Start's per-node transport construction so both sides
// share one in-process mem.Transport instance.
func connectOverMem(t *testing.T, ctx context.Context, server, client *Node, rendezvous string) {
    t.Helper()
    tr := mem.New()
    go server.monitor.Run(ctx)
    go client.monitor.Run(ctx)
    if err := server.channel.Listen(ctx, tr, rendezvous); err != nil {
        t.Fatalf("listen: %v", err)
    }
    time.Sleep(10 * time.Millisecond)
    if err := client.channel.Dial(ctx, tr, rendezvous, transport.PeerID("link-1")); err != nil {
        t.Fatalf("dial: %v", err)
    }
}

func waitApproved(t *testing.T, n *Node, id wire.EndpointId) {
    t.Helper()
    deadline := time.Now().Add(2 * time.Second)
    for time.Now().Before(deadline) {
        if n.Registry().IsApproved(id) {
            return
        }
        time.Sleep(10 * time.Millisecond)
    }
    t.Fatalf("endpoint %s never reached Approved", id)
}

func TestVerifyConnectionRoundTrips(t *testing.T) {
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()

    server := newTestNode(t, "server")
    client := newTestNode(t, "client")
    connectOverMem(t, ctx, server, client, "rendezvous")

    waitApproved(t, client, "link-1")
    waitApproved(t, server, "link-1")

    resp, err := client.VerifyConnection(ctx, "link-1", time.Second, 42)
    if err != nil {
        t.Fatalf("VerifyConnection: %v", err)
    }
    var reply wire.ConnectionVerificationResponseFrame
    if err := wire.Decode(client.channel.Codecs(), resp.Env, &reply); err != nil {
        t.Fatalf("decode reply: %v", err)
    }
}

func TestCapabilitiesAdvertisedAfterHandshake(t *testing.T) {
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()

    server := newTestNode(t, "server", "inventory")
    client := newTestNode(t, "client")
    connectOverMem(t, ctx, server, client, "rendezvous2")

    waitApproved(t, client, "link-1")

    deadline := time.Now().Add(time.Second)
    for time.Now().Before(deadline) {
        if desc, ok := client.Capabilities().Get("link-1"); ok && len(desc.Subjects) == 1 {
            return
        }
        time.Sleep(10 * time.Millisecond)
    }
    t.Fatalf("client never recorded server's advertised subjects")
}
