package main

import (
    "context"
    "encoding/json"
    "flag"
    "fmt"
    "os"
    "time"

    "go.uber.org/zap"

    "meshnode/pkg/config"
    "meshnode/pkg/meshnode"
    "meshnode/pkg/transport"
    "meshnode/pkg/wire"
)

// meshnode-ctl dials a node, waits for the handshake to converge, and
// prints what the Endpoint Registry, Capabilities store and Peer store
// learned about it: negotiated protocol version, advertised subjects, and
// connection-quality metadata gathered during the handshake.
func main() {
    kind := flag.String("kind", "udp", "transport kind: udp|tcp|quic|winpipe|mem")
    addr := flag.String("addr", ":7777", "node address to connect to")
    peer := flag.String("peer", "temp:ctl", "peer id hint used for the dial")
    name := flag.String("name", "meshnode-ctl", "node name stored as config node_id (the endpoint id comes from the identity key)")
    timeout := flag.Duration("timeout", 5*time.Second, "dial/handshake timeout")
    flag.Parse()

    logger, _ := zap.NewProduction()
    zap.ReplaceGlobals(logger)
    defer func() { _ = logger.Sync() }()

    cfg := config.Default()
    cfg.NodeID = *name
    cfg.DataDir, _ = os.MkdirTemp("", "meshnode-ctl-")
    cfg.Transports = []config.TransportConfig{
        {Kind: *kind, Dial: []config.PeerDialConfig{{Address: *addr, PeerID: *peer}}},
    }

    n, err := meshnode.New(cfg, logger)
    if err != nil {
        fatalf("build node: %v", err)
    }
    defer func() { _ = n.Close() }()

    ctx, cancel := context.WithTimeout(context.Background(), *timeout)
    defer cancel()

    if err := n.Start(ctx); err != nil {
        fatalf("start: %v", err)
    }

    target := transport.PeerID(*peer)
    if !waitApproved(ctx, n, target) {
        fatalf("handshake with %s did not converge within %s", target, timeout.String())
    }

    printPeer(n, target)
}

func waitApproved(ctx context.Context, n *meshnode.Node, id wire.EndpointId) bool {
    for {
        if n.Registry().IsApproved(id) {
            return true
        }
        select {
        case <-ctx.Done():
            return false
        case <-time.After(20 * time.Millisecond):
        }
    }
}

func printPeer(n *meshnode.Node, id wire.EndpointId) {
    info, _ := n.Registry().Get(id)
    fmt.Printf("Endpoint: %s\nState: %v\n", id, info.State)

    if desc, ok := n.Capabilities().Get(id); ok {
        fmt.Println("\nAdvertised capabilities:")
        for _, v := range desc.Versions {
            fmt.Println("  version:", v)
        }
        for _, s := range desc.Subjects {
            fmt.Println("  subject:", s)
        }
    } else {
        fmt.Println("\nNo capability advertisement recorded")
    }

    if meta, ok := n.Peers().Get(id); ok {
        fmt.Println("\nConnection metadata:")
        b, _ := json.MarshalIndent(meta, "  ", "  ")
        fmt.Println("  " + string(b))
    }
}

func fatalf(format string, a ...any) {
    _, _ = fmt.Fprintf(os.Stderr, format+"\n", a...)
    os.Exit(1)
}
