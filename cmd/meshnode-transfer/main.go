package main

import (
    "context"
    "flag"
    "fmt"
    "os"
    "strings"
    "time"

    "go.uber.org/zap"

    "meshnode/pkg/config"
    "meshnode/pkg/meshnode"
    "meshnode/pkg/transport"
    "meshnode/pkg/wire"
)

// meshnode-transfer dials a node, waits for the handshake to converge, and
// exercises transfer_data end to end: it asks the peer for a subject and
// reports where the resulting bytes landed on disk.
func main() {
    kind := flag.String("kind", "udp", "transport kind: udp|tcp|quic|winpipe|mem")
    addr := flag.String("addr", ":7777", "address to dial")
    peer := flag.String("peer", "temp:transfer", "peer id hint used for the dial")
    name := flag.String("name", "transfer-client", "node name stored as config node_id (the endpoint id comes from the identity key)")
    subject := flag.String("subject", "inventory.snapshot", "subject to request")
    params := flag.String("params", "", "comma-separated key=value params to send with the request")
    dataDir := flag.String("data-dir", "", "directory to write the received transfer into (default: temp dir)")
    timeout := flag.Duration("timeout", 30*time.Second, "dial/handshake/transfer timeout")
    flag.Parse()

    logger, _ := zap.NewDevelopment()
    zap.ReplaceGlobals(logger)
    defer func() { _ = logger.Sync() }()

    cfg := config.Default()
    cfg.NodeID = *name
    if *dataDir != "" {
        cfg.DataDir = *dataDir
    } else {
        cfg.DataDir, _ = os.MkdirTemp("", "meshnode-transfer-")
    }
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
    fmt.Println("handshake converged with", target, "; requesting subject", *subject)

    res, err := n.TransferData(ctx, target, *subject, parseParams(*params), *timeout)
    if err != nil {
        fatalf("transfer_data: %v", err)
    }
    fmt.Printf("transfer complete: %d bytes written to %s\n", res.Size, res.Path)
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

func parseParams(s string) map[string]string {
    if s == "" {
        return nil
    }
    out := make(map[string]string)
    for _, kv := range strings.Split(s, ",") {
        k, v, ok := strings.Cut(kv, "=")
        if !ok {
            continue
        }
        out[strings.TrimSpace(k)] = strings.TrimSpace(v)
    }
    return out
}

func fatalf(format string, a ...any) {
    _, _ = fmt.Fprintf(os.Stderr, format+"\n", a...)
    os.Exit(1)
}
