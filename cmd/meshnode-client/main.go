package main

import (
    "context"
    "flag"
    "fmt"
    "os"
    "time"

    "go.uber.org/zap"

    "meshnode/pkg/config"
    "meshnode/pkg/meshnode"
    "meshnode/pkg/transport"
    "meshnode/pkg/wire"
    "meshnode/pkg/wire/codec"
)

// meshnode-client dials a running node, waits for the handshake to
// converge, and sends a single ConnectionVerification probe, printing the
// round trip. It is the smallest possible exercise of the Protocol Layer's
// send_and_wait path from outside the node process.
func main() {
    kind := flag.String("kind", "udp", "transport kind: udp|tcp|quic|winpipe|mem")
    addr := flag.String("addr", ":7777", "address to dial")
    peer := flag.String("peer", "temp:client", "peer id hint used for the dial")
    name := flag.String("name", "client", "node name stored as config node_id (the endpoint id comes from the identity key)")
    subject := flag.String("subject", "", "protocol subject to advertise (optional)")
    nonce := flag.Uint64("nonce", 1, "nonce to echo in the verification probe")
    timeout := flag.Duration("timeout", 5*time.Second, "dial/handshake/verify timeout")
    flag.Parse()

    logger, _ := zap.NewDevelopment()
    zap.ReplaceGlobals(logger)
    defer func() { _ = logger.Sync() }()

    cfg := config.Default()
    cfg.NodeID = *name
    cfg.DataDir, _ = os.MkdirTemp("", "meshnode-client-")
    cfg.Transports = []config.TransportConfig{
        {Kind: *kind, Dial: []config.PeerDialConfig{{Address: *addr, PeerID: *peer}}},
    }
    if *subject != "" {
        cfg.Protocol.Subjects = []string{*subject}
    }

    n, err := meshnode.New(cfg, logger)
    if err != nil {
        fatalf("build node: %v", err)
    }
    defer func() { _ = n.Close() }()

    fmt.Println("local endpoint id:", n.Self().ID)

    ctx, cancel := context.WithTimeout(context.Background(), *timeout)
    defer cancel()

    if err := n.Start(ctx); err != nil {
        fatalf("start: %v", err)
    }

    target := transport.PeerID(*peer)
    if !waitApproved(ctx, n, target) {
        fatalf("handshake with %s did not converge within %s", target, timeout.String())
    }
    fmt.Println("handshake converged with", target)

    resp, err := n.VerifyConnection(ctx, target, 0, *nonce)
    if err != nil {
        fatalf("verify connection: %v", err)
    }
    var reply wire.ConnectionVerificationResponseFrame
    if err := wire.Decode(codec.NewRegistry(), resp.Env, &reply); err != nil {
        fatalf("decode verification response: %v", err)
    }
    fmt.Printf("verification response from %s: nonce=%d\n", resp.From, reply.Nonce)
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

func fatalf(format string, a ...any) {
    _, _ = fmt.Fprintf(os.Stderr, format+"\n", a...)
    os.Exit(1)
}
