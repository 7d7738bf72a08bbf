// Package meshnode is the Protocol Layer: the public façade that composes
// the Endpoint Registry, Sending Endpoint pool, Message/Data Handlers,
// Handshake Conductor, Protocol Channel and Connection Monitor into the
// four operations an application actually calls: send_to, send_and_wait,
// transfer_data and verify_connection.
package meshnode

import (
    "bytes"
    "context"
    "errors"
    "fmt"
    "io"
    "time"

    "go.uber.org/zap"

    "meshnode/internal/channel"
    "meshnode/internal/dispatch"
    "meshnode/internal/endpoints"
    "meshnode/internal/meshrerr"
    "meshnode/internal/monitor"
    "meshnode/internal/sending"
    "meshnode/internal/waiter"
    "meshnode/pkg/capabilities"
    "meshnode/pkg/config"
    "meshnode/pkg/identity"
    "meshnode/pkg/memkv"
    "meshnode/pkg/peerstore"
    "meshnode/pkg/transport"
    "meshnode/pkg/wire"
    "meshnode/pkg/wire/codec"
)

// Node is the running protocol-plane instance for one local identity.
type Node struct {
    cfg *config.Config
    log *zap.Logger

    self wire.EndpointInformation

    kv           *memkv.Store
    registry     *endpoints.Registry
    handler      *dispatch.Handler
    data         *dispatch.DataHandler
    sendPool     *sending.Pool
    channel      *channel.Channel
    monitor      *monitor.Monitor
    capabilities *capabilities.Store
    peers        *peerstore.Store

    waitTimeout     time.Duration
    maxMissedProbes int

    provider DataProvider
}

// DataProvider supplies the bytes for a subject a peer requested via
// TransferData on its end. It is the forward_data half of a bulk transfer:
// the node receiving a DataDownloadRequestFrame calls it to get a reader,
// then sends everything read from it as a single DataTransferFrame.
type DataProvider func(ctx context.Context, from wire.EndpointId, subject string, params map[string]string) (io.Reader, error)

// SetDataProvider installs the callback that answers DataDownloadRequest
// frames from peers. Until one is set, such requests are rejected with a
// FailureFrame.
func (n *Node) SetDataProvider(p DataProvider) { n.provider = p }

// New builds a Node from cfg but does not yet listen on any transport;
// call Start for that.
func New(cfg *config.Config, log *zap.Logger) (*Node, error) {
    if log == nil {
        log = zap.NewNop()
    }

    _, selfID, err := identity.LoadOrGenEd25519(cfg.Identity)
    if err != nil {
        return nil, fmt.Errorf("meshnode: load identity: %w", err)
    }

    versions := make([]wire.ProtocolVersion, 0, len(cfg.Protocol.Versions))
    for _, v := range cfg.Protocol.Versions {
        versions = append(versions, wire.ProtocolVersion(v))
    }
    self := wire.EndpointInformation{
        ID: wire.EndpointId(selfID),
        Protocol: wire.ProtocolInformation{
            Description: wire.ProtocolDescription{
                Versions: versions,
                Subjects: cfg.Protocol.Subjects,
            },
        },
    }

    kv := memkv.New(memkv.Options{})
    peers := peerstore.NewStore(kv)
    caps := capabilities.NewStore(kv)

    n := &Node{
        cfg:             cfg,
        log:             log,
        self:            self,
        kv:              kv,
        capabilities:    caps,
        peers:           peers,
        waitTimeout:     time.Duration(cfg.Protocol.WaitForResponseTimeoutMS) * time.Millisecond,
        maxMissedProbes: cfg.Protocol.MaxMissedKeepAliveSignals,
    }

    n.handler = dispatch.New(nil, func(from wire.EndpointId, hdr wire.FrameHeader, env wire.Envelope) {
        log.Debug("unhandled frame", zap.String("endpoint", string(from)), zap.String("type", env.Header.Type.String()))
        if env.Header.Type == wire.FrameUnknownMessageType {
            return
        }
        reply := &wire.UnknownMessageTypeFrame{OriginalType: env.Header.Type}
        if err := n.Reply(context.Background(), from, wire.FrameUnknownMessageType, reply, hdr.ID); err != nil {
            log.Debug("unknown message type reply failed", zap.String("endpoint", string(from)), zap.Error(err))
        }
    })
    n.data = dispatch.NewDataHandler(cfg.DataDir)
    n.sendPool = sending.NewPool(0, 0, 3)
    n.handler.OnFrameType(wire.FrameConnectionVerification, n.replyToVerification)
    n.handler.OnFrameType(wire.FrameDataDownloadRequest, n.handleDataDownloadRequest)

    n.registry = endpoints.New(endpoints.Signals{
        OnConnected: func(id wire.EndpointId, sess transport.Session) {
            n.peers.Touch(id, sess.RemoteAddr().String(), time.Now())
            n.monitor.Track(id)
        },
        OnDisconnecting: func(id wire.EndpointId) {
            n.handler.OnEndpointSignedOff(id, meshrerr.ForEndpoint(id, meshrerr.ErrCancelled))
        },
        OnDisconnected: func(id wire.EndpointId) {
            n.capabilities.Remove(id)
            n.sendPool.Remove(id)
            n.monitor.Untrack(id)
        },
    })

    n.monitor = monitor.New(
        time.Duration(cfg.Protocol.KeepAliveIntervalMS)*time.Millisecond,
        n.maxMissedProbes,
        n.probe,
        func(id wire.EndpointId) { n.registry.TryRemove(id) },
        nil,
    )

    n.channel = channel.New(channel.Config{
        Log:      log,
        Self:     self,
        Codecs:   codec.NewRegistry(),
        Format:   wire.FormatCBOR,
        Registry: n.registry,
        Handler:  n.handler,
        Data:     n.data,
        SendPool: n.sendPool,
        Monitor:  n.monitor,
        OnNegotiated: func(id wire.EndpointId, remote wire.EndpointInformation) {
            n.capabilities.Advertise(id, remote.Protocol.Description, 0)
        },
    })

    return n, nil
}

// Start brings up every configured transport and the connection monitor.
func (n *Node) Start(ctx context.Context) error {
    go n.monitor.Run(ctx)

    for _, tc := range n.cfg.Transports {
        tr, err := channel.NewByKind(tc.Kind)
        if err != nil {
            return fmt.Errorf("meshnode: transport %q: %w", tc.Kind, err)
        }
        for _, addr := range tc.Listen {
            if err := n.channel.Listen(ctx, tr, addr); err != nil {
                return fmt.Errorf("meshnode: listen %s on %s: %w", addr, tc.Kind, err)
            }
            n.log.Info("listening", zap.String("transport", tc.Kind), zap.String("address", addr))
        }
        for _, d := range tc.Dial {
            if err := n.channel.Dial(ctx, tr, d.Address, transport.PeerID(d.PeerID)); err != nil {
                n.log.Warn("dial failed", zap.String("address", d.Address), zap.Error(err))
            }
        }
    }
    return nil
}

// Close tears the node down: closes listeners, cancels outstanding waiters,
// and releases the in-memory store.
func (n *Node) Close() error {
    n.handler.OnLocalChannelClosed(meshrerr.ErrCancelled)
    n.sendPool.Close()
    err := n.channel.Close()
    n.kv.Close()
    return err
}

// Self returns the locally advertised endpoint information.
func (n *Node) Self() wire.EndpointInformation { return n.self }

// SendTo encodes body as a frame of type ft and sends it to to,
// fire-and-forget. body must be a pointer to a frame struct (e.g.
// &wire.ConnectionVerificationFrame{...}).
func (n *Node) SendTo(ctx context.Context, to wire.EndpointId, ft wire.FrameType, body wire.Framed) error {
    id, err := wire.NewMessageId()
    if err != nil {
        return err
    }
    return n.sendStamped(ctx, to, ft, body, id, wire.NoMessageId)
}

func (n *Node) sendStamped(ctx context.Context, to wire.EndpointId, ft wire.FrameType, body wire.Framed, id, inResponseTo wire.MessageId) error {
    if !n.registry.IsApproved(to) && !isHandshakeFrame(ft) {
        return meshrerr.ForEndpoint(to, meshrerr.ErrEndpointNotContactable)
    }
    sess, ok := n.registry.ConnectionFor(to)
    if !ok {
        return meshrerr.ForEndpoint(to, meshrerr.ErrEndpointNotContactable)
    }
    body.Stamp(n.self.ID, id, inResponseTo)

    env, err := wire.Encode(n.channel.Codecs(), ft, n.channel.Format(), body)
    if err != nil {
        return err
    }
    raw, err := env.EncodeFrame()
    if err != nil {
        return err
    }
    ep := n.sendPool.Get(to, sess)
    return ep.SendMessage(ctx, raw, wire.PriorityFor(ft))
}

func isHandshakeFrame(ft wire.FrameType) bool {
    switch ft {
    case wire.FrameEndpointConnect, wire.FrameEndpointConnectResponse, wire.FrameEndpointDisconnect:
        return true
    default:
        return false
    }
}

// SendAndWait sends body to to and waits up to timeout (or cfg's default
// wait-for-response timeout when timeout is 0) for a frame whose
// in_response_to matches the message id just sent.
func (n *Node) SendAndWait(ctx context.Context, to wire.EndpointId, ft wire.FrameType, body wire.Framed, timeout time.Duration) (dispatch.Response, error) {
    if timeout <= 0 {
        timeout = n.waitTimeout
    }
    id, err := wire.NewMessageId()
    if err != nil {
        return dispatch.Response{}, err
    }
    w := waiter.New[dispatch.Response]()
    n.handler.RegisterWaiter(id, to, w)

    if err := n.sendStamped(ctx, to, ft, body, id, wire.NoMessageId); err != nil {
        n.handler.ForgetWaiter(id)
        return dispatch.Response{}, err
    }

    waitCtx, cancel := context.WithTimeout(ctx, timeout)
    defer cancel()
    resp, err := w.Wait(waitCtx)
    if err != nil {
        n.handler.ForgetWaiter(id)
        if errors.Is(err, context.DeadlineExceeded) {
            return dispatch.Response{}, meshrerr.ErrTimeout
        }
        return dispatch.Response{}, err
    }
    return resp, nil
}

// VerifyConnection is send_and_wait specialized to a keep-alive probe,
// also used internally by the Connection Monitor's prober.
func (n *Node) VerifyConnection(ctx context.Context, to wire.EndpointId, timeout time.Duration, nonce uint64) (dispatch.Response, error) {
    return n.SendAndWait(ctx, to, wire.FrameConnectionVerification, &wire.ConnectionVerificationFrame{Nonce: nonce}, timeout)
}

func (n *Node) probe(ctx context.Context, id wire.EndpointId) error {
    _, err := n.VerifyConnection(ctx, id, n.waitTimeout, uint64(time.Now().UnixNano()))
    return err
}

// Reply sends body to to as a correlated answer to inResponseTo.
func (n *Node) Reply(ctx context.Context, to wire.EndpointId, ft wire.FrameType, body wire.Framed, inResponseTo wire.MessageId) error {
    id, err := wire.NewMessageId()
    if err != nil {
        return err
    }
    return n.sendStamped(ctx, to, ft, body, id, inResponseTo)
}

func (n *Node) replyToVerification(from wire.EndpointId, env wire.Envelope) {
    var f wire.ConnectionVerificationFrame
    if err := wire.Decode(n.channel.Codecs(), env, &f); err != nil {
        return
    }
    if err := n.Reply(context.Background(), from, wire.FrameConnectionVerificationResponse,
        &wire.ConnectionVerificationResponseFrame{Nonce: f.Nonce}, f.ID); err != nil {
        n.log.Debug("verification reply failed", zap.String("endpoint", string(from)), zap.Error(err))
    }
}

func (n *Node) handleDataDownloadRequest(from wire.EndpointId, env wire.Envelope) {
    var f wire.DataDownloadRequestFrame
    if err := wire.Decode(n.channel.Codecs(), env, &f); err != nil {
        return
    }
    if n.provider == nil {
        _ = n.Reply(context.Background(), from, wire.FrameFailure,
            &wire.FailureFrame{Code: "no_provider", Message: "no data provider configured"}, f.ID)
        return
    }
    go n.forwardData(from, f)
}

// forwardData is the responder side of a bulk transfer: it asks the
// installed DataProvider for a reader, buffers it (the wire contract for
// DataTransfer is one frame carrying the whole byte stream, not a chunk
// sequence), and sends that frame over a dedicated data channel through
// SendSeekable so a fault partway through is retried by rewinding rather
// than by resending in place.
func (n *Node) forwardData(from wire.EndpointId, req wire.DataDownloadRequestFrame) {
    ctx := context.Background()
    r, err := n.provider(ctx, from, req.Subject, req.Params)
    if err != nil {
        _ = n.Reply(ctx, from, wire.FrameFailure, &wire.FailureFrame{Code: "provider_error", Message: err.Error()}, req.ID)
        return
    }
    payload, err := io.ReadAll(r)
    if err != nil {
        _ = n.Reply(ctx, from, wire.FrameFailure, &wire.FailureFrame{Code: "provider_error", Message: err.Error()}, req.ID)
        return
    }

    sess, ok := n.registry.ConnectionFor(from)
    if !ok {
        return
    }
    ep := n.sendPool.Get(from, sess)
    dc := ep.OpenDataChannel(3)
    defer dc.Close()

    id, err := wire.NewMessageId()
    if err != nil {
        return
    }
    frame := &wire.DataTransferFrame{Subject: req.Subject, SeqIndex: 0, SeqTotal: 1, Chunk: payload, Final: true}
    frame.Stamp(n.self.ID, id, wire.NoMessageId)
    env, err := wire.Encode(n.channel.Codecs(), wire.FrameDataTransfer, n.channel.Format(), frame)
    if err != nil {
        return
    }
    raw, err := env.EncodeFrame()
    if err != nil {
        return
    }
    if err := dc.SendSeekable(ctx, bytes.NewReader(raw)); err != nil {
        n.log.Debug("data transfer failed", zap.String("endpoint", string(from)), zap.Error(err))
    }
}

// TransferResult reports where a completed transfer_data landed on disk.
type TransferResult struct {
    Path string
    Size int64
}

// TransferData requests subject from to: it registers a local expectation
// for the resulting DataTransfer stream, asks the peer for it via a
// DataDownloadRequest, and waits for the transfer to complete.
func (n *Node) TransferData(ctx context.Context, to wire.EndpointId, subject string, params map[string]string, timeout time.Duration) (TransferResult, error) {
    if timeout <= 0 {
        timeout = n.waitTimeout
    }
    w, err := n.data.ExpectTransfer(to, subject)
    if err != nil {
        return TransferResult{}, err
    }

    id, err := wire.NewMessageId()
    if err != nil {
        return TransferResult{}, err
    }
    if err := n.sendStamped(ctx, to, wire.FrameDataDownloadRequest, &wire.DataDownloadRequestFrame{Subject: subject, Params: params}, id, wire.NoMessageId); err != nil {
        n.data.Cancel(to, err)
        return TransferResult{}, err
    }

    waitCtx, cancel := context.WithTimeout(ctx, timeout)
    defer cancel()
    res, err := w.Wait(waitCtx)
    if err != nil {
        if errors.Is(err, context.DeadlineExceeded) {
            return TransferResult{}, meshrerr.ErrTimeout
        }
        return TransferResult{}, err
    }
    return TransferResult(res), nil
}

// Registry exposes the Endpoint Registry for callers that need to inspect
// live connection state (e.g. a status command).
func (n *Node) Registry() *endpoints.Registry { return n.registry }

// Capabilities exposes the capability/subject advertisement store.
func (n *Node) Capabilities() *capabilities.Store { return n.capabilities }

// Peers exposes the long-lived peer metadata store.
func (n *Node) Peers() *peerstore.Store { return n.peers }
