// Package channel implements the Protocol Channel: the component that
// owns listeners and dialed sessions for every configured transport,
// drives the Handshake Conductor for each peer it sees, and feeds inbound
// frames to the Message Handler / Data Handler while outbound frames
// flow through the Sending Endpoint pool.
package channel

import (
    "context"
    "errors"
    "sync"

    "go.uber.org/zap"

    "meshnode/internal/dispatch"
    "meshnode/internal/endpoints"
    "meshnode/internal/handshake"
    "meshnode/internal/meshrerr"
    "meshnode/internal/sending"
    "meshnode/pkg/transport"
    "meshnode/pkg/wire"
    "meshnode/pkg/wire/codec"
)

// livenessResetter is the Connection Monitor's inbound-traffic hook: any
// frame received from an endpoint counts as proof of life, not just a
// probe reply.
type livenessResetter interface {
    ResetDeadline(id wire.EndpointId)
}

// Channel is the Protocol Channel: it hosts one receiver per inbound
// session and one Sending Endpoint per peer, and owns the registry and
// conductors that track each endpoint's lifecycle.
type Channel struct {
    log *zap.Logger

    self wire.EndpointInformation

    codecs  *codec.Registry
    format  wire.Format

    registry *endpoints.Registry
    handler  *dispatch.Handler
    data     *dispatch.DataHandler
    sendPool *sending.Pool
    monitor  livenessResetter

    onNegotiated func(id wire.EndpointId, remote wire.EndpointInformation)

    conductorsMu sync.Mutex
    conductors   map[wire.EndpointId]*handshake.Conductor

    transportsMu sync.Mutex
    transports   map[string]transport.Transport
    listeners    []transport.Listener

    wg sync.WaitGroup
}

// Config bundles the collaborators a Channel is built from.
type Config struct {
    Log      *zap.Logger
    Self     wire.EndpointInformation
    Codecs   *codec.Registry
    Format   wire.Format
    Registry *endpoints.Registry
    Handler  *dispatch.Handler
    Data     *dispatch.DataHandler
    SendPool *sending.Pool

    // Monitor, if set, has its ResetDeadline called on every inbound
    // frame, so a peer that is sending traffic but whose probe replies are
    // slow or lost is not evicted.
    Monitor livenessResetter

    // OnNegotiated, if set, is called once a handshake converges to
    // Approved, from both the initiator and the responder side, with the
    // protocol information the peer offered.
    OnNegotiated func(id wire.EndpointId, remote wire.EndpointInformation)
}

// New constructs a Channel from cfg.
func New(cfg Config) *Channel {
    log := cfg.Log
    if log == nil {
        log = zap.NewNop()
    }
    format := cfg.Format
    if format == wire.FormatUnknown {
        format = wire.FormatCBOR
    }
    return &Channel{
        log:        log,
        self:       cfg.Self,
        codecs:     cfg.Codecs,
        format:     format,
        registry:   cfg.Registry,
        handler:    cfg.Handler,
        data:       cfg.Data,
        sendPool:   cfg.SendPool,
        monitor:    cfg.Monitor,
        onNegotiated: cfg.OnNegotiated,
        conductors: make(map[wire.EndpointId]*handshake.Conductor),
        transports: make(map[string]transport.Transport),
    }
}

// Codecs returns the codec registry this channel encodes/decodes frames
// with, so the Protocol Layer façade can build wire-compatible envelopes.
func (c *Channel) Codecs() *codec.Registry { return c.codecs }

// Format returns the default wire format new outbound frames are encoded
// with.
func (c *Channel) Format() wire.Format { return c.format }

func (c *Channel) conductorFor(id wire.EndpointId) *handshake.Conductor {
    c.conductorsMu.Lock()
    defer c.conductorsMu.Unlock()
    if hc, ok := c.conductors[id]; ok {
        return hc
    }
    hc := handshake.New(nil)
    c.conductors[id] = hc
    return hc
}

// Listen starts accepting inbound sessions on t at address, spawning a
// receiver goroutine for each accepted session.
func (c *Channel) Listen(ctx context.Context, t transport.Transport, address string) error {
    l, err := t.Listen(ctx, address)
    if err != nil {
        return err
    }
    c.transportsMu.Lock()
    c.listeners = append(c.listeners, l)
    c.transportsMu.Unlock()

    c.wg.Add(1)
    go func() {
        defer c.wg.Done()
        for {
            sess, err := l.Accept(ctx)
            if err != nil {
                if ctx.Err() != nil {
                    return
                }
                c.log.Warn("accept failed", zap.Error(err))
                continue
            }
            c.wg.Add(1)
            go func() {
                defer c.wg.Done()
                c.serve(ctx, sess, false)
            }()
        }
    }()
    return nil
}

// Dial opens an outbound session to address over t and runs the handshake
// as initiator.
func (c *Channel) Dial(ctx context.Context, t transport.Transport, address string, peerHint transport.PeerID) error {
    sess, err := t.Dial(ctx, address, transport.PeerInfo{ID: peerHint, Addr: address})
    if err != nil {
        return meshrerr.ForEndpoint(wire.EndpointId(peerHint), errors.Join(meshrerr.ErrEndpointNotContactable, err))
    }
    c.wg.Add(1)
    go func() {
        defer c.wg.Done()
        c.serve(ctx, sess, true)
    }()
    return nil
}

// serve runs the handshake and receive loop for one session. initiator
// sends the first EndpointConnectFrame; a responder waits for one.
func (c *Channel) serve(ctx context.Context, sess transport.Session, initiator bool) {
    tempID := wire.EndpointId(sess.Peer().ID)
    if tempID == "" {
        tempID = wire.EndpointId(transport.TempPeerID(sess.TransportKind(), sess.RemoteAddr()))
    }

    if !c.registry.TryAdd(tempID, sess) {
        _ = sess.Close()
        return
    }

    strm, err := sess.OpenStream(ctx, transport.StreamControl)
    if err != nil {
        c.log.Warn("open control stream failed", zap.Error(err), zap.String("endpoint", string(tempID)))
        c.registry.TryRemove(tempID)
        return
    }

    hc := c.conductorFor(tempID)
    if initiator {
        connect, ok := hc.Initiate(c.self)
        if ok {
            c.sendFrame(strm, tempID, wire.FrameEndpointConnect, connect)
        }
    }

    for {
        raw, err := strm.RecvBytes()
        if err != nil {
            c.log.Debug("receive failed", zap.Error(err), zap.String("endpoint", string(tempID)))
            break
        }
        var env wire.Envelope
        if err := env.DecodeFrame(raw); err != nil {
            c.log.Debug("decode frame failed", zap.Error(err), zap.String("endpoint", string(tempID)))
            continue
        }
        c.dispatch(strm, tempID, env)
    }

    c.registry.TryRemove(tempID)
    c.sendPool.Remove(tempID)
    _ = strm.Close()
}

func (c *Channel) dispatch(strm transport.Stream, from wire.EndpointId, env wire.Envelope) {
    if c.monitor != nil {
        c.monitor.ResetDeadline(from)
    }

    state := endpoints.Absent
    if info, ok := c.registry.Get(from); ok {
        state = info.State
    }

    var hdr wire.FrameHeader
    switch env.Header.Type {
    case wire.FrameEndpointConnect:
        var f wire.EndpointConnectFrame
        if err := wire.Decode(c.codecs, env, &f); err != nil {
            return
        }
        hdr = f.FrameHeader
        if !c.handler.Admits(state, env.Header.Type) {
            return
        }
        hc := c.conductorFor(from)
        resp := hc.HandleConnect(c.self, f.Info)
        c.sendFrame(strm, from, wire.FrameEndpointConnectResponse, &resp)
        c.afterHandshake(from, hc, f.Info)
        return
    case wire.FrameEndpointConnectResponse:
        var f wire.EndpointConnectResponseFrame
        if err := wire.Decode(c.codecs, env, &f); err != nil {
            return
        }
        hdr = f.FrameHeader
        hc := c.conductorFor(from)
        hc.HandleConnectResponse(f)
        c.afterHandshake(from, hc, f.Info)
        return
    case wire.FrameEndpointDisconnect:
        var f wire.EndpointDisconnectFrame
        _ = wire.Decode(c.codecs, env, &f)
        c.registry.TryRemove(from)
        return
    case wire.FrameDataTransfer:
        if state != endpoints.Approved {
            return
        }
        var f wire.DataTransferFrame
        if err := wire.Decode(c.codecs, env, &f); err != nil {
            return
        }
        c.data.ProcessData(from, f)
        return
    default:
        if err := wire.Decode(c.codecs, env, &hdr); err != nil {
            return
        }
    }

    c.handler.ProcessMessage(from, state, hdr, env)
}

func (c *Channel) afterHandshake(id wire.EndpointId, hc *handshake.Conductor, remote wire.EndpointInformation) {
    switch hc.State() {
    case handshake.Approved:
        c.registry.TryStartApproval(id)
        c.registry.TryCompleteApproval(id, hc.Negotiated())
        if c.onNegotiated != nil {
            c.onNegotiated(id, remote)
        }
    case handshake.Rejected:
        c.registry.TryRemove(id)
    }
}

func (c *Channel) sendFrame(strm transport.Stream, to wire.EndpointId, ft wire.FrameType, body any) {
    env, err := wire.Encode(c.codecs, ft, c.format, body)
    if err != nil {
        c.log.Warn("encode failed", zap.Error(err), zap.String("endpoint", string(to)))
        return
    }
    raw, err := env.EncodeFrame()
    if err != nil {
        c.log.Warn("frame encode failed", zap.Error(err), zap.String("endpoint", string(to)))
        return
    }
    if err := strm.SendBytes(raw); err != nil {
        c.log.Warn("send failed", zap.Error(err), zap.String("endpoint", string(to)))
    }
}

// Close stops every listener and waits for in-flight sessions to drain.
func (c *Channel) Close() error {
    c.transportsMu.Lock()
    listeners := c.listeners
    c.transportsMu.Unlock()
    for _, l := range listeners {
        _ = l.Close()
    }
    c.wg.Wait()
    return nil
}

