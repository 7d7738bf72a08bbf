// Package transport defines the canonical transport interfaces meshnode's
// protocol plane runs over, plus basic implementations (udp, tcp, quic,
// winpipe, mem).
//
// Key concepts:
// - Transport: dials/listens for Sessions of a specific Kind (QUIC/TCP/UDP/etc.)
// - Session: a bidirectional connection to a peer; may support multiplexed streams
// - Stream: a Send/Recv channel of wire.Envelope frames
package transport

