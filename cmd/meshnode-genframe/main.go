package main

import (
    "encoding/hex"
    "flag"
    "fmt"
    "log"
    "os"
    "path/filepath"
    "strings"

    "meshnode/pkg/wire"
    "meshnode/pkg/wire/codec"
)

// meshnode-genframe writes one binary-encoded frame per wire.FrameType to
// disk, for use as golden test fixtures against wire.Envelope.DecodeFrame.
func main() {
    outDir := flag.String("out", "testdata/frame", "output directory for binary frames")
    flag.Parse()
    if err := os.MkdirAll(*outDir, 0o755); err != nil {
        log.Fatal(err)
    }

    reg := codec.NewRegistry()
    self := wire.EndpointId("pk:ed25519:AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
    peer := wire.EndpointId("pk:ed25519:BBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB")
    id, _ := wire.NewMessageId()
    inResponseTo, _ := wire.NewMessageId()

    info := wire.EndpointInformation{
        ID: self,
        Protocol: wire.ProtocolInformation{
            Description: wire.ProtocolDescription{
                Versions: []wire.ProtocolVersion{1},
                Subjects: []string{"inventory.snapshot"},
            },
        },
        Discovery: wire.DiscoveryInformation{
            ListenAddresses: []string{":7777"},
            TransportKinds:  []string{"udp"},
        },
    }

    connect := &wire.EndpointConnectFrame{Info: info}
    connect.Stamp(self, id, wire.NoMessageId)
    writeFrame(reg, *outDir, "endpoint_connect.bin", wire.FrameEndpointConnect, connect)

    connectResp := &wire.EndpointConnectResponseFrame{Accepted: true, Info: info}
    connectResp.Stamp(peer, id, inResponseTo)
    writeFrame(reg, *outDir, "endpoint_connect_response.bin", wire.FrameEndpointConnectResponse, connectResp)

    disconnect := &wire.EndpointDisconnectFrame{Reason: "graceful shutdown"}
    disconnect.Stamp(self, id, wire.NoMessageId)
    writeFrame(reg, *outDir, "endpoint_disconnect.bin", wire.FrameEndpointDisconnect, disconnect)

    verify := &wire.ConnectionVerificationFrame{Nonce: 42}
    verify.Stamp(self, id, wire.NoMessageId)
    writeFrame(reg, *outDir, "connection_verification.bin", wire.FrameConnectionVerification, verify)

    verifyResp := &wire.ConnectionVerificationResponseFrame{Nonce: 42}
    verifyResp.Stamp(peer, id, inResponseTo)
    writeFrame(reg, *outDir, "connection_verification_response.bin", wire.FrameConnectionVerificationResponse, verifyResp)

    dl := &wire.DataDownloadRequestFrame{Subject: "inventory.snapshot", Params: map[string]string{"since": "2026-08-01"}}
    dl.Stamp(self, id, wire.NoMessageId)
    writeFrame(reg, *outDir, "data_download_request.bin", wire.FrameDataDownloadRequest, dl)

    chunk := make([]byte, 32)
    for i := range chunk {
        chunk[i] = byte(i)
    }
    transfer := &wire.DataTransferFrame{Subject: "inventory.snapshot", SeqIndex: 0, SeqTotal: 1, Chunk: chunk, Final: true}
    transfer.Stamp(peer, id, wire.NoMessageId)
    writeFrame(reg, *outDir, "data_transfer.bin", wire.FrameDataTransfer, transfer)

    success := &wire.SuccessFrame{}
    success.Stamp(peer, id, inResponseTo)
    writeFrame(reg, *outDir, "success.bin", wire.FrameSuccess, success)

    failure := &wire.FailureFrame{Code: "not_found", Message: "subject not recognized"}
    failure.Stamp(peer, id, inResponseTo)
    writeFrame(reg, *outDir, "failure.bin", wire.FrameFailure, failure)

    unknown := &wire.UnknownMessageTypeFrame{OriginalType: wire.FrameDataDownloadRequest}
    unknown.Stamp(peer, id, inResponseTo)
    writeFrame(reg, *outDir, "unknown_message_type.bin", wire.FrameUnknownMessageType, unknown)

    fmt.Println("Generated frames in", *outDir)
}

func writeFrame(reg *codec.Registry, dir, name string, ft wire.FrameType, body wire.Framed) {
    env, err := wire.Encode(reg, ft, wire.FormatCBOR, body)
    if err != nil {
        log.Fatalf("encode %s: %v", name, err)
    }
    raw, err := env.EncodeFrame()
    if err != nil {
        log.Fatalf("frame %s: %v", name, err)
    }
    p := filepath.Join(dir, name)
    if err := os.WriteFile(p, raw, 0o644); err != nil {
        log.Fatal(err)
    }
    fmt.Printf("%-36s %5d bytes  head: %s\n", name, len(raw), shortHex(raw, 64))
}

func shortHex(b []byte, n int) string {
    if len(b) == 0 {
        return ""
    }
    if n > len(b) {
        n = len(b)
    }
    enc := hex.EncodeToString(b[:n])
    if len(b) > n {
        enc += "..."
    }
    var out []string
    for i := 0; i < len(enc); i += 4 {
        j := i + 4
        if j > len(enc) {
            j = len(enc)
        }
        out = append(out, enc[i:j])
    }
    return strings.Join(out, " ")
}
