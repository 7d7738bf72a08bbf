package wire

// FrameType enumerates the wire frames exchanged between endpoints.
type FrameType uint8

const (
    FrameUnknown FrameType = iota
    FrameEndpointConnect
    FrameEndpointConnectResponse
    FrameEndpointDisconnect
    FrameConnectionVerification
    FrameConnectionVerificationResponse
    FrameDataDownloadRequest
    FrameSuccess
    FrameFailure
    FrameUnknownMessageType
    FrameDataTransfer
)

func (t FrameType) String() string {
    switch t {
    case FrameEndpointConnect:
        return "EndpointConnect"
    case FrameEndpointConnectResponse:
        return "EndpointConnectResponse"
    case FrameEndpointDisconnect:
        return "EndpointDisconnect"
    case FrameConnectionVerification:
        return "ConnectionVerification"
    case FrameConnectionVerificationResponse:
        return "ConnectionVerificationResponse"
    case FrameDataDownloadRequest:
        return "DataDownloadRequest"
    case FrameSuccess:
        return "Success"
    case FrameFailure:
        return "Failure"
    case FrameUnknownMessageType:
        return "UnknownMessageType"
    case FrameDataTransfer:
        return "DataTransfer"
    default:
        return "Unknown"
    }
}

// Priority classes used to route frames through the priocq multi-level
// queue. Handshake and disconnect traffic is control-plane; verification
// and keep-alive traffic is realtime; bulk data transfer is lowest priority.
const (
    PriorityControl  uint8 = 0
    PriorityRealtime uint8 = 1
    PriorityBulk     uint8 = 2
)

// PriorityFor returns the queueing priority class for a frame type.
func PriorityFor(t FrameType) uint8 {
    switch t {
    case FrameEndpointConnect, FrameEndpointConnectResponse, FrameEndpointDisconnect:
        return PriorityControl
    case FrameConnectionVerification, FrameConnectionVerificationResponse:
        return PriorityRealtime
    case FrameDataDownloadRequest, FrameDataTransfer:
        return PriorityBulk
    default:
        return PriorityRealtime
    }
}
