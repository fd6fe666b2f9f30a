package transport

import (
	"github.com/marmos91/chanrpc/internal/buffer"
	"github.com/marmos91/chanrpc/internal/streammgr"
)

// RpcCallback is supplied to sendRpc; exactly one of OnSuccess/OnFailure
// fires per SPEC_FULL.md §8 invariant 1.
type RpcCallback interface {
	OnSuccess(body buffer.ManagedBuffer)
	OnFailure(err error)
}

// ChunkReceivedCallback is supplied to fetchChunk.
type ChunkReceivedCallback interface {
	OnSuccess(chunkIndex int32, body buffer.ManagedBuffer)
	OnFailure(chunkIndex int32, err error)
}

// StreamCallback receives the body of a stream() request as it arrives.
type StreamCallback interface {
	OnData(streamID string, data []byte) error
	OnComplete(streamID string) error
	OnFailure(streamID string, err error)
}

// StreamCallbackWithID is the value RpcHandler.ReceiveStream returns: a
// StreamCallback paired with the upload's own request id, used by the
// request handler to route subsequent UploadStream body bytes (see
// SPEC_FULL.md §4.5).
type StreamCallbackWithID interface {
	StreamCallback
	StreamID() string
}

// ResponseCallback is handed to an RpcHandler so it can reply to an inbound
// RpcRequest or UploadStream asynchronously.
type ResponseCallback interface {
	OnSuccess(body buffer.ManagedBuffer)
	OnFailure(err error)
}

// RpcHandler is the embedder-supplied capability that answers inbound
// requests, per SPEC_FULL.md §6. Receive is mandatory; the request handler
// itself implements spec.md §4.5's "one-way receive forwards to the 3-arg
// form with a log-only sink" policy, so no separate one-way method is
// needed on this interface.
type RpcHandler interface {
	// Receive answers an RpcRequest (or, via a discarding callback, a
	// OneWayMessage). client is the reverse client for sending messages
	// back on the same channel.
	Receive(client *Client, body []byte, callback ResponseCallback)

	// ReceiveStream answers an UploadStream's header and returns the
	// callback that will receive the bulk data as it arrives. The default
	// BaseRpcHandler implementation returns ErrStreamingUnsupported.
	ReceiveStream(client *Client, header []byte, callback ResponseCallback) (StreamCallbackWithID, error)

	// StreamManager returns the manager that owns server-side chunk
	// streams for ChunkFetchRequest/StreamRequest. A nil return means
	// chunk fetches and stream requests are unsupported.
	StreamManager() *streammgr.Manager

	ChannelActive(client *Client)
	ChannelInactive(client *Client)
	ExceptionCaught(err error, client *Client)
}

// ErrStreamingUnsupported is returned by BaseRpcHandler.ReceiveStream.
var ErrStreamingUnsupported = errStreamingUnsupported{}

type errStreamingUnsupported struct{}

func (errStreamingUnsupported) Error() string { return "transport: upload streaming not supported" }

// BaseRpcHandler supplies the default implementations SPEC_FULL.md §6
// describes for the optional RpcHandler methods. Embed it and override
// Receive and StreamManager at minimum.
type BaseRpcHandler struct{}

func (BaseRpcHandler) ReceiveStream(_ *Client, _ []byte, _ ResponseCallback) (StreamCallbackWithID, error) {
	return nil, ErrStreamingUnsupported
}

func (BaseRpcHandler) StreamManager() *streammgr.Manager { return nil }

func (BaseRpcHandler) ChannelActive(_ *Client)            {}
func (BaseRpcHandler) ChannelInactive(_ *Client)          {}
func (BaseRpcHandler) ExceptionCaught(_ error, _ *Client) {}

// discardingCallback is the "one-way sink" spec.md §4.5 describes: a
// ResponseCallback that logs and discards, used by the request handler
// when dispatching a OneWayMessage through RpcHandler.Receive.
type discardingCallback struct {
	onWarn func(string)
}

func (d discardingCallback) OnSuccess(body buffer.ManagedBuffer) {
	if body != nil {
		body.Release()
	}
	d.warn()
}

func (d discardingCallback) OnFailure(err error) { d.warn() }

func (d discardingCallback) warn() {
	if d.onWarn != nil {
		d.onWarn("RpcHandler invoked a callback for a one-way message; ignoring")
	}
}
