package transport

import (
	"fmt"
	"runtime/debug"

	"github.com/marmos91/chanrpc/internal/buffer"
	"github.com/marmos91/chanrpc/internal/logger"
	"github.com/marmos91/chanrpc/internal/wire"
)

// channelOps is the subset of Channel the request handler needs: writing a
// reply frame and closing the channel on a fatal error. Declared as an
// interface so requesthandler.go and channel.go can be read independently.
type channelOps interface {
	writeMessage(msg wire.Message) error
	closeFatal(reason string)
	remoteAddr() string
	isOpen() bool
}

// requestHandler implements SPEC_FULL.md §4.5: invokes the user RpcHandler
// for each inbound RequestMessage and writes the corresponding reply.
type requestHandler struct {
	handler  RpcHandler
	client   *Client
	ch       channelOps
	maxChunksInFlight int32
}

func newRequestHandler(handler RpcHandler, client *Client, ch channelOps, maxChunksInFlight int32) *requestHandler {
	return &requestHandler{handler: handler, client: client, ch: ch, maxChunksInFlight: maxChunksInFlight}
}

// handle dispatches one decoded RequestMessage. Panics from the user
// RpcHandler are recovered here and converted to an RpcFailure (or, for
// non-request-id-bearing messages, just logged), matching
// NFSConnection.handleRequestPanic's per-request recovery without tearing
// down the connection — SPEC_FULL.md §8 scenario S7.
func (h *requestHandler) handle(msg wire.Message) {
	switch m := msg.(type) {
	case *wire.RpcRequest:
		h.handleRpcRequest(m)
	case *wire.OneWayMessage:
		h.handleOneWay(m)
	case *wire.UploadStream:
		h.handleUploadStream(m)
	case *wire.ChunkFetchRequest:
		h.handleChunkFetchRequest(m)
	case *wire.StreamRequest:
		h.handleStreamRequest(m)
	default:
		logger.Warn("request handler received a non-request message", "type", msg.Type())
	}
}

func (h *requestHandler) handleRpcRequest(m *wire.RpcRequest) {
	defer h.recoverAsFailure(func(err error) {
		h.writeReply(&wire.RpcFailure{RequestID: m.RequestID, Error: err.Error()})
	})

	body, err := m.Payload.Bytes()
	if m.Payload != nil {
		defer m.Payload.Release()
	}
	if err != nil {
		h.writeReply(&wire.RpcFailure{RequestID: m.RequestID, Error: err.Error()})
		return
	}

	h.handler.Receive(h.client, body, &rpcResponseCallback{h: h, requestID: m.RequestID})
}

func (h *requestHandler) handleOneWay(m *wire.OneWayMessage) {
	defer h.recoverAsFailure(func(error) {})

	body, err := m.Payload.Bytes()
	if m.Payload != nil {
		defer m.Payload.Release()
	}
	if err != nil {
		logger.Warn("one-way message body read failed", "error", err)
		return
	}
	h.handler.Receive(h.client, body, discardingCallback{onWarn: func(msg string) { logger.Warn(msg) }})
}

func (h *requestHandler) handleUploadStream(m *wire.UploadStream) {
	defer h.recoverAsFailure(func(err error) {
		h.writeReply(&wire.RpcFailure{RequestID: m.RequestID, Error: err.Error()})
	})

	meta, err := m.Meta.Bytes()
	if m.Meta != nil {
		defer m.Meta.Release()
	}
	if err != nil {
		h.writeReply(&wire.RpcFailure{RequestID: m.RequestID, Error: err.Error()})
		return
	}

	cb := &rpcResponseCallback{h: h, requestID: m.RequestID}
	sc, err := h.handler.ReceiveStream(h.client, meta, cb)
	if err != nil {
		if m.Data != nil {
			m.Data.Release()
		}
		h.writeReply(&wire.RpcFailure{RequestID: m.RequestID, Error: err.Error()})
		return
	}

	data, err := m.Data.Bytes()
	if m.Data != nil {
		defer m.Data.Release()
	}
	if err != nil {
		h.writeReply(&wire.RpcFailure{RequestID: m.RequestID, Error: err.Error()})
		return
	}

	// Errors during onData fail the entire channel (SPEC_FULL.md §4.5).
	if err := sc.OnData(sc.StreamID(), data); err != nil {
		h.ch.closeFatal(fmt.Sprintf("upload stream onData failed: %v", err))
		return
	}
	// Errors during onComplete surface as RpcFailure only.
	if err := sc.OnComplete(sc.StreamID()); err != nil {
		h.writeReply(&wire.RpcFailure{RequestID: m.RequestID, Error: err.Error()})
	}
}

func (h *requestHandler) handleChunkFetchRequest(m *wire.ChunkFetchRequest) {
	sm := h.handler.StreamManager()
	if sm == nil {
		h.writeReply(&wire.ChunkFetchFailure{ID: m.ID, Error: ErrStreamingUnsupported.Error()})
		return
	}

	if err := sm.CheckAuthorization(h.client.ID(), m.ID.StreamID); err != nil {
		h.writeReply(&wire.ChunkFetchFailure{ID: m.ID, Error: err.Error()})
		return
	}

	buf, err := sm.GetChunk(m.ID.StreamID, m.ID.ChunkIndex)
	if err != nil {
		h.writeReply(&wire.ChunkFetchFailure{ID: m.ID, Error: err.Error()})
		return
	}

	if h.maxChunksInFlight > 0 && sm.ChunksBeingTransferred() >= h.maxChunksInFlight {
		buf.Release()
		h.ch.closeFatal("max_chunks_being_transferred exceeded")
		return
	}

	sm.ChunkBeingSent(m.ID.StreamID)
	defer sm.ChunkSent(m.ID.StreamID)

	if err := h.ch.writeMessage(&wire.ChunkFetchSuccess{ID: m.ID, Payload: buf}); err != nil {
		logger.Warn("write chunk fetch success failed", "error", err, "remote", h.ch.remoteAddr())
	}
}

func (h *requestHandler) handleStreamRequest(m *wire.StreamRequest) {
	sm := h.handler.StreamManager()
	if sm == nil {
		h.writeReply(&streamFailureByName{streamID: m.StreamID, err: ErrStreamingUnsupported})
		return
	}

	var sid uint64
	var idx int32
	fmt.Sscanf(m.StreamID, "%d_%d", &sid, &idx)

	sm.StreamBeingSent(sid)
	defer sm.StreamSent(sid)

	buf, err := sm.OpenStream(m.StreamID)
	if err != nil {
		h.writeReply(&streamFailureByName{streamID: m.StreamID, err: err})
		return
	}

	if err := h.ch.writeMessage(&wire.StreamResponse{StreamID: sid, ByteCount: buf.Size(), Payload: buf}); err != nil {
		logger.Warn("write stream response failed", "error", err, "remote", h.ch.remoteAddr())
	}
}

// streamFailureByName adapts a string stream id (as carried by
// StreamRequest) to the numeric StreamFailure message field.
type streamFailureByName struct {
	streamID string
	err      error
}

func (h *requestHandler) writeReply(msg wire.Message) {
	if rf, ok := msg.(*streamFailureByName); ok {
		var sid uint64
		fmt.Sscanf(rf.streamID, "%d", &sid)
		msg = &wire.StreamFailure{StreamID: sid, Error: rf.err.Error()}
	}
	if err := h.ch.writeMessage(msg); err != nil {
		logger.Warn("write reply failed", "error", err, "remote", h.ch.remoteAddr())
	}
}

func (h *requestHandler) recoverAsFailure(onErr func(error)) {
	if r := recover(); r != nil {
		stack := string(debug.Stack())
		err := &HandlerPanicError{Value: r, Stack: stack}
		logger.Error("panic in RpcHandler", "error", r, "stack", stack, "remote", h.ch.remoteAddr())
		onErr(err)
	}
}

// rpcResponseCallback adapts an RpcHandler's asynchronous reply
// (OnSuccess/OnFailure) to writing RpcResponse/RpcFailure frames, per
// SPEC_FULL.md §4.5.
type rpcResponseCallback struct {
	h         *requestHandler
	requestID uint64
}

func (c *rpcResponseCallback) OnSuccess(body buffer.ManagedBuffer) {
	c.h.writeReply(&wire.RpcResponse{RequestID: c.requestID, Payload: body})
}

func (c *rpcResponseCallback) OnFailure(err error) {
	c.h.writeReply(&wire.RpcFailure{RequestID: c.requestID, Error: err.Error()})
}
