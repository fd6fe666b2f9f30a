package transport

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/chanrpc/internal/logger"
	"github.com/marmos91/chanrpc/internal/wire"
)

// streamWaiter is one entry in the response handler's ordered stream-
// callback queue: a callback awaiting a StreamResponse/StreamFailure,
// paired with the number of bytes already delivered toward the response's
// declared byte count.
type streamWaiter struct {
	streamID string
	callback StreamCallback
	consumed int64
}

// responseHandler implements SPEC_FULL.md §4.4: the inbound demux that
// tracks outstanding requests and dispatches replies to the callbacks
// registered for them.
//
// Grounded on PendingCBReplies (teacher's backchannel.go): a plain map
// guarded by a single sync.Mutex, not sync.Map, because every access here
// is already serialized by a known lock boundary.
type responseHandler struct {
	remote string

	mu               sync.Mutex
	outstandingRpcs  map[uint64]RpcCallback
	outstandingFetch map[wire.StreamChunkID]ChunkReceivedCallback
	streamQueue      []*streamWaiter

	lastActivity atomic.Int64 // unix nanoseconds
}

func newResponseHandler(remote string) *responseHandler {
	rh := &responseHandler{
		remote:           remote,
		outstandingRpcs:  make(map[uint64]RpcCallback),
		outstandingFetch: make(map[wire.StreamChunkID]ChunkReceivedCallback),
	}
	rh.touch()
	return rh
}

func (rh *responseHandler) touch() {
	rh.lastActivity.Store(time.Now().UnixNano())
}

func (rh *responseHandler) LastActivity() time.Time {
	return time.Unix(0, rh.lastActivity.Load())
}

func (rh *responseHandler) registerRpc(id uint64, cb RpcCallback) {
	rh.mu.Lock()
	rh.outstandingRpcs[id] = cb
	rh.mu.Unlock()
}

func (rh *responseHandler) unregisterRpc(id uint64) (RpcCallback, bool) {
	rh.mu.Lock()
	defer rh.mu.Unlock()
	cb, ok := rh.outstandingRpcs[id]
	if ok {
		delete(rh.outstandingRpcs, id)
	}
	return cb, ok
}

func (rh *responseHandler) registerFetch(id wire.StreamChunkID, cb ChunkReceivedCallback) {
	rh.mu.Lock()
	rh.outstandingFetch[id] = cb
	rh.mu.Unlock()
}

func (rh *responseHandler) unregisterFetch(id wire.StreamChunkID) (ChunkReceivedCallback, bool) {
	rh.mu.Lock()
	defer rh.mu.Unlock()
	cb, ok := rh.outstandingFetch[id]
	if ok {
		delete(rh.outstandingFetch, id)
	}
	return cb, ok
}

// enqueueStream appends a waiter to the ordered stream-callback queue. The
// caller (TransportClient.Stream) must hold its own send-path mutex across
// this call and the subsequent frame write, per SPEC_FULL.md §4.3's
// "enqueue-then-write must be atomic" rule; enqueueStream's own lock only
// protects the queue slice against concurrent dequeue from the read loop.
func (rh *responseHandler) enqueueStream(streamID string, cb StreamCallback) {
	rh.mu.Lock()
	rh.streamQueue = append(rh.streamQueue, &streamWaiter{streamID: streamID, callback: cb})
	rh.mu.Unlock()
}

func (rh *responseHandler) peekStream() *streamWaiter {
	rh.mu.Lock()
	defer rh.mu.Unlock()
	if len(rh.streamQueue) == 0 {
		return nil
	}
	return rh.streamQueue[0]
}

func (rh *responseHandler) popStream() {
	rh.mu.Lock()
	defer rh.mu.Unlock()
	if len(rh.streamQueue) == 0 {
		return
	}
	rh.streamQueue = rh.streamQueue[1:]
}

// outstandingCount reports the number of requests still awaiting a reply;
// used by the channel handler's idle decision (SPEC_FULL.md §4.7).
func (rh *responseHandler) outstandingCount() int {
	rh.mu.Lock()
	defer rh.mu.Unlock()
	return len(rh.outstandingRpcs) + len(rh.outstandingFetch) + len(rh.streamQueue)
}

// handle dispatches one decoded ResponseMessage per the table in
// SPEC_FULL.md §4.4.
func (rh *responseHandler) handle(msg wire.Message) {
	rh.touch()

	switch m := msg.(type) {
	case *wire.ChunkFetchSuccess:
		cb, ok := rh.unregisterFetch(m.ID)
		if !ok {
			logger.Warn("chunk fetch success for unknown id", "stream_chunk_id", m.ID.String())
			if m.Payload != nil {
				m.Payload.Release()
			}
			return
		}
		cb.OnSuccess(m.ID.ChunkIndex, m.Payload)

	case *wire.ChunkFetchFailure:
		cb, ok := rh.unregisterFetch(m.ID)
		if !ok {
			logger.Warn("chunk fetch failure for unknown id", "stream_chunk_id", m.ID.String())
			return
		}
		cb.OnFailure(m.ID.ChunkIndex, &RemoteError{Remote: rh.remote, Message: m.Error})

	case *wire.RpcResponse:
		cb, ok := rh.unregisterRpc(m.RequestID)
		if !ok {
			logger.Warn("rpc response for unknown request id", "request_id", m.RequestID)
			if m.Payload != nil {
				m.Payload.Release()
			}
			return
		}
		cb.OnSuccess(m.Payload)

	case *wire.RpcFailure:
		cb, ok := rh.unregisterRpc(m.RequestID)
		if !ok {
			logger.Warn("rpc failure for unknown request id", "request_id", m.RequestID)
			return
		}
		cb.OnFailure(&RemoteError{Remote: rh.remote, Message: m.Error})

	case *wire.StreamResponse:
		w := rh.peekStream()
		if w == nil {
			logger.Warn("stream response with no registered waiter", "stream_id", m.StreamID)
			if m.Payload != nil {
				m.Payload.Release()
			}
			return
		}
		data, err := m.Payload.Bytes()
		if m.Payload != nil {
			defer m.Payload.Release()
		}
		if err == nil && len(data) > 0 {
			if err := w.callback.OnData(w.streamID, data); err != nil {
				logger.Warn("stream onData failed", "stream_id", w.streamID, "error", err)
			}
		}
		w.consumed += int64(len(data))
		if w.consumed >= m.ByteCount {
			rh.popStream()
			if err := w.callback.OnComplete(w.streamID); err != nil {
				logger.Warn("stream onComplete failed", "stream_id", w.streamID, "error", err)
			}
		}

	case *wire.StreamFailure:
		w := rh.peekStream()
		if w == nil {
			logger.Warn("stream failure with no registered waiter", "stream_id", m.StreamID)
			return
		}
		rh.popStream()
		w.callback.OnFailure(w.streamID, &RemoteError{Remote: rh.remote, Message: m.Error})

	default:
		logger.Warn("response handler received a non-response message", "type", msg.Type())
	}
}

// teardown fails every outstanding callback with cause, per SPEC_FULL.md
// §4.4's "channelInactive/exceptionCaught drain every outstanding callback"
// exit path. After teardown the handler accepts no further registrations
// meaningfully (the channel is going away), but does not itself guard
// against late calls — the channel owns that lifecycle.
func (rh *responseHandler) teardown(cause error) {
	rh.mu.Lock()
	rpcs := rh.outstandingRpcs
	rh.outstandingRpcs = make(map[uint64]RpcCallback)
	fetches := rh.outstandingFetch
	rh.outstandingFetch = make(map[wire.StreamChunkID]ChunkReceivedCallback)
	streams := rh.streamQueue
	rh.streamQueue = nil
	rh.mu.Unlock()

	for _, cb := range rpcs {
		cb.OnFailure(cause)
	}
	for id, cb := range fetches {
		cb.OnFailure(id.ChunkIndex, cause)
	}
	for _, w := range streams {
		w.callback.OnFailure(w.streamID, cause)
	}
}
