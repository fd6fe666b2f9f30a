package transport

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/chanrpc/internal/buffer"
	"github.com/marmos91/chanrpc/internal/idgen"
	"github.com/marmos91/chanrpc/internal/logger"
	"github.com/marmos91/chanrpc/internal/metrics"
	"github.com/marmos91/chanrpc/internal/wire"
)

// Client is the outbound API described in SPEC_FULL.md §4.3. A Client is
// always bound to exactly one Channel; the server side hands the same
// Client back to the RpcHandler as the "reverse client" so it can send
// messages back on the inbound channel (spec.md's cyclic-ownership note:
// the handler's reference to the client is non-owning).
type Client struct {
	ch       channelOps
	rh       *responseHandler
	ids      *idgen.Generator
	appID    string
	metrics  *metrics.ClientMetrics
	timedOut atomic.Bool

	// sendMu serializes Stream()'s enqueue-then-write, per SPEC_FULL.md
	// §4.3/§5: concurrent stream() calls must produce matching
	// enqueue/send orders.
	sendMu sync.Mutex
}

func newClient(ch channelOps, rh *responseHandler, appID string, m *metrics.ClientMetrics) *Client {
	return &Client{ch: ch, rh: rh, ids: idgen.New(), appID: appID, metrics: m}
}

// ID returns the client's opaque application id, used by the stream
// manager's CheckAuthorization. Empty means no app id was presented.
func (c *Client) ID() string { return c.appID }

// RemoteAddr returns the remote address of the underlying channel.
func (c *Client) RemoteAddr() string { return c.ch.remoteAddr() }

// Metrics returns the per-client metrics accessor (SPEC_FULL.md §4.3).
func (c *Client) Metrics() *metrics.ClientMetrics { return c.metrics }

// IsActive reports whether the client may still be used: it has not been
// marked timed out and its channel is open, per SPEC_FULL.md §4.3's
// `!timed_out && channel_open`.
func (c *Client) IsActive() bool {
	return !c.timedOut.Load() && c.ch.isOpen()
}

// markTimedOut flips the volatile timed_out flag; called by the idle
// detector (channel.go) per SPEC_FULL.md §4.3.
func (c *Client) markTimedOut() { c.timedOut.Store(true) }

// SendRpc generates a fresh request id, registers cb with the response
// handler before writing, then writes an RpcRequest. On write failure, cb
// is unregistered and invoked with a failure describing the remote
// address, and the channel is closed.
func (c *Client) SendRpc(body buffer.ManagedBuffer, cb RpcCallback) uint64 {
	id := c.ids.Next()
	c.rh.registerRpc(id, cb)

	start := time.Now()
	err := c.ch.writeMessage(&wire.RpcRequest{RequestID: id, Payload: body})
	c.metrics.ObserveWriteLatency(time.Since(start))
	if err != nil {
		if removed, ok := c.rh.unregisterRpc(id); ok {
			removed.OnFailure(&ClosedError{Remote: c.RemoteAddr(), Reason: err.Error()})
		}
		c.metrics.IncRpcFailed()
		c.ch.closeFatal(fmt.Sprintf("write RpcRequest failed: %v", err))
		return id
	}
	c.metrics.IncRpcSent()
	return id
}

// syncCallback adapts SendRpc's async callback to a one-shot future for
// SendRpcSync.
type syncCallback struct {
	done chan struct{}
	body []byte
	err  error
}

func newSyncCallback() *syncCallback { return &syncCallback{done: make(chan struct{}, 1)} }

func (s *syncCallback) OnSuccess(body buffer.ManagedBuffer) {
	// The source copies the response buffer before handing it to the
	// waiting future, because the inbound buffer is released as soon as
	// the callback returns (SPEC_FULL.md §9). Copy here, then release.
	if body != nil {
		if data, err := body.Bytes(); err == nil {
			s.body = append([]byte(nil), data...)
		} else {
			s.err = err
		}
		body.Release()
	}
	close(s.done)
}

func (s *syncCallback) OnFailure(err error) {
	s.err = err
	close(s.done)
}

// SendRpcSync builds a one-shot future wired into SendRpc and blocks up to
// timeout. On timeout, the callback remains registered; a late response is
// logged and discarded per SPEC_FULL.md §5's cancellation policy.
func (c *Client) SendRpcSync(body buffer.ManagedBuffer, timeout time.Duration) ([]byte, error) {
	sc := newSyncCallback()
	id := c.SendRpc(body, sc)

	select {
	case <-sc.done:
		return sc.body, sc.err
	case <-time.After(timeout):
		c.metrics.IncRpcTimedOut()
		go func() {
			<-sc.done
			logger.Debug("discarding late completion of timed-out sync rpc",
				"request_id", id, "remote", c.RemoteAddr(), "error", sc.err)
		}()
		return nil, &TimeoutError{Kind: TimeoutSync}
	}
}

// Send writes a OneWayMessage. No registration, no callback, no delivery
// guarantee.
func (c *Client) Send(body buffer.ManagedBuffer) error {
	err := c.ch.writeMessage(&wire.OneWayMessage{Payload: body})
	if err != nil {
		c.ch.closeFatal(fmt.Sprintf("write OneWayMessage failed: %v", err))
	}
	return err
}

// UploadStream writes an UploadStream(request_id, meta, data) frame with
// the same registration discipline as SendRpc.
func (c *Client) UploadStream(meta, data buffer.ManagedBuffer, cb RpcCallback) uint64 {
	id := c.ids.Next()
	c.rh.registerRpc(id, cb)

	err := c.ch.writeMessage(&wire.UploadStream{RequestID: id, Meta: meta, Data: data})
	if err != nil {
		if removed, ok := c.rh.unregisterRpc(id); ok {
			removed.OnFailure(&ClosedError{Remote: c.RemoteAddr(), Reason: err.Error()})
		}
		c.ch.closeFatal(fmt.Sprintf("write UploadStream failed: %v", err))
	}
	return id
}

// Stream atomically enqueues cb onto the response handler's ordered
// stream-callback queue and writes the StreamRequest, per SPEC_FULL.md
// §4.3's mandatory serialization.
func (c *Client) Stream(streamID string, cb StreamCallback) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.rh.enqueueStream(streamID, cb)
	if err := c.ch.writeMessage(&wire.StreamRequest{StreamID: streamID}); err != nil {
		c.ch.closeFatal(fmt.Sprintf("write StreamRequest failed: %v", err))
	}
}

// FetchChunk registers cb in outstanding_fetches keyed by the stream-chunk
// id, then writes ChunkFetchRequest.
func (c *Client) FetchChunk(streamID uint64, chunkIndex int32, cb ChunkReceivedCallback) {
	id := wire.StreamChunkID{StreamID: streamID, ChunkIndex: chunkIndex}
	c.rh.registerFetch(id, cb)

	if err := c.ch.writeMessage(&wire.ChunkFetchRequest{ID: id}); err != nil {
		if removed, ok := c.rh.unregisterFetch(id); ok {
			removed.OnFailure(chunkIndex, &ClosedError{Remote: c.RemoteAddr(), Reason: err.Error()})
		}
		c.ch.closeFatal(fmt.Sprintf("write ChunkFetchRequest failed: %v", err))
	}
}

// Close closes the underlying channel and fails every outstanding callback
// via the response handler's teardown path — SPEC_FULL.md §4.3, resolving
// spec.md §9's Open Question on TransportClient.close() semantics, and
// grounded on the teacher's handleConnectionClose.
func (c *Client) Close() error {
	c.ch.closeFatal("closed by Client.Close()")
	return nil
}
