package transport

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/chanrpc/internal/buffer"
	"github.com/marmos91/chanrpc/internal/streammgr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoHandler answers every RpcRequest with its own body (scenario S1).
type echoHandler struct {
	BaseRpcHandler
	sm *streammgr.Manager
}

func (h *echoHandler) Receive(client *Client, body []byte, callback ResponseCallback) {
	callback.OnSuccess(buffer.NewMemoryBuffer(append([]byte(nil), body...)))
}

func (h *echoHandler) StreamManager() *streammgr.Manager { return h.sm }

// failHandler always throws, simulating scenario S2.
type failHandler struct {
	BaseRpcHandler
}

func (h *failHandler) Receive(client *Client, body []byte, callback ResponseCallback) {
	panic("boom: simulated handler failure")
}

func (h *failHandler) StreamManager() *streammgr.Manager { return nil }

// oneWayHandler records one-way deliveries for scenario S6.
type oneWayHandler struct {
	BaseRpcHandler
	mu       sync.Mutex
	received [][]byte
	fired    chan struct{}
}

func (h *oneWayHandler) Receive(client *Client, body []byte, callback ResponseCallback) {
	h.mu.Lock()
	h.received = append(h.received, append([]byte(nil), body...))
	h.mu.Unlock()
	if h.fired != nil {
		close(h.fired)
	}
}

func (h *oneWayHandler) StreamManager() *streammgr.Manager { return nil }

// noOpHandler is used as the client-side handler in tests where the server
// never sends a request back on the reverse channel.
type noOpHandler struct {
	BaseRpcHandler
}

func (noOpHandler) Receive(client *Client, body []byte, callback ResponseCallback) {
	callback.OnFailure(errNoOpHandler)
}

func (noOpHandler) StreamManager() *streammgr.Manager { return nil }

var errNoOpHandler = &RemoteError{Message: "noOpHandler does not accept requests"}

func pipeChannels(t *testing.T, handler RpcHandler) (client *Channel, server *Channel) {
	t.Helper()
	a, b := net.Pipe()

	cfg := DefaultConfig()
	cfg.ConnectionTimeout = 0 // disable idle ticker for deterministic unit tests

	serverCtx := NewContext(cfg, handler, nil)
	clientCtx := NewContext(cfg, &noOpHandler{}, nil)

	server = serverCtx.NewServerChannel(a, "")
	client = clientCtx.NewClientChannel(b, "")

	go server.Serve()
	go client.Serve()

	t.Cleanup(func() {
		_ = server.conn.Close()
		_ = client.conn.Close()
	})

	return client, server
}

func TestRpcEcho(t *testing.T) {
	client, _ := pipeChannels(t, &echoHandler{})

	data, err := client.Client().SendRpcSync(buffer.NewMemoryBuffer([]byte("hello")), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestRpcFailurePropagatesStack(t *testing.T) {
	client, _ := pipeChannels(t, &failHandler{})

	_, err := client.Client().SendRpcSync(buffer.NewMemoryBuffer([]byte("x")), time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Contains(t, err.Error(), "goroutine", "failure should carry the handler's stack trace")
}

func TestOneWayNoResponseFrame(t *testing.T) {
	h := &oneWayHandler{fired: make(chan struct{})}
	client, _ := pipeChannels(t, h)

	require.NoError(t, client.Client().Send(buffer.NewMemoryBuffer([]byte("x"))))

	select {
	case <-h.fired:
	case <-time.After(time.Second):
		t.Fatal("one-way message never delivered")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.received, 1)
	assert.Equal(t, "x", string(h.received[0]))
}

type recordingCallback struct {
	done    chan struct{}
	success bool
	err     error
}

func newRecordingCallback() *recordingCallback {
	return &recordingCallback{done: make(chan struct{}, 1)}
}

func (c *recordingCallback) OnSuccess(body buffer.ManagedBuffer) {
	c.success = true
	close(c.done)
}

func (c *recordingCallback) OnFailure(err error) {
	c.err = err
	close(c.done)
}

func TestConnectionDropFailsOutstandingCallbacks(t *testing.T) {
	h := &echoHandler{}
	client, server := pipeChannels(t, h)
	_ = server

	cbs := make([]*recordingCallback, 3)
	for i := range cbs {
		cbs[i] = newRecordingCallback()
		// Register directly via the response handler to simulate requests
		// in flight without racing the echo reply.
		client.rh.registerRpc(uint64(1000+i), cbs[i])
	}

	client.closeFatal("simulated connection drop")

	for i, cb := range cbs {
		select {
		case <-cb.done:
		case <-time.After(time.Second):
			t.Fatalf("callback %d never completed", i)
		}
		require.Error(t, cb.err)
		assert.Contains(t, cb.err.Error(), client.remote)
	}
}

func TestClientIsActiveReflectsTimeoutAndChannelState(t *testing.T) {
	client, _ := pipeChannels(t, &echoHandler{})

	assert.True(t, client.Client().IsActive())

	client.closeFatal("test teardown")
	assert.False(t, client.Client().IsActive())
}

func TestClientIsActiveFalseAfterTimeout(t *testing.T) {
	client, _ := pipeChannels(t, &echoHandler{})

	client.client.markTimedOut()
	assert.False(t, client.Client().IsActive())
}

func TestFetchChunkOrdering(t *testing.T) {
	sm := streammgr.NewManager()
	h := &echoHandler{sm: sm}
	client, server := pipeChannels(t, h)

	sid := sm.RegisterStream("", []buffer.ManagedBuffer{
		buffer.NewMemoryBuffer([]byte("b0")),
		buffer.NewMemoryBuffer([]byte("b1")),
		buffer.NewMemoryBuffer([]byte("b2")),
	}, streamChannelKey{server})

	var mu sync.Mutex
	var order []int32
	done := make(chan struct{}, 3)

	cb := chunkCollector{
		onSuccess: func(idx int32, buf buffer.ManagedBuffer) {
			mu.Lock()
			order = append(order, idx)
			mu.Unlock()
			done <- struct{}{}
		},
		onFailure: func(idx int32, err error) { done <- struct{}{} },
	}

	client.Client().FetchChunk(sid, 0, cb)
	<-done
	client.Client().FetchChunk(sid, 1, cb)
	<-done
	client.Client().FetchChunk(sid, 2, cb)
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int32{0, 1, 2}, order)
}

type chunkCollector struct {
	onSuccess func(int32, buffer.ManagedBuffer)
	onFailure func(int32, error)
}

func (c chunkCollector) OnSuccess(idx int32, buf buffer.ManagedBuffer) { c.onSuccess(idx, buf) }
func (c chunkCollector) OnFailure(idx int32, err error)                { c.onFailure(idx, err) }

func TestIdleCloseWithNoOutstandingRequests(t *testing.T) {
	a, b := net.Pipe()
	cfg := DefaultConfig()
	cfg.ConnectionTimeout = 50 * time.Millisecond
	cfg.CloseIdleConnections = true

	serverCtx := NewContext(cfg, &echoHandler{}, nil)
	server := serverCtx.NewServerChannel(a, "")
	go server.Serve()
	t.Cleanup(func() { _ = b.Close() })

	select {
	case <-server.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("idle channel was never closed")
	}
}

func TestIdleCloseWithOutstandingRequestsFailsWithTimeoutError(t *testing.T) {
	a, b := net.Pipe()
	cfg := DefaultConfig()
	cfg.ConnectionTimeout = 50 * time.Millisecond

	clientCtx := NewContext(cfg, &noOpHandler{}, nil)
	client := clientCtx.NewClientChannel(a, "")
	go client.Serve()
	t.Cleanup(func() { _ = b.Close() })

	cb := newRecordingCallback()
	client.rh.registerRpc(1, cb)

	select {
	case <-cb.done:
	case <-time.After(2 * time.Second):
		t.Fatal("outstanding callback never failed on idle timeout")
	}

	require.Error(t, cb.err)
	var timeoutErr *TimeoutError
	require.ErrorAs(t, cb.err, &timeoutErr)
	assert.Equal(t, TimeoutIdleRequestsInFlight, timeoutErr.Kind)

	select {
	case <-client.closed:
	case <-time.After(time.Second):
		t.Fatal("channel was never closed")
	}
}
