package transport

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/marmos91/chanrpc/internal/frame"
	"github.com/marmos91/chanrpc/internal/logger"
	"github.com/marmos91/chanrpc/internal/metrics"
	"github.com/marmos91/chanrpc/internal/streammgr"
	"github.com/marmos91/chanrpc/internal/wire"
	"github.com/prometheus/client_golang/prometheus"
)

// Config carries the external Configuration knobs of SPEC_FULL.md §6:
// connection_timeout_ms, max_chunks_being_transferred, and
// close_idle_connections.
type Config struct {
	ConnectionTimeout        time.Duration
	MaxChunksBeingTransferred int32
	CloseIdleConnections     bool
	MaxFrameSize             int64
}

// DefaultConfig matches the teacher's documented default precedence:
// struct defaults are the last-resort layer under CLI flags, env vars, and
// a YAML file (internal/config wires those in ahead of this).
func DefaultConfig() Config {
	return Config{
		ConnectionTimeout:         30 * time.Second,
		MaxChunksBeingTransferred: 64,
		CloseIdleConnections:      true,
		MaxFrameSize:              frame.DefaultMaxFrameSize,
	}
}

// Channel implements SPEC_FULL.md §4.7's glue: it owns the frame reader/
// writer pair over a net.Conn, routes decoded messages to the request or
// response handler, and drives idle detection via a per-channel ticker
// goroutine — grounded on the teacher's per-request SetDeadline/idle-
// timeout handling in NFSConnection.Serve, mapped here onto a ticker since
// this transport is not tied to one request per read like NFS framing is.
type Channel struct {
	conn   net.Conn
	remote string
	cfg    Config

	fr *frame.Reader
	fw *frame.Writer

	rh      *responseHandler
	reqh    *requestHandler
	client  *Client
	handler RpcHandler

	closeOnce sync.Once
	closed    chan struct{}
}

// newChannel wires a frame codec, response handler, client, and request
// handler around conn, exactly the fixed pipeline order SPEC_FULL.md §4.8
// describes: encoder → frame_decoder → decoder → idle_state →
// channel_handler.
func newChannel(conn net.Conn, cfg Config, handler RpcHandler, appID string, reg prometheus.Registerer) *Channel {
	remote := conn.RemoteAddr().String()
	c := &Channel{
		conn:    conn,
		remote:  remote,
		cfg:     cfg,
		fr:      frame.NewReader(conn, cfg.MaxFrameSize),
		fw:      frame.NewWriter(conn),
		rh:      newResponseHandler(remote),
		handler: handler,
		closed:  make(chan struct{}),
	}

	var cm *metrics.ClientMetrics
	if reg != nil {
		cm = metrics.NewClientMetrics(reg, remote)
	}
	c.client = newClient(c, c.rh, appID, cm)
	c.reqh = newRequestHandler(handler, c.client, c, cfg.MaxChunksBeingTransferred)
	return c
}

// writeMessage serializes one message onto the wire. All outbound writes —
// replies from the request handler, and calls made through Client — funnel
// through here so the frame writer's own mutex is the single point of
// write serialization, matching the teacher's writeMu pattern in
// nfs_connection_reply.go.
func (c *Channel) writeMessage(msg wire.Message) error {
	return wire.WriteMessage(c.fw, msg)
}

func (c *Channel) remoteAddr() string { return c.remote }

// isOpen reports whether the channel has not yet been torn down by
// closeFatal.
func (c *Channel) isOpen() bool {
	select {
	case <-c.closed:
		return false
	default:
		return true
	}
}

// closeFatal closes the channel due to a fatal condition (framing error,
// decode error, write failure, or an explicit Client.Close()). Idempotent.
func (c *Channel) closeFatal(reason string) {
	c.closeFatalWithCause(reason, &ClosedError{Remote: c.remote, Reason: reason})
}

// closeFatalWithCause is closeFatal with an explicit teardown cause, used
// by runIdleTicker so outstanding callbacks are failed with a
// *TimeoutError rather than the generic *ClosedError every other close
// path uses, per SPEC_FULL.md §4.7/§7's "timeout error distinguishing
// requests in flight from idle close" requirement.
func (c *Channel) closeFatalWithCause(reason string, cause error) {
	c.closeOnce.Do(func() {
		logger.Warn("closing channel", "remote", c.remote, "reason", reason)
		_ = c.conn.Close()
		close(c.closed)
		c.rh.teardown(cause)
		if sm := c.handler.StreamManager(); sm != nil {
			sm.ConnectionTerminated(streamChannelKey{c})
		}
		c.handler.ChannelInactive(c.client)
	})
}

// streamChannelKey adapts *Channel to streammgr.Channel's identity
// interface without streammgr importing transport.
type streamChannelKey struct{ ch *Channel }

func (k streamChannelKey) ID() string { return k.ch.remote }

var _ streammgr.Channel = streamChannelKey{}

// Client returns the channel's outbound client (the "reverse client" on
// the server side).
func (c *Channel) Client() *Client { return c.client }

// Serve runs the channel's single-threaded cooperative event loop: read a
// frame, decode it, dispatch it, repeat, until a fatal error or the
// channel is closed. Grounded on NFSConnection.Serve's read-dispatch-loop
// shape, simplified because this transport has no separate per-request
// goroutine pool — SPEC_FULL.md §5 explicitly keeps the library off the
// hook for worker-pool ownership.
func (c *Channel) Serve() {
	defer c.closeFatal("channel loop exited")

	c.handler.ChannelActive(c.client)

	idleStop := make(chan struct{})
	if c.cfg.ConnectionTimeout > 0 {
		go c.runIdleTicker(idleStop)
		defer close(idleStop)
	}

	for {
		select {
		case <-c.closed:
			return
		default:
		}

		msg, err := wire.ReadMessage(c.fr)
		if err != nil {
			c.handler.ExceptionCaught(err, c.client)
			return
		}

		c.rh.touch()
		if msg.Type().IsRequest() {
			c.reqh.handle(msg)
		} else {
			c.rh.handle(msg)
		}
	}
}

// runIdleTicker implements SPEC_FULL.md §4.7's idle decision: with no
// traffic for longer than ConnectionTimeout, close the channel if there
// are no outstanding requests and CloseIdleConnections is set; if there
// are outstanding requests, mark the client timed out, close the channel,
// and let the response handler fail every outstanding callback with a
// timeout error.
func (c *Channel) runIdleTicker(stop <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.ConnectionTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			idleFor := time.Since(c.rh.LastActivity())
			if idleFor <= c.cfg.ConnectionTimeout {
				continue
			}

			outstanding := c.rh.outstandingCount()
			switch {
			case outstanding == 0 && c.cfg.CloseIdleConnections:
				c.closeFatal("idle timeout, no outstanding requests")
				return
			case outstanding > 0:
				c.client.markTimedOut()
				reason := fmt.Sprintf("idle timeout with %d outstanding requests", outstanding)
				c.closeFatalWithCause(reason, &TimeoutError{Kind: TimeoutIdleRequestsInFlight, Remote: c.remote})
				return
			}
		}
	}
}
