// Package transport implements SPEC_FULL.md's transport client, response/
// request handlers, stream manager glue, and channel handler — the
// request/response state machine and pipeline assembly at the heart of the
// spec.
package transport

import (
	"net"

	"github.com/prometheus/client_golang/prometheus"
)

// Context assembles the fixed pipeline SPEC_FULL.md §4.8 describes:
// encoder → frame_decoder → decoder → idle_state → channel_handler. It is
// pure composition — the only state it holds is the configuration and
// RpcHandler shared by every channel it creates.
type Context struct {
	cfg      Config
	handler  RpcHandler
	registry prometheus.Registerer
}

// NewContext builds a Context. A nil registry disables metrics
// registration (ClientMetrics methods stay nil-safe no-ops).
func NewContext(cfg Config, handler RpcHandler, registry prometheus.Registerer) *Context {
	return &Context{cfg: cfg, handler: handler, registry: registry}
}

// NewServerChannel wires a channel for a connection accepted by a
// listener. appID is the opaque client identity the stream manager's
// CheckAuthorization will check against, typically populated by an
// embedder-specific handshake that runs before the channel is handed to
// this constructor (authentication integration is out of scope per
// spec.md §1).
func (tc *Context) NewServerChannel(conn net.Conn, appID string) *Channel {
	return newChannel(conn, tc.cfg, tc.handler, appID, tc.registry)
}

// NewClientChannel wires a channel for a connection this process
// initiated via net.Dial. Differs from NewServerChannel only in
// provenance — SPEC_FULL.md §4.8 — since both sides of a chanrpc
// connection are symmetric requester/responders.
func (tc *Context) NewClientChannel(conn net.Conn, appID string) *Channel {
	return newChannel(conn, tc.cfg, tc.handler, appID, tc.registry)
}
