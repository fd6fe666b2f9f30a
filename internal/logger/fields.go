package logger

import "log/slog"

// Standard field keys, kept consistent across the transport so log lines
// can be grepped/aggregated by key regardless of which component emitted
// them.
const (
	KeyChannel    = "channel"     // remote address of the connection
	KeyRequestID  = "request_id"  // 63-bit RPC request id
	KeyStreamID   = "stream_id"   // stream id
	KeyChunkIndex = "chunk_index" // chunk index within a stream
	KeyMessage    = "message"     // message type name (RpcRequest, StreamResponse, ...)
	KeyBytes      = "bytes"       // payload size in bytes
	KeyDurationMs = "duration_ms" // operation duration in milliseconds
	KeyError      = "error"       // error string
	KeyReason     = "reason"      // human-readable reason for a failure/teardown
	KeyAppID      = "app_id"      // authorized app id for a stream
)

// Channel returns a slog.Attr for the remote address of a connection.
func Channel(addr string) slog.Attr { return slog.String(KeyChannel, addr) }

// RequestID returns a slog.Attr for an RPC request id.
func RequestID(id uint64) slog.Attr { return slog.Uint64(KeyRequestID, id) }

// StreamID returns a slog.Attr for a stream id.
func StreamID(id uint64) slog.Attr { return slog.Uint64(KeyStreamID, id) }

// ChunkIndex returns a slog.Attr for a chunk index.
func ChunkIndex(idx int32) slog.Attr { return slog.Int(KeyChunkIndex, int(idx)) }

// Bytes returns a slog.Attr for a payload size.
func Bytes(n int) slog.Attr { return slog.Int(KeyBytes, n) }

// DurationMs returns a slog.Attr for a duration in milliseconds.
func DurationMs(ms float64) slog.Attr { return slog.Float64(KeyDurationMs, ms) }

// Err returns a slog.Attr for an error, or a zero Attr if err is nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Reason returns a slog.Attr describing why a teardown/failure happened.
func Reason(reason string) slog.Attr { return slog.String(KeyReason, reason) }
