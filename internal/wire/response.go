package wire

import (
	"io"

	"github.com/marmos91/chanrpc/internal/buffer"
)

// ChunkFetchSuccess delivers the body of a previously requested chunk.
type ChunkFetchSuccess struct {
	ID      StreamChunkID
	Payload buffer.ManagedBuffer
}

func (m *ChunkFetchSuccess) Type() Type                    { return TypeChunkFetchSuccess }
func (m *ChunkFetchSuccess) Body() buffer.ManagedBuffer     { return m.Payload }
func (m *ChunkFetchSuccess) EncodeHeader(w io.Writer) error { return writeStreamChunkID(w, m.ID) }

// ChunkFetchFailure reports that a chunk fetch could not be served.
type ChunkFetchFailure struct {
	ID    StreamChunkID
	Error string
}

func (m *ChunkFetchFailure) Type() Type                { return TypeChunkFetchFailure }
func (m *ChunkFetchFailure) Body() buffer.ManagedBuffer { return nil }
func (m *ChunkFetchFailure) EncodeHeader(w io.Writer) error {
	if err := writeStreamChunkID(w, m.ID); err != nil {
		return err
	}
	return writeString(w, m.Error)
}

// RpcResponse completes an outstanding RpcRequest successfully.
type RpcResponse struct {
	RequestID uint64
	Payload   buffer.ManagedBuffer
}

func (m *RpcResponse) Type() Type                { return TypeRpcResponse }
func (m *RpcResponse) Body() buffer.ManagedBuffer { return m.Payload }
func (m *RpcResponse) EncodeHeader(w io.Writer) error {
	return writeI64(w, int64(m.RequestID))
}

// RpcFailure completes an outstanding RpcRequest with an error.
type RpcFailure struct {
	RequestID uint64
	Error     string
}

func (m *RpcFailure) Type() Type                { return TypeRpcFailure }
func (m *RpcFailure) Body() buffer.ManagedBuffer { return nil }
func (m *RpcFailure) EncodeHeader(w io.Writer) error {
	if err := writeI64(w, int64(m.RequestID)); err != nil {
		return err
	}
	return writeString(w, m.Error)
}

// StreamResponse delivers ByteCount bytes of a stream's body. ByteCount is
// redundant with Payload.Size() on the wire but kept explicit per
// spec.md §3's taxonomy so the response handler can drive onData
// deliveries without first asking the buffer its own size.
type StreamResponse struct {
	StreamID  uint64
	ByteCount int64
	Payload   buffer.ManagedBuffer
}

func (m *StreamResponse) Type() Type                { return TypeStreamResponse }
func (m *StreamResponse) Body() buffer.ManagedBuffer { return m.Payload }
func (m *StreamResponse) EncodeHeader(w io.Writer) error {
	if err := writeI64(w, int64(m.StreamID)); err != nil {
		return err
	}
	return writeI64(w, m.ByteCount)
}

// StreamFailure aborts a previously requested stream.
type StreamFailure struct {
	StreamID uint64
	Error    string
}

func (m *StreamFailure) Type() Type                { return TypeStreamFailure }
func (m *StreamFailure) Body() buffer.ManagedBuffer { return nil }
func (m *StreamFailure) EncodeHeader(w io.Writer) error {
	if err := writeI64(w, int64(m.StreamID)); err != nil {
		return err
	}
	return writeString(w, m.Error)
}
