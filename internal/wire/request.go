package wire

import (
	"io"

	"github.com/marmos91/chanrpc/internal/buffer"
)

// ChunkFetchRequest requests a single chunk of a registered stream.
type ChunkFetchRequest struct {
	ID StreamChunkID
}

func (m *ChunkFetchRequest) Type() Type                     { return TypeChunkFetchRequest }
func (m *ChunkFetchRequest) Body() buffer.ManagedBuffer      { return nil }
func (m *ChunkFetchRequest) EncodeHeader(w io.Writer) error  { return writeStreamChunkID(w, m.ID) }

// RpcRequest carries an opaque request body awaiting exactly one response.
type RpcRequest struct {
	RequestID uint64
	Payload   buffer.ManagedBuffer
}

func (m *RpcRequest) Type() Type                { return TypeRpcRequest }
func (m *RpcRequest) Body() buffer.ManagedBuffer { return m.Payload }
func (m *RpcRequest) EncodeHeader(w io.Writer) error {
	return writeI64(w, int64(m.RequestID))
}

// StreamRequest asks the peer to open a previously-registered stream by id.
type StreamRequest struct {
	StreamID string
}

func (m *StreamRequest) Type() Type                    { return TypeStreamRequest }
func (m *StreamRequest) Body() buffer.ManagedBuffer     { return nil }
func (m *StreamRequest) EncodeHeader(w io.Writer) error { return writeString(w, m.StreamID) }

// OneWayMessage is a fire-and-forget message with no response frame.
type OneWayMessage struct {
	Payload buffer.ManagedBuffer
}

func (m *OneWayMessage) Type() Type                    { return TypeOneWayMessage }
func (m *OneWayMessage) Body() buffer.ManagedBuffer     { return m.Payload }
func (m *OneWayMessage) EncodeHeader(w io.Writer) error { return nil }

// UploadStream carries a metadata buffer followed by a bulk data buffer,
// both streamed sequentially on the wire. Meta is small and written inline
// as part of the header; Data is the zero-copy body region written
// directly to the wire by WriteMessage.
type UploadStream struct {
	RequestID uint64
	Meta      buffer.ManagedBuffer
	Data      buffer.ManagedBuffer
}

func (m *UploadStream) Type() Type                { return TypeUploadStream }
func (m *UploadStream) Body() buffer.ManagedBuffer { return m.Data }
func (m *UploadStream) EncodeHeader(w io.Writer) error {
	if err := writeI64(w, int64(m.RequestID)); err != nil {
		return err
	}
	metaLen := int32(0)
	if m.Meta != nil {
		metaLen = int32(m.Meta.Size())
	}
	if err := writeI32(w, metaLen); err != nil {
		return err
	}
	return writeBody(w, m.Meta)
}
