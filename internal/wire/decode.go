package wire

import (
	"bytes"
	"fmt"
	"io"

	"github.com/marmos91/chanrpc/internal/buffer"
)

// Decode reads the type code and header fields from payload and returns the
// decoded Message. payload must be exactly one frame's worth of bytes (as
// produced by frame.Reader.ReadFrame); for body-bearing messages the
// trailing bytes after the fixed header are wrapped as the body buffer with
// no further copy, except UploadStream, whose meta and data are copied out.
//
// Decode takes ownership of payload: it is wrapped directly into a
// MemoryBuffer for body-bearing messages, so the caller must not return it
// to bufpool itself. The eventual consumer releases it once the body has
// been handled, per SPEC_FULL.md §3's ownership-transfer rule.
func Decode(payload []byte) (Message, error) {
	if len(payload) < 1 {
		return nil, fmt.Errorf("wire: empty frame payload")
	}
	t := Type(payload[0])
	r := bytes.NewReader(payload[1:])

	switch t {
	case TypeChunkFetchRequest:
		id, err := readStreamChunkID(r)
		if err != nil {
			return nil, fmt.Errorf("wire: decode ChunkFetchRequest: %w", err)
		}
		return &ChunkFetchRequest{ID: id}, nil

	case TypeRpcRequest:
		reqID, err := readI64(r)
		if err != nil {
			return nil, fmt.Errorf("wire: decode RpcRequest: %w", err)
		}
		return &RpcRequest{RequestID: uint64(reqID), Payload: remainingBuffer(r, payload)}, nil

	case TypeStreamRequest:
		sid, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("wire: decode StreamRequest: %w", err)
		}
		return &StreamRequest{StreamID: sid}, nil

	case TypeOneWayMessage:
		return &OneWayMessage{Payload: remainingBuffer(r, payload)}, nil

	case TypeUploadStream:
		reqID, err := readI64(r)
		if err != nil {
			return nil, fmt.Errorf("wire: decode UploadStream: %w", err)
		}
		metaLen, err := readI32(r)
		if err != nil {
			return nil, fmt.Errorf("wire: decode UploadStream: %w", err)
		}
		if metaLen < 0 {
			return nil, fmt.Errorf("wire: decode UploadStream: negative meta length %d", metaLen)
		}
		metaBytes := make([]byte, metaLen)
		if _, err := io.ReadFull(r, metaBytes); err != nil {
			return nil, fmt.Errorf("wire: decode UploadStream: read meta: %w", err)
		}
		rest, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("wire: decode UploadStream: read data: %w", err)
		}
		return &UploadStream{
			RequestID: uint64(reqID),
			Meta:      buffer.NewMemoryBuffer(metaBytes),
			Data:      buffer.NewMemoryBuffer(rest),
		}, nil

	case TypeChunkFetchSuccess:
		id, err := readStreamChunkID(r)
		if err != nil {
			return nil, fmt.Errorf("wire: decode ChunkFetchSuccess: %w", err)
		}
		return &ChunkFetchSuccess{ID: id, Payload: remainingBuffer(r, payload)}, nil

	case TypeChunkFetchFailure:
		id, err := readStreamChunkID(r)
		if err != nil {
			return nil, fmt.Errorf("wire: decode ChunkFetchFailure: %w", err)
		}
		msg, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("wire: decode ChunkFetchFailure: %w", err)
		}
		return &ChunkFetchFailure{ID: id, Error: msg}, nil

	case TypeRpcResponse:
		reqID, err := readI64(r)
		if err != nil {
			return nil, fmt.Errorf("wire: decode RpcResponse: %w", err)
		}
		return &RpcResponse{RequestID: uint64(reqID), Payload: remainingBuffer(r, payload)}, nil

	case TypeRpcFailure:
		reqID, err := readI64(r)
		if err != nil {
			return nil, fmt.Errorf("wire: decode RpcFailure: %w", err)
		}
		msg, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("wire: decode RpcFailure: %w", err)
		}
		return &RpcFailure{RequestID: uint64(reqID), Error: msg}, nil

	case TypeStreamResponse:
		sid, err := readI64(r)
		if err != nil {
			return nil, fmt.Errorf("wire: decode StreamResponse: %w", err)
		}
		n, err := readI64(r)
		if err != nil {
			return nil, fmt.Errorf("wire: decode StreamResponse: %w", err)
		}
		return &StreamResponse{StreamID: uint64(sid), ByteCount: n, Payload: remainingBuffer(r, payload)}, nil

	case TypeStreamFailure:
		sid, err := readI64(r)
		if err != nil {
			return nil, fmt.Errorf("wire: decode StreamFailure: %w", err)
		}
		msg, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("wire: decode StreamFailure: %w", err)
		}
		return &StreamFailure{StreamID: uint64(sid), Error: msg}, nil

	default:
		return nil, fmt.Errorf("wire: unknown message type code %d", t)
	}
}

// remainingBuffer wraps whatever bytes are left unread in r (all drawn from
// the tail of payload) as a MemoryBuffer. Body-bearing messages are always
// last in their header layout, so the remainder is exactly the body.
func remainingBuffer(r *bytes.Reader, payload []byte) buffer.ManagedBuffer {
	start := len(payload) - r.Len()
	return buffer.NewMemoryBuffer(payload[start:])
}
