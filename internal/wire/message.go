// Package wire implements the message codec described in SPEC_FULL.md §4.2:
// one Encode/Decode pair per message kind, using encoding/binary.BigEndian
// directly. The wire format is bespoke, not ONC-RPC/XDR, so there is no
// 4-byte alignment padding between fields — see DESIGN.md for why
// rasky/go-xdr (a teacher dependency) is not imported here.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/marmos91/chanrpc/internal/buffer"
	"github.com/marmos91/chanrpc/internal/bufpool"
)

// Type is the single-byte message type code that leads every frame payload.
type Type byte

const (
	TypeChunkFetchRequest Type = iota + 1
	TypeRpcRequest
	TypeStreamRequest
	TypeOneWayMessage
	TypeUploadStream
	TypeChunkFetchSuccess
	TypeChunkFetchFailure
	TypeRpcResponse
	TypeRpcFailure
	TypeStreamResponse
	TypeStreamFailure
)

// Message is implemented by every member of the taxonomy. EncodeHeader
// writes every field except the body (the type code is written by
// WriteMessage, not by EncodeHeader). Body returns the buffer, if any,
// that WriteMessage appends as a distinct region after the header so large
// payloads are written straight to the wire without an intermediate copy;
// the frame codec composes the length prefix over header+body combined.
type Message interface {
	Type() Type
	EncodeHeader(w io.Writer) error
	Body() buffer.ManagedBuffer
}

// IsRequest reports whether t belongs to the RequestMessage partition.
func (t Type) IsRequest() bool {
	switch t {
	case TypeChunkFetchRequest, TypeRpcRequest, TypeStreamRequest, TypeOneWayMessage, TypeUploadStream:
		return true
	default:
		return false
	}
}

// ============================================================================
// Header primitives
// ============================================================================

func writeI32(w io.Writer, v int32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	_, err := w.Write(b[:])
	return err
}

func writeI64(w io.Writer, v int64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	_, err := w.Write(b[:])
	return err
}

func writeString(w io.Writer, s string) error {
	if err := writeI32(w, int32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readI32(r io.Reader) (int32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b[:])), nil
}

func readI64(r io.Reader) (int64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b[:])), nil
}

func readString(r io.Reader) (string, error) {
	n, err := readI32(r)
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", fmt.Errorf("wire: negative string length %d", n)
	}
	buf := bufpool.Get(int(n))
	defer bufpool.Put(buf)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// StreamChunkID identifies a single chunk of a registered stream. Its
// canonical text form is "{stream_id}_{chunk_index}" per SPEC_FULL.md §3.
type StreamChunkID struct {
	StreamID   uint64
	ChunkIndex int32
}

func (id StreamChunkID) String() string {
	return fmt.Sprintf("%d_%d", id.StreamID, id.ChunkIndex)
}

func writeStreamChunkID(w io.Writer, id StreamChunkID) error {
	if err := writeI64(w, int64(id.StreamID)); err != nil {
		return err
	}
	return writeI32(w, id.ChunkIndex)
}

func readStreamChunkID(r io.Reader) (StreamChunkID, error) {
	sid, err := readI64(r)
	if err != nil {
		return StreamChunkID{}, err
	}
	idx, err := readI32(r)
	if err != nil {
		return StreamChunkID{}, err
	}
	return StreamChunkID{StreamID: uint64(sid), ChunkIndex: idx}, nil
}

func writeBody(w io.Writer, body buffer.ManagedBuffer) error {
	if body == nil {
		return nil
	}
	_, err := body.WriteTo(w)
	return err
}
