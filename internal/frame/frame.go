// Package frame implements the length-prefixed framing described in
// SPEC_FULL.md §4.1: each frame on the wire is
// [int64 frame_length_including_prefix][payload bytes].
//
// The reader accumulates bytes across short reads exactly like the
// teacher's record-marking reader (nfs.ReadFragmentHeader/ReadRPCMessage),
// generalized from a 4-byte NFS fragment header with a continuation bit to
// the spec's 8-byte int64 length prefix with no continuation semantics —
// one frame is always one complete message.
package frame

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/marmos91/chanrpc/internal/bufpool"
)

// HeaderSize is the width of the length prefix in bytes.
const HeaderSize = 8

// DefaultMaxFrameSize bounds a single frame's total size (prefix included)
// to guard against a corrupt or hostile length field causing unbounded
// allocation. An UploadStream's meta and data travel in one frame and are
// read fully into memory on receipt, so this ceiling also bounds the size
// of a single upload.
const DefaultMaxFrameSize = 64 << 20 // 64 MiB

// Reader decodes length-prefixed frames from an underlying io.Reader.
type Reader struct {
	r           io.Reader
	maxFrameLen int64
}

// NewReader wraps r. maxFrameLen <= 0 selects DefaultMaxFrameSize.
func NewReader(r io.Reader, maxFrameLen int64) *Reader {
	if maxFrameLen <= 0 {
		maxFrameLen = DefaultMaxFrameSize
	}
	return &Reader{r: r, maxFrameLen: maxFrameLen}
}

// ReadFrame reads one complete frame and returns its payload as a pooled
// buffer. The caller must return it via bufpool.Put once done decoding.
// A negative, too-small (payload would be negative), or over-limit length
// is a fatal framing error per SPEC_FULL.md §4.1 and §7; the caller should
// treat it as channel-fatal. io.EOF is returned verbatim so callers can
// distinguish a clean disconnect from a framing violation.
func (fr *Reader) ReadFrame() ([]byte, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(fr.r, hdr[:]); err != nil {
		return nil, err
	}

	total := int64(binary.BigEndian.Uint64(hdr[:]))
	if total < HeaderSize {
		return nil, fmt.Errorf("frame: invalid length %d (must be >= %d)", total, HeaderSize)
	}
	if total > fr.maxFrameLen {
		return nil, fmt.Errorf("frame: length %d exceeds maximum %d", total, fr.maxFrameLen)
	}

	payloadLen := total - HeaderSize
	payload := bufpool.GetInt64(payloadLen)
	if _, err := io.ReadFull(fr.r, payload); err != nil {
		bufpool.Put(payload)
		return nil, fmt.Errorf("frame: read payload: %w", err)
	}
	return payload, nil
}

// Writer encodes length-prefixed frames onto an underlying io.Writer.
// Writes are serialized by an internal mutex so concurrent callers (e.g.
// TransportClient.sendRpc racing the channel's own request-handler
// replies) never interleave a length prefix with another frame's payload.
type Writer struct {
	w  io.Writer
	mu sync.Mutex
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer { return &Writer{w: w} }

// WriteFrame writes one frame whose payload is exactly payloadLen bytes,
// produced by calling writePayload once with the underlying writer. This
// shape lets the message codec compose a frame out of a fixed header plus
// a zero-copy body write (via ManagedBuffer.WriteTo) without ever
// materializing header+body into one contiguous slice.
func (fw *Writer) WriteFrame(payloadLen int64, writePayload func(io.Writer) error) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	var hdr [HeaderSize]byte
	binary.BigEndian.PutUint64(hdr[:], uint64(payloadLen+HeaderSize))
	if _, err := fw.w.Write(hdr[:]); err != nil {
		return fmt.Errorf("frame: write header: %w", err)
	}
	if err := writePayload(fw.w); err != nil {
		return fmt.Errorf("frame: write payload: %w", err)
	}
	return nil
}

// WriteFrameBytes is a convenience for the common case of a single
// in-memory payload.
func (fw *Writer) WriteFrameBytes(payload []byte) error {
	return fw.WriteFrame(int64(len(payload)), func(w io.Writer) error {
		_, err := w.Write(payload)
		return err
	})
}
