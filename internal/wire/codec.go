package wire

import (
	"bytes"
	"fmt"
	"io"

	"github.com/marmos91/chanrpc/internal/bufpool"
	"github.com/marmos91/chanrpc/internal/frame"
)

// WriteMessage encodes m as [type_code][header fields][optional body] and
// hands it to fw as a single frame. Per SPEC_FULL.md §4.2, the body is not
// copied into the header: it is written directly to the frame writer's
// underlying io.Writer via ManagedBuffer.WriteTo, while the frame codec
// computes the length prefix over header+body combined.
func WriteMessage(fw *frame.Writer, m Message) error {
	var hdr bytes.Buffer
	hdr.WriteByte(byte(m.Type()))
	if err := m.EncodeHeader(&hdr); err != nil {
		return fmt.Errorf("wire: encode header: %w", err)
	}

	body := m.Body()
	bodyLen := int64(0)
	if body != nil {
		bodyLen = body.Size()
	}

	err := fw.WriteFrame(int64(hdr.Len())+bodyLen, func(w io.Writer) error {
		if _, err := w.Write(hdr.Bytes()); err != nil {
			return err
		}
		if body == nil {
			return nil
		}
		_, err := body.WriteTo(w)
		return err
	})

	// The codec owns outbound buffers: release them once the write is over,
	// whether it succeeded or failed.
	if body != nil {
		body.Release()
	}
	if u, ok := m.(*UploadStream); ok && u.Meta != nil {
		u.Meta.Release()
	}
	return err
}

// ReadMessage reads one frame from fr and decodes it. The returned
// Message's Body(), if non-nil, must be released by the caller once
// consumed.
func ReadMessage(fr *frame.Reader) (Message, error) {
	payload, err := fr.ReadFrame()
	if err != nil {
		return nil, err
	}
	defer bufpool.Put(payload)

	owned := make([]byte, len(payload))
	copy(owned, payload)
	return Decode(owned)
}
