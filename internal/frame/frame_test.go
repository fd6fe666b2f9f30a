package frame

import (
	"bytes"
	"io"
	"testing"

	"github.com/marmos91/chanrpc/internal/bufpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, size int) {
	t.Helper()

	payload := make([]byte, size)
	for i := range payload {
		payload[i] = byte(i)
	}

	var wire bytes.Buffer
	w := NewWriter(&wire)
	require.NoError(t, w.WriteFrameBytes(payload))

	r := NewReader(&wire, 0)
	got, err := r.ReadFrame()
	require.NoError(t, err)
	defer bufpool.Put(got)

	assert.Equal(t, payload, got)
}

func TestFrameRoundTripSizes(t *testing.T) {
	for _, size := range []int{0, 1, 1023, 1024, 1 << 20} {
		roundTrip(t, size)
	}
}

func TestFrameReaderAccumulatesShortReads(t *testing.T) {
	payload := []byte("hello frame")
	var wire bytes.Buffer
	require.NoError(t, NewWriter(&wire).WriteFrameBytes(payload))

	full := wire.Bytes()
	pr, pw := io.Pipe()
	go func() {
		for i := 0; i < len(full); i++ {
			_, _ = pw.Write(full[i : i+1])
		}
		pw.Close()
	}()

	r := NewReader(pr, 0)
	got, err := r.ReadFrame()
	require.NoError(t, err)
	defer bufpool.Put(got)
	assert.Equal(t, payload, got)
}

func TestFrameReaderRejectsTooSmallLength(t *testing.T) {
	var wire bytes.Buffer
	require.NoError(t, NewWriter(&wire).WriteFrame(-100, func(io.Writer) error { return nil }))

	r := NewReader(&wire, 0)
	_, err := r.ReadFrame()
	assert.Error(t, err)
}

func TestFrameReaderRejectsOverMax(t *testing.T) {
	var wire bytes.Buffer
	w := NewWriter(&wire)
	require.NoError(t, w.WriteFrame(1024, func(wr io.Writer) error {
		_, err := wr.Write(make([]byte, 1024))
		return err
	}))

	r := NewReader(&wire, 100)
	_, err := r.ReadFrame()
	assert.Error(t, err)
}

func TestFrameReaderPropagatesEOF(t *testing.T) {
	r := NewReader(bytes.NewReader(nil), 0)
	_, err := r.ReadFrame()
	assert.ErrorIs(t, err, io.EOF)
}
