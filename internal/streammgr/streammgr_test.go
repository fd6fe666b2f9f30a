package streammgr

import (
	"fmt"
	"testing"

	"github.com/marmos91/chanrpc/internal/buffer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct{ id string }

func (c *fakeChannel) ID() string { return c.id }

func bufs(ss ...string) []buffer.ManagedBuffer {
	out := make([]buffer.ManagedBuffer, len(ss))
	for i, s := range ss {
		out[i] = buffer.NewMemoryBuffer([]byte(s))
	}
	return out
}

func TestGetChunkOrderingAndRemoval(t *testing.T) {
	m := NewManager()
	ch := &fakeChannel{id: "c1"}
	sid := m.RegisterStream("", bufs("b0", "b1", "b2"), ch)

	_, err := m.GetChunk(sid, 1)
	var oo *ErrOutOfOrder
	assert.ErrorAs(t, err, &oo)

	for i, want := range []string{"b0", "b1", "b2"} {
		buf, err := m.GetChunk(sid, int32(i))
		require.NoError(t, err)
		data, err := buf.Bytes()
		require.NoError(t, err)
		assert.Equal(t, want, string(data))
	}

	assert.Equal(t, 0, m.streamCount())

	_, err = m.GetChunk(sid, 3)
	var be *ErrBeyondEnd
	assert.ErrorAs(t, err, &be)
}

func TestOpenStreamParsesCanonicalID(t *testing.T) {
	m := NewManager()
	ch := &fakeChannel{id: "c1"}
	sid := m.RegisterStream("", bufs("only"), ch)

	buf, err := m.OpenStream(fmt.Sprintf("%d_%d", sid, 0))
	require.NoError(t, err)
	data, err := buf.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "only", string(data))
}

func TestConnectionTerminatedReleasesRemainingBuffers(t *testing.T) {
	m := NewManager()
	ch := &fakeChannel{id: "c1"}
	sid := m.RegisterStream("", bufs("b0", "b1", "b2"), ch)

	_, err := m.GetChunk(sid, 0)
	require.NoError(t, err)

	m.ConnectionTerminated(ch)
	assert.Equal(t, 0, m.streamCount())

	_, err = m.GetChunk(sid, 1)
	var be *ErrBeyondEnd
	assert.ErrorAs(t, err, &be)
}

func TestCheckAuthorization(t *testing.T) {
	m := NewManager()
	ch := &fakeChannel{id: "c1"}
	sid := m.RegisterStream("A", bufs("x"), ch)

	assert.Error(t, m.CheckAuthorization("B", sid))
	assert.NoError(t, m.CheckAuthorization("A", sid))
	assert.NoError(t, m.CheckAuthorization("", sid))
}

func TestChunksBeingTransferred(t *testing.T) {
	m := NewManager()
	ch := &fakeChannel{id: "c1"}
	sid := m.RegisterStream("", bufs("x", "y"), ch)

	m.ChunkBeingSent(sid)
	m.ChunkBeingSent(sid)
	assert.EqualValues(t, 2, m.ChunksBeingTransferred())

	m.ChunkSent(sid)
	assert.EqualValues(t, 1, m.ChunksBeingTransferred())
}

func TestStreamBeingSentSharesChunkCounter(t *testing.T) {
	m := NewManager()
	ch := &fakeChannel{id: "c1"}
	sid := m.RegisterStream("", bufs("x", "y"), ch)

	m.StreamBeingSent(sid)
	m.ChunkBeingSent(sid)
	assert.EqualValues(t, 2, m.ChunksBeingTransferred())

	m.StreamSent(sid)
	assert.EqualValues(t, 1, m.ChunksBeingTransferred())

	m.ChunkSent(sid)
	assert.EqualValues(t, 0, m.ChunksBeingTransferred())
}

func TestStreamBeingSentOnUnknownStreamIsNoOp(t *testing.T) {
	m := NewManager()
	m.StreamBeingSent(999)
	m.StreamSent(999)
	assert.EqualValues(t, 0, m.ChunksBeingTransferred())
}
