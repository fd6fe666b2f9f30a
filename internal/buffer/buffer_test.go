package buffer

import (
	"bytes"
	"os"
	"testing"

	"github.com/marmos91/chanrpc/internal/bufpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBufferRoundTrip(t *testing.T) {
	b := NewMemoryBuffer([]byte("hello"))
	assert.EqualValues(t, 5, b.Size())

	data, err := b.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	var out bytes.Buffer
	n, err := b.WriteTo(&out)
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)
	assert.Equal(t, "hello", out.String())
}

func TestMemoryBufferRetainRelease(t *testing.T) {
	buf := bufpool.Get(4)
	copy(buf, "data")
	b := NewPooledMemoryBuffer(buf)

	b.Retain()
	b.Release() // back to refcount 1, data still valid
	data, err := b.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))

	b.Release() // refcount 0, returns to pool
}

func TestFileBufferRoundTrip(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "chanrpc-buf-*")
	require.NoError(t, err)
	_, err = f.WriteString("0123456789")
	require.NoError(t, err)

	b := NewFileBuffer(f, 2, 5)
	assert.EqualValues(t, 5, b.Size())

	data, err := b.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "23456", string(data))

	var out bytes.Buffer
	n, err := b.WriteTo(&out)
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)
	assert.Equal(t, "23456", out.String())

	b.Release()
	_, err = f.Stat()
	assert.Error(t, err, "file should be closed after final release")
}
