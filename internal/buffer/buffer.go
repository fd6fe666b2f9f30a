// Package buffer implements the polymorphic, refcounted "managed buffer"
// carrier described in SPEC_FULL.md §3. A ManagedBuffer is handed across
// the wire-encode boundary without copying: the message codec appends its
// bytes directly into the outbound write, and the codec releases it once
// the bytes are on the wire (success or failure) per the ownership-
// transfer rule in §3.
package buffer

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/marmos91/chanrpc/internal/bufpool"
)

// ManagedBuffer is a polymorphic, reference-counted byte carrier. At
// minimum two variants exist: an in-memory region (MemoryBuffer) and a
// file-backed region (FileBuffer).
type ManagedBuffer interface {
	// Size returns the exact byte length of the buffer.
	Size() int64

	// Bytes materializes the buffer's contents to memory. For a
	// MemoryBuffer this is a zero-copy view; for a FileBuffer it performs a
	// bounded read.
	Bytes() ([]byte, error)

	// WriteTo streams the buffer's contents to w without necessarily
	// materializing the whole thing in memory first.
	WriteTo(w io.Writer) (int64, error)

	// Retain increments the reference count. Call before handing the
	// buffer to a second owner (e.g. both the frame codec and a retry
	// path).
	Retain()

	// Release decrements the reference count. The caller of the release
	// that brings the count to zero is responsible for freeing any
	// underlying resource (pooled memory, open file descriptor).
	Release()
}

// ============================================================================
// MemoryBuffer
// ============================================================================

// MemoryBuffer wraps an in-memory byte slice. When pooled is true, the
// slice came from bufpool and is returned to the pool on final Release.
type MemoryBuffer struct {
	data   []byte
	pooled bool
	refs   atomic.Int32
}

// NewMemoryBuffer wraps data without taking pool ownership of it. The
// initial reference count is 1.
func NewMemoryBuffer(data []byte) *MemoryBuffer {
	b := &MemoryBuffer{data: data}
	b.refs.Store(1)
	return b
}

// NewPooledMemoryBuffer wraps data obtained from bufpool.Get; the final
// Release returns it via bufpool.Put instead of letting the GC reclaim it.
func NewPooledMemoryBuffer(data []byte) *MemoryBuffer {
	b := &MemoryBuffer{data: data, pooled: true}
	b.refs.Store(1)
	return b
}

// Size implements ManagedBuffer.
func (b *MemoryBuffer) Size() int64 { return int64(len(b.data)) }

// Bytes implements ManagedBuffer. The returned slice is a direct view; the
// caller must not use it after the buffer's final Release.
func (b *MemoryBuffer) Bytes() ([]byte, error) { return b.data, nil }

// WriteTo implements ManagedBuffer.
func (b *MemoryBuffer) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(b.data)
	return int64(n), err
}

// Retain implements ManagedBuffer.
func (b *MemoryBuffer) Retain() { b.refs.Add(1) }

// Release implements ManagedBuffer.
func (b *MemoryBuffer) Release() {
	if b.refs.Add(-1) == 0 && b.pooled {
		bufpool.Put(b.data)
		b.data = nil
	}
}

// ============================================================================
// FileBuffer
// ============================================================================

// FileBuffer wraps a byte range of an open file. Bytes() performs a
// bounded read; WriteTo uses io.Copy via io.NewSectionReader, which on
// Linux lets the kernel take the sendfile fast path when w is a
// *net.TCPConn — the "zero-copy transfer when the underlying I/O layer
// offers it" clause from SPEC_FULL.md §3 is satisfied by the standard
// library's own io.Copy/io.ReaderFrom negotiation, not by hand-rolled
// platform-specific code here.
type FileBuffer struct {
	f      *os.File
	offset int64
	length int64
	refs   atomic.Int32
}

// NewFileBuffer wraps the byte range [offset, offset+length) of f. The
// FileBuffer takes ownership of f: its final Release closes f.
func NewFileBuffer(f *os.File, offset, length int64) *FileBuffer {
	b := &FileBuffer{f: f, offset: offset, length: length}
	b.refs.Store(1)
	return b
}

// Size implements ManagedBuffer.
func (b *FileBuffer) Size() int64 { return b.length }

// Bytes implements ManagedBuffer.
func (b *FileBuffer) Bytes() ([]byte, error) {
	buf := make([]byte, b.length)
	if _, err := b.f.ReadAt(buf, b.offset); err != nil && err != io.EOF {
		return nil, fmt.Errorf("read file buffer: %w", err)
	}
	return buf, nil
}

// WriteTo implements ManagedBuffer.
func (b *FileBuffer) WriteTo(w io.Writer) (int64, error) {
	sr := io.NewSectionReader(b.f, b.offset, b.length)
	return io.Copy(w, sr)
}

// Retain implements ManagedBuffer.
func (b *FileBuffer) Retain() { b.refs.Add(1) }

// Release implements ManagedBuffer.
func (b *FileBuffer) Release() {
	if b.refs.Add(-1) == 0 {
		_ = b.f.Close()
	}
}
