package bufpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetReturnsExactLength(t *testing.T) {
	for _, size := range []int{0, 1, DefaultSmallSize, DefaultMediumSize + 1, DefaultLargeSize + 1} {
		buf := Get(size)
		assert.Len(t, buf, size)
	}
}

func TestPutReuse(t *testing.T) {
	p := NewPool(&Config{SmallSize: 16, MediumSize: 64, LargeSize: 256})
	buf := p.Get(10)
	ptr := &buf[0]
	p.Put(buf)

	buf2 := p.Get(10)
	// Best-effort: not guaranteed by sync.Pool, but exercises Put/Get without
	// panicking on size-class boundaries.
	assert.Len(t, buf2, 10)
	_ = ptr
}

func TestPutNilIsNoop(t *testing.T) {
	assert.NotPanics(t, func() { Put(nil) })
}

func TestOversizedNotPooled(t *testing.T) {
	p := NewPool(&Config{SmallSize: 4, MediumSize: 8, LargeSize: 16})
	buf := p.Get(1024)
	assert.Len(t, buf, 1024)
	// Returning an oversized buffer must not panic even though it isn't pooled.
	assert.NotPanics(t, func() { p.Put(buf) })
}
