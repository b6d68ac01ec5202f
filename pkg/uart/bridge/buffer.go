package bridge

import (
	"errors"
	"unsafe"
)

// Scratch buffer defaults.
const (
	DefaultScratchSize  = 64 * 1024
	DefaultScratchAlign = 64 // cache line
)

// ErrInvalidScratch indicates bad scratch buffer parameters.
var ErrInvalidScratch = errors.New("invalid scratch buffer size or alignment")

// AlignedBuffer is a fixed-capacity byte buffer whose first byte is
// aligned to a power-of-2 boundary.
type AlignedBuffer struct {
	raw   []byte
	buf   []byte
	align int
}

// NewAlignedBuffer allocates an AlignedBuffer.
func NewAlignedBuffer(size, align int) (*AlignedBuffer, error) {
	if size <= 0 || align <= 0 || align&(align-1) != 0 {
		return nil, ErrInvalidScratch
	}
	raw := make([]byte, size+align-1)
	off := int(-uintptr(unsafe.Pointer(&raw[0])) & uintptr(align-1))
	return &AlignedBuffer{
		raw:   raw,
		buf:   raw[off : off+size : off+size],
		align: align,
	}, nil
}

// Bytes returns the whole buffer.
func (b *AlignedBuffer) Bytes() []byte {
	return b.buf
}

// Len returns the capacity.
func (b *AlignedBuffer) Len() int {
	return len(b.buf)
}

// Align returns the alignment.
func (b *AlignedBuffer) Align() int {
	return b.align
}
