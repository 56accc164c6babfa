// Package block implements the fixed-capacity, reusable presentation block
// pool shared by the decode worker (producer) and render worker (consumer).
// A Block's identity is its slot in the pool, not its contents: blocks are
// mutated in place and recycled rather than allocated per frame.
package block

import (
	"sync"
	"time"

	"github.com/erparts/avplay/internal/avtype"
)

// Block is a pre-allocated output unit holding audio samples, a decoded
// video picture, or subtitle text. Its byte buffer is guarded by an
// independent reader-writer lock so a renderer can hold a read lock while
// the decode worker waits to recycle a different slot.
type Block struct {
	mu sync.RWMutex

	kind           avtype.MediaKind
	buf            []byte
	startTime      time.Duration
	duration       time.Duration
	streamIndex    int
	compressedSize int
	poolIndex      int // monotonic index within the buffer's backing slice

	// sibling links, recomputed by Buffer after every mutation.
	prev *Block
	next *Block
}

// NewBlock allocates an empty block for the given slot index.
func NewBlock(kind avtype.MediaKind, poolIndex int) *Block {
	return &Block{kind: kind, poolIndex: poolIndex}
}

// Kind returns the block's media type.
func (b *Block) Kind() avtype.MediaKind { return b.kind }

// PoolIndex returns the block's fixed slot index within its buffer.
func (b *Block) PoolIndex() int { return b.poolIndex }

// StartTime returns the block's presentation start time.
func (b *Block) StartTime() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.startTime
}

// Duration returns the block's presentation duration.
func (b *Block) Duration() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.duration
}

// EndTime returns StartTime()+Duration().
func (b *Block) EndTime() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.startTime + b.duration
}

// StreamIndex returns the originating demuxer stream index.
func (b *Block) StreamIndex() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.streamIndex
}

// CompressedSize returns the size, in bytes, of the packet(s) this block was
// materialized from (used for bit-rate estimation).
func (b *Block) CompressedSize() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.compressedSize
}

// Prev returns the previous sibling in playback order, or nil.
func (b *Block) Prev() *Block {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.prev
}

// Next returns the next sibling in playback order, or nil.
func (b *Block) Next() *Block {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.next
}

// ReadBuffer runs fn with a read lock held over the block's byte buffer.
// Renderers should use this instead of holding onto the returned slice,
// since the buffer is replaced (not appended to) on the next write.
func (b *Block) ReadBuffer(fn func(buf []byte)) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	fn(b.buf)
}

// writeFields replaces the block's contents under the writer lock. Called
// only by Buffer.Add while inserting a materialized frame; allocation of a
// new backing buffer only ever happens here, never while a reader holds the
// lock.
func (b *Block) writeFields(buf []byte, start, dur time.Duration, streamIndex, compressedSize int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cap(b.buf) >= len(buf) {
		b.buf = b.buf[:len(buf)]
		copy(b.buf, buf)
	} else {
		b.buf = append(b.buf[:0:0], buf...)
	}
	b.startTime = start
	b.duration = dur
	b.streamIndex = streamIndex
	b.compressedSize = compressedSize
}

func (b *Block) setSiblings(prev, next *Block) {
	b.mu.Lock()
	b.prev = prev
	b.next = next
	b.mu.Unlock()
}
