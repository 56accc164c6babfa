package block

import (
	"sort"
	"sync"
	"time"

	"github.com/erparts/avplay/internal/avtype"
	"github.com/erparts/avplay/internal/decoder"
)

// Materializer converts a decoded frame into the byte payload that belongs
// in a Block, given the previous playback block for duration estimation.
// Implemented by the media component that owns the frame's stream.
type Materializer interface {
	Materialize(frame *decoder.Frame, previous *Block) (payload []byte, start, dur time.Duration, streamIndex, compressedSize int, ok bool, err error)
}

// Buffer is a capacity-bounded collection of blocks of one media type,
// partitioned into pool (free) and playback (filled, sorted by start time).
type Buffer struct {
	mu sync.Mutex

	kind     avtype.MediaKind
	capacity int
	all      []*Block // every owned block, indexed by PoolIndex; never reallocated
	pool     []*Block
	playback []*Block // kept sorted by start time

	isMonotonic      bool
	monotonicBroken  bool
	lastQueriedIndex int
	lastQueriedPos   time.Duration
}

// NewBuffer allocates `capacity` blocks up front; none are ever freed for
// the life of the buffer, only recycled between pool and playback.
func NewBuffer(kind avtype.MediaKind, capacity int) *Buffer {
	b := &Buffer{
		kind:        kind,
		capacity:    capacity,
		all:         make([]*Block, capacity),
		pool:        make([]*Block, 0, capacity),
		playback:    make([]*Block, 0, capacity),
		isMonotonic: true,
	}
	for i := 0; i < capacity; i++ {
		blk := NewBlock(kind, i)
		b.all[i] = blk
		b.pool = append(b.pool, blk)
	}
	return b
}

// Capacity returns the fixed number of blocks owned by the buffer.
func (b *Buffer) Capacity() int { return b.capacity }

// Count returns the number of filled (playback) blocks.
func (b *Buffer) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.playback)
}

// IsFull reports whether every block is currently in playback.
func (b *Buffer) IsFull() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pool) == 0
}

// Add materializes frame into a recycled block and inserts it into playback
// order. If a playback block with an identical start time already exists,
// it is returned to the pool first (dedupe). If the pool is empty, the
// oldest playback block is evicted to make room.
func (b *Buffer) Add(frame *decoder.Frame, m Materializer) (*Block, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var previous *Block
	if n := len(b.playback); n > 0 {
		previous = b.playback[n-1]
	}

	payload, start, dur, streamIndex, compressedSize, ok, err := m.Materialize(frame, previous)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil // materialize failed: skip the add
	}

	// dedupe: drop any existing playback block with identical start time
	if idx := b.findPlaybackIndexLocked(start); idx >= 0 {
		b.recyclePlaybackAtLocked(idx)
	}

	// evict oldest if pool is empty
	if len(b.pool) == 0 {
		if len(b.playback) == 0 {
			return nil, nil
		}
		b.recyclePlaybackAtLocked(0)
	}

	blk := b.pool[len(b.pool)-1]
	b.pool = b.pool[:len(b.pool)-1]
	blk.writeFields(payload, start, dur, streamIndex, compressedSize)

	b.playback = append(b.playback, blk)
	sort.Slice(b.playback, func(i, j int) bool { return b.playback[i].startTime < b.playback[j].startTime })
	b.relinkLocked()
	b.updateMonotonicityLocked()
	b.lastQueriedIndex = -1
	return blk, nil
}

// findPlaybackIndexLocked returns the index of a playback block whose start
// time exactly matches, or -1.
func (b *Buffer) findPlaybackIndexLocked(start time.Duration) int {
	for i, blk := range b.playback {
		if blk.startTime == start {
			return i
		}
	}
	return -1
}

func (b *Buffer) recyclePlaybackAtLocked(i int) {
	blk := b.playback[i]
	b.playback = append(b.playback[:i], b.playback[i+1:]...)
	b.pool = append(b.pool, blk)
}

func (b *Buffer) relinkLocked() {
	for i, blk := range b.playback {
		var prev, next *Block
		if i > 0 {
			prev = b.playback[i-1]
		}
		if i < len(b.playback)-1 {
			next = b.playback[i+1]
		}
		blk.setSiblings(prev, next)
	}
}

// updateMonotonicityLocked tracks the sticky is_monotonic flag: once any
// two adjacent durations differ, the buffer is marked non-monotonic until
// Clear().
func (b *Buffer) updateMonotonicityLocked() {
	if b.monotonicBroken {
		b.isMonotonic = false
		return
	}
	if len(b.playback) < 2 {
		return
	}
	last := b.playback[len(b.playback)-1]
	prev := b.playback[len(b.playback)-2]
	if last.duration != prev.duration {
		b.monotonicBroken = true
		b.isMonotonic = false
	}
}

// Clear returns all playback blocks to the pool and resets cached state.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, blk := range b.playback {
		blk.setSiblings(nil, nil)
		b.pool = append(b.pool, blk)
	}
	b.playback = b.playback[:0]
	b.isMonotonic = true
	b.monotonicBroken = false
	b.lastQueriedIndex = -1
}

// IndexOf finds the playback index of the block containing positionTicks,
// memoized on the last queried position for the common case of sequential
// scans during playback.
func (b *Buffer) IndexOf(position time.Duration) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.indexOfLocked(position)
}

func (b *Buffer) indexOfLocked(position time.Duration) int {
	n := len(b.playback)
	if n == 0 {
		return -1
	}

	// memoized fast path: position advanced only slightly since last query
	if b.lastQueriedIndex >= 0 && b.lastQueriedIndex < n {
		blk := b.playback[b.lastQueriedIndex]
		if position >= blk.startTime && position < blk.startTime+blk.duration {
			return b.lastQueriedIndex
		}
		// linear probe forward a short distance (sequential playback is the
		// overwhelmingly common access pattern)
		for i := b.lastQueriedIndex; i < n && i < b.lastQueriedIndex+4; i++ {
			c := b.playback[i]
			if position >= c.startTime && position < c.startTime+c.duration {
				b.lastQueriedIndex = i
				return i
			}
		}
	}

	// binary search fallback
	i := sort.Search(n, func(i int) bool {
		return b.playback[i].startTime+b.playback[i].duration > position
	})
	if i < n && position >= b.playback[i].startTime {
		b.lastQueriedIndex = i
		return i
	}
	if i > 0 {
		b.lastQueriedIndex = i - 1
		return i - 1
	}
	return -1
}

// Contains reports whether position falls within [range_start, range_end].
func (b *Buffer) Contains(position time.Duration) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.playback) == 0 {
		return false
	}
	start := b.playback[0].startTime
	end := b.playback[len(b.playback)-1].startTime + b.playback[len(b.playback)-1].duration
	return position >= start && position <= end
}

// Neighbors returns the previous, next, and current block for the given
// position.
func (b *Buffer) Neighbors(position time.Duration) (prev, next, current *Block) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.indexOfLocked(position)
	if i < 0 {
		return nil, nil, nil
	}
	current = b.playback[i]
	return current.prev, current.next, current
}

// ContinuousNext returns blk's next sibling iff the gap between them is
// within the allowed discontinuity threshold: half the block duration for
// monotonic buffers, or the fixed non-monotonic threshold otherwise.
func (b *Buffer) ContinuousNext(blk *Block, nonMonotonicThreshold time.Duration) *Block {
	if blk == nil {
		return nil
	}
	next := blk.Next()
	if next == nil {
		return nil
	}
	gap := next.StartTime() - blk.EndTime()

	b.mu.Lock()
	monotonic := b.isMonotonic
	b.mu.Unlock()

	var max time.Duration
	if monotonic {
		max = blk.Duration() / 2
	} else {
		max = nonMonotonicThreshold
	}
	if gap <= max {
		return next
	}
	return nil
}

// GetSnapPosition returns the start time of the block containing position
// (monotonic buffers only), or of the following block if position falls
// past the containing block's end.
func (b *Buffer) GetSnapPosition(position time.Duration) (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.isMonotonic {
		return 0, false
	}
	i := b.indexOfLocked(position)
	if i < 0 {
		return 0, false
	}
	blk := b.playback[i]
	if position > blk.startTime+blk.duration && blk.next != nil {
		return blk.next.startTime, true
	}
	return blk.startTime, true
}

// RangeStartTime returns the first playback block's start time.
func (b *Buffer) RangeStartTime() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.playback) == 0 {
		return 0
	}
	return b.playback[0].startTime
}

// RangeEndTime returns the last playback block's end time.
func (b *Buffer) RangeEndTime() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.playback) == 0 {
		return 0
	}
	last := b.playback[len(b.playback)-1]
	return last.startTime + last.duration
}

// RangeMidTime returns the midpoint of [range_start, range_end].
func (b *Buffer) RangeMidTime() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rangeMidTimeLocked()
}

func (b *Buffer) rangeMidTimeLocked() time.Duration {
	if len(b.playback) == 0 {
		return 0
	}
	start := b.playback[0].startTime
	last := b.playback[len(b.playback)-1]
	end := last.startTime + last.duration
	return start + (end-start)/2
}

// AverageDuration returns the mean block duration across playback blocks.
func (b *Buffer) AverageDuration() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.playback) == 0 {
		return 0
	}
	if b.isMonotonic {
		return b.playback[len(b.playback)-1].duration
	}
	var sum time.Duration
	for _, blk := range b.playback {
		sum += blk.duration
	}
	return sum / time.Duration(len(b.playback))
}

// IsMonotonic reports whether every block observed so far has shared the
// same duration.
func (b *Buffer) IsMonotonic() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.isMonotonic
}

// GetRangePercent returns (position-range_start)/range_duration, or 0 if
// the range has zero duration.
func (b *Buffer) GetRangePercent(position time.Duration) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.playback) == 0 {
		return 0
	}
	start := b.playback[0].startTime
	last := b.playback[len(b.playback)-1]
	end := last.startTime + last.duration
	rangeDur := end - start
	if rangeDur <= 0 {
		return 0
	}
	return float64(position-start) / float64(rangeDur)
}

// RangeBitRate computes 8*sum(compressed_size)/range_duration_seconds, or 0
// if fewer than 2 blocks are present.
func (b *Buffer) RangeBitRate() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.playback) < 2 {
		return 0
	}
	var totalBytes int
	for _, blk := range b.playback {
		totalBytes += blk.compressedSize
	}
	start := b.playback[0].startTime
	last := b.playback[len(b.playback)-1]
	end := last.startTime + last.duration
	seconds := (end - start).Seconds()
	if seconds <= 0 {
		return 0
	}
	return 8 * float64(totalBytes) / seconds
}
