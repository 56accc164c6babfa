// Package component implements the per-stream decode pipeline (packet to
// frame to block) and the Set aggregating one component per media type.
// Media-type-specific behavior lives in the Audio/Video/Subtitle variants,
// composed over a shared base.
package component

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/erparts/avplay/internal/avtype"
	"github.com/erparts/avplay/internal/block"
	"github.com/erparts/avplay/internal/decoder"
	"github.com/erparts/avplay/internal/packetqueue"
)

// ReadState is the narrow slice of container state HasEnoughPackets needs.
// Passed explicitly on each call rather than held as a back-reference, so
// components and the container don't point at each other.
type ReadState struct {
	ReadAborted bool
	AtEOS       bool
}

// Component is the shared capability surface for one decoded stream.
type Component interface {
	block.Materializer

	Kind() avtype.MediaKind
	StreamIndex() int
	StartTime() time.Duration
	Duration() time.Duration
	IsStillPicture() bool

	SendPacket(p *packetqueue.Packet)
	SendEmptyPacket()
	SendFlushPacket()
	ClearQueuedPackets(flushBuffers bool) error
	ReceiveNextFrame() (*decoder.Frame, error)
	HasEnoughPackets(rs ReadState) bool
	BufferState() (length, count int, duration time.Duration)

	SetThresholds(count int, dur time.Duration)
	Thresholds() (count int, dur time.Duration)
	Dispose()
}

// base holds the state and logic shared by all media-type variants.
type base struct {
	mu sync.Mutex

	kind         avtype.MediaKind
	streamIndex  int
	startTime    time.Duration
	duration     time.Duration // extended as later frames are observed
	stillPicture bool

	pendingCompressedBytes int // accumulated packet.Size since the last frame emitted

	queue *packetqueue.Queue
	dec   decoder.StreamDecoder

	countThreshold int
	durThreshold   time.Duration

	hasPacketsInCodec atomic.Bool
	disposed          atomic.Bool
}

func newBase(kind avtype.MediaKind, streamIndex int, startTime, duration time.Duration, dec decoder.StreamDecoder, stillPicture bool) base {
	return base{
		kind:         kind,
		streamIndex:  streamIndex,
		startTime:    startTime,
		duration:     duration,
		stillPicture: stillPicture,
		queue:        packetqueue.NewQueue(),
		dec:          dec,
	}
}

func (b *base) Kind() avtype.MediaKind   { return b.kind }
func (b *base) StreamIndex() int         { return b.streamIndex }
func (b *base) StartTime() time.Duration { return b.startTime }
func (b *base) IsStillPicture() bool     { return b.stillPicture }

func (b *base) Duration() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.duration
}

func (b *base) SetThresholds(count int, dur time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.countThreshold = count
	b.durThreshold = dur
}

func (b *base) Thresholds() (count int, dur time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.countThreshold, b.durThreshold
}

// SendPacket enqueues a packet. A nil packet is routed to SendEmptyPacket.
func (b *base) SendPacket(p *packetqueue.Packet) {
	if p == nil {
		b.SendEmptyPacket()
		return
	}
	b.queue.Push(p)
}

// SendEmptyPacket enqueues a null-data packet tagged with this stream.
func (b *base) SendEmptyPacket() {
	b.queue.Push(packetqueue.NewEmptyPacket(b.streamIndex))
}

// SendFlushPacket enqueues a flush sentinel; when dequeued, the next packet
// feed resets the codec's buffered state before any following data packet is
// sent.
func (b *base) SendFlushPacket() {
	b.queue.Push(packetqueue.NewFlushPacket(b.streamIndex))
}

// ClearQueuedPackets drains and disposes all queued packets; if
// flushBuffers, the codec's internal buffers are also flushed and
// has_packets_in_codec is reset.
func (b *base) ClearQueuedPackets(flushBuffers bool) error {
	b.queue.Clear()
	if flushBuffers {
		if err := b.dec.FlushBuffers(); err != nil {
			return err
		}
		b.hasPacketsInCodec.Store(false)
	}
	return nil
}

// BufferState reports the component's packet-queue accounting.
func (b *base) BufferState() (length, count int, duration time.Duration) {
	return b.queue.BufferLength(), b.queue.Count(), b.queue.Duration()
}

// Dispose marks the component unusable; HasEnoughPackets will report true
// from then on so the read worker stops waiting on it.
func (b *base) Dispose() {
	b.disposed.Store(true)
	b.queue.Clear()
	_ = b.dec.Close()
}

// HasEnoughPackets reports whether the read worker can stop pulling packets
// for this component: always true once disposed, still-picture, aborted or
// at EOS, or with no count threshold configured; otherwise both the count
// and duration thresholds must be met.
func (b *base) HasEnoughPackets(rs ReadState) bool {
	if b.disposed.Load() || b.stillPicture || rs.ReadAborted || rs.AtEOS {
		return true
	}
	b.mu.Lock()
	countThreshold := b.countThreshold
	durThreshold := b.durThreshold
	b.mu.Unlock()
	if countThreshold == 0 {
		return true
	}
	durOK := b.queue.Duration() >= durThreshold
	countOK := b.queue.Count() >= countThreshold
	return durOK && countOK
}

// feedOnePacket dequeues and feeds a single logical unit of work to the
// codec: any run of leading flush packets is processed (no byte accounting
// applies to those), then at most one data/empty packet is sent. Returns whether
// any progress was made, and leaves the packet at the head of the queue on
// back-pressure (decoder.ErrAgain from Send).
func (b *base) feedOnePacket() (consumed bool, err error) {
	for {
		p := b.queue.Dequeue()
		if p == nil {
			return consumed, nil
		}
		if p.Kind == avtype.FlushPacket {
			if err := b.dec.FlushBuffers(); err != nil {
				return consumed, err
			}
			b.hasPacketsInCodec.Store(false)
			p.Dispose()
			consumed = true
			continue
		}

		var raw *decoder.RawPacket
		if p.Kind != avtype.EmptyPacket {
			raw = &decoder.RawPacket{StreamIndex: p.StreamIndex, Size: p.Size, Duration: p.Duration, Native: p.Native}
		}
		sendErr := b.dec.Send(raw)
		if sendErr != nil {
			if errors.Is(sendErr, decoder.ErrAgain) {
				b.queue.PushFront(p)
				return consumed, nil
			}
			return consumed, sendErr
		}
		b.hasPacketsInCodec.Store(true)
		if raw != nil {
			b.mu.Lock()
			b.pendingCompressedBytes += raw.Size
			b.mu.Unlock()
		}
		p.Dispose()
		return true, nil
	}
}

// receiveNextFrame is the shared video/audio reception loop: try to receive,
// and while the codec wants more input, feed one packet and retry, stopping
// once a feed attempt makes no progress. Subtitle overrides this with a
// single-shot decode.
func (b *base) receiveNextFrame() (*decoder.Frame, error) {
	frame, err := b.dec.Receive()
	if err == nil {
		return b.observeFrame(frame), nil
	}
	if !errors.Is(err, decoder.ErrAgain) {
		if errors.Is(err, decoder.ErrEOS) {
			_ = b.dec.FlushBuffers()
			b.hasPacketsInCodec.Store(false)
		}
		return nil, err
	}
	b.hasPacketsInCodec.Store(false)

	for {
		consumed, ferr := b.feedOnePacket()
		if ferr != nil {
			return nil, ferr
		}
		frame, err = b.dec.Receive()
		if err == nil {
			return b.observeFrame(frame), nil
		}
		if !errors.Is(err, decoder.ErrAgain) {
			if errors.Is(err, decoder.ErrEOS) {
				_ = b.dec.FlushBuffers()
			}
			return nil, err
		}
		if !consumed {
			return nil, decoder.ErrAgain
		}
	}
}

// observeFrame extends the component's observed duration if the frame's
// end time exceeds what was previously known, and stamps the frame with the
// compressed bytes fed to the codec since the last frame it emitted.
func (b *base) observeFrame(frame *decoder.Frame) *decoder.Frame {
	if frame == nil {
		return nil
	}
	end := frame.PTS + frame.Duration
	b.mu.Lock()
	if end > b.duration {
		b.duration = end
	}
	frame.CompressedSize = b.pendingCompressedBytes
	b.pendingCompressedBytes = 0
	b.mu.Unlock()
	return frame
}
