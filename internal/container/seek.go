package container

import (
	"errors"
	"time"

	"github.com/erparts/avplay/internal/decoder"
)

// Seek operates on the seekable component. It clamps position into
// [start, end], performs a backward seek to the
// closest key frame at or before the (possibly retried) target, clears all
// packet queues and codec buffers, and decodes forward until a frame whose
// start time is at or before the requested position is found. On overshoot
// it retries one second earlier, down to the stream's start.
func (c *Container) Seek(position, startTime, endTime time.Duration) (*decoder.Frame, error) {
	if !c.opened.Load() {
		return nil, ErrNotOpened
	}
	seekable := c.set.Seekable()
	if seekable == nil {
		return nil, ErrNotSeekable
	}

	if position < startTime {
		position = startTime
	}
	if position > endTime {
		position = endTime
	}
	if position <= startTime {
		return c.seekToStart(seekable)
	}

	c.readMu.Lock()
	defer c.readMu.Unlock()
	c.decodeMu.Lock()
	defer c.decodeMu.Unlock()

	target := position
	var lastAccepted *decoder.Frame

	for {
		if err := c.backend.Seek(seekable.StreamIndex(), target); err != nil {
			return nil, err
		}

		for _, comp := range c.set.All() {
			if err := comp.ClearQueuedPackets(true); err != nil {
				return nil, err
			}
			// a flush sentinel at the head of the refilled queue makes any
			// frame receive racing this seek reset the codec in-stream before
			// it touches post-seek packets.
			comp.SendFlushPacket()
		}
		c.needsAttachedPictures.Store(true)
		c.atEOS.Store(false)
		c.emptyPacketsSentAtEOS.Store(false)

		frame, overshoot, err := c.decodeForwardToTarget(seekable, position)
		if err != nil {
			return nil, err
		}
		if frame != nil {
			lastAccepted = frame
		}
		if !overshoot || target <= startTime {
			return lastAccepted, nil
		}
		target -= time.Second
		if target < startTime {
			target = startTime
		}
	}
}

// decodeForwardToTarget decodes frames from the seekable component until
// one is found whose start time is <= position, or until the component is
// exhausted. overshoot is true if every decoded frame started after
// position (meaning the caller should retry with an earlier seek target).
func (c *Container) decodeForwardToTarget(seekable interface {
	ReceiveNextFrame() (*decoder.Frame, error)
	StreamIndex() int
}, position time.Duration) (*decoder.Frame, bool, error) {
	var lastBefore *decoder.Frame
	overshoot := true

	for {
		if _, err := c.readLocked(); err != nil {
			if errors.Is(err, ErrReadAborted) {
				break
			}
			return lastBefore, overshoot, err
		}

		frame, err := seekable.ReceiveNextFrame()
		if err != nil {
			if errors.Is(err, decoder.ErrAgain) {
				continue
			}
			if errors.Is(err, decoder.ErrEOS) {
				break
			}
			return lastBefore, overshoot, err
		}
		if frame == nil {
			continue
		}

		if frame.PTS <= position {
			lastBefore = frame
			overshoot = false
			// keep consuming until we'd pass position, so we return the
			// key-frame/frame immediately prior to the target.
			continue
		}
		// first frame past position: stop, we already have the best
		// candidate (or none, meaning overshoot on the very first frame).
		break
	}

	return lastBefore, overshoot, nil
}

func (c *Container) seekToStart(seekable interface {
	StreamIndex() int
}) (*decoder.Frame, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()
	c.decodeMu.Lock()
	defer c.decodeMu.Unlock()

	if err := c.backend.Seek(seekable.StreamIndex(), 0); err != nil {
		return nil, err
	}
	for _, comp := range c.set.All() {
		if err := comp.ClearQueuedPackets(true); err != nil {
			return nil, err
		}
		comp.SendFlushPacket()
	}
	c.needsAttachedPictures.Store(true)
	c.atEOS.Store(false)
	c.emptyPacketsSentAtEOS.Store(false)
	return nil, nil
}
