// Package container wraps the demuxer behind an open/read/seek/close
// facade, fanning read packets out to the component that claims each
// stream and tracking EOS/abort state for the read worker.
package container

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/erparts/avplay/internal/avtype"
	"github.com/erparts/avplay/internal/component"
	"github.com/erparts/avplay/internal/decoder"
	"github.com/erparts/avplay/internal/packetqueue"
)

var (
	ErrAlreadyOpened = errors.New("container: open called more than once")
	ErrNotOpened     = errors.New("container: not opened")
	ErrDisposed      = errors.New("container: operation on closed container")
	ErrNotSeekable   = errors.New("container: no seekable component")
	ErrReadTimedOut  = errors.New("container: read timed out")
	ErrReadAborted   = errors.New("container: read aborted")
)

// DataPacketHandler claims packets that belong to non-media streams (e.g.
// chapter/attachment streams). It returns true if it claimed (and disposed
// of) the packet.
type DataPacketHandler func(streamIndex int) bool

// Options configures a Container.
type Options struct {
	ReadTimeout       time.Duration // <0 disables the timeout
	DataPacketHandler DataPacketHandler
}

// Container wraps a decoder.Backend and component.Set behind the read/seek
// facade. The three outer mutexes are always acquired in the order
// read -> decode -> convert, matching the order Close() uses; no code path
// acquires them in reverse.
type Container struct {
	readMu    sync.Mutex
	decodeMu  sync.Mutex
	convertMu sync.Mutex

	backend decoder.Backend
	set     *component.Set
	opts    Options

	opened atomic.Bool
	closed atomic.Bool

	atEOS                 atomic.Bool
	emptyPacketsSentAtEOS atomic.Bool
	needsAttachedPictures atomic.Bool
	readAborted           atomic.Bool
	readAbortAutoReset    atomic.Bool
	readStart             time.Time
	readStartMu           sync.Mutex
}

// New wraps a backend; call Open to probe the container and Initialize
// (implicit in Open here, since reisen's NewMedia already happened before
// the backend reached this constructor) to build components.
func New(backend decoder.Backend, set *component.Set, opts Options) *Container {
	return &Container{backend: backend, set: set, opts: opts}
}

// Open may only be called once per container.
func (c *Container) Open() error {
	if !c.opened.CompareAndSwap(false, true) {
		return ErrAlreadyOpened
	}
	return c.backend.OpenDecode()
}

// ReadState returns the subset of container state components need for
// HasEnoughPackets.
func (c *Container) ReadState() component.ReadState {
	return component.ReadState{ReadAborted: c.readAborted.Load(), AtEOS: c.atEOS.Load()}
}

// AtEOS reports whether the container has observed end of stream.
func (c *Container) AtEOS() bool { return c.atEOS.Load() }

// SignalAbortReads interrupts any in-flight or future demuxer read until
// cleared. If autoReset is true, the flag clears itself on the next read
// attempt.
func (c *Container) SignalAbortReads(autoReset bool) {
	c.readAborted.Store(true)
	c.readAbortAutoReset.Store(autoReset)
}

// SignalResumeReads clears a manually-set abort flag, letting reads proceed
// again without recreating the container. Live sources that stall
// transiently can recover in place this way.
func (c *Container) SignalResumeReads() {
	c.readAborted.Store(false)
}

// interruptCheck reports whether the in-flight read should be aborted,
// either because an abort was requested or because the read timeout elapsed.
func (c *Container) interruptCheck() error {
	if c.readAborted.Load() {
		if c.readAbortAutoReset.Load() {
			c.readAborted.Store(false)
		}
		return ErrReadAborted
	}
	if c.opts.ReadTimeout >= 0 {
		c.readStartMu.Lock()
		start := c.readStart
		c.readStartMu.Unlock()
		if !start.IsZero() && time.Since(start) > c.opts.ReadTimeout {
			return ErrReadTimedOut
		}
	}
	return nil
}

// Read pulls and dispatches the next packet, returning the media type it
// was routed to (avtype.None for packets dropped via the data-packet detour
// or at EOS).
func (c *Container) Read() (avtype.MediaKind, error) {
	if !c.opened.Load() {
		return avtype.None, ErrNotOpened
	}
	c.readMu.Lock()
	defer c.readMu.Unlock()
	return c.readLocked()
}

// readLocked is Read's body, callable by Seek, which already holds readMu
// (sync.Mutex is not reentrant, so Seek must not call the public Read).
func (c *Container) readLocked() (avtype.MediaKind, error) {
	if c.needsAttachedPictures.CompareAndSwap(true, false) {
		if v := c.set.Get(avtype.Video); v != nil {
			if raw, ok := c.backend.AttachedPicture(v.StreamIndex()); ok {
				pkt := packetqueue.NewAttachedPicturePacket(raw.Native, raw.StreamIndex)
				v.SendPacket(pkt)
				v.SendEmptyPacket()
			}
		}
	}

	c.readStartMu.Lock()
	c.readStart = time.Now()
	c.readStartMu.Unlock()

	if err := c.interruptCheck(); err != nil {
		return avtype.None, err
	}

	raw, found, err := c.backend.ReadPacket()
	if err != nil {
		if errors.Is(err, ErrReadTimedOut) {
			return avtype.None, err
		}
		return avtype.None, fmt.Errorf("container: read failed: %w", err)
	}
	if !found {
		if c.emptyPacketsSentAtEOS.CompareAndSwap(false, true) {
			c.set.SendEmptyPacketToAll()
		}
		c.atEOS.Store(true)
		return avtype.None, nil
	}

	if c.opts.DataPacketHandler != nil && c.opts.DataPacketHandler(raw.StreamIndex) {
		return avtype.None, nil
	}

	pkt := packetqueue.NewDataPacket(raw.Native, raw.StreamIndex, raw.Size, raw.Duration)
	kind, err := c.set.SendPacket(pkt)
	if err != nil {
		pkt.Dispose()
		return avtype.None, nil
	}
	return kind, nil
}

// ShouldReadMore is the read worker's gating predicate: not aborted, not at
// EOS, and either live, or network with buffer below the hard cap, or
// not-yet-enough-packets.
func (c *Container) ShouldReadMore(isLive, isNetwork bool, networkBufferLength, networkHardCapBytes int) bool {
	if c.readAborted.Load() || c.atEOS.Load() {
		return false
	}
	if isLive {
		return true
	}
	if isNetwork && networkBufferLength < networkHardCapBytes {
		return true
	}
	return !c.set.HasEnoughPackets(c.ReadState())
}

// Close frees native resources in the fixed order: components -> backend.
// Idempotent.
func (c *Container) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.readMu.Lock()
	defer c.readMu.Unlock()
	c.decodeMu.Lock()
	defer c.decodeMu.Unlock()
	c.convertMu.Lock()
	defer c.convertMu.Unlock()

	c.set.DisposeAll()
	return c.backend.Close()
}
