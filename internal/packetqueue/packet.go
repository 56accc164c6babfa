package packetqueue

import (
	"time"

	"github.com/erparts/avplay/internal/avtype"
)

// nativeDisposer is implemented by whatever concrete packet type the
// decoder backend hands back (e.g. *reisen.Packet), so packetqueue never
// needs to import the decoder backend directly.
type nativeDisposer interface {
	Free()
}

// Packet is an opaque compressed unit tagged with the stream it belongs to.
// Flush/empty packets carry no native payload; a Data or AttachedPicture
// packet wraps the underlying decoder-backend packet, released once the
// component has consumed it.
type Packet struct {
	Kind        avtype.PacketKind
	StreamIndex int
	Size        int
	Duration    time.Duration
	Native      any
}

// NewDataPacket wraps a packet freshly read from the container. size/dur
// are already resolved to bytes/time.Duration by the decoder adapter that
// read the packet, the boundary where the stream time-base is known.
func NewDataPacket(native any, streamIndex, size int, dur time.Duration) *Packet {
	if size < 0 {
		size = 0
	}
	if dur < 0 {
		dur = 0
	}
	return &Packet{
		Kind:        avtype.DataPacket,
		StreamIndex: streamIndex,
		Size:        size,
		Duration:    dur,
		Native:      native,
	}
}

// NewAttachedPicturePacket wraps the still-image packet embedded for a
// cover-art style video stream.
func NewAttachedPicturePacket(native any, streamIndex int) *Packet {
	return &Packet{
		Kind:        avtype.AttachedPicturePacket,
		StreamIndex: streamIndex,
		Native:      native,
	}
}

// NewFlushPacket builds a sentinel instructing the decoder to clear buffered
// state. It carries no byte/duration accounting.
func NewFlushPacket(streamIndex int) *Packet {
	return &Packet{Kind: avtype.FlushPacket, StreamIndex: streamIndex}
}

// NewEmptyPacket builds a null-data sentinel used to drain a codec at EOS.
func NewEmptyPacket(streamIndex int) *Packet {
	return &Packet{Kind: avtype.EmptyPacket, StreamIndex: streamIndex}
}

// Dispose releases the underlying native packet, if any. Safe to call on
// sentinel packets (no-op).
func (p *Packet) Dispose() {
	if p == nil || p.Native == nil {
		return
	}
	if d, ok := p.Native.(nativeDisposer); ok {
		d.Free()
	}
	p.Native = nil
}
