// Package decoder narrows the demuxer/decoder backend down to the small
// capability set the pipeline actually needs: open, read packet,
// send/receive packet, receive frame, seek, close. reisen_backend.go
// provides the concrete adapter over github.com/erparts/reisen; everything
// above this package talks only to the interfaces declared here.
package decoder

import (
	"errors"
	"time"

	"github.com/erparts/avplay/internal/avtype"
)

// ErrAgain mirrors the codec's EAGAIN: no frame is available yet, but the
// caller should keep feeding packets and retry.
var ErrAgain = errors.New("decoder: no frame available yet (EAGAIN)")

// ErrEOS indicates the codec has emitted everything it will ever emit for
// the current packet stream (a hard end-of-stream, not EAGAIN).
var ErrEOS = errors.New("decoder: end of stream")

// Frame is a decoded, uncompressed unit. It is transient: it exists only
// between Receive and either materialization into a Block or being
// dropped.
type Frame struct {
	Kind          avtype.MediaKind
	PTS           time.Duration
	Duration      time.Duration
	HasValidStart bool

	// CompressedSize is the total size, in bytes, of the packet(s) fed to
	// the codec since the previous frame this component emitted. The
	// component stamps it from its packet queue accounting; it has nothing
	// to do with the decoded payload size.
	CompressedSize int

	// Payload is type-asserted by the component that consumes it: the
	// reisen backend produces *reisen.VideoFrame and *reisen.AudioFrame; the
	// subtitle component expects a string.
	Payload any
}

// StreamInfo is the static metadata the container reads once per stream at
// open time.
type StreamInfo struct {
	Index          int
	Kind           avtype.MediaKind
	CodecName      string
	TimeBase       float64 // seconds per tick
	StartTime      time.Duration
	Duration       time.Duration
	IsStillPicture bool

	// video-only
	Width, Height int
	FrameRateNum  int
	FrameRateDen  int

	// audio-only
	SampleRate int
	Channels   int
}

// RawPacket is what Backend.ReadPacket returns, before Container.Read
// classifies it and wraps it into a packetqueue.Packet.
type RawPacket struct {
	StreamIndex int
	Size        int
	Duration    time.Duration
	Native      any // *reisen.Packet
}

// Backend is the narrow capability set the pipeline consumes from a
// demuxer/decoder library.
type Backend interface {
	// Open probes the container and returns stream metadata.
	Open(privateOptions map[string]string) ([]StreamInfo, error)

	// OpenDecode/CloseDecode bracket a decode session (codec contexts open
	// on OpenDecode, close on CloseDecode); Open/Close bracket the whole
	// container lifetime.
	OpenDecode() error
	CloseDecode() error

	// ReadPacket pulls the next demuxed packet, or (nil, false, nil) at EOF.
	ReadPacket() (*RawPacket, bool, error)

	// StreamDecoder returns the per-stream decode handle for a given
	// stream index, created lazily on first use.
	StreamDecoder(streamIndex int) (StreamDecoder, error)

	// Seek performs a backward seek to the closest key frame at or before
	// position, on the given stream.
	Seek(streamIndex int, position time.Duration) error

	// AttachedPicture returns the still-image packet for a stream, if any.
	AttachedPicture(streamIndex int) (*RawPacket, bool)

	Close() error
}

// StreamDecoder is the per-stream codec handle: send a packet, receive a
// frame, flush internal buffers. The reisen adapter emulates the split even
// though the underlying library coupled packet consumption and frame
// decoding into a single per-stream read call (see reisen_backend.go).
type StreamDecoder interface {
	// Send submits a raw packet (already read from the container) to the
	// codec. A nil packet requests a drain (empty-packet semantics). May
	// return ErrAgain if the codec's internal buffer is full.
	Send(packet *RawPacket) error

	// Receive attempts to produce the next decoded frame without consuming
	// additional input. Returns ErrAgain if more packets must be fed first,
	// or ErrEOS once the codec has nothing left to emit.
	Receive() (*Frame, error)

	// FlushBuffers resets the codec's internal buffered state (invoked for
	// flush-packets and on seek).
	FlushBuffers() error

	Close() error
}
