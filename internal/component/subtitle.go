package component

import (
	"time"

	"github.com/erparts/avplay/internal/avtype"
	"github.com/erparts/avplay/internal/block"
	"github.com/erparts/avplay/internal/decoder"
)

var _ Component = (*Subtitle)(nil)

// Subtitle is the subtitle-stream variant of Component. It uses a
// single-shot decode call per packet rather than the video/audio
// feed-until-ready loop; null inputs drain the codec.
type Subtitle struct {
	base
}

// NewSubtitle constructs a subtitle component for the given stream.
func NewSubtitle(info decoder.StreamInfo, dec decoder.StreamDecoder) *Subtitle {
	return &Subtitle{base: newBase(avtype.Subtitle, info.Index, info.StartTime, info.Duration, dec, false)}
}

// ReceiveNextFrame decodes at most one packet per call; a drained codec (no
// packet available) returns decoder.ErrAgain like the other variants.
func (s *Subtitle) ReceiveNextFrame() (*decoder.Frame, error) {
	consumed, err := s.feedOnePacket()
	if err != nil {
		return nil, err
	}
	if !consumed {
		return nil, decoder.ErrAgain
	}
	frame, err := s.dec.Receive()
	if err != nil {
		return nil, err
	}
	return s.observeFrame(frame), nil
}

// Materialize converts a decoded subtitle frame into a block's text
// payload (UTF-8 bytes).
func (s *Subtitle) Materialize(frame *decoder.Frame, previous *block.Block) ([]byte, time.Duration, time.Duration, int, int, bool, error) {
	text, ok := frame.Payload.(string)
	if !ok {
		return nil, 0, 0, 0, 0, false, nil
	}
	dur := frame.Duration
	if dur <= 0 {
		dur = estimateDurationFromNeighbor(previous, frame.PTS)
	}
	return []byte(text), frame.PTS, dur, s.StreamIndex(), frame.CompressedSize, true, nil
}
