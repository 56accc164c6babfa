package component

import (
	"fmt"
	"image"
	"time"

	"github.com/erparts/reisen"

	"github.com/erparts/avplay/internal/avtype"
	"github.com/erparts/avplay/internal/block"
	"github.com/erparts/avplay/internal/decoder"
)

var _ Component = (*Video)(nil)

// Video is the video-stream variant of Component. It stores the last
// presented PTS to detect duplicated frames, marking "start-time guessed"
// when the codec repeats a PTS (common with B-frame reordering at stream
// start).
type Video struct {
	base

	width, height int

	lastPresentedPTS    time.Duration
	hasLastPresentedPTS bool
	startTimeGuessed    bool
}

// NewVideo constructs a video component for the given stream.
func NewVideo(info decoder.StreamInfo, dec decoder.StreamDecoder) *Video {
	return &Video{
		base:   newBase(avtype.Video, info.Index, info.StartTime, info.Duration, dec, info.IsStillPicture),
		width:  info.Width,
		height: info.Height,
	}
}

// StartTimeGuessed reports whether the decoder emitted a duplicated PTS at
// stream start, meaning the recorded start time is an estimate.
func (v *Video) StartTimeGuessed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.startTimeGuessed
}

// ReceiveNextFrame runs the shared video/audio reception algorithm and
// tracks duplicated PTS values.
func (v *Video) ReceiveNextFrame() (*decoder.Frame, error) {
	frame, err := v.receiveNextFrame()
	if err != nil {
		return nil, err
	}
	v.mu.Lock()
	if v.hasLastPresentedPTS && frame.PTS == v.lastPresentedPTS {
		v.startTimeGuessed = true
	}
	v.lastPresentedPTS = frame.PTS
	v.hasLastPresentedPTS = true
	v.mu.Unlock()
	return frame, nil
}

// Materialize converts a decoded video frame into a block's RGBA payload.
func (v *Video) Materialize(frame *decoder.Frame, previous *block.Block) ([]byte, time.Duration, time.Duration, int, int, bool, error) {
	vf, ok := frame.Payload.(*reisen.VideoFrame)
	if !ok || vf == nil {
		return nil, 0, 0, 0, 0, false, fmt.Errorf("component: expected *reisen.VideoFrame payload, got %T", frame.Payload)
	}

	data := vf.Data()
	if data == nil {
		return nil, 0, 0, 0, 0, false, nil
	}

	dur := frame.Duration
	if dur <= 0 {
		dur = estimateDurationFromNeighbor(previous, frame.PTS)
	}

	return data, frame.PTS, dur, v.StreamIndex(), frame.CompressedSize, true, nil
}

// Bounds returns the video stream's pixel dimensions.
func (v *Video) Bounds() image.Point {
	return image.Point{X: v.width, Y: v.height}
}

func estimateDurationFromNeighbor(previous *block.Block, pts time.Duration) time.Duration {
	if previous == nil {
		return 0
	}
	d := pts - previous.StartTime()
	if d <= 0 {
		return previous.Duration()
	}
	return d
}
