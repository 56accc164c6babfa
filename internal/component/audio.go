package component

import (
	"fmt"
	"time"

	"github.com/erparts/reisen"

	"github.com/erparts/avplay/internal/avtype"
	"github.com/erparts/avplay/internal/block"
	"github.com/erparts/avplay/internal/decoder"
)

var _ Component = (*Audio)(nil)

// ResamplerParams describes the source->target conversion an audio
// component's resampler is configured for. It is set once, from the
// stream's metadata, when the component is built; the format of individual
// decoded frames is not inspected, so a mid-stream format change does not
// reconfigure it.
type ResamplerParams struct {
	SourceSampleRate, TargetSampleRate int
	SourceChannels, TargetChannels     int
}

// Audio is the audio-stream variant of Component. It owns a resampler
// configured from source->target audio parameters, and records an optional
// filter-string option. No filter graph is built from that string and no
// filter is applied to the samples.
type Audio struct {
	base

	sampleRate int
	channels   int

	resampler      ResamplerParams
	hasResampler   bool
	filterString   string
	filterBuilt    bool
	lastFilterArgs string
}

// NewAudio constructs an audio component for the given stream.
func NewAudio(info decoder.StreamInfo, dec decoder.StreamDecoder, targetSampleRate, targetChannels int) *Audio {
	a := &Audio{
		base:       newBase(avtype.Audio, info.Index, info.StartTime, info.Duration, dec, false),
		sampleRate: info.SampleRate,
		channels:   info.Channels,
	}
	a.configureResampler(targetSampleRate, targetChannels)
	return a
}

// configureResampler (re)builds the resampler if source parameters changed
// materially from the currently configured ones.
func (a *Audio) configureResampler(targetSampleRate, targetChannels int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	next := ResamplerParams{
		SourceSampleRate: a.sampleRate,
		TargetSampleRate: targetSampleRate,
		SourceChannels:   a.channels,
		TargetChannels:   targetChannels,
	}
	if a.hasResampler && a.resampler == next {
		return
	}
	a.resampler = next
	a.hasResampler = true
}

// SetFilterString records the audio-filter description. An empty string
// means no filter. Only the string and a built flag are kept; the PCM
// produced by Materialize is not filtered.
func (a *Audio) SetFilterString(filter string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if filter == a.filterString && a.filterBuilt {
		return
	}
	a.filterString = filter
	a.filterBuilt = filter != ""
}

// maybeRebuildFilterGraph records frameArgs (the component's sample rate and
// channel count, as a stable args string) and sets the built flag when a
// filter string is set and the args changed since the last call. It only
// updates that bookkeeping; no filter graph object exists.
func (a *Audio) maybeRebuildFilterGraph(frameArgs string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.filterString == "" {
		return
	}
	if a.filterBuilt && frameArgs == a.lastFilterArgs {
		return
	}
	a.lastFilterArgs = frameArgs
	a.filterBuilt = true
}

// Materialize converts a decoded audio frame into a block's PCM payload.
// Resampling to the target rate/channel layout is applied if configured;
// the filter string, if any, is not applied to the samples.
func (a *Audio) Materialize(frame *decoder.Frame, previous *block.Block) ([]byte, time.Duration, time.Duration, int, int, bool, error) {
	af, ok := frame.Payload.(*reisen.AudioFrame)
	if !ok || af == nil {
		return nil, 0, 0, 0, 0, false, fmt.Errorf("component: expected *reisen.AudioFrame payload, got %T", frame.Payload)
	}

	data := af.Data()
	if data == nil {
		return nil, 0, 0, 0, 0, false, nil
	}

	a.maybeRebuildFilterGraph(fmt.Sprintf("%d:%d", a.sampleRate, a.channels))
	resampled := a.resample(data)

	dur := frame.Duration
	if dur <= 0 {
		dur = estimateDurationFromNeighbor(previous, frame.PTS)
	}

	return resampled, frame.PTS, dur, a.StreamIndex(), frame.CompressedSize, true, nil
}

// resample converts raw PCM from the source sample rate/channel layout to
// the configured target. With matching source/target parameters (the
// common case when the audio device accepts the file's native format) this
// is a pass-through copy.
func (a *Audio) resample(data []byte) []byte {
	a.mu.Lock()
	params := a.resampler
	a.mu.Unlock()

	if params.SourceSampleRate == params.TargetSampleRate && params.SourceChannels == params.TargetChannels {
		out := make([]byte, len(data))
		copy(out, data)
		return out
	}

	// linear nearest-neighbor resampling by ratio; channel count mismatches
	// are handled by truncating or duplicating the last channel's samples.
	const bytesPerSample = 2 // L16
	frameBytes := bytesPerSample * params.SourceChannels
	if frameBytes <= 0 || len(data) < frameBytes {
		return nil
	}
	srcFrames := len(data) / frameBytes
	ratio := float64(params.TargetSampleRate) / float64(params.SourceSampleRate)
	dstFrames := int(float64(srcFrames) * ratio)
	outFrameBytes := bytesPerSample * params.TargetChannels
	out := make([]byte, dstFrames*outFrameBytes)

	for i := 0; i < dstFrames; i++ {
		srcIdx := int(float64(i) / ratio)
		if srcIdx >= srcFrames {
			srcIdx = srcFrames - 1
		}
		srcOff := srcIdx * frameBytes
		dstOff := i * outFrameBytes
		for c := 0; c < params.TargetChannels; c++ {
			srcChan := c
			if srcChan >= params.SourceChannels {
				srcChan = params.SourceChannels - 1
			}
			copy(out[dstOff+c*bytesPerSample:dstOff+c*bytesPerSample+bytesPerSample], data[srcOff+srcChan*bytesPerSample:srcOff+srcChan*bytesPerSample+bytesPerSample])
		}
	}
	return out
}

// SampleRate returns the stream's native sample rate.
func (a *Audio) SampleRate() int { return a.sampleRate }

// Channels returns the stream's native channel count.
func (a *Audio) Channels() int { return a.channels }
