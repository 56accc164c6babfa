package decoder

import (
	"fmt"
	"time"

	"github.com/erparts/reisen"

	"github.com/erparts/avplay/internal/avtype"
)

// ReisenBackend adapts github.com/erparts/reisen to the Backend interface.
// It is the only file in the repository that imports reisen types outside
// of component's media-specific frame handling.
type ReisenBackend struct {
	path  string
	media *reisen.Media

	video *reisen.VideoStream
	audio *reisen.AudioStream

	streams map[int]reisenStreamRef
}

type reisenStreamRef struct {
	kind avtype.MediaKind
}

// NewReisenBackend opens the container file. reisen only accepts explicit
// filenames, not io.ReadSeeker.
func NewReisenBackend(path string) (*ReisenBackend, error) {
	media, err := reisen.NewMedia(path)
	if err != nil {
		return nil, err
	}
	return &ReisenBackend{path: path, media: media, streams: make(map[int]reisenStreamRef)}, nil
}

func (b *ReisenBackend) Open(privateOptions map[string]string) ([]StreamInfo, error) {
	var infos []StreamInfo

	videoStreams := b.media.VideoStreams()
	if len(videoStreams) > 0 {
		b.video = videoStreams[0]
		infos = append(infos, streamInfoFromVideo(b.video))
		b.streams[b.video.Index()] = reisenStreamRef{kind: avtype.Video}
	}

	audioStreams := b.media.AudioStreams()
	if len(audioStreams) > 0 {
		b.audio = audioStreams[0]
		info, err := streamInfoFromAudio(b.audio)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
		b.streams[b.audio.Index()] = reisenStreamRef{kind: avtype.Audio}
	}

	return infos, nil
}

func streamInfoFromVideo(s *reisen.VideoStream) StreamInfo {
	num, den := s.FrameRate()
	dur, _ := s.Duration()
	return StreamInfo{
		Index:        s.Index(),
		Kind:         avtype.Video,
		StartTime:    0,
		Duration:     dur,
		Width:        s.Width(),
		Height:       s.Height(),
		FrameRateNum: num,
		FrameRateDen: den,
	}
}

func streamInfoFromAudio(s *reisen.AudioStream) (StreamInfo, error) {
	dur, err := s.Duration()
	if err != nil {
		return StreamInfo{}, err
	}
	return StreamInfo{
		Index:      s.Index(),
		Kind:       avtype.Audio,
		StartTime:  0,
		Duration:   dur,
		SampleRate: s.SampleRate(),
		Channels:   s.ChannelCount(),
	}, nil
}

func (b *ReisenBackend) OpenDecode() error {
	if err := b.media.OpenDecode(); err != nil {
		return err
	}
	if b.video != nil {
		if err := b.video.Open(); err != nil {
			return err
		}
	}
	if b.audio != nil {
		if err := b.audio.Open(); err != nil {
			return err
		}
	}
	return nil
}

func (b *ReisenBackend) CloseDecode() error {
	var firstErr error
	if b.video != nil {
		if err := b.video.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if b.audio != nil {
		if err := b.audio.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := b.media.CloseDecode(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (b *ReisenBackend) ReadPacket() (*RawPacket, bool, error) {
	packet, found, err := b.media.ReadPacket()
	if err != nil || !found {
		return nil, found, err
	}
	return &RawPacket{
		StreamIndex: packet.StreamIndex(),
		Size:        packet.Size(),
		Native:      packet,
	}, true, nil
}

func (b *ReisenBackend) StreamDecoder(streamIndex int) (StreamDecoder, error) {
	ref, ok := b.streams[streamIndex]
	if !ok {
		return nil, fmt.Errorf("decoder: unknown stream index %d", streamIndex)
	}
	switch ref.kind {
	case avtype.Video:
		return &reisenVideoDecoder{stream: b.video}, nil
	case avtype.Audio:
		return &reisenAudioDecoder{stream: b.audio}, nil
	default:
		return nil, fmt.Errorf("decoder: unsupported stream kind for index %d", streamIndex)
	}
}

func (b *ReisenBackend) Seek(streamIndex int, position time.Duration) error {
	if b.video != nil && b.video.Index() == streamIndex {
		return b.video.Rewind(position)
	}
	if b.audio != nil && b.audio.Index() == streamIndex {
		return b.audio.Rewind(position)
	}
	return fmt.Errorf("decoder: seek on unknown stream index %d", streamIndex)
}

func (b *ReisenBackend) AttachedPicture(streamIndex int) (*RawPacket, bool) {
	// Still-image/album-art packets are format-specific; reisen surfaces
	// them as ordinary video packets read before any audio packet, so there
	// is nothing to special-case beyond what Container.Read already does.
	return nil, false
}

func (b *ReisenBackend) Close() error {
	return b.media.Close()
}

// --- per-stream decode handles ---

type reisenVideoDecoder struct {
	stream     *reisen.VideoStream
	pendingEOS bool
}

// Send is a no-op beyond recording EOS intent: reisen couples packet
// consumption and frame decoding into ReadVideoFrame, keyed off whatever
// packet Container.Read most recently pulled for this stream, so the
// packet itself was already handed to the codec by the time Send is
// called. A nil packet (empty-packet/drain) is remembered so the following
// Receive reports ErrEOS instead of ErrAgain.
func (d *reisenVideoDecoder) Send(packet *RawPacket) error {
	d.pendingEOS = packet == nil
	return nil
}

func (d *reisenVideoDecoder) Receive() (*Frame, error) {
	if d.pendingEOS {
		return nil, ErrEOS
	}
	frame, found, err := d.stream.ReadVideoFrame()
	if err != nil {
		return nil, err
	}
	if !found || frame == nil {
		return nil, ErrAgain
	}
	pts, err := frame.PresentationOffset()
	if err != nil {
		return nil, err
	}
	return &Frame{
		Kind:          avtype.Video,
		PTS:           pts,
		HasValidStart: true,
		Payload:       frame,
	}, nil
}

func (d *reisenVideoDecoder) FlushBuffers() error { return nil }
func (d *reisenVideoDecoder) Close() error        { return nil }

type reisenAudioDecoder struct {
	stream     *reisen.AudioStream
	pendingEOS bool
}

// Send, see reisenVideoDecoder.Send.
func (d *reisenAudioDecoder) Send(packet *RawPacket) error {
	d.pendingEOS = packet == nil
	return nil
}

func (d *reisenAudioDecoder) Receive() (*Frame, error) {
	if d.pendingEOS {
		return nil, ErrEOS
	}
	frame, found, err := d.stream.ReadAudioFrame()
	if err != nil {
		return nil, err
	}
	if !found || frame == nil {
		return nil, ErrAgain
	}
	pts, err := frame.PresentationOffset()
	if err != nil {
		return nil, err
	}
	return &Frame{
		Kind:          avtype.Audio,
		PTS:           pts,
		HasValidStart: true,
		Payload:       frame,
	}, nil
}

func (d *reisenAudioDecoder) FlushBuffers() error { return nil }
func (d *reisenAudioDecoder) Close() error        { return nil }
