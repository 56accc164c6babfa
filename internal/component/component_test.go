package component

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/erparts/avplay/internal/avtype"
	"github.com/erparts/avplay/internal/decoder"
	"github.com/erparts/avplay/internal/packetqueue"
)

// fakeDecoder is a minimal decoder.StreamDecoder double driven entirely by
// test expectations, letting the reception algorithm be exercised without a
// real codec.
type fakeDecoder struct {
	frames      []*decoder.Frame
	againBudget int // number of ErrAgain responses before yielding a frame
	flushCalls  int
	closed      bool
}

func (d *fakeDecoder) Send(_ *decoder.RawPacket) error { return nil }

func (d *fakeDecoder) Receive() (*decoder.Frame, error) {
	if d.againBudget > 0 {
		d.againBudget--
		return nil, decoder.ErrAgain
	}
	if len(d.frames) == 0 {
		return nil, decoder.ErrEOS
	}
	f := d.frames[0]
	d.frames = d.frames[1:]
	return f, nil
}

func (d *fakeDecoder) FlushBuffers() error { d.flushCalls++; return nil }
func (d *fakeDecoder) Close() error        { d.closed = true; return nil }

func TestHasEnoughPacketsThresholdZeroMeansTrue(t *testing.T) {
	dec := &fakeDecoder{}
	v := NewVideo(decoder.StreamInfo{Index: 0}, dec)
	require.True(t, v.HasEnoughPackets(ReadState{}))
}

func TestHasEnoughPacketsRequiresBothThresholds(t *testing.T) {
	dec := &fakeDecoder{}
	v := NewVideo(decoder.StreamInfo{Index: 0}, dec)
	v.SetThresholds(2, 100*time.Millisecond)
	require.False(t, v.HasEnoughPackets(ReadState{}))

	v.SendPacket(&packetqueue.Packet{Kind: avtype.DataPacket, Size: 10, Duration: 60 * time.Millisecond})
	require.False(t, v.HasEnoughPackets(ReadState{}))

	v.SendPacket(&packetqueue.Packet{Kind: avtype.DataPacket, Size: 10, Duration: 60 * time.Millisecond})
	require.True(t, v.HasEnoughPackets(ReadState{}))
}

func TestHasEnoughPacketsDisposedOrAborted(t *testing.T) {
	dec := &fakeDecoder{}
	v := NewVideo(decoder.StreamInfo{Index: 0}, dec)
	v.SetThresholds(5, time.Second)
	require.True(t, v.HasEnoughPackets(ReadState{ReadAborted: true}))
	require.True(t, v.HasEnoughPackets(ReadState{AtEOS: true}))

	v.Dispose()
	require.True(t, v.HasEnoughPackets(ReadState{}))
}

func TestClearQueuedPacketsFlushesAndResets(t *testing.T) {
	dec := &fakeDecoder{}
	v := NewVideo(decoder.StreamInfo{Index: 0}, dec)
	v.SendPacket(&packetqueue.Packet{Kind: avtype.DataPacket, Size: 10})

	err := v.ClearQueuedPackets(true)
	require.NoError(t, err)
	require.Equal(t, 1, dec.flushCalls)

	length, count, _ := v.BufferState()
	require.Equal(t, 0, length)
	require.Equal(t, 0, count)
}

func TestReceiveNextFrameFeedsUntilReady(t *testing.T) {
	frame := &decoder.Frame{PTS: time.Second, Duration: 40 * time.Millisecond}
	dec := &fakeDecoder{againBudget: 2, frames: []*decoder.Frame{frame}}
	v := NewVideo(decoder.StreamInfo{Index: 0}, dec)

	v.SendPacket(&packetqueue.Packet{Kind: avtype.DataPacket, Size: 10})
	v.SendPacket(&packetqueue.Packet{Kind: avtype.DataPacket, Size: 10})

	got, err := v.ReceiveNextFrame()
	require.NoError(t, err)
	require.Equal(t, frame, got)
	require.Equal(t, time.Second+40*time.Millisecond, v.Duration())
}

func TestReceiveNextFrameStarvedReturnsAgain(t *testing.T) {
	dec := &fakeDecoder{againBudget: 2}
	v := NewVideo(decoder.StreamInfo{Index: 0}, dec)
	_, err := v.ReceiveNextFrame()
	require.ErrorIs(t, err, decoder.ErrAgain)
}

func TestVideoDetectsDuplicatedPTS(t *testing.T) {
	f1 := &decoder.Frame{PTS: time.Second}
	f2 := &decoder.Frame{PTS: time.Second}
	dec := &fakeDecoder{frames: []*decoder.Frame{f1, f2}}
	v := NewVideo(decoder.StreamInfo{Index: 0}, dec)

	_, err := v.ReceiveNextFrame()
	require.NoError(t, err)
	require.False(t, v.StartTimeGuessed())

	_, err = v.ReceiveNextFrame()
	require.NoError(t, err)
	require.True(t, v.StartTimeGuessed())
}

func TestSetSeekablePrefersNonStillVideo(t *testing.T) {
	vd := &fakeDecoder{}
	ad := &fakeDecoder{}
	v := NewVideo(decoder.StreamInfo{Index: 0}, vd)
	a := NewAudio(decoder.StreamInfo{Index: 1, SampleRate: 44100, Channels: 2}, ad, 44100, 2)
	set := NewSet(v, a)

	require.Equal(t, v, set.Seekable())
}

func TestSetSeekableFallsBackToAudioForStillPicture(t *testing.T) {
	vd := &fakeDecoder{}
	ad := &fakeDecoder{}
	v := NewVideo(decoder.StreamInfo{Index: 0, IsStillPicture: true}, vd)
	a := NewAudio(decoder.StreamInfo{Index: 1, SampleRate: 44100, Channels: 2}, ad, 44100, 2)
	set := NewSet(v, a)

	require.Equal(t, a, set.Seekable())
}

func TestSetSendPacketRoutesByStreamIndex(t *testing.T) {
	vd := &fakeDecoder{}
	v := NewVideo(decoder.StreamInfo{Index: 3}, vd)
	set := NewSet(v)

	kind, err := set.SendPacket(&packetqueue.Packet{StreamIndex: 3, Kind: avtype.DataPacket})
	require.NoError(t, err)
	require.Equal(t, avtype.Video, kind)

	_, err = set.SendPacket(&packetqueue.Packet{StreamIndex: 99, Kind: avtype.DataPacket})
	require.Error(t, err)
}
