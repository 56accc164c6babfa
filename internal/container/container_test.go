package container

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/erparts/avplay/internal/avtype"
	"github.com/erparts/avplay/internal/component"
	"github.com/erparts/avplay/internal/decoder"
)

// fakeDecoder is shared with the component package's tests in spirit but
// redefined here to keep this package's test file self-contained.
type fakeDecoder struct {
	frames     []*decoder.Frame
	flushCalls int
}

func (d *fakeDecoder) Send(_ *decoder.RawPacket) error { return nil }
func (d *fakeDecoder) Receive() (*decoder.Frame, error) {
	if len(d.frames) == 0 {
		return nil, decoder.ErrEOS
	}
	f := d.frames[0]
	d.frames = d.frames[1:]
	return f, nil
}
func (d *fakeDecoder) FlushBuffers() error { d.flushCalls++; return nil }
func (d *fakeDecoder) Close() error        { return nil }

// fakeBackend is a decoder.Backend double that replays a fixed packet
// sequence, one per ReadPacket call, then reports EOF.
type fakeBackend struct {
	packets []*decoder.RawPacket
	pos     int
	seeks   []time.Duration
	closed  bool
}

func (b *fakeBackend) Open(map[string]string) ([]decoder.StreamInfo, error) { return nil, nil }
func (b *fakeBackend) OpenDecode() error                                    { return nil }
func (b *fakeBackend) CloseDecode() error                                   { return nil }

func (b *fakeBackend) ReadPacket() (*decoder.RawPacket, bool, error) {
	if b.pos >= len(b.packets) {
		return nil, false, nil
	}
	p := b.packets[b.pos]
	b.pos++
	return p, true, nil
}

func (b *fakeBackend) StreamDecoder(streamIndex int) (decoder.StreamDecoder, error) {
	return &fakeDecoder{}, nil
}

func (b *fakeBackend) Seek(streamIndex int, position time.Duration) error {
	b.seeks = append(b.seeks, position)
	b.pos = 0
	return nil
}

func (b *fakeBackend) AttachedPicture(streamIndex int) (*decoder.RawPacket, bool) {
	return nil, false
}

func (b *fakeBackend) Close() error { b.closed = true; return nil }

func newTestSet() (*component.Set, *fakeDecoder) {
	dec := &fakeDecoder{}
	v := component.NewVideo(decoder.StreamInfo{Index: 0}, dec)
	return component.NewSet(v), dec
}

func TestContainerOpenTwiceFails(t *testing.T) {
	backend := &fakeBackend{}
	set, _ := newTestSet()
	c := New(backend, set, Options{ReadTimeout: -1})

	require.NoError(t, c.Open())
	require.ErrorIs(t, c.Open(), ErrAlreadyOpened)
}

func TestContainerReadRoutesPacketsAndSignalsEOS(t *testing.T) {
	backend := &fakeBackend{packets: []*decoder.RawPacket{
		{StreamIndex: 0, Size: 10, Duration: 40 * time.Millisecond},
	}}
	set, _ := newTestSet()
	c := New(backend, set, Options{ReadTimeout: -1})
	require.NoError(t, c.Open())

	kind, err := c.Read()
	require.NoError(t, err)
	require.Equal(t, avtype.Video, kind)
	require.False(t, c.AtEOS())

	kind, err = c.Read()
	require.NoError(t, err)
	require.Equal(t, avtype.None, kind)
	require.True(t, c.AtEOS())
}

func TestContainerReadUnclaimedStreamIsDropped(t *testing.T) {
	backend := &fakeBackend{packets: []*decoder.RawPacket{
		{StreamIndex: 99, Size: 10},
	}}
	set, _ := newTestSet()
	c := New(backend, set, Options{ReadTimeout: -1})
	require.NoError(t, c.Open())

	kind, err := c.Read()
	require.NoError(t, err)
	require.Equal(t, avtype.None, kind)
}

func TestContainerSignalAbortInterruptsRead(t *testing.T) {
	backend := &fakeBackend{packets: []*decoder.RawPacket{{StreamIndex: 0, Size: 1}}}
	set, _ := newTestSet()
	c := New(backend, set, Options{ReadTimeout: -1})
	require.NoError(t, c.Open())

	c.SignalAbortReads(true)
	_, err := c.Read()
	require.ErrorIs(t, err, ErrReadAborted)

	// auto-reset: next read proceeds normally.
	_, err = c.Read()
	require.NoError(t, err)
}

func TestContainerSignalResumeReadsClearsManualAbort(t *testing.T) {
	backend := &fakeBackend{packets: []*decoder.RawPacket{{StreamIndex: 0, Size: 1}}}
	set, _ := newTestSet()
	c := New(backend, set, Options{ReadTimeout: -1})
	require.NoError(t, c.Open())

	c.SignalAbortReads(false)
	_, err := c.Read()
	require.ErrorIs(t, err, ErrReadAborted)

	_, err = c.Read()
	require.ErrorIs(t, err, ErrReadAborted)

	c.SignalResumeReads()
	_, err = c.Read()
	require.NoError(t, err)
}

func TestContainerCloseIsIdempotentAndDisposes(t *testing.T) {
	backend := &fakeBackend{}
	set, _ := newTestSet()
	c := New(backend, set, Options{ReadTimeout: -1})
	require.NoError(t, c.Open())

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	require.True(t, backend.closed)
}

func TestContainerShouldReadMoreRespectsAbortAndEOS(t *testing.T) {
	backend := &fakeBackend{}
	set, _ := newTestSet()
	set.Get(avtype.Video).SetThresholds(1, 0)
	c := New(backend, set, Options{ReadTimeout: -1})
	require.NoError(t, c.Open())

	require.True(t, c.ShouldReadMore(false, false, 0, 0))

	c.SignalAbortReads(false)
	require.False(t, c.ShouldReadMore(false, false, 0, 0))

	c.SignalResumeReads()
	_, err := c.Read() // the backend has no packets: end of stream
	require.NoError(t, err)
	require.True(t, c.AtEOS())
	require.False(t, c.ShouldReadMore(false, false, 0, 0))
}

func TestContainerSeekReturnsFrameBeforeTarget(t *testing.T) {
	var packets []*decoder.RawPacket
	for i := 0; i < 10; i++ {
		packets = append(packets, &decoder.RawPacket{StreamIndex: 0, Size: 1})
	}
	backend := &fakeBackend{packets: packets}

	dec := &fakeDecoder{frames: []*decoder.Frame{
		{PTS: 0, Duration: 500 * time.Millisecond},
		{PTS: 500 * time.Millisecond, Duration: 500 * time.Millisecond},
		{PTS: time.Second, Duration: 500 * time.Millisecond},
		{PTS: 1500 * time.Millisecond, Duration: 500 * time.Millisecond},
	}}
	v := component.NewVideo(decoder.StreamInfo{Index: 0}, dec)
	set := component.NewSet(v)

	c := New(backend, set, Options{ReadTimeout: -1})
	require.NoError(t, c.Open())

	frame, err := c.Seek(1200*time.Millisecond, 0, 10*time.Second)
	require.NoError(t, err)
	require.NotNil(t, frame)
	require.Equal(t, time.Second, frame.PTS)
	require.NotEmpty(t, backend.seeks)
	require.Equal(t, 1200*time.Millisecond, backend.seeks[0])
}

func TestContainerSeekToStart(t *testing.T) {
	backend := &fakeBackend{}
	set, _ := newTestSet()
	c := New(backend, set, Options{ReadTimeout: -1})
	require.NoError(t, c.Open())

	frame, err := c.Seek(0, 0, 10*time.Second)
	require.NoError(t, err)
	require.Nil(t, frame)
	require.Equal(t, []time.Duration{0}, backend.seeks)
	require.False(t, c.AtEOS())
}

func TestContainerSeekWithoutSeekableComponentFails(t *testing.T) {
	backend := &fakeBackend{}
	set := component.NewSet()
	c := New(backend, set, Options{ReadTimeout: -1})
	require.NoError(t, c.Open())

	_, err := c.Seek(time.Second, 0, 10*time.Second)
	require.ErrorIs(t, err, ErrNotSeekable)
}

func TestContainerSeekClearsQueuedPacketsAndFlushes(t *testing.T) {
	var packets []*decoder.RawPacket
	for i := 0; i < 4; i++ {
		packets = append(packets, &decoder.RawPacket{StreamIndex: 0, Size: 1})
	}
	backend := &fakeBackend{packets: packets}
	dec := &fakeDecoder{frames: []*decoder.Frame{{PTS: 0, Duration: time.Second}}}
	v := component.NewVideo(decoder.StreamInfo{Index: 0}, dec)
	set := component.NewSet(v)
	c := New(backend, set, Options{ReadTimeout: -1})
	require.NoError(t, c.Open())

	// stage some queued packets, then seek past them.
	_, err := c.Read()
	require.NoError(t, err)

	_, err = c.Seek(500*time.Millisecond, 0, 10*time.Second)
	require.NoError(t, err)
	require.GreaterOrEqual(t, dec.flushCalls, 1)
}
