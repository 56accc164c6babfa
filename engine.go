// Package avplay is a video/audio playback engine built around an
// FFmpeg-like decoder (github.com/erparts/reisen) and Ebitengine
// (github.com/hajimehoshi/ebiten/v2) for presentation. Frames flow
// Read -> Decode -> Render through dedicated worker goroutines (see
// internal/worker), buffered per media type (internal/block) and
// time-synchronized through a shared clock mapping (internal/timing).
//
// Usage mirrors Ebitengine's own audio players:
//   - Call [Open] or [OpenWithoutAudio].
//   - Call [Engine.Play] to start playback.
//   - Call [Engine.CurrentFrame] once per game tick to fetch the frame to draw.
//   - Use [Engine.Pause] and [Engine.Stop] to control playback.
//   - Call [Engine.Close] when done with the engine.
package avplay

import (
	"errors"
	"image/color"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/audio"

	"github.com/erparts/avplay/internal/avtype"
	"github.com/erparts/avplay/internal/block"
	"github.com/erparts/avplay/internal/component"
	"github.com/erparts/avplay/internal/container"
	"github.com/erparts/avplay/internal/decoder"
	"github.com/erparts/avplay/internal/timing"
	"github.com/erparts/avplay/internal/worker"
)

// readTick/decodeTick/renderTick are the worker polling intervals: read and
// decode run on a short fixed interval, render on an even shorter one so
// presentation lags the clock as little as possible.
const (
	readTick   = 10 * time.Millisecond
	decodeTick = 10 * time.Millisecond
	renderTick = 5 * time.Millisecond
)

// playerBufferSize is the ebitengine audio player's internal buffer; too
// small causes crackling on web builds, too large adds latency.
const playerBufferSize time.Duration = 200 * time.Millisecond

// Engine is a video player, typically also including audio. It wraps the
// read/decode/render pipeline behind a polling API: advance playback with
// [Engine.Play], then pull frames with [Engine.CurrentFrame] once per game
// tick (the engine does not push frames to a callback).
type Engine struct {
	// mu guards state/lifecycle transitions and the audio player. Control
	// methods hold it while awaiting worker transitions, so nothing the
	// workers call back into may take it: worker-facing state lives behind
	// frameMu/audioMu below, and opts/set/container/timing/buffers are
	// immutable once Open returns.
	mu sync.Mutex

	lifecycle engineLifecycle
	state     PlaybackState

	backend   decoder.Backend
	set       *component.Set
	container *container.Container
	timing    *timing.Controller
	buffers   map[avtype.MediaKind]*block.Buffer

	readWorker   *worker.ReadWorker
	decodeWorker *worker.DecodeWorker
	renderWorker *worker.RenderWorker

	events       chan Event
	doneWatching chan struct{}
	mediaEnded   bool

	hasAudio    bool
	audioPlayer *audio.Player
	volume      float64
	muted       bool

	// audioMu guards the audio read cursor, shared between readAudio (on
	// ebitengine's audio goroutine) and Stop/Seek.
	audioMu       sync.Mutex
	audioNext     *block.Block
	audioLeftover []byte

	duration time.Duration

	// frameMu guards the presentation image, shared between present (on the
	// render worker's goroutine) and CurrentFrame/Stop/step.
	frameMu      sync.Mutex
	currentFrame *ebiten.Image
	onBlackFrame bool

	opts MediaOptions
}

// OpenWithoutAudio is like [Open], but ignores any audio stream present.
func OpenWithoutAudio(videoFilename string, opts MediaOptions) (*Engine, error) {
	opts.IgnoreAudio = true
	return Open(videoFilename, opts)
}

// Open opens a media file and wires up its full Read/Decode/Render
// pipeline, ready for [Engine.Play]. The underlying decoder
// (github.com/erparts/reisen) only accepts explicit filenames, not
// io.ReadSeeker.
func Open(videoFilename string, opts MediaOptions) (*Engine, error) {
	opts = opts.withDefaults()

	backend, err := decoder.NewReisenBackend(videoFilename)
	if err != nil {
		return nil, err
	}

	infos, err := backend.Open(nil)
	if err != nil {
		return nil, err
	}

	var videoInfo, audioInfo *decoder.StreamInfo
	for i := range infos {
		switch infos[i].Kind {
		case avtype.Video:
			if videoInfo == nil {
				videoInfo = &infos[i]
			} else {
				pkgLogger.Printf("WARNING: '%s' has multiple video streams; defaulting to the first", filepath.Base(videoFilename))
			}
		case avtype.Audio:
			if audioInfo == nil {
				audioInfo = &infos[i]
			} else {
				pkgLogger.Printf("WARNING: '%s' has multiple audio streams; defaulting to the first", filepath.Base(videoFilename))
			}
		}
	}
	if videoInfo == nil {
		return nil, ErrNoVideo
	}

	var components []component.Component
	videoDec, err := backend.StreamDecoder(videoInfo.Index)
	if err != nil {
		return nil, err
	}
	videoComp := component.NewVideo(*videoInfo, videoDec)
	components = append(components, videoComp)

	hasAudio := audioInfo != nil && !opts.IgnoreAudio
	var audioComp *component.Audio
	if hasAudio {
		ctx := audio.CurrentContext()
		if ctx == nil {
			return nil, ErrNilAudioContext
		}
		if audioInfo.Channels > 2 {
			return nil, ErrTooManyChannels
		}
		audioDec, err := backend.StreamDecoder(audioInfo.Index)
		if err != nil {
			return nil, err
		}
		audioComp = component.NewAudio(*audioInfo, audioDec, ctx.SampleRate(), 2)
		components = append(components, audioComp)
	}

	// negative thresholds mean "no read-ahead gate"; components treat a
	// zero count threshold as always-enough.
	countThreshold := opts.PacketCountThreshold
	if countThreshold < 0 {
		countThreshold = 0
	}
	durThreshold := opts.PacketDurationThreshold
	if durThreshold < 0 {
		durThreshold = 0
	}
	for _, c := range components {
		c.SetThresholds(countThreshold, durThreshold)
	}
	set := component.NewSet(components...)

	cont := container.New(backend, set, container.Options{ReadTimeout: readTimeoutFor(opts)})
	if err := cont.Open(); err != nil {
		return nil, err
	}

	timingCtrl := timing.New()
	now := time.Now()
	timingCtrl.Setup(now, timing.Options{
		Video:                timing.ComponentInfo{Present: true, StartTime: videoInfo.StartTime, Duration: videoInfo.Duration},
		Audio:                timing.ComponentInfo{Present: hasAudio, StartTime: audioInfoStart(audioInfo), Duration: audioInfoDuration(audioInfo)},
		IsTimeSyncDisabled:   opts.DisableTimeSync,
		MaxAllowedSkew:       opts.MaxAllowedSkew,
		IsLiveAndNotSeekable: opts.IsLive,
	})
	if timingCtrl.OverrodeTimeSync() {
		pkgLogger.Printf("WARNING: '%s' audio/video start times differ beyond the allowed skew; using disconnected clocks", filepath.Base(videoFilename))
	}

	buffers := map[avtype.MediaKind]*block.Buffer{
		avtype.Video: block.NewBuffer(avtype.Video, opts.VideoBufferCapacity),
	}
	if hasAudio {
		buffers[avtype.Audio] = block.NewBuffer(avtype.Audio, opts.AudioBufferCapacity)
	}

	duration := videoInfo.Duration
	if hasAudio && audioInfo.Duration > duration {
		duration = audioInfo.Duration
	}

	img := ebiten.NewImage(videoInfo.Width, videoInfo.Height)
	img.Fill(color.Black)

	e := &Engine{
		lifecycle:    lifecycleOpened,
		state:        Stopped,
		backend:      backend,
		set:          set,
		container:    cont,
		timing:       timingCtrl,
		buffers:      buffers,
		hasAudio:     hasAudio,
		volume:       1.0,
		duration:     duration,
		currentFrame: img,
		onBlackFrame: true,
		opts:         opts,
	}

	onError := func(err error) { pkgLogger.Printf("avplay: worker error: %v", err) }
	e.readWorker = worker.NewReadWorker(cont, e.networkState, onError)
	e.decodeWorker = worker.NewDecodeWorker(set, buffers, timingCtrl, cont, opts.UseParallelDecoding, onError)
	e.renderWorker = worker.NewRenderWorker(timingCtrl, buffers, e.present, e.decodeWorker.HasDecodingEnded, onError)

	e.events = make(chan Event, 16)
	e.doneWatching = make(chan struct{})
	go e.watchRenderEvents()

	e.readWorker.Start(readTick)
	e.decodeWorker.Start(decodeTick)
	e.renderWorker.Start(renderTick)

	return e, nil
}

func readTimeoutFor(opts MediaOptions) time.Duration {
	if opts.ReadTimeout <= 0 {
		return -1
	}
	return opts.ReadTimeout
}

func audioInfoStart(info *decoder.StreamInfo) time.Duration {
	if info == nil {
		return 0
	}
	return info.StartTime
}

func audioInfoDuration(info *decoder.StreamInfo) time.Duration {
	if info == nil {
		return 0
	}
	return info.Duration
}

// networkState reports the read worker's gating inputs. Called from the
// read worker's goroutine; opts and set are immutable after Open, so no
// engine locking (each packet queue locks its own accounting).
// BufferLength is the byte total currently queued across all components.
func (e *Engine) networkState() worker.NetworkState {
	length, _, _, _ := e.set.BufferState()
	return worker.NetworkState{
		IsLive:       e.opts.IsLive,
		IsNetwork:    e.opts.IsNetwork,
		BufferLength: length,
		HardCapBytes: e.opts.NetworkBufferHardCap,
	}
}

// present is the render worker's presenter callback (called from the
// render goroutine, not the caller's game loop). It must never take e.mu:
// a control method may be holding it while waiting for this very cycle to
// finish.
func (e *Engine) present(kind avtype.MediaKind, blk *block.Block) {
	if kind != avtype.Video {
		return
	}
	e.frameMu.Lock()
	defer e.frameMu.Unlock()
	blk.ReadBuffer(func(data []byte) {
		if data != nil {
			e.currentFrame.WritePixels(data)
			e.onBlackFrame = false
		}
	})
}

// Events returns the channel buffering and end-of-playback notifications are
// delivered on. Never closed; stop reading once the engine is closed.
func (e *Engine) Events() <-chan Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.events
}

// watchRenderEvents relays the render worker's internal events onto the
// engine's public channel, and reacts to end of playback by transitioning
// to [Stopped].
func (e *Engine) watchRenderEvents() {
	for {
		select {
		case <-e.doneWatching:
			return
		case ev, ok := <-e.renderWorker.Events():
			if !ok {
				return
			}
			e.handleRenderEvent(ev)
		}
	}
}

func (e *Engine) handleRenderEvent(ev worker.Event) {
	if ev.Kind == worker.EventMediaEnded {
		e.mu.Lock()
		e.state = Stopped
		e.mediaEnded = true
		e.mu.Unlock()
	}
	e.emit(Event{Kind: translateEventKind(ev.Kind), At: ev.At})
}

func translateEventKind(k worker.EventKind) EventKind {
	switch k {
	case worker.EventBufferingStarted:
		return EventBufferingStarted
	case worker.EventBufferingEnded:
		return EventBufferingEnded
	default:
		return EventMediaEnded
	}
}

func (e *Engine) emit(ev Event) {
	select {
	case e.events <- ev:
	default:
	}
}

// CurrentFrame returns the image corresponding to the current playback
// position. The returned image is reused: don't store it for later use
// expecting its contents to remain unchanged.
func (e *Engine) CurrentFrame() (*ebiten.Image, error) {
	e.frameMu.Lock()
	defer e.frameMu.Unlock()
	return e.currentFrame, nil
}

// Resolution returns the width and height of the video.
func (e *Engine) Resolution() (int, int) {
	e.frameMu.Lock()
	defer e.frameMu.Unlock()
	bounds := e.currentFrame.Bounds()
	return bounds.Dx(), bounds.Dy()
}

// State returns the current playback state.
func (e *Engine) State() PlaybackState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Play activates playback. If already playing, this is a no-op.
func (e *Engine) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lifecycle != lifecycleOpened {
		return ErrClosed
	}
	if e.state == Playing {
		return nil
	}

	now := time.Now()
	e.timing.Play(now, avtype.None)
	<-e.readWorker.Resume()
	<-e.decodeWorker.Resume()
	<-e.renderWorker.Resume()

	if e.hasAudio && e.audioPlayer == nil {
		if err := e.noLockCreateAudioPlayer(); err != nil {
			return err
		}
	}
	if e.audioPlayer != nil {
		e.audioPlayer.Play()
	}

	e.state = Playing
	return nil
}

// Pause suspends playback. If already paused, this is a no-op.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lifecycle != lifecycleOpened {
		return ErrClosed
	}
	e.noLockPause()
	return nil
}

func (e *Engine) noLockPause() {
	if e.state != Playing {
		return
	}
	now := time.Now()
	e.timing.Pause(now, avtype.None)
	<-e.readWorker.Pause()
	<-e.decodeWorker.Pause()
	<-e.renderWorker.Pause()
	if e.audioPlayer != nil {
		e.audioPlayer.Pause()
	}
	e.state = Paused
}

// StepForward pauses playback and advances the position to the next buffered
// video block, presenting its frame immediately.
func (e *Engine) StepForward() error { return e.step(+1) }

// StepBackward pauses playback and moves the position to the previous
// buffered video block, presenting its frame immediately. Stepping is
// bounded by the buffered range; step past it with [Engine.Seek].
func (e *Engine) StepBackward() error { return e.step(-1) }

func (e *Engine) step(dir int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lifecycle != lifecycleOpened {
		return ErrClosed
	}
	e.noLockPause()

	buf := e.buffers[avtype.Video]
	if buf == nil || buf.Count() == 0 {
		return nil
	}
	now := time.Now()
	pos := e.timing.GetPosition(now, avtype.Reference)
	prev, next, cur := buf.Neighbors(pos)
	if cur == nil {
		return nil
	}
	target := next
	if dir < 0 {
		target = prev
	}
	if target == nil {
		return nil
	}

	e.timing.SnapTo(now, avtype.None, target.StartTime())
	e.frameMu.Lock()
	target.ReadBuffer(func(data []byte) {
		if data != nil {
			e.currentFrame.WritePixels(data)
			e.onBlackFrame = false
		}
	})
	e.frameMu.Unlock()
	return nil
}

// Stop halts playback and rewinds to the start. Calling [Engine.Play]
// again restarts the video from the beginning.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lifecycle != lifecycleOpened {
		return ErrClosed
	}
	if e.state == Stopped {
		return nil
	}

	<-e.readWorker.Pause()
	<-e.decodeWorker.Pause()
	<-e.renderWorker.Pause()
	e.renderWorker.ResetEndOfPlayback()
	e.mediaEnded = false
	if err := e.noLockHaltAudio(); err != nil {
		return err
	}

	if _, err := e.container.Seek(0, 0, e.duration); err != nil {
		return e.translateContainerErr(err)
	}
	for _, buf := range e.buffers {
		buf.Clear()
	}
	e.resetAudioCursor()
	e.timing.Reset(time.Now(), avtype.None)

	e.frameMu.Lock()
	e.currentFrame.Fill(color.Black)
	e.onBlackFrame = true
	e.frameMu.Unlock()

	e.state = Stopped
	return nil
}

func (e *Engine) resetAudioCursor() {
	e.audioMu.Lock()
	e.audioNext = nil
	e.audioLeftover = e.audioLeftover[:0]
	e.audioMu.Unlock()
}

// Position returns the current playback position.
func (e *Engine) Position() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timing.GetPosition(time.Now(), avtype.Reference)
}

// Duration returns the media duration.
func (e *Engine) Duration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.duration
}

// HasMediaEnded reports whether playback ran to the end of the media since
// the last Stop or Seek.
func (e *Engine) HasMediaEnded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mediaEnded
}

// BufferState reports the aggregate packet-queue accounting across all
// components: total queued bytes, total packet count, and the shortest
// queued duration among components (the effective read-ahead).
func (e *Engine) BufferState() (length, count int, duration time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	length, count, _, duration = e.set.BufferState()
	return length, count, duration
}

// BufferingProgress reports how full the reference media type's block buffer
// is, in [0, 1]. A value of 1 means decode is fully ahead of presentation.
func (e *Engine) BufferingProgress() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	buf := e.buffers[e.timing.ReferenceType()]
	if buf == nil || buf.Capacity() == 0 {
		return 0
	}
	progress := float64(buf.Count()) / float64(buf.Capacity())
	if progress > 1 {
		progress = 1
	}
	return progress
}

// VideoBitRate estimates the compressed bit rate of the currently buffered
// video range, in bits per second. Zero until at least two blocks are
// buffered.
func (e *Engine) VideoBitRate() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	buf := e.buffers[avtype.Video]
	if buf == nil {
		return 0
	}
	return buf.RangeBitRate()
}

// IsLive reports whether the media was opened as a live stream.
func (e *Engine) IsLive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opts.IsLive
}

// IsNetwork reports whether the media was opened as a network-backed source.
func (e *Engine) IsNetwork() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opts.IsNetwork
}

// IsSeekable reports whether the media has a stream usable as a seek target.
func (e *Engine) IsSeekable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.opts.IsLive && e.set.Seekable() != nil
}

// SetPlaybackSpeed changes the playback speed ratio (1.0 is normal speed).
// Position continuity is preserved across the change. Audio keeps playing at
// its own device rate, so speeds other than 1.0 are most useful for
// video-only media or with muted audio.
func (e *Engine) SetPlaybackSpeed(ratio float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.timing.SetSpeedRatio(time.Now(), avtype.None, ratio)
}

// PlaybackSpeed returns the current playback speed ratio.
func (e *Engine) PlaybackSpeed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timing.SpeedRatio(avtype.Reference)
}

// AbortReads interrupts any in-flight or future demuxer read. With autoReset
// the interruption applies once and clears itself; without it, reads stay
// gated until [Engine.ResumeReads].
func (e *Engine) AbortReads(autoReset bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.container.SignalAbortReads(autoReset)
}

// ResumeReads lets reads proceed again after a non-auto-reset [Engine.AbortReads],
// e.g. once a stalled live source recovers.
func (e *Engine) ResumeReads() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.container.SignalResumeReads()
}

// translateContainerErr maps internal container errors onto the package's
// public sentinels where one exists.
func (e *Engine) translateContainerErr(err error) error {
	if errors.Is(err, container.ErrNotSeekable) {
		return ErrNotSeekable
	}
	return err
}

// Seek moves the playback position to the given offset from the start of
// the media. Precision depends on the keyframe interval of the source.
func (e *Engine) Seek(position time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lifecycle != lifecycleOpened {
		return ErrClosed
	}

	wasPlaying := e.state == Playing
	prevState := e.state
	e.state = Seeking

	<-e.readWorker.Pause()
	<-e.decodeWorker.Pause()
	<-e.renderWorker.Pause()
	e.renderWorker.ResetEndOfPlayback()
	e.mediaEnded = false
	if e.audioPlayer != nil {
		e.audioPlayer.Pause()
	}

	_, err := e.container.Seek(position, 0, e.duration)
	if err != nil {
		e.state = prevState
		return e.translateContainerErr(err)
	}
	for _, buf := range e.buffers {
		buf.Clear()
	}
	e.resetAudioCursor()
	// SnapTo preserves each clock's running state: a paused seek stays
	// frozen at the new position, a playing one advances from it.
	e.timing.SnapTo(time.Now(), avtype.None, position)

	e.state = prevState
	if wasPlaying {
		<-e.readWorker.Resume()
		<-e.decodeWorker.Resume()
		<-e.renderWorker.Resume()
		if e.audioPlayer != nil {
			e.audioPlayer.Play()
		}
	}
	return nil
}

// HasAudio reports whether the media has an audio stream being played.
func (e *Engine) HasAudio() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hasAudio
}

// GetVolume returns the playback volume (0 if there is no audio).
func (e *Engine) GetVolume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.hasAudio {
		return 0
	}
	return e.volume
}

// SetVolume sets the playback volume. No-op if there is no audio.
func (e *Engine) SetVolume(volume float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.volume = volume
	if e.audioPlayer != nil {
		e.audioPlayer.SetVolume(e.effectiveVolumeLocked())
	}
}

// GetMuted reports whether audio is muted (true if there is no audio).
func (e *Engine) GetMuted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.hasAudio {
		return true
	}
	return e.muted
}

// SetMuted mutes or unmutes audio. No-op if there is no audio.
func (e *Engine) SetMuted(muted bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.hasAudio {
		return
	}
	e.muted = muted
	if e.audioPlayer != nil {
		e.audioPlayer.SetVolume(e.effectiveVolumeLocked())
	}
}

func (e *Engine) effectiveVolumeLocked() float64 {
	if e.muted {
		return 0
	}
	return e.volume
}

// Close frees all native resources, making the engine unusable afterwards.
// Do not confuse with [Engine.Stop].
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lifecycle == lifecycleClosed {
		return nil
	}
	e.lifecycle = lifecycleClosed
	close(e.doneWatching)

	<-e.readWorker.Stop()
	<-e.decodeWorker.Stop()
	<-e.renderWorker.Stop()
	_ = e.noLockHaltAudio()

	return e.container.Close()
}

func (e *Engine) noLockHaltAudio() error {
	if e.audioPlayer == nil {
		return nil
	}
	e.audioPlayer.Pause()
	err := e.audioPlayer.Close()
	e.audioPlayer = nil
	return err
}

func (e *Engine) noLockCreateAudioPlayer() error {
	player, err := audio.CurrentContext().NewPlayer(&struct{ io.Reader }{Reader: audioReaderFunc(e.readAudio)})
	if err != nil {
		return err
	}
	player.SetBufferSize(playerBufferSize)
	player.SetVolume(e.effectiveVolumeLocked())
	e.audioPlayer = player
	return nil
}

// audioReaderFunc adapts a plain function to the io.Reader that ebitengine's
// audio.Player pulls PCM from.
type audioReaderFunc func([]byte) (int, error)

func (f audioReaderFunc) Read(p []byte) (int, error) { return f(p) }

// readAudio serves decoded PCM bytes to the ebitengine audio player,
// walking the audio block buffer's linked list in order and keeping any
// partially-consumed block's leftover bytes for the next call. Runs on
// ebitengine's audio goroutine, so it takes only audioMu, never e.mu:
// a control method may be holding e.mu while pausing the audio player.
func (e *Engine) readAudio(out []byte) (int, error) {
	e.audioMu.Lock()
	defer e.audioMu.Unlock()

	buf := e.buffers[avtype.Audio]
	if buf == nil {
		return 0, io.EOF
	}

	var n int
	for len(out) > 0 {
		if len(e.audioLeftover) > 0 {
			c := copy(out, e.audioLeftover)
			out = out[c:]
			e.audioLeftover = e.audioLeftover[c:]
			n += c
			continue
		}

		var next *block.Block
		if e.audioNext == nil {
			_, _, next = buf.Neighbors(buf.RangeStartTime())
		} else {
			next = e.audioNext.Next()
		}
		if next == nil {
			if e.container.AtEOS() && n == 0 {
				return 0, io.EOF
			}
			return n, nil
		}

		next.ReadBuffer(func(data []byte) {
			e.audioLeftover = append(e.audioLeftover[:0], data...)
		})
		e.audioNext = next
	}
	return n, nil
}
