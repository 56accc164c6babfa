package avplay

import (
	"errors"

	"github.com/hajimehoshi/ebiten/v2/audio"

	"github.com/erparts/avplay/internal/avtype"
	"github.com/erparts/avplay/internal/decoder"
)

// ErrNoAudio is returned when the probed media has no audio stream.
var ErrNoAudio = errors.New("avplay: media contains no audio")

// ErrNonNilAudioContext is returned by [CreateAudioContextForMedia] when
// ebitengine's audio context already exists (it can only be created once
// per process, at a single sample rate).
var ErrNonNilAudioContext = errors.New("avplay: audio context already initialized")

// CreateAudioContextForMedia initializes ebitengine's audio context at the
// media's native sample rate, so playback needs no resampling. Call it
// before [Open] if no audio context exists yet.
func CreateAudioContextForMedia(videoFilename string) error {
	if audio.CurrentContext() != nil {
		return ErrNonNilAudioContext
	}

	sampleRate, err := GetMediaAudioSampleRate(videoFilename)
	if err != nil {
		return err
	}
	_ = audio.NewContext(sampleRate)
	return nil
}

// GetMediaAudioSampleRate probes the media's stream metadata and returns
// the audio stream's native sample rate. If the media has no audio,
// [ErrNoAudio] will be returned.
func GetMediaAudioSampleRate(videoFilename string) (int, error) {
	backend, err := decoder.NewReisenBackend(videoFilename)
	if err != nil {
		return 0, err
	}
	defer backend.Close()

	infos, err := backend.Open(nil)
	if err != nil {
		return 0, err
	}
	for _, info := range infos {
		if info.Kind == avtype.Audio {
			return info.SampleRate, nil
		}
	}
	return 0, ErrNoAudio
}
