package avplay

import "errors"

// Initialization errors returned by [Open] and [OpenWithoutAudio]. Other
// format- or codec-specific errors (surfaced from the underlying decoder)
// are also possible and are not enumerated here.
var (
	ErrNoVideo         = errors.New("avplay: file doesn't include any video stream")
	ErrNilAudioContext = errors.New("avplay: file has audio stream but audio.Context is not initialized")
	ErrTooManyChannels = errors.New("avplay: file audio streams with more than 2 channels are not supported")
)

// State errors returned by playback control methods ([Engine.Play],
// [Engine.Seek], etc.) when called in an invalid lifecycle state.
var (
	ErrClosed      = errors.New("avplay: engine is closed")
	ErrNotSeekable = errors.New("avplay: media has no seekable stream")
)
