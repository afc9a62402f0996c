package bot

import "errors"

// ErrPreconditionFailed matches every error caused by a command being used in
// the wrong state. These are reported to the user and not logged as errors.
var ErrPreconditionFailed = errors.New("precondition failed")

type preconditionError string

func (e preconditionError) Error() string { return string(e) }

func (e preconditionError) Is(target error) bool { return target == ErrPreconditionFailed }

var (
	ErrNotInVoice   error = preconditionError("caller is not in a voice channel")
	ErrNotConnected error = preconditionError("not connected to a voice channel")
	ErrNotPlaying   error = preconditionError("nothing is playing")
	ErrNotPaused    error = preconditionError("nothing is paused")
)

// ErrVoiceConnectTimeout is returned by Play when joining the voice channel
// timed out twice. No session is created.
var ErrVoiceConnectTimeout = errors.New("voice connection timed out")
