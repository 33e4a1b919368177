package ports

import (
	"context"
	"io"

	"voiceloop/internal/domain"
)

// DeviceConfig describes how the microphone should be captured.
type DeviceConfig struct {
	SampleRate       int
	Channels         int
	InputFormat      string
	InputDevice      string
	NoiseSuppression bool
	EchoCancellation bool
}

// CaptureSession is a live microphone capture. Read returns raw
// little-endian 32-bit float samples. Stop is idempotent.
type CaptureSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture acquires microphone capture sessions.
type AudioCapture interface {
	Acquire(ctx context.Context, cfg DeviceConfig) (CaptureSession, error)
}

// TurnChannel carries one capture turn's audio to the processing
// pipeline. Channels are single-use: Open once, Submit while capture is
// live, then exactly one of Finalize or Abort.
type TurnChannel interface {
	Open(ctx context.Context, session string) error
	Submit(samples []float32) error
	Finalize(ctx context.Context) (domain.TurnResult, error)
	Abort()
}

// ChannelFactory builds a fresh TurnChannel for each turn.
type ChannelFactory interface {
	NewChannel() TurnChannel
}

// Player plays synthesized replies. Play decodes a base64 audio payload
// and starts playback; empty or undecodable payloads are acknowledged
// without audio. The registered finished listener fires exactly once per
// Play call. SetFinishedListener replaces any prior registration.
type Player interface {
	SetFinishedListener(fn func())
	Play(audioBase64 string) error
}

// StatusSink receives presentation updates. Implementations observe;
// they never influence control flow.
type StatusSink interface {
	StateChanged(state domain.CaptureState, reason domain.StateReason)
	TurnCompleted(result domain.TurnResult)
	SessionError(code domain.ErrorCode, detail string)
	Note(level domain.StatusLevel, message string)
}

// TextQuerier posts text-only turns to the pipeline, bypassing capture.
type TextQuerier interface {
	QueryText(ctx context.Context, text string) (domain.TurnResult, error)
}
