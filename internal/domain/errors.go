package domain

import "errors"

// Sentinel errors classified at component boundaries. Callers test with
// errors.Is and translate into ErrorCode values for the status surface.
var (
	// ErrDeviceDenied means microphone permission was refused or no
	// capture device exists. Terminal for the attempted turn; the user
	// must re-trigger.
	ErrDeviceDenied = errors.New("capture device denied")

	// ErrDeviceFault means the device failed mid-capture.
	ErrDeviceFault = errors.New("capture device fault")

	// ErrTransportFailed means an upload or socket operation failed.
	ErrTransportFailed = errors.New("transport failed")

	// ErrPlaybackBlocked means the host refused autonomous playback.
	// Not a failure; the reply is reported as ready but not auto-played.
	ErrPlaybackBlocked = errors.New("playback blocked")

	// ErrConversationEnded rejects new turns while the ended latch holds.
	ErrConversationEnded = errors.New("conversation ended")

	// ErrNoActiveTurn rejects stop requests with nothing to stop.
	ErrNoActiveTurn = errors.New("no active capture turn")

	// ErrTurnActive rejects operations that require an idle controller.
	ErrTurnActive = errors.New("capture turn already active")
)
