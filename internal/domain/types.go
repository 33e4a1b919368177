package domain

import "strings"

// CaptureState models the dialogue turn lifecycle.
type CaptureState string

const (
	CaptureStateIdle      CaptureState = "idle"
	CaptureStateCapturing CaptureState = "capturing"
	CaptureStateStopping  CaptureState = "stopping"
)

// StateReason provides a structured reason for state transitions.
type StateReason string

const (
	ReasonReady             StateReason = "ready"
	ReasonCaptureStarted    StateReason = "capture_started"
	ReasonCaptureRestarted  StateReason = "capture_restarted"
	ReasonAutoResumed       StateReason = "auto_resumed"
	ReasonProcessing        StateReason = "processing"
	ReasonReplyReady        StateReason = "reply_ready"
	ReasonReplyEmpty        StateReason = "reply_empty"
	ReasonTurnDiscarded     StateReason = "turn_discarded"
	ReasonCaptureTimeout    StateReason = "capture_timeout"
	ReasonCaptureSuspended  StateReason = "capture_suspended"
	ReasonConversationEnded StateReason = "conversation_ended"
	ReasonConversationReset StateReason = "conversation_reset"
	ReasonTransportFailed   StateReason = "transport_failed"
	ReasonDeviceDenied      StateReason = "device_denied"
	ReasonDeviceError       StateReason = "device_error"
)

// StopTrigger identifies what requested a capture stop.
type StopTrigger string

const (
	StopUser    StopTrigger = "user"
	StopTimeout StopTrigger = "timeout"
	StopSuspend StopTrigger = "suspend"
)

// ErrorCode identifies failure classes surfaced to the status layer.
type ErrorCode string

const (
	ErrorCodeStartup         ErrorCode = "startup"
	ErrorCodeDeviceDenied    ErrorCode = "device_denied"
	ErrorCodeDeviceError     ErrorCode = "device_error"
	ErrorCodeTransportFailed ErrorCode = "transport_failed"
	ErrorCodePlaybackBlocked ErrorCode = "playback_blocked"
	ErrorCodePlayback        ErrorCode = "playback"
)

// StatusLevel is the closed set of presentation categories.
type StatusLevel string

const (
	StatusDefault    StatusLevel = "default"
	StatusRecording  StatusLevel = "recording"
	StatusProcessing StatusLevel = "processing"
	StatusError      StatusLevel = "error"
	StatusSuccess    StatusLevel = "success"
)

// PreviewLimit caps the transcript preview carried in TurnResult metadata.
const PreviewLimit = 80

// TurnResult is the decoded pipeline reply for one turn. Transcription
// and AudioBase64 are both optional; streaming turns produce neither.
// Replied distinguishes an empty reply the pipeline acknowledged from a
// turn that never produced one, since only acknowledged turns advance
// the playback-driven resume cycle.
type TurnResult struct {
	Transcription string `json:"transcription,omitempty"`
	AudioBase64   string `json:"audio_base64,omitempty"`
	Preview       string `json:"preview,omitempty"`
	Replied       bool   `json:"-"`
}

// Empty reports whether the reply carried neither text nor audio.
func (r TurnResult) Empty() bool {
	return strings.TrimSpace(r.Transcription) == "" && r.AudioBase64 == ""
}

// WithPreview returns a copy carrying a normalized, length-capped preview
// of the transcription.
func (r TurnResult) WithPreview() TurnResult {
	r.Preview = Preview(r.Transcription, PreviewLimit)
	return r
}

// Preview collapses whitespace in text and truncates it to max runes,
// appending an ellipsis when anything was cut.
func Preview(text string, max int) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	if max <= 0 || len([]rune(collapsed)) <= max {
		return collapsed
	}
	runes := []rune(collapsed)
	return strings.TrimSpace(string(runes[:max])) + "..."
}

// Status summarizes the current controller state.
type Status struct {
	State     CaptureState `json:"state"`
	SessionID string       `json:"sessionId"`
	TurnID    string       `json:"turnId,omitempty"`
	Ended     bool         `json:"ended"`
	Active    bool         `json:"active"`
	LastError ErrorCode    `json:"lastError,omitempty"`
}
