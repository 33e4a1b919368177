package status

import (
	"fmt"
	"io"
	"os"
	"sync"

	"voiceloop/internal/domain"
	"voiceloop/internal/logging"
)

var log = logging.L("status")

// Presenter renders controller updates as terminal status lines. It is
// strictly an observer: rendering failures are swallowed and nothing it
// does feeds back into the capture loop.
type Presenter struct {
	mu  sync.Mutex
	out io.Writer
}

func NewPresenter(out io.Writer) *Presenter {
	if out == nil {
		out = os.Stdout
	}
	return &Presenter{out: out}
}

func (p *Presenter) StateChanged(state domain.CaptureState, reason domain.StateReason) {
	log.Info("state changed",
		logging.KeyState, string(state),
		logging.KeyReason, string(reason))
	p.print(levelForReason(reason), reasonMessage(reason))
}

func (p *Presenter) TurnCompleted(result domain.TurnResult) {
	log.Info("turn completed",
		"replied", result.Replied,
		"has_audio", result.AudioBase64 != "",
		"preview", result.Preview)

	switch {
	case result.Preview != "":
		p.print(domain.StatusSuccess, fmt.Sprintf("Heard: %s", result.Preview))
	case result.Replied:
		p.print(domain.StatusDefault, "Reply received")
	}
}

func (p *Presenter) SessionError(code domain.ErrorCode, detail string) {
	log.Error("session error",
		"code", string(code),
		logging.KeyError, detail)
	message := errorMessage(code)
	if detail != "" {
		message = fmt.Sprintf("%s: %s", message, detail)
	}
	p.print(domain.StatusError, message)
}

func (p *Presenter) Note(level domain.StatusLevel, message string) {
	p.print(level, message)
}

func (p *Presenter) print(level domain.StatusLevel, message string) {
	if message == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintf(p.out, "[%s] %s\n", level, message)
}

func reasonMessage(reason domain.StateReason) string {
	switch reason {
	case domain.ReasonReady:
		return "Ready"
	case domain.ReasonCaptureStarted:
		return "Listening..."
	case domain.ReasonCaptureRestarted:
		return "Listening restarted; previous capture discarded"
	case domain.ReasonAutoResumed:
		return "Listening resumed"
	case domain.ReasonProcessing:
		return "Capture stopped. Processing..."
	case domain.ReasonReplyReady:
		return "Reply ready"
	case domain.ReasonReplyEmpty:
		return "No reply for this turn"
	case domain.ReasonTurnDiscarded:
		return "Capture discarded"
	case domain.ReasonCaptureTimeout:
		return "Capture stopped after reaching the time limit. Processing..."
	case domain.ReasonCaptureSuspended:
		return "Capture suspended. Processing..."
	case domain.ReasonConversationEnded:
		return "Conversation ended"
	case domain.ReasonConversationReset:
		return "Ready for a new conversation"
	case domain.ReasonTransportFailed:
		return "Could not reach the pipeline"
	case domain.ReasonDeviceDenied:
		return "Microphone access denied"
	case domain.ReasonDeviceError:
		return "Microphone stopped unexpectedly"
	default:
		return ""
	}
}

func levelForReason(reason domain.StateReason) domain.StatusLevel {
	switch reason {
	case domain.ReasonCaptureStarted, domain.ReasonCaptureRestarted, domain.ReasonAutoResumed:
		return domain.StatusRecording
	case domain.ReasonProcessing, domain.ReasonCaptureTimeout, domain.ReasonCaptureSuspended:
		return domain.StatusProcessing
	case domain.ReasonReplyReady:
		return domain.StatusSuccess
	case domain.ReasonTransportFailed, domain.ReasonDeviceDenied, domain.ReasonDeviceError:
		return domain.StatusError
	default:
		return domain.StatusDefault
	}
}

func errorMessage(code domain.ErrorCode) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeDeviceDenied:
		return "Microphone access denied"
	case domain.ErrorCodeDeviceError:
		return "Microphone error"
	case domain.ErrorCodeTransportFailed:
		return "Pipeline request failed"
	case domain.ErrorCodePlaybackBlocked:
		return "Playback blocked"
	case domain.ErrorCodePlayback:
		return "Playback error"
	default:
		return "Unknown error"
	}
}
