package status

import (
	"bytes"
	"strings"
	"testing"

	"voiceloop/internal/domain"
)

func TestPresenterStateChanged(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	presenter := NewPresenter(&out)

	presenter.StateChanged(domain.CaptureStateCapturing, domain.ReasonCaptureStarted)
	presenter.StateChanged(domain.CaptureStateStopping, domain.ReasonProcessing)
	presenter.StateChanged(domain.CaptureStateIdle, domain.ReasonReplyReady)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	want := []string{
		"[recording] Listening...",
		"[processing] Capture stopped. Processing...",
		"[success] Reply ready",
	}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %d: %q", len(want), len(lines), out.String())
	}
	for i, line := range want {
		if lines[i] != line {
			t.Errorf("line %d: got %q, want %q", i, lines[i], line)
		}
	}
}

func TestPresenterTurnCompleted(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	presenter := NewPresenter(&out)

	presenter.TurnCompleted(domain.TurnResult{Transcription: "hello", Preview: "hello", Replied: true})
	if got := out.String(); got != "[success] Heard: hello\n" {
		t.Fatalf("unexpected preview line: %q", got)
	}

	out.Reset()
	presenter.TurnCompleted(domain.TurnResult{Replied: true})
	if got := out.String(); got != "[default] Reply received\n" {
		t.Fatalf("unexpected reply line: %q", got)
	}

	out.Reset()
	presenter.TurnCompleted(domain.TurnResult{})
	if out.Len() != 0 {
		t.Fatalf("silent turn should print nothing, got %q", out.String())
	}
}

func TestPresenterSessionError(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	presenter := NewPresenter(&out)

	presenter.SessionError(domain.ErrorCodeTransportFailed, "connection refused")
	if got := out.String(); got != "[error] Pipeline request failed: connection refused\n" {
		t.Fatalf("unexpected error line: %q", got)
	}

	out.Reset()
	presenter.SessionError(domain.ErrorCodeDeviceDenied, "")
	if got := out.String(); got != "[error] Microphone access denied\n" {
		t.Fatalf("detail-free error should print the code message only: %q", got)
	}
}

func TestPresenterNote(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	presenter := NewPresenter(&out)

	presenter.Note(domain.StatusProcessing, "Sending query...")
	if got := out.String(); got != "[processing] Sending query...\n" {
		t.Fatalf("unexpected note line: %q", got)
	}

	out.Reset()
	presenter.Note(domain.StatusDefault, "")
	if out.Len() != 0 {
		t.Fatalf("empty note should print nothing, got %q", out.String())
	}
}

func TestLevelForReason(t *testing.T) {
	t.Parallel()

	tests := []struct {
		reason domain.StateReason
		want   domain.StatusLevel
	}{
		{domain.ReasonCaptureStarted, domain.StatusRecording},
		{domain.ReasonAutoResumed, domain.StatusRecording},
		{domain.ReasonProcessing, domain.StatusProcessing},
		{domain.ReasonCaptureTimeout, domain.StatusProcessing},
		{domain.ReasonReplyReady, domain.StatusSuccess},
		{domain.ReasonTransportFailed, domain.StatusError},
		{domain.ReasonDeviceDenied, domain.StatusError},
		{domain.ReasonConversationEnded, domain.StatusDefault},
		{domain.ReasonReady, domain.StatusDefault},
	}
	for _, tt := range tests {
		if got := levelForReason(tt.reason); got != tt.want {
			t.Errorf("levelForReason(%s) = %s, want %s", tt.reason, got, tt.want)
		}
	}
}
