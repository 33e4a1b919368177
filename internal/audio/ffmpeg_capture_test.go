package audio

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"voiceloop/internal/domain"
	"voiceloop/internal/ports"
)

func TestFFmpegCaptureAcquireReadAndStop(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "capture.sh", "#!/usr/bin/env bash\nprintf 'hello'\nexec sleep 2\n")
	capture := NewFFmpegCapture(script)

	session, err := capture.Acquire(context.Background(), ports.DeviceConfig{})
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	buf := make([]byte, 8)
	n, readErr := session.Read(buf)
	if n <= 0 {
		t.Fatalf("expected audio bytes, got n=%d err=%v", n, readErr)
	}
	if !strings.Contains(string(buf[:n]), "hello") {
		t.Fatalf("unexpected bytes: %q", string(buf[:n]))
	}

	if err := session.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := session.Stop(); err != nil {
		t.Fatalf("repeated stop failed: %v", err)
	}
}

func TestFFmpegCaptureEarlyExit(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "fail.sh", "#!/usr/bin/env bash\necho 'boom' 1>&2\nexit 1\n")
	capture := NewFFmpegCapture(script)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := capture.Acquire(ctx, ports.DeviceConfig{})
	if err == nil {
		t.Fatalf("expected early exit error")
	}
	if !strings.Contains(err.Error(), "exited before producing audio") {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("stderr detail missing from error: %v", err)
	}
}

func TestFFmpegCapturePermissionFailureIsDenied(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "denied.sh", "#!/usr/bin/env bash\necho 'ALSA lib: Permission denied' 1>&2\nexit 1\n")
	capture := NewFFmpegCapture(script)

	_, err := capture.Acquire(context.Background(), ports.DeviceConfig{})
	if !errors.Is(err, domain.ErrDeviceDenied) {
		t.Fatalf("expected device denied, got %v", err)
	}
}

func TestFFmpegCaptureMissingCommandIsDenied(t *testing.T) {
	t.Parallel()

	capture := NewFFmpegCapture(filepath.Join(t.TempDir(), "missing-ffmpeg"))

	_, err := capture.Acquire(context.Background(), ports.DeviceConfig{})
	if !errors.Is(err, domain.ErrDeviceDenied) {
		t.Fatalf("expected device denied for missing command, got %v", err)
	}
}

func TestClassifyAcquireFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		stderr string
		denied bool
	}{
		{"permission marker", "device setup failed\nPermission denied by system", true},
		{"missing device marker", "cannot open audio device hw:0,0", true},
		{"generic failure", "something exploded", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := classifyAcquireFailure(nil, tt.stderr)
			if got := errors.Is(err, domain.ErrDeviceDenied); got != tt.denied {
				t.Fatalf("denied=%v, want %v: %v", got, tt.denied, err)
			}
		})
	}

	if err := classifyAcquireFailure(nil, ""); err == nil {
		t.Fatalf("empty stderr should still report an error")
	}
}

func TestFirstStderrLine(t *testing.T) {
	t.Parallel()

	if got := firstStderrLine("\n\n  first real line  \nsecond"); got != "first real line" {
		t.Fatalf("unexpected first line: %q", got)
	}
	if got := firstStderrLine("\n  \n"); got != "" {
		t.Fatalf("blank stderr should yield empty detail, got %q", got)
	}
}

func TestNormalizeStopErrExitErrorIsIgnored(t *testing.T) {
	t.Parallel()

	err := exec.Command("bash", "-lc", "exit 1").Run()
	if err == nil {
		t.Fatalf("expected command to fail")
	}
	if got := normalizeStopErr(err); got != nil {
		t.Fatalf("expected nil for exit error, got %v", got)
	}
	if got := normalizeStopErr(nil); got != nil {
		t.Fatalf("expected nil passthrough, got %v", got)
	}
}

func writeScript(t *testing.T, name string, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o700); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}
