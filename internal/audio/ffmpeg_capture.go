package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"voiceloop/internal/domain"
	"voiceloop/internal/ports"
)

// FFmpegCapture acquires the microphone through an ffmpeg subprocess
// emitting raw 32-bit float little-endian samples on stdout.
type FFmpegCapture struct {
	command string
}

func NewFFmpegCapture(command string) *FFmpegCapture {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFmpegCapture{command: command}
}

func (c *FFmpegCapture) Acquire(ctx context.Context, cfg ports.DeviceConfig) (ports.CaptureSession, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}

	if _, err := exec.LookPath(c.command); err != nil {
		return nil, fmt.Errorf("%w: capture command %q not found", domain.ErrDeviceDenied, c.command)
	}

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
	}
	if cfg.NoiseSuppression {
		args = append(args, "-af", "afftdn")
	}
	// Echo cancellation is not expressible as an ffmpeg output filter;
	// sources that support it (pulse echo-cancel modules) apply it
	// upstream of this process.
	args = append(args, "-f", "f32le", "-")

	cmd := exec.CommandContext(ctx, c.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create capture stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start capture process: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	// Immediate exits mean the device could not be opened at all.
	select {
	case err := <-waitErr:
		return nil, classifyAcquireFailure(err, stderr.String())
	case <-time.After(250 * time.Millisecond):
	}

	return &ffmpegSession{
		stdout:  stdout,
		stderr:  &stderr,
		process: cmd.Process,
		waitErr: waitErr,
	}, nil
}

// deniedMarkers are stderr fragments that indicate a permission or
// missing-device condition rather than a transient fault.
var deniedMarkers = []string{
	"permission denied",
	"operation not permitted",
	"no such entity",
	"no such device",
	"device not found",
	"cannot open audio device",
	"access denied",
}

func classifyAcquireFailure(exitErr error, stderr string) error {
	detail := firstStderrLine(stderr)
	lowered := strings.ToLower(stderr)
	for _, marker := range deniedMarkers {
		if strings.Contains(lowered, marker) {
			return fmt.Errorf("%w: %s", domain.ErrDeviceDenied, detail)
		}
	}
	if detail == "" {
		if exitErr != nil {
			return fmt.Errorf("capture process exited before producing audio: %w", exitErr)
		}
		return errors.New("capture process exited before producing audio")
	}
	return fmt.Errorf("capture process exited before producing audio: %s", detail)
}

func firstStderrLine(stderr string) string {
	for _, line := range strings.Split(stderr, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

type ffmpegSession struct {
	stdout io.ReadCloser
	stderr *bytes.Buffer

	process *os.Process
	waitErr <-chan error

	stopOnce sync.Once
	stopErr  error
}

func (s *ffmpegSession) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

func (s *ffmpegSession) Close() error {
	return s.Stop()
}

func (s *ffmpegSession) Stop() error {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		case <-time.After(1200 * time.Millisecond):
			if s.process != nil {
				_ = s.process.Kill()
			}
			err, ok := <-s.waitErr
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		}

		if closeErr := s.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
			if s.stopErr == nil {
				s.stopErr = closeErr
			}
		}

		if s.stopErr != nil && s.stderr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, firstStderrLine(s.stderr.String()))
		}
	})

	return s.stopErr
}

// ffmpeg exits non-zero when interrupted; that is the expected shutdown
// path, not a fault.
func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
