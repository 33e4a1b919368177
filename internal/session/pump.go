package session

import (
	"errors"
	"fmt"
	"io"

	"voiceloop/internal/audio"
	"voiceloop/internal/domain"
	"voiceloop/internal/ports"
)

// pumpSamples moves audio from the capture device into the turn channel
// until the device stream ends. The device emits raw little-endian
// 32-bit floats; reads are not aligned to sample boundaries, so a small
// remainder carries over between iterations.
//
// fail reports device or transport trouble; the controller decides
// whether the turn was already shutting down.
func pumpSamples(
	capture ports.CaptureSession,
	channel ports.TurnChannel,
	chunkSamples int,
	fail func(err error),
	done chan struct{},
) {
	defer close(done)

	if chunkSamples < 256 {
		chunkSamples = 4096
	}

	buf := make([]byte, chunkSamples*4)
	var pending []byte
	for {
		n, err := capture.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			usable := len(pending) / 4 * 4
			if usable > 0 {
				samples := audio.DecodeFloat32LE(pending[:usable])
				pending = append([]byte(nil), pending[usable:]...)
				if sendErr := channel.Submit(samples); sendErr != nil {
					fail(fmt.Errorf("%w: failed to forward audio: %v", domain.ErrTransportFailed, sendErr))
					return
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				fail(fmt.Errorf("%w: capture stream ended", domain.ErrDeviceFault))
				return
			}
			fail(fmt.Errorf("%w: %v", domain.ErrDeviceFault, err))
			return
		}
	}
}
