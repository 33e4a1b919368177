package session

import (
	"strconv"
	"sync"
	"time"

	"voiceloop/internal/ports"
)

// turn is one in-flight capture: the device session, its channel to the
// pipeline, and the pump goroutine tying them together.
type turn struct {
	id      string
	cancel  func()
	capture ports.CaptureSession
	channel ports.TurnChannel

	timeoutMu sync.Mutex
	timeout   *time.Timer

	pumpDone chan struct{}
}

func (t *turn) armTimeout(d time.Duration, fn func()) {
	t.timeoutMu.Lock()
	defer t.timeoutMu.Unlock()
	t.timeout = time.AfterFunc(d, fn)
}

func (t *turn) stopTimeout() {
	t.timeoutMu.Lock()
	defer t.timeoutMu.Unlock()
	if t.timeout != nil {
		t.timeout.Stop()
		t.timeout = nil
	}
}

// newSessionToken mints a conversation identifier. Millisecond
// timestamps match what the pipeline's session store keys on.
func newSessionToken() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}
