package playback

import "sync"

// Nop acknowledges every payload without opening an audio device. It is
// the player for headless runs; the finished signal still fires so the
// capture loop keeps advancing.
type Nop struct {
	mu       sync.Mutex
	finished func()
}

func NewNop() *Nop {
	return &Nop{}
}

func (n *Nop) SetFinishedListener(fn func()) {
	n.mu.Lock()
	n.finished = fn
	n.mu.Unlock()
}

func (n *Nop) Play(audioBase64 string) error {
	n.mu.Lock()
	fn := n.finished
	n.mu.Unlock()
	if fn != nil {
		fn()
	}
	return nil
}
