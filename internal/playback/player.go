package playback

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"sync"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/wav"

	"voiceloop/internal/logging"
)

var log = logging.L("playback")

// Player decodes reply audio, base64 or raw container bytes, and
// renders it through an Engine. Every Play resolves to exactly one
// finished signal: audible playback fires it when rendering completes,
// and empty, undecodable, or blocked payloads fire it immediately as an
// acknowledged skip. The loop that listens for the signal keeps
// advancing either way.
type Player struct {
	engine Engine

	mu       sync.Mutex
	finished func()
}

func New(engine Engine) *Player {
	return &Player{engine: engine}
}

// NewSpeaker returns a Player backed by the system audio output.
func NewSpeaker() *Player {
	return New(NewSpeakerEngine())
}

// SetFinishedListener replaces the finished listener. Repeated calls
// never stack listeners; only the latest registration fires.
func (p *Player) SetFinishedListener(fn func()) {
	p.mu.Lock()
	p.finished = fn
	p.mu.Unlock()
}

// Play renders the payload. It returns an error for payloads that could
// not be rendered; the finished signal fires regardless, possibly
// synchronously before Play returns.
func (p *Player) Play(audioBase64 string) error {
	fire := p.fireOnce()

	if audioBase64 == "" {
		log.Debug("no reply audio, skipping playback")
		fire()
		return nil
	}

	raw, err := base64.StdEncoding.DecodeString(audioBase64)
	if err != nil {
		// Some pipeline builds send the container bytes unencoded.
		raw = []byte(audioBase64)
	}

	streamer, format, err := decodeAudio(raw)
	if err != nil {
		fire()
		return fmt.Errorf("unplayable reply audio: %w", err)
	}

	if err := p.engine.Play(streamer, format, func() {
		_ = streamer.Close()
		fire()
	}); err != nil {
		_ = streamer.Close()
		fire()
		return err
	}
	return nil
}

// fireOnce binds one playback attempt to a single finished emission.
// The listener is resolved at fire time so a replacement registered
// mid-playback receives the signal.
func (p *Player) fireOnce() func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			fn := p.finished
			p.mu.Unlock()
			if fn != nil {
				fn()
			}
		})
	}
}

// decodeAudio sniffs the container. The pipeline emits MP3 today; WAV
// is accepted because the speech synthesizer can be configured for it.
func decodeAudio(raw []byte) (beep.StreamSeekCloser, beep.Format, error) {
	if isWAV(raw) {
		return wav.Decode(io.NopCloser(bytes.NewReader(raw)))
	}
	return mp3.Decode(io.NopCloser(bytes.NewReader(raw)))
}

func isWAV(raw []byte) bool {
	return len(raw) >= 12 && bytes.Equal(raw[0:4], []byte("RIFF")) && bytes.Equal(raw[8:12], []byte("WAVE"))
}
