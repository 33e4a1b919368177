package playback

import (
	"fmt"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"

	"voiceloop/internal/domain"
)

// Engine owns the audio output device. The default engine drives the
// beep speaker; tests substitute a fake so playback logic runs without
// hardware.
type Engine interface {
	// Play renders the streamer and invokes finished exactly once when
	// rendering completes. It returns an error when the output device
	// cannot be opened; finished is not called in that case.
	Play(streamer beep.StreamSeekCloser, format beep.Format, finished func()) error
}

type speakerEngine struct{}

// NewSpeakerEngine returns the beep-backed output engine.
func NewSpeakerEngine() Engine {
	return speakerEngine{}
}

func (speakerEngine) Play(streamer beep.StreamSeekCloser, format beep.Format, finished func()) error {
	if err := speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10)); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPlaybackBlocked, err)
	}
	speaker.Play(beep.Seq(streamer, beep.Callback(finished)))
	return nil
}
