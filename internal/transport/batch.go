package transport

import (
	"context"
	"errors"
	"fmt"

	"voiceloop/internal/audio"
	"voiceloop/internal/domain"
	"voiceloop/internal/logging"
	"voiceloop/internal/ports"
)

// BatchFactory builds per-turn channels that accumulate the whole
// recording in memory and upload it as one WAV file on finalize.
type BatchFactory struct {
	client     *Client
	sampleRate int
	channels   int
}

func NewBatchFactory(client *Client, sampleRate, channels int) *BatchFactory {
	return &BatchFactory{client: client, sampleRate: sampleRate, channels: channels}
}

func (f *BatchFactory) NewChannel() ports.TurnChannel {
	return &batchChannel{client: f.client, sampleRate: f.sampleRate, channels: f.channels}
}

type batchChannel struct {
	client     *Client
	sampleRate int
	channels   int

	session string
	samples []float32
	opened  bool
	closed  bool
}

// Open only records the session; batch mode puts nothing on the wire
// until the turn is finalized.
func (b *batchChannel) Open(ctx context.Context, session string) error {
	if b.opened {
		return errors.New("channel already opened")
	}
	b.session = session
	b.opened = true
	return nil
}

func (b *batchChannel) Submit(samples []float32) error {
	if !b.opened || b.closed {
		return errors.New("channel not accepting audio")
	}
	b.samples = append(b.samples, samples...)
	return nil
}

// Finalize encodes the buffered capture as a 16-bit WAV and posts it to
// the session's chat endpoint. A turn that produced no audio resolves
// to an empty result without touching the network.
func (b *batchChannel) Finalize(ctx context.Context) (domain.TurnResult, error) {
	if !b.opened || b.closed {
		return domain.TurnResult{}, errors.New("channel not open")
	}
	b.closed = true

	if len(b.samples) == 0 {
		log.Debug("discarding empty recording", logging.KeySession, b.session)
		return domain.TurnResult{}, nil
	}

	wavData, err := audio.EncodeWAV(audio.EncodePCM16(b.samples), b.sampleRate, b.channels)
	if err != nil {
		return domain.TurnResult{}, fmt.Errorf("failed to encode recording: %w", err)
	}
	b.samples = nil

	log.Debug("uploading recording",
		logging.KeySession, b.session,
		"bytes", len(wavData))

	return b.client.ChatUpload(ctx, b.session, wavData)
}

func (b *batchChannel) Abort() {
	b.closed = true
	b.samples = nil
}
