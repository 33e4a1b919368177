package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"voiceloop/internal/audio"
	"voiceloop/internal/domain"
	"voiceloop/internal/logging"
	"voiceloop/internal/metrics"
	"voiceloop/internal/ports"
)

const inboundNoteLimit = 200

// StreamConfig controls the websocket channel.
type StreamConfig struct {
	ServerURL  string
	Path       string
	SampleRate int
	Channels   int
	FrameSize  int
}

// StreamFactory builds per-turn websocket channels that forward audio
// as fixed-size little-endian PCM frames while the capture runs.
type StreamFactory struct {
	cfg     StreamConfig
	metrics *metrics.Metrics
}

func NewStreamFactory(cfg StreamConfig, m *metrics.Metrics) *StreamFactory {
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = 4096
	}
	return &StreamFactory{cfg: cfg, metrics: m}
}

func (f *StreamFactory) NewChannel() ports.TurnChannel {
	return &streamChannel{
		cfg:     f.cfg,
		metrics: f.metrics,
		inbound: newInboundLog(16),
	}
}

type streamChannel struct {
	cfg     StreamConfig
	metrics *metrics.Metrics
	inbound *inboundLog
	cutter  *audio.FrameCutter

	conn  *websocket.Conn
	audio chan []byte
	done  chan struct{}

	wg sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeSendOnce sync.Once
	closeOnce     sync.Once
	sendMu        sync.RWMutex
	sendClosed    bool
}

// Open dials the websocket endpoint for the session and starts the
// pump loops. The channel only accepts audio after Open succeeds.
func (s *streamChannel) Open(ctx context.Context, session string) error {
	if s.conn != nil {
		return errors.New("channel already opened")
	}

	wsURL, err := buildStreamURL(s.cfg, session)
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to connect to stream endpoint: %v", domain.ErrTransportFailed, err)
	}

	s.conn = conn
	s.cutter = audio.NewFrameCutter(s.cfg.FrameSize)
	s.audio = make(chan []byte, 32)
	s.done = make(chan struct{})

	s.wg.Add(2)
	go s.readLoop()
	go s.writeLoop()
	go func() {
		s.wg.Wait()
		close(s.done)
		_ = conn.Close()
	}()

	go func() {
		select {
		case <-ctx.Done():
			s.close()
		case <-s.done:
		}
	}()

	log.Debug("stream channel opened", logging.KeySession, session, "url", wsURL)
	return nil
}

// Submit cuts the samples into fixed-size frames and forwards each one
// as a binary message. A partial tail frame stays buffered until the
// next Submit or Finalize.
func (s *streamChannel) Submit(samples []float32) error {
	if s.conn == nil {
		return errors.New("channel not open")
	}

	for _, frame := range s.cutter.Push(samples) {
		if err := s.send(audio.PCM16Bytes(audio.EncodePCM16(frame))); err != nil {
			return err
		}
	}
	return nil
}

// Finalize flushes the buffered tail frame, performs the close
// handshake, and waits for the channel to drain. Streaming turns never
// carry a reply payload; the server responds out of band.
func (s *streamChannel) Finalize(ctx context.Context) (domain.TurnResult, error) {
	if s.conn == nil {
		return domain.TurnResult{}, errors.New("channel not open")
	}

	if tail := s.cutter.Flush(); len(tail) > 0 {
		if err := s.send(audio.PCM16Bytes(audio.EncodePCM16(tail))); err != nil {
			log.Debug("failed to flush tail frame", logging.KeyError, err)
		}
	}
	s.closeSend()

	select {
	case <-s.done:
	case <-ctx.Done():
		log.Warn("stream close timed out, forcing shutdown")
		s.close()
		<-s.done
	}

	if err := s.streamErr(); err != nil {
		return domain.TurnResult{}, fmt.Errorf("%w: %v", domain.ErrTransportFailed, err)
	}
	return domain.TurnResult{}, nil
}

// Abort tears the connection down without waiting for a handshake.
func (s *streamChannel) Abort() {
	if s.conn == nil {
		return
	}
	s.close()
	<-s.done
}

func (s *streamChannel) send(frame []byte) error {
	if len(frame) == 0 {
		return nil
	}

	s.sendMu.RLock()
	closed := s.sendClosed
	s.sendMu.RUnlock()
	if closed {
		return errors.New("audio stream is already closed")
	}

	select {
	case s.audio <- frame:
		return nil
	case <-s.done:
		if err := s.streamErr(); err != nil {
			return err
		}
		return errors.New("channel closed")
	}
}

func (s *streamChannel) closeSend() {
	s.closeSendOnce.Do(func() {
		s.sendMu.Lock()
		s.sendClosed = true
		close(s.audio)
		s.sendMu.Unlock()
	})
}

func (s *streamChannel) close() {
	s.closeOnce.Do(func() {
		s.closeSend()
		_ = s.conn.Close()
	})
}

func (s *streamChannel) streamErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *streamChannel) setErr(err error) {
	if err == nil {
		return
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *streamChannel) writeLoop() {
	defer s.wg.Done()

	for frame := range s.audio {
		if err := s.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			s.setErr(fmt.Errorf("failed to send frame: %w", err))
			return
		}
		if s.metrics != nil {
			s.metrics.FramesSent.Inc()
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := s.conn.WriteControl(websocket.CloseMessage, message, deadline); err != nil {
		s.setErr(fmt.Errorf("failed to close stream: %w", err))
	}
}

// readLoop drains server messages until the peer closes. Inbound
// messages carry no turn semantics here; they are retained for
// diagnostics only.
func (s *streamChannel) readLoop() {
	defer s.wg.Done()

	for {
		kind, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.setErr(fmt.Errorf("failed to read server message: %w", err))
			return
		}

		if s.metrics != nil {
			s.metrics.InboundMessages.Inc()
		}

		note := describeInbound(kind, payload)
		s.inbound.add(note)
		log.Debug("stream message received", "message", note)
	}
}

// InboundNotes returns the retained server messages, oldest first.
func (s *streamChannel) InboundNotes() []string {
	return s.inbound.Notes()
}

func describeInbound(kind int, payload []byte) string {
	if kind == websocket.BinaryMessage {
		return fmt.Sprintf("binary message (%d bytes)", len(payload))
	}
	note := strings.TrimSpace(string(payload))
	runes := []rune(note)
	if len(runes) > inboundNoteLimit {
		note = string(runes[:inboundNoteLimit]) + "..."
	}
	return note
}

func buildStreamURL(cfg StreamConfig, session string) (string, error) {
	base := strings.TrimSpace(cfg.ServerURL)
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	path := cfg.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	streamURL, err := url.Parse(base + path)
	if err != nil {
		return "", fmt.Errorf("invalid stream endpoint URL: %w", err)
	}

	query := streamURL.Query()
	query.Set("session", session)
	query.Set("encoding", "linear16")
	query.Set("sample_rate", strconv.Itoa(cfg.SampleRate))
	query.Set("channels", strconv.Itoa(cfg.Channels))
	streamURL.RawQuery = query.Encode()
	return streamURL.String(), nil
}
