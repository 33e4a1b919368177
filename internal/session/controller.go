package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"voiceloop/internal/domain"
	"voiceloop/internal/logging"
	"voiceloop/internal/metrics"
	"voiceloop/internal/ports"
)

var log = logging.L("session")

// Config controls capture loop behavior.
type Config struct {
	Device          ports.DeviceConfig
	ChunkSamples    int
	ResumeDelay     time.Duration
	EndGrace        time.Duration
	CaptureTimeout  time.Duration
	FinalizeTimeout time.Duration
	SessionID       string
}

// Controller orchestrates the turn-taking loop: it owns the capture
// state machine, the conversation identifier, the Ended latch, and the
// playback-driven auto-resume cycle. At most one turn is in flight.
type Controller struct {
	capture  ports.AudioCapture
	channels ports.ChannelFactory
	player   ports.Player
	querier  ports.TextQuerier
	status   ports.StatusSink
	metrics  *metrics.Metrics
	cfg      Config

	mu          sync.Mutex
	state       domain.CaptureState
	sessionID   string
	ended       bool
	starting    bool
	current     *turn
	lastError   domain.ErrorCode
	resumeTimer *time.Timer
	graceTimer  *time.Timer
}

func New(
	capture ports.AudioCapture,
	channels ports.ChannelFactory,
	player ports.Player,
	querier ports.TextQuerier,
	status ports.StatusSink,
	m *metrics.Metrics,
	cfg Config,
) *Controller {
	if cfg.ChunkSamples < 256 {
		cfg.ChunkSamples = 4096
	}
	if cfg.ResumeDelay <= 0 {
		cfg.ResumeDelay = 800 * time.Millisecond
	}
	if cfg.EndGrace <= 0 {
		cfg.EndGrace = 1200 * time.Millisecond
	}
	if cfg.CaptureTimeout <= 0 {
		cfg.CaptureTimeout = 90 * time.Second
	}
	if cfg.FinalizeTimeout <= 0 {
		cfg.FinalizeTimeout = 4 * time.Second
	}

	c := &Controller{
		capture:   capture,
		channels:  channels,
		player:    player,
		querier:   querier,
		status:    status,
		metrics:   m,
		cfg:       cfg,
		state:     domain.CaptureStateIdle,
		sessionID: cfg.SessionID,
	}
	if c.sessionID == "" {
		c.sessionID = newSessionToken()
	}
	player.SetFinishedListener(c.onPlaybackFinished)
	return c
}

// Start begins a capture turn. Starting over a live capture discards
// the previous turn first; starting while the conversation is ended is
// refused until the grace period clears the latch.
func (c *Controller) Start(ctx context.Context) error {
	return c.start(ctx, false)
}

func (c *Controller) start(ctx context.Context, resumed bool) error {
	var previous *turn

	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return domain.ErrConversationEnded
	}
	if c.state == domain.CaptureStateStopping {
		c.mu.Unlock()
		return domain.ErrTurnActive
	}
	if c.starting {
		// Another start is mid-acquire; only one may install.
		c.mu.Unlock()
		return domain.ErrTurnActive
	}
	c.starting = true
	if c.resumeTimer != nil {
		c.resumeTimer.Stop()
		c.resumeTimer = nil
	}
	if c.current != nil {
		previous = c.current
		c.current = nil
		c.state = domain.CaptureStateIdle
	}
	session := c.sessionID
	c.mu.Unlock()

	if previous != nil {
		c.discardTurn(previous)
	}

	turnCtx, cancel := context.WithCancel(ctx)

	capture, err := c.capture.Acquire(turnCtx, c.cfg.Device)
	if err != nil {
		cancel()
		c.abortStart()
		code := domain.ErrorCodeDeviceError
		if errors.Is(err, domain.ErrDeviceDenied) {
			code = domain.ErrorCodeDeviceDenied
		}
		c.noteError(code)
		c.status.SessionError(code, err.Error())
		return err
	}

	channel := c.channels.NewChannel()
	if err := channel.Open(turnCtx, session); err != nil {
		_ = capture.Stop()
		cancel()
		c.abortStart()
		c.noteError(domain.ErrorCodeTransportFailed)
		c.status.SessionError(domain.ErrorCodeTransportFailed, err.Error())
		return err
	}

	active := &turn{
		id:       uuid.NewString(),
		cancel:   cancel,
		capture:  capture,
		channel:  channel,
		pumpDone: make(chan struct{}),
	}

	c.mu.Lock()
	if c.ended || c.sessionID != session {
		// End raced the acquire; the channel belongs to a dead
		// conversation.
		c.starting = false
		c.mu.Unlock()
		cancel()
		_ = capture.Stop()
		channel.Abort()
		return domain.ErrConversationEnded
	}
	c.current = active
	c.state = domain.CaptureStateCapturing
	c.lastError = ""
	c.starting = false
	c.mu.Unlock()

	active.armTimeout(c.cfg.CaptureTimeout, func() {
		_ = c.Stop(context.Background(), domain.StopTimeout)
	})
	go pumpSamples(capture, channel, c.cfg.ChunkSamples, func(err error) {
		c.handlePumpFailure(active, err)
	}, active.pumpDone)

	reason := domain.ReasonCaptureStarted
	switch {
	case resumed:
		reason = domain.ReasonAutoResumed
	case previous != nil:
		reason = domain.ReasonCaptureRestarted
	}
	c.status.StateChanged(domain.CaptureStateCapturing, reason)
	if c.metrics != nil {
		c.metrics.TurnsStarted.Inc()
		c.metrics.CaptureActive.Set(1)
	}

	log.Info("turn started",
		logging.KeySession, session,
		logging.KeyTurn, active.id,
		logging.KeyReason, string(reason))
	return nil
}

// Stop ends the live capture turn: the device is released first, then
// the channel is finalized and the reply dispatched. Stopping with no
// live capture is a no-op.
func (c *Controller) Stop(ctx context.Context, trigger domain.StopTrigger) error {
	c.mu.Lock()
	if c.current == nil || c.state != domain.CaptureStateCapturing {
		c.mu.Unlock()
		return nil
	}
	active := c.current
	c.state = domain.CaptureStateStopping
	c.mu.Unlock()

	active.stopTimeout()
	c.status.StateChanged(domain.CaptureStateStopping, stopReason(trigger))

	if err := active.capture.Stop(); err != nil {
		c.status.SessionError(domain.ErrorCodeDeviceError, "failed to stop audio capture cleanly")
	}
	<-active.pumpDone

	finalizeCtx, cancel := context.WithTimeout(ctx, c.cfg.FinalizeTimeout)
	result, err := active.channel.Finalize(finalizeCtx)
	cancel()

	if err != nil {
		c.noteError(domain.ErrorCodeTransportFailed)
		c.status.SessionError(domain.ErrorCodeTransportFailed, err.Error())
		c.finishTurn(active, domain.ReasonTransportFailed)
		if c.metrics != nil {
			c.metrics.TurnsFailed.Inc()
		}
		return err
	}

	owned := c.finishTurn(active, resultReason(result))
	if c.metrics != nil {
		c.metrics.TurnsCompleted.Inc()
	}
	if owned {
		c.deliver(result)
	}
	return nil
}

// Discard cancels the live capture without sending anything.
func (c *Controller) Discard() error {
	c.mu.Lock()
	if c.current == nil || c.state != domain.CaptureStateCapturing {
		c.mu.Unlock()
		return domain.ErrNoActiveTurn
	}
	active := c.current
	c.current = nil
	c.state = domain.CaptureStateIdle
	c.mu.Unlock()

	c.discardTurn(active)
	c.status.StateChanged(domain.CaptureStateIdle, domain.ReasonTurnDiscarded)
	if c.metrics != nil {
		c.metrics.CaptureActive.Set(0)
	}
	return nil
}

// End closes the conversation: any live capture is torn down, the
// session identifier is regenerated, and the Ended latch suppresses
// starts and auto-resume until the grace period expires.
func (c *Controller) End(ctx context.Context) error {
	c.mu.Lock()
	var active *turn
	if c.state == domain.CaptureStateCapturing {
		// A finalizing turn stays owned by the Stop in flight.
		active = c.current
	}
	c.current = nil
	c.state = domain.CaptureStateIdle
	c.ended = true
	c.sessionID = newSessionToken()
	if c.resumeTimer != nil {
		c.resumeTimer.Stop()
		c.resumeTimer = nil
	}
	if c.graceTimer != nil {
		c.graceTimer.Stop()
	}
	session := c.sessionID
	c.mu.Unlock()

	if active != nil {
		c.discardTurn(active)
	}

	c.status.StateChanged(domain.CaptureStateIdle, domain.ReasonConversationEnded)
	if c.metrics != nil {
		c.metrics.CaptureActive.Set(0)
	}
	log.Info("conversation ended", logging.KeySession, session)

	timer := time.AfterFunc(c.cfg.EndGrace, c.clearEnded)
	c.mu.Lock()
	c.graceTimer = timer
	c.mu.Unlock()
	return nil
}

// Toggle starts a capture when idle and stops the live one otherwise.
func (c *Controller) Toggle(ctx context.Context) error {
	c.mu.Lock()
	capturing := c.state == domain.CaptureStateCapturing
	c.mu.Unlock()

	if capturing {
		return c.Stop(ctx, domain.StopUser)
	}
	return c.Start(ctx)
}

// Ask sends a text-only turn through the pipeline, bypassing capture.
// It is refused while a capture turn is in flight.
func (c *Controller) Ask(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.New("empty query")
	}
	if c.querier == nil {
		return errors.New("text queries are not configured")
	}

	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return domain.ErrConversationEnded
	}
	if c.current != nil || c.starting || c.state != domain.CaptureStateIdle {
		c.mu.Unlock()
		return domain.ErrTurnActive
	}
	c.mu.Unlock()

	c.status.Note(domain.StatusProcessing, "Sending query...")
	result, err := c.querier.QueryText(ctx, text)
	if err != nil {
		c.noteError(domain.ErrorCodeTransportFailed)
		c.status.SessionError(domain.ErrorCodeTransportFailed, err.Error())
		return err
	}
	c.deliver(result)
	return nil
}

// Status returns a snapshot of the loop.
func (c *Controller) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := domain.Status{
		State:     c.state,
		SessionID: c.sessionID,
		Ended:     c.ended,
		Active:    c.state != domain.CaptureStateIdle,
		LastError: c.lastError,
	}
	if c.current != nil {
		status.TurnID = c.current.id
	}
	return status
}

// discardTurn tears a turn down without finalizing: the device stops,
// the channel aborts, and the pump drains.
func (c *Controller) discardTurn(active *turn) {
	active.stopTimeout()
	active.cancel()
	_ = active.capture.Stop()
	active.channel.Abort()
	<-active.pumpDone
}

// finishTurn releases a finalized turn. It reports false when End took
// the turn away mid-finalize; the caller must drop the result instead
// of delivering it into the next conversation.
func (c *Controller) finishTurn(active *turn, reason domain.StateReason) bool {
	active.cancel()

	c.mu.Lock()
	owned := c.current == active
	if owned {
		c.current = nil
		c.state = domain.CaptureStateIdle
	}
	c.mu.Unlock()

	if owned {
		c.status.StateChanged(domain.CaptureStateIdle, reason)
		if c.metrics != nil {
			c.metrics.CaptureActive.Set(0)
		}
	}
	return owned
}

func (c *Controller) abortStart() {
	c.mu.Lock()
	c.starting = false
	c.mu.Unlock()
}

// deliver routes a finalized turn result: status first, then playback.
// It must be called without holding mu; the player may fire the
// finished listener synchronously.
func (c *Controller) deliver(result domain.TurnResult) {
	result = result.WithPreview()
	c.status.TurnCompleted(result)

	if !result.Replied {
		return
	}

	if c.metrics != nil {
		if result.AudioBase64 == "" {
			c.metrics.PlaybacksSkipped.Inc()
		} else {
			c.metrics.PlaybacksStarted.Inc()
		}
	}

	if err := c.player.Play(result.AudioBase64); err != nil {
		code := domain.ErrorCodePlayback
		if errors.Is(err, domain.ErrPlaybackBlocked) {
			code = domain.ErrorCodePlaybackBlocked
		}
		c.noteError(code)
		c.status.SessionError(code, err.Error())
	}
}

// handlePumpFailure is the error guard for a live capture: device or
// transport trouble mid-turn forces an immediate stop-and-release. A
// turn that is already stopping handles its own teardown.
func (c *Controller) handlePumpFailure(active *turn, err error) {
	c.mu.Lock()
	if c.current != active || c.state != domain.CaptureStateCapturing {
		c.mu.Unlock()
		return
	}
	c.current = nil
	c.state = domain.CaptureStateIdle
	c.mu.Unlock()

	active.stopTimeout()
	active.cancel()
	_ = active.capture.Stop()
	active.channel.Abort()

	code := domain.ErrorCodeDeviceError
	reason := domain.ReasonDeviceError
	if errors.Is(err, domain.ErrTransportFailed) {
		code = domain.ErrorCodeTransportFailed
		reason = domain.ReasonTransportFailed
	}
	c.noteError(code)
	c.status.SessionError(code, err.Error())
	c.status.StateChanged(domain.CaptureStateIdle, reason)
	if c.metrics != nil {
		c.metrics.TurnsFailed.Inc()
		c.metrics.CaptureActive.Set(0)
	}
}

// onPlaybackFinished arms the auto-resume debounce. The Ended latch is
// consulted both here and when the timer expires, so an end issued at
// any point before expiry wins.
func (c *Controller) onPlaybackFinished() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ended {
		return
	}
	if c.resumeTimer != nil {
		c.resumeTimer.Stop()
	}
	c.resumeTimer = time.AfterFunc(c.cfg.ResumeDelay, c.autoResume)
}

func (c *Controller) autoResume() {
	c.mu.Lock()
	if c.ended || c.current != nil {
		c.mu.Unlock()
		return
	}
	c.resumeTimer = nil
	c.mu.Unlock()

	if err := c.start(context.Background(), true); err != nil {
		log.Warn("auto-resume failed", logging.KeyError, err)
	}
}

func (c *Controller) clearEnded() {
	c.mu.Lock()
	if !c.ended {
		c.mu.Unlock()
		return
	}
	c.ended = false
	c.graceTimer = nil
	c.mu.Unlock()

	c.status.StateChanged(domain.CaptureStateIdle, domain.ReasonConversationReset)
}

func (c *Controller) noteError(code domain.ErrorCode) {
	c.mu.Lock()
	c.lastError = code
	c.mu.Unlock()
}

func stopReason(trigger domain.StopTrigger) domain.StateReason {
	switch trigger {
	case domain.StopTimeout:
		return domain.ReasonCaptureTimeout
	case domain.StopSuspend:
		return domain.ReasonCaptureSuspended
	default:
		return domain.ReasonProcessing
	}
}

func resultReason(result domain.TurnResult) domain.StateReason {
	switch {
	case !result.Replied:
		return domain.ReasonReady
	case result.Empty():
		return domain.ReasonReplyEmpty
	default:
		return domain.ReasonReplyReady
	}
}
