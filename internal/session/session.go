package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voicetake/voicetake/internal/capture"
	"github.com/voicetake/voicetake/internal/metrics"
	"github.com/voicetake/voicetake/internal/transcribe"
)

// State of a recording session.
type State int

const (
	StateIdle State = iota
	StateSettingUp
	StateReady
	StateStreaming
	StatePaused
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSettingUp:
		return "setting_up"
	case StateReady:
		return "ready"
	case StateStreaming:
		return "streaming"
	case StatePaused:
		return "paused"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// ErrConnectPending is returned when a connect attempt is already in
// flight for this session. At most one connect runs at a time.
var ErrConnectPending = errors.New("session: connect already in progress")

// ErrEnded is returned by operations on a session that has been closed.
var ErrEnded = errors.New("session: session has ended")

// Config holds the tunables of a session.
type Config struct {
	Live              transcribe.LiveOptions
	CaptionTTL        time.Duration
	KeepAliveInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.CaptionTTL <= 0 {
		c.CaptionTTL = 3 * time.Second
	}
	if c.KeepAliveInterval <= 0 {
		c.KeepAliveInterval = 10 * time.Second
	}
}

// Coordinator binds a capture source to a transcription channel for one
// recording session. It owns the session buffer, the caption-expiry timer
// and the keep-alive timer, and guarantees all of them are released when
// the session ends, on every exit path.
type Coordinator struct {
	id      uuid.UUID
	cfg     Config
	source  capture.Source
	channel transcribe.Channel
	buf     *Buffer
	stats   *metrics.SessionMetrics

	captionTimer *ExpiryTimer

	mu         sync.Mutex
	state      State
	connecting bool
	kaStop     chan struct{}
	done       chan struct{}
	closed     bool
	wg         sync.WaitGroup

	stateCh   chan State
	onCaption func(string)
	onState   func(State)
}

// New creates a coordinator for the given source and channel.
func New(source capture.Source, channel transcribe.Channel, cfg Config) *Coordinator {
	cfg.applyDefaults()
	id := uuid.New()
	c := &Coordinator{
		id:           id,
		cfg:          cfg,
		source:       source,
		channel:      channel,
		buf:          NewBuffer(),
		stats:        metrics.NewSessionMetrics(id.String()),
		captionTimer: NewExpiryTimer(),
		state:        StateIdle,
		done:         make(chan struct{}),
		stateCh:      make(chan State, 64),
	}
	c.wg.Add(1)
	go c.stateNotifier()
	return c
}

// OnCaption registers a handler invoked whenever the displayed caption
// changes. An empty string means the caption expired.
func (c *Coordinator) OnCaption(fn func(string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCaption = fn
}

// OnState registers a handler invoked on every session state transition.
func (c *Coordinator) OnState(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

// Start acquires the capture source, connects the transcription channel
// and begins pumping events. On failure the coordinator stays in its
// prior state; the caller may retry.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrEnded
	}
	if c.state != StateIdle {
		c.mu.Unlock()
		return fmt.Errorf("session %s: cannot start from state %s", c.id, c.state)
	}
	c.setStateLocked(StateSettingUp)
	c.mu.Unlock()

	if err := c.source.Setup(ctx); err != nil {
		log.Printf("Session %s: failed to setup capture source: %v", c.id, err)
		c.mu.Lock()
		c.setStateLocked(StateIdle)
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.setStateLocked(StateReady)
	c.mu.Unlock()

	c.wg.Add(3)
	go c.chunkPump()
	go c.eventPump()
	go c.statePump()

	// A connect failure leaves the session Ready; the pumps are already
	// running so a later reconnect via StartMicrophone picks up where
	// this left off.
	if err := c.connect(ctx); err != nil {
		log.Printf("Session %s: failed to connect transcription channel: %v", c.id, err)
		return err
	}

	c.syncKeepAlive()
	return nil
}

// connect establishes the channel connection, guarded so at most one
// attempt is in flight per session.
func (c *Coordinator) connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrEnded
	}
	if c.connecting {
		c.mu.Unlock()
		return ErrConnectPending
	}
	if c.channel.State() == transcribe.StateOpen {
		c.mu.Unlock()
		return nil
	}
	c.connecting = true
	c.mu.Unlock()

	err := c.channel.Connect(ctx, c.cfg.Live)

	c.mu.Lock()
	c.connecting = false
	c.mu.Unlock()
	return err
}

// ToggleMicrophone starts or stops audio emission depending on the
// current microphone state. This is the user-facing record button.
func (c *Coordinator) ToggleMicrophone(ctx context.Context) error {
	if c.source.State() == capture.StateOpen {
		return c.StopMicrophone()
	}
	return c.StartMicrophone(ctx)
}

// StartMicrophone opens the capture source and enters Streaming. The
// channel is reconnected first if it dropped while paused.
func (c *Coordinator) StartMicrophone(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrEnded
	}
	if c.state != StateReady && c.state != StatePaused {
		c.mu.Unlock()
		return fmt.Errorf("session %s: cannot open microphone from state %s", c.id, c.state)
	}
	c.mu.Unlock()

	if c.channel.State() != transcribe.StateOpen {
		log.Printf("Session %s: connection not open, reconnecting", c.id)
		if err := c.connect(ctx); err != nil {
			return err
		}
	}

	if err := c.source.Start(); err != nil {
		return err
	}

	c.mu.Lock()
	c.setStateLocked(StateStreaming)
	c.mu.Unlock()
	c.syncKeepAlive()
	return nil
}

// StopMicrophone halts audio emission and enters Paused. Any pending
// caption expiry is cancelled.
func (c *Coordinator) StopMicrophone() error {
	if err := c.source.Stop(); err != nil {
		return err
	}
	c.captionTimer.Stop()

	c.mu.Lock()
	if c.state == StateStreaming {
		c.setStateLocked(StatePaused)
	}
	c.mu.Unlock()
	c.syncKeepAlive()
	return nil
}

func (c *Coordinator) chunkPump() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case chunk, ok := <-c.source.Chunks():
			if !ok {
				return
			}
			c.handleChunk(chunk)
		}
	}
}

// handleChunk records a captured chunk and forwards it to the provider.
// Zero-length chunks are discarded before forwarding: some mobile
// browsers emit an empty first frame, and sending it closes the provider
// connection.
func (c *Coordinator) handleChunk(chunk []byte) {
	if len(chunk) == 0 {
		c.stats.AddDroppedChunk()
		return
	}
	c.buf.AppendChunk(chunk)
	c.stats.AddChunk(len(chunk))

	if c.channel.State() == transcribe.StateOpen {
		if err := c.channel.Send(chunk); err != nil {
			log.Printf("Session %s: failed to send audio chunk: %v", c.id, err)
		}
	}
}

func (c *Coordinator) eventPump() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case ev, ok := <-c.channel.Events():
			if !ok {
				return
			}
			c.handleTranscript(ev)
		}
	}
}

// handleTranscript applies the caption buffering rules: every non-empty
// hypothesis updates the caption immediately; a final, speech-final,
// non-empty hypothesis is appended to the transcript and arms the
// caption-expiry timer.
func (c *Coordinator) handleTranscript(ev transcribe.Event) {
	text := strings.TrimSpace(ev.Text)
	c.stats.AddTranscriptResult(text, ev.IsFinal)

	if text != "" {
		c.buf.SetCaption(text)
		c.notifyCaption(text)
	}

	if ev.IsFinal && ev.SpeechFinal && text != "" {
		c.buf.AppendFinal(text)
		c.captionTimer.Reset(c.cfg.CaptionTTL, func() {
			c.buf.ClearCaption()
			c.notifyCaption("")
		})
	}
}

func (c *Coordinator) statePump() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case cs, ok := <-c.channel.States():
			if !ok {
				return
			}
			c.handleChannelState(cs)
		}
	}
}

// handleChannelState reacts to connection transitions: closure while
// streaming stops the microphone and pauses the session, and every
// transition re-evaluates the keep-alive condition. Stopping the source
// here is what lets StartMicrophone restart it after a reconnect.
func (c *Coordinator) handleChannelState(cs transcribe.ConnState) {
	if cs == transcribe.StateClosed || cs == transcribe.StateError {
		c.captionTimer.Stop()
		if err := c.source.Stop(); err != nil {
			log.Printf("Session %s: failed to stop capture source: %v", c.id, err)
		}
		c.mu.Lock()
		if c.state == StateStreaming {
			c.setStateLocked(StatePaused)
		}
		c.mu.Unlock()
	}
	c.syncKeepAlive()
}

// syncKeepAlive starts or stops the keep-alive timer so it is running if
// and only if the channel is open while the microphone is not. The timer
// is re-evaluated synchronously on every microphone or channel state
// change.
func (c *Coordinator) syncKeepAlive() {
	c.mu.Lock()
	defer c.mu.Unlock()

	want := !c.closed &&
		c.channel.State() == transcribe.StateOpen &&
		c.source.State() != capture.StateOpen

	if want && c.kaStop == nil {
		stop := make(chan struct{})
		c.kaStop = stop
		c.wg.Add(1)
		go c.keepAliveLoop(stop)
	} else if !want && c.kaStop != nil {
		close(c.kaStop)
		c.kaStop = nil
	}
}

func (c *Coordinator) keepAliveLoop(stop chan struct{}) {
	defer c.wg.Done()

	// Send one immediately, then on the interval.
	if err := c.channel.KeepAlive(); err != nil {
		log.Printf("Session %s: keep-alive failed: %v", c.id, err)
	}

	ticker := time.NewTicker(c.cfg.KeepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			// Stop wins over a tick that was already pending.
			select {
			case <-stop:
				return
			default:
			}
			if err := c.channel.KeepAlive(); err != nil {
				log.Printf("Session %s: keep-alive failed: %v", c.id, err)
			}
		}
	}
}

func (c *Coordinator) notifyCaption(text string) {
	c.mu.Lock()
	fn := c.onCaption
	c.mu.Unlock()
	if fn != nil {
		fn(text)
	}
}

// setStateLocked updates the state and queues the transition for the
// notifier. The caller must hold c.mu; the handler runs without it, on
// the notifier goroutine, so transitions reach it in order.
func (c *Coordinator) setStateLocked(state State) {
	if c.state == state {
		return
	}
	c.state = state
	select {
	case c.stateCh <- state:
	default:
	}
}

// stateNotifier delivers queued state transitions to the registered
// handler one at a time. On shutdown it drains what is queued, so the
// Ended transition still reaches the client.
func (c *Coordinator) stateNotifier() {
	defer c.wg.Done()
	for {
		select {
		case state := <-c.stateCh:
			c.notifyState(state)
		case <-c.done:
			for {
				select {
				case state := <-c.stateCh:
					c.notifyState(state)
				default:
					return
				}
			}
		}
	}
}

func (c *Coordinator) notifyState(state State) {
	c.mu.Lock()
	fn := c.onState
	c.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

// Close ends the session: stops the microphone, cancels the caption and
// keep-alive timers, detaches the pumps and disconnects the channel.
// Idempotent; safe to call from any state.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.setStateLocked(StateEnded)
	if c.kaStop != nil {
		close(c.kaStop)
		c.kaStop = nil
	}
	c.mu.Unlock()

	c.captionTimer.Stop()
	close(c.done)

	if err := c.source.Stop(); err != nil {
		log.Printf("Session %s: failed to stop capture source: %v", c.id, err)
	}
	if err := c.source.Close(); err != nil {
		log.Printf("Session %s: failed to close capture source: %v", c.id, err)
	}
	if err := c.channel.Disconnect(); err != nil {
		log.Printf("Session %s: failed to disconnect channel: %v", c.id, err)
	}

	c.wg.Wait()

	c.stats.Finalize()
	log.Printf("Session %s ended\n%s", c.id, c.stats.Summary())
	return nil
}

// ID returns the session identifier.
func (c *Coordinator) ID() uuid.UUID {
	return c.id
}

// State returns the current session state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Caption returns the caption currently on display.
func (c *Coordinator) Caption() string {
	return c.buf.Caption()
}

// Transcript returns the space-joined finalized transcript.
func (c *Coordinator) Transcript() string {
	return c.buf.Transcript()
}

// FullTranscript returns the newline-joined finalized transcript.
func (c *Coordinator) FullTranscript() string {
	return c.buf.FullTranscript()
}

// Audio returns the captured audio as one blob.
func (c *Coordinator) Audio() []byte {
	return c.buf.Audio()
}

// Metrics exposes the per-session counters.
func (c *Coordinator) Metrics() *metrics.SessionMetrics {
	return c.stats
}
