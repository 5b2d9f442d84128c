package capture

import (
	"context"
	"sync"
)

// StreamSource is a capture source fed by a remote peer, such as a browser
// streaming microphone chunks over a websocket or an AudioSocket trunk.
// The feeder calls Push for every inbound frame; chunks are delivered on
// the Chunks channel only while the source is Open and are dropped
// otherwise (the peer keeps sending while the consumer is paused).
type StreamSource struct {
	mu     sync.Mutex
	state  State
	chunks chan []byte
	closed bool
}

// NewStreamSource creates a stream-fed source. bufferSize bounds how many
// chunks may be in flight between the feeder and the consumer.
func NewStreamSource(bufferSize int) *StreamSource {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &StreamSource{
		state:  StateIdle,
		chunks: make(chan []byte, bufferSize),
	}
}

// Setup transitions the source to Ready. The remote peer already owns the
// device handle, so there is no acquisition to perform here; the transition
// exists so the session state machine sees the same lifecycle as a local
// microphone.
func (s *StreamSource) Setup(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrDevice
	}
	s.state = StateReady
	return nil
}

// Start begins delivering pushed chunks to the Chunks channel.
func (s *StreamSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateIdle:
		return ErrNotReady
	case StateOpen:
		return ErrAlreadyOpen
	}
	s.state = StateOpen
	return nil
}

// Stop halts delivery and returns the source to Ready. Pushed chunks are
// dropped until Start is called again.
func (s *StreamSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateOpen {
		s.state = StateReady
	}
	return nil
}

// State returns the current lifecycle state.
func (s *StreamSource) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Chunks returns the delivery channel. The channel is closed by Close.
func (s *StreamSource) Chunks() <-chan []byte {
	return s.chunks
}

// Push hands a chunk from the feeder to the source. Returns false if the
// chunk was dropped because the source is not Open or the buffer is full.
func (s *StreamSource) Push(chunk []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.state != StateOpen {
		return false
	}
	select {
	case s.chunks <- chunk:
		return true
	default:
		return false
	}
}

// Close tears the source down and closes the delivery channel. Idempotent.
func (s *StreamSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.state = StateIdle
	close(s.chunks)
	return nil
}
