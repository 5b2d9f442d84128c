package transcribe

import "context"

// ConnState tracks the streaming connection lifecycle.
type ConnState int

const (
	StateClosed ConnState = iota
	StateConnecting
	StateOpen
	StateClosing
	StateError
)

func (s ConnState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a single transcription hypothesis from the provider. IsFinal
// marks the hypothesis as stable; SpeechFinal marks an utterance boundary
// (a silence gap), which can arrive independently of connection closure.
type Event struct {
	Text        string
	IsFinal     bool
	SpeechFinal bool
}

// LiveOptions configures a live transcription session.
type LiveOptions struct {
	Model          string
	InterimResults bool
	SmartFormat    bool
	FillerWords    bool
	UtteranceEndMS int
}

// Channel is the capability interface the session coordinator programs
// against. Concrete implementations wrap a provider websocket; tests use
// an in-memory fake.
//
// The Events and States streams stay open for the lifetime of the
// channel, across reconnects. A dropped connection is signalled as a
// StateClosed or StateError transition, never by closing the streams.
type Channel interface {
	Connect(ctx context.Context, opts LiveOptions) error
	Send(chunk []byte) error
	KeepAlive() error
	Disconnect() error
	Events() <-chan Event
	States() <-chan ConnState
	State() ConnState
}
