package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
)

const DeepgramListenURL = "wss://api.deepgram.com/v1/listen"

// DeepgramChannel streams audio to Deepgram's live API over a websocket
// and emits transcript events as they arrive. One channel serves one
// session; when the provider drops the connection the same channel can be
// reconnected with Connect, and the event stream carries on.
type DeepgramChannel struct {
	apiKey  string
	baseURL string

	mu      sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn
	state   ConnState
	events  chan Event
	states  chan ConnState
}

// Deepgram live message shapes. Only the fields the coordinator consumes.
type deepgramMessage struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type deepgramControl struct {
	Type string `json:"type"`
}

// NewDeepgramChannel creates an unconnected channel for the given API key.
func NewDeepgramChannel(apiKey string) *DeepgramChannel {
	return &DeepgramChannel{
		apiKey:  apiKey,
		baseURL: DeepgramListenURL,
		state:   StateClosed,
		events:  make(chan Event, 100),
		states:  make(chan ConnState, 8),
	}
}

// NewDeepgramChannelURL is like NewDeepgramChannel but targets a custom
// endpoint. Used by tests to point at a local websocket server.
func NewDeepgramChannelURL(apiKey, baseURL string) *DeepgramChannel {
	ch := NewDeepgramChannel(apiKey)
	ch.baseURL = baseURL
	return ch
}

// listenURL builds the live endpoint URL with the session options encoded
// as query parameters.
func listenURL(base string, opts LiveOptions) string {
	values := url.Values{}
	if opts.Model != "" {
		values.Set("model", opts.Model)
	}
	values.Set("interim_results", strconv.FormatBool(opts.InterimResults))
	values.Set("smart_format", strconv.FormatBool(opts.SmartFormat))
	values.Set("filler_words", strconv.FormatBool(opts.FillerWords))
	if opts.UtteranceEndMS > 0 {
		values.Set("utterance_end_ms", strconv.Itoa(opts.UtteranceEndMS))
	}
	return base + "?" + values.Encode()
}

// Connect opens the websocket and starts the read loop. Returns an error
// if a connection is already established or being established.
func (dg *DeepgramChannel) Connect(ctx context.Context, opts LiveOptions) error {
	dg.mu.Lock()
	if dg.state == StateConnecting || dg.state == StateOpen {
		dg.mu.Unlock()
		return fmt.Errorf("deepgram: already connected")
	}
	dg.setStateLocked(StateConnecting)
	dg.mu.Unlock()

	header := http.Header{}
	if dg.apiKey != "" {
		header.Set("Authorization", "Token "+dg.apiKey)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, listenURL(dg.baseURL, opts), header)
	if err != nil {
		dg.mu.Lock()
		dg.setStateLocked(StateError)
		dg.mu.Unlock()
		return fmt.Errorf("failed to connect to Deepgram: %w", err)
	}

	dg.mu.Lock()
	dg.conn = conn
	dg.setStateLocked(StateOpen)
	dg.mu.Unlock()

	go dg.readLoop(conn)
	return nil
}

func (dg *DeepgramChannel) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("Deepgram websocket error: %v", err)
			}
			// Only the loop for the current connection may change state;
			// a stale loop must not clobber a reconnected channel.
			dg.mu.Lock()
			if dg.conn == conn {
				dg.conn = nil
				if dg.state == StateOpen {
					dg.setStateLocked(StateClosed)
				}
			}
			dg.mu.Unlock()
			return
		}

		var msg deepgramMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Failed to parse Deepgram message: %v", err)
			continue
		}

		if ev, ok := eventFromMessage(msg); ok {
			select {
			case dg.events <- ev:
			default:
				log.Printf("Deepgram event buffer full, dropping transcript")
			}
		}
	}
}

// eventFromMessage converts a Results message into an Event. Metadata,
// UtteranceEnd and SpeechStarted messages carry no transcript and are
// not surfaced.
func eventFromMessage(msg deepgramMessage) (Event, bool) {
	if msg.Type != "Results" {
		return Event{}, false
	}
	if len(msg.Channel.Alternatives) == 0 {
		return Event{}, false
	}
	return Event{
		Text:        msg.Channel.Alternatives[0].Transcript,
		IsFinal:     msg.IsFinal,
		SpeechFinal: msg.SpeechFinal,
	}, true
}

// Send forwards a binary audio chunk to the provider.
func (dg *DeepgramChannel) Send(chunk []byte) error {
	dg.mu.Lock()
	conn := dg.conn
	state := dg.state
	dg.mu.Unlock()
	if conn == nil || state != StateOpen {
		return fmt.Errorf("deepgram: connection not open")
	}
	dg.writeMu.Lock()
	defer dg.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
		return fmt.Errorf("failed to send audio to Deepgram: %w", err)
	}
	return nil
}

// KeepAlive sends the provider's no-op message so an idle connection is
// not timed out. Safe to call on a closed channel.
func (dg *DeepgramChannel) KeepAlive() error {
	dg.mu.Lock()
	conn := dg.conn
	state := dg.state
	dg.mu.Unlock()
	if conn == nil || state != StateOpen {
		return nil
	}
	payload, err := json.Marshal(deepgramControl{Type: "KeepAlive"})
	if err != nil {
		return err
	}
	dg.writeMu.Lock()
	defer dg.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// Disconnect asks the provider to finalize, then closes the websocket.
// Idempotent: disconnecting a channel that is not connected is a no-op.
func (dg *DeepgramChannel) Disconnect() error {
	dg.mu.Lock()
	conn := dg.conn
	dg.conn = nil
	if conn == nil {
		dg.setStateLocked(StateClosed)
		dg.mu.Unlock()
		return nil
	}
	dg.setStateLocked(StateClosing)
	dg.mu.Unlock()

	payload, merr := json.Marshal(deepgramControl{Type: "CloseStream"})
	if merr == nil {
		dg.writeMu.Lock()
		_ = conn.WriteMessage(websocket.TextMessage, payload)
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"))
		dg.writeMu.Unlock()
	}
	err := conn.Close()

	dg.mu.Lock()
	dg.setStateLocked(StateClosed)
	dg.mu.Unlock()
	return err
}

// Events returns the transcript event stream. The stream stays open for
// the lifetime of the channel, across reconnects; a dropped connection is
// reported on States instead.
func (dg *DeepgramChannel) Events() <-chan Event {
	return dg.events
}

// States returns connection-state transitions in order of occurrence.
func (dg *DeepgramChannel) States() <-chan ConnState {
	return dg.states
}

// State returns the current connection state.
func (dg *DeepgramChannel) State() ConnState {
	dg.mu.Lock()
	defer dg.mu.Unlock()
	return dg.state
}

func (dg *DeepgramChannel) setStateLocked(state ConnState) {
	if dg.state == state {
		return
	}
	dg.state = state
	select {
	case dg.states <- state:
	default:
	}
}
