package api

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/gofiber/websocket/v2"

	"github.com/voicetake/voicetake/internal/capture"
	"github.com/voicetake/voicetake/internal/session"
)

// liveControl is a text-frame command from the client. Binary frames are
// audio chunks and carry no envelope.
type liveControl struct {
	Type       string `json:"type"` // "start", "stop", "finish"
	ScriptID   string `json:"scriptId,omitempty"`
	ScriptText string `json:"scriptText,omitempty"`
}

// liveEvent is a server push to the client.
type liveEvent struct {
	Type    string `json:"type"` // "caption", "state", "saved", "error"
	Caption string `json:"caption,omitempty"`
	State   string `json:"state,omitempty"`
	ID      string `json:"id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// liveConn serializes websocket writes; captions, state changes and
// command replies come from different goroutines.
type liveConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (lc *liveConn) sendJSON(v interface{}) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if err := lc.ws.WriteJSON(v); err != nil {
		log.Printf("Live session: failed to write event: %v", err)
	}
}

// handleLive runs one live recording session over a websocket. The client
// streams microphone chunks as binary frames and drives the session with
// text-frame commands; the server pushes caption and state events back.
func (s *Server) handleLive(ws *websocket.Conn) {
	lc := &liveConn{ws: ws}

	source := capture.NewStreamSource(0)
	coordinator := session.New(source, s.channels(), s.sessions)
	defer coordinator.Close()

	coordinator.OnCaption(func(caption string) {
		lc.sendJSON(liveEvent{Type: "caption", Caption: caption})
	})
	coordinator.OnState(func(state session.State) {
		lc.sendJSON(liveEvent{Type: "state", State: state.String()})
	})

	ctx := context.Background()
	if err := coordinator.Start(ctx); err != nil {
		log.Printf("Live session %s: failed to start: %v", coordinator.ID(), err)
		lc.sendJSON(liveEvent{Type: "error", Error: "failed to start session"})
		return
	}
	log.Printf("Live session %s started from %s", coordinator.ID(), ws.RemoteAddr())

	var scriptID, scriptText string

	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			break
		}

		switch msgType {
		case websocket.BinaryMessage:
			source.Push(data)

		case websocket.TextMessage:
			var cmd liveControl
			if err := json.Unmarshal(data, &cmd); err != nil {
				log.Printf("Live session %s: invalid control message: %v", coordinator.ID(), err)
				continue
			}

			switch cmd.Type {
			case "start":
				if cmd.ScriptID != "" {
					scriptID = cmd.ScriptID
					scriptText = cmd.ScriptText
				}
				if err := coordinator.StartMicrophone(ctx); err != nil {
					log.Printf("Live session %s: failed to start microphone: %v", coordinator.ID(), err)
					lc.sendJSON(liveEvent{Type: "error", Error: "failed to start microphone"})
				}

			case "stop":
				if err := coordinator.StopMicrophone(); err != nil {
					log.Printf("Live session %s: failed to stop microphone: %v", coordinator.ID(), err)
				}

			case "finish":
				s.finishLive(ctx, lc, coordinator, scriptID, scriptText)

			default:
				log.Printf("Live session %s: unknown control type %q", coordinator.ID(), cmd.Type)
			}
		}
	}

	log.Printf("Live session %s closed", coordinator.ID())
}

// finishLive stops the session and submits the accumulated audio and
// transcript through the upload gateway.
func (s *Server) finishLive(ctx context.Context, lc *liveConn, coordinator *session.Coordinator, scriptID, scriptText string) {
	if err := coordinator.StopMicrophone(); err != nil {
		log.Printf("Live session %s: failed to stop microphone: %v", coordinator.ID(), err)
	}

	rec, err := s.gw.Submit(ctx, coordinator.Audio(), scriptID, scriptText, coordinator.Transcript())
	if err != nil {
		log.Printf("Live session %s: failed to save recording: %v", coordinator.ID(), err)
		lc.sendJSON(liveEvent{Type: "error", Error: "failed to save recording"})
		return
	}
	lc.sendJSON(liveEvent{Type: "saved", ID: rec.ID})
}
