package ingest

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/CyCoreSystems/audiosocket"

	"github.com/voicetake/voicetake/internal/capture"
	"github.com/voicetake/voicetake/internal/gateway"
	"github.com/voicetake/voicetake/internal/session"
	"github.com/voicetake/voicetake/internal/transcribe"
)

// ChannelFactory creates a fresh transcription channel per call.
type ChannelFactory func() transcribe.Channel

// Config for the AudioSocket listener.
type Config struct {
	Addr     string
	ScriptID string // grouping id stamped on recordings from this trunk
	Sessions session.Config
}

// Listener accepts Asterisk AudioSocket connections and runs one
// recording session per call: inbound audio frames feed a stream source,
// the session coordinator relays them to the transcription provider, and
// the finished call is persisted through the upload gateway.
type Listener struct {
	config   Config
	gw       *gateway.Gateway
	channels ChannelFactory
	listener net.Listener
	wg       sync.WaitGroup
	shutdown chan struct{}
}

// New creates an AudioSocket listener.
func New(config Config, gw *gateway.Gateway, channels ChannelFactory) *Listener {
	return &Listener{
		config:   config,
		gw:       gw,
		channels: channels,
		shutdown: make(chan struct{}),
	}
}

// Start accepts connections until Stop is called.
func (l *Listener) Start() error {
	listener, err := net.Listen("tcp", l.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", l.config.Addr, err)
	}
	l.listener = listener

	log.Printf("AudioSocket ingest listening on %s", l.config.Addr)

	for {
		select {
		case <-l.shutdown:
			return nil
		default:
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-l.shutdown:
					return nil
				default:
					log.Printf("Accept error: %v", err)
					continue
				}
			}

			l.wg.Add(1)
			go l.handleConnection(conn)
		}
	}
}

// Stop closes the listener and waits for in-flight calls to finish.
func (l *Listener) Stop() {
	close(l.shutdown)
	if l.listener != nil {
		l.listener.Close()
	}
	l.wg.Wait()
}

func (l *Listener) handleConnection(conn net.Conn) {
	defer l.wg.Done()
	defer conn.Close()

	log.Printf("New AudioSocket connection from %s", conn.RemoteAddr())

	// The initial message carries the call id.
	id, err := audiosocket.GetID(conn)
	if err != nil {
		log.Printf("Failed to get AudioSocket ID: %v", err)
		return
	}

	source := capture.NewStreamSource(0)
	coordinator := session.New(source, l.channels(), l.config.Sessions)
	defer coordinator.Close()

	ctx := context.Background()
	if err := coordinator.Start(ctx); err != nil {
		log.Printf("Call %s: failed to start session: %v", id, err)
		return
	}
	if err := coordinator.StartMicrophone(ctx); err != nil {
		log.Printf("Call %s: failed to start streaming: %v", id, err)
		return
	}

	startTime := time.Now()
	log.Printf("Call %s: session %s started", id, coordinator.ID())

	for {
		msg, err := audiosocket.NextMessage(conn)
		if err != nil {
			if err != io.EOF {
				log.Printf("Call %s: failed to read message: %v", id, err)
			}
			break
		}

		if msg.Kind() == audiosocket.KindHangup {
			log.Printf("Call %s: received hangup", id)
			break
		}
		if err := l.handleMessage(id.String(), source, msg); err != nil {
			log.Printf("Call %s: error handling message: %v", id, err)
			break
		}
	}

	l.finalize(ctx, coordinator)
	log.Printf("Call %s ended (Duration: %v)", id, time.Since(startTime))
}

func (l *Listener) handleMessage(id string, source *capture.StreamSource, msg audiosocket.Message) error {
	switch msg.Kind() {
	case audiosocket.KindSlin:
		if payload := msg.Payload(); len(payload) > 0 {
			// Copy before pushing: NextMessage may reuse its buffer.
			chunk := make([]byte, len(payload))
			copy(chunk, payload)
			if !source.Push(chunk) {
				log.Printf("Call %s: dropped audio frame", id)
			}
		}

	case audiosocket.KindSilence:
		log.Printf("Call %s: silence detected", id)

	case audiosocket.KindError:
		return fmt.Errorf("received error code: %d", msg.ErrorCode())
	}

	return nil
}

// finalize ends the session and submits the call audio and transcript.
// Calls that produced no audio are discarded.
func (l *Listener) finalize(ctx context.Context, coordinator *session.Coordinator) {
	if err := coordinator.StopMicrophone(); err != nil {
		log.Printf("Session %s: failed to stop streaming: %v", coordinator.ID(), err)
	}

	audio := coordinator.Audio()
	if len(audio) == 0 {
		log.Printf("Session %s: no audio captured, skipping upload", coordinator.ID())
		return
	}

	rec, err := l.gw.Submit(ctx, audio, l.config.ScriptID, "", coordinator.Transcript())
	if err != nil {
		log.Printf("Session %s: failed to save recording: %v", coordinator.ID(), err)
		return
	}
	log.Printf("Session %s: saved recording %s", coordinator.ID(), rec.ID)
}
