package capture

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"
)

// FileSource replays a raw audio file in fixed-size chunks at a fixed
// cadence, mimicking a live microphone. Useful for exercising a session
// end to end without a browser or a phone trunk.
type FileSource struct {
	path      string
	chunkSize int
	interval  time.Duration

	mu      sync.Mutex
	state   State
	data    []byte
	offset  int
	chunks  chan []byte
	stopCh  chan struct{}
	closed  bool
	running bool
}

// NewFileSource creates a replay source for path. chunkSize bytes are
// emitted every interval while the source is Open.
func NewFileSource(path string, chunkSize int, interval time.Duration) *FileSource {
	if chunkSize <= 0 {
		chunkSize = 4000
	}
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &FileSource{
		path:      path,
		chunkSize: chunkSize,
		interval:  interval,
		state:     StateIdle,
		chunks:    make(chan []byte, 16),
	}
}

// Setup reads the file into memory and transitions to Ready.
func (f *FileSource) Setup(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDevice, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrDevice
	}
	f.data = data
	f.offset = 0
	f.state = StateReady
	return nil
}

// Start begins emitting chunks at the configured cadence.
func (f *FileSource) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.state {
	case StateIdle:
		return ErrNotReady
	case StateOpen:
		return ErrAlreadyOpen
	}
	f.state = StateOpen
	f.running = true
	f.stopCh = make(chan struct{})
	go f.emit(f.stopCh)
	return nil
}

func (f *FileSource) emit(stop chan struct{}) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			f.mu.Lock()
			if f.offset >= len(f.data) {
				f.mu.Unlock()
				return
			}
			end := f.offset + f.chunkSize
			if end > len(f.data) {
				end = len(f.data)
			}
			chunk := f.data[f.offset:end]
			f.offset = end
			closed := f.closed
			f.mu.Unlock()
			if closed {
				return
			}
			select {
			case f.chunks <- chunk:
			case <-stop:
				return
			}
		}
	}
}

// Stop halts emission and returns to Ready.
func (f *FileSource) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == StateOpen {
		f.state = StateReady
		f.running = false
		close(f.stopCh)
	}
	return nil
}

// State returns the current lifecycle state.
func (f *FileSource) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Chunks returns the delivery channel.
func (f *FileSource) Chunks() <-chan []byte {
	return f.chunks
}

// Close tears the source down. The chunks channel is left open so a
// concurrent emit cannot race a send against the close; the consumer is
// expected to stop reading once its own session ends. Idempotent.
func (f *FileSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	if f.running {
		close(f.stopCh)
		f.running = false
	}
	f.state = StateIdle
	return nil
}
