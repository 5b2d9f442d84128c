package metrics

import (
	"fmt"
	"sync"
	"time"
)

// SessionMetrics accumulates per-recording-session counters: audio volume,
// transcript activity and first-result latency.
type SessionMetrics struct {
	SessionID        string
	StartTime        time.Time
	EndTime          time.Time
	AudioBytes       int
	ChunksForwarded  int
	ChunksDropped    int
	TranscriptLength int
	InterimCount     int
	FinalCount       int
	FirstResultTime  *time.Time
	mu               sync.Mutex
}

func NewSessionMetrics(sessionID string) *SessionMetrics {
	return &SessionMetrics{
		SessionID: sessionID,
		StartTime: time.Now(),
	}
}

// AddChunk records a forwarded audio chunk.
func (m *SessionMetrics) AddChunk(bytes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AudioBytes += bytes
	m.ChunksForwarded++
}

// AddDroppedChunk records a chunk that was discarded before forwarding,
// such as the zero-length first frame some mobile browsers emit.
func (m *SessionMetrics) AddDroppedChunk() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ChunksDropped++
}

// AddTranscriptResult records a transcript hypothesis.
func (m *SessionMetrics) AddTranscriptResult(text string, isFinal bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FirstResultTime == nil {
		now := time.Now()
		m.FirstResultTime = &now
	}

	m.TranscriptLength += len(text)
	if isFinal {
		m.FinalCount++
	} else {
		m.InterimCount++
	}
}

func (m *SessionMetrics) Finalize() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EndTime = time.Now()
}

func (m *SessionMetrics) Summary() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	duration := m.EndTime.Sub(m.StartTime)
	var latency time.Duration
	if m.FirstResultTime != nil {
		latency = m.FirstResultTime.Sub(m.StartTime)
	}

	return fmt.Sprintf(
		"Session: %s\n"+
			"Duration: %v\n"+
			"Audio Bytes: %d\n"+
			"Chunks Forwarded: %d\n"+
			"Chunks Dropped: %d\n"+
			"Transcript Length: %d chars\n"+
			"First Result Latency: %v\n"+
			"Interim Results: %d\n"+
			"Final Results: %d\n",
		m.SessionID,
		duration,
		m.AudioBytes,
		m.ChunksForwarded,
		m.ChunksDropped,
		m.TranscriptLength,
		latency,
		m.InterimCount,
		m.FinalCount,
	)
}
