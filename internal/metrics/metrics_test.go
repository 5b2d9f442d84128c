package metrics

import (
	"strings"
	"testing"
)

func TestSessionMetricsCounters(t *testing.T) {
	m := NewSessionMetrics("session-1")

	m.AddChunk(320)
	m.AddChunk(320)
	m.AddDroppedChunk()
	m.AddTranscriptResult("hello", false)
	m.AddTranscriptResult("hello world", true)

	if m.AudioBytes != 640 || m.ChunksForwarded != 2 {
		t.Errorf("Unexpected audio counters: %d bytes, %d chunks", m.AudioBytes, m.ChunksForwarded)
	}
	if m.ChunksDropped != 1 {
		t.Errorf("Expected 1 dropped chunk, got %d", m.ChunksDropped)
	}
	if m.InterimCount != 1 || m.FinalCount != 1 {
		t.Errorf("Unexpected result counters: %d interim, %d final", m.InterimCount, m.FinalCount)
	}
	if m.TranscriptLength != len("hello")+len("hello world") {
		t.Errorf("Unexpected transcript length %d", m.TranscriptLength)
	}
	if m.FirstResultTime == nil {
		t.Error("Expected first result time to be recorded")
	}
}

func TestSessionMetricsFirstResultOnce(t *testing.T) {
	m := NewSessionMetrics("session-2")

	m.AddTranscriptResult("a", false)
	first := *m.FirstResultTime
	m.AddTranscriptResult("b", true)

	if !m.FirstResultTime.Equal(first) {
		t.Error("First result time must not move on later results")
	}
}

func TestSessionMetricsSummary(t *testing.T) {
	m := NewSessionMetrics("session-3")
	m.AddChunk(100)
	m.Finalize()

	summary := m.Summary()
	for _, want := range []string{"session-3", "Audio Bytes: 100", "Chunks Forwarded: 1"} {
		if !strings.Contains(summary, want) {
			t.Errorf("Summary missing %q:\n%s", want, summary)
		}
	}
}
