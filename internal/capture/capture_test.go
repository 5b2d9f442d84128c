package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStreamSourceLifecycle(t *testing.T) {
	source := NewStreamSource(4)

	if source.State() != StateIdle {
		t.Fatalf("Expected idle, got %v", source.State())
	}
	if err := source.Start(); err != ErrNotReady {
		t.Errorf("Expected ErrNotReady before setup, got %v", err)
	}

	if err := source.Setup(context.Background()); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if source.State() != StateReady {
		t.Errorf("Expected ready after setup, got %v", source.State())
	}

	if err := source.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := source.Start(); err != ErrAlreadyOpen {
		t.Errorf("Expected ErrAlreadyOpen, got %v", err)
	}

	if err := source.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if source.State() != StateReady {
		t.Errorf("Expected ready after stop, got %v", source.State())
	}
}

func TestStreamSourceDropsWhenNotOpen(t *testing.T) {
	source := NewStreamSource(4)
	if err := source.Setup(context.Background()); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	if source.Push([]byte("early")) {
		t.Error("Push must drop chunks while the source is not open")
	}

	if err := source.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !source.Push([]byte("chunk")) {
		t.Error("Push must deliver while the source is open")
	}

	select {
	case chunk := <-source.Chunks():
		if string(chunk) != "chunk" {
			t.Errorf("Unexpected chunk %q", chunk)
		}
	case <-time.After(time.Second):
		t.Fatal("Chunk not delivered")
	}
}

func TestStreamSourcePreservesOrder(t *testing.T) {
	source := NewStreamSource(8)
	if err := source.Setup(context.Background()); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if err := source.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	inputs := []string{"a", "b", "c", "d"}
	for _, in := range inputs {
		if !source.Push([]byte(in)) {
			t.Fatalf("Push %q failed", in)
		}
	}
	for _, want := range inputs {
		got := <-source.Chunks()
		if string(got) != want {
			t.Errorf("Expected %q, got %q", want, got)
		}
	}
}

func TestStreamSourceCloseIdempotent(t *testing.T) {
	source := NewStreamSource(4)
	if err := source.Close(); err != nil {
		t.Fatalf("First close failed: %v", err)
	}
	if err := source.Close(); err != nil {
		t.Fatalf("Second close failed: %v", err)
	}
	if source.Push([]byte("late")) {
		t.Error("Push must drop after close")
	}
}

func TestFileSourceReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audio.raw")
	if err := os.WriteFile(path, []byte("0123456789"), 0644); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}

	source := NewFileSource(path, 4, 10*time.Millisecond)
	defer source.Close()

	if err := source.Setup(context.Background()); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if err := source.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	var got []byte
	timeout := time.After(2 * time.Second)
	for len(got) < 10 {
		select {
		case chunk := <-source.Chunks():
			got = append(got, chunk...)
		case <-timeout:
			t.Fatalf("Timed out, received %q so far", got)
		}
	}
	if string(got) != "0123456789" {
		t.Errorf("Expected full replay in order, got %q", got)
	}
}

func TestFileSourceMissingFile(t *testing.T) {
	source := NewFileSource(filepath.Join(t.TempDir(), "missing.raw"), 4, time.Millisecond)
	err := source.Setup(context.Background())
	if !errors.Is(err, ErrDevice) {
		t.Fatalf("Expected ErrDevice for a missing file, got %v", err)
	}
}
