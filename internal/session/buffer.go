package session

import (
	"bytes"
	"strings"
	"sync"
)

// Buffer holds the accumulated state for one recording session: the audio
// chunks in capture order, the caption currently on screen, and the
// finalized transcript in two joinings (flat, space-separated, for upload;
// structured, newline-separated, for display). The finalized transcript is
// append-only.
type Buffer struct {
	mu         sync.Mutex
	chunks     [][]byte
	caption    string
	flat       strings.Builder
	structured strings.Builder
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

// AppendChunk records an audio chunk. Chunks are never reordered.
func (b *Buffer) AppendChunk(chunk []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chunks = append(b.chunks, chunk)
}

// SetCaption replaces the current caption.
func (b *Buffer) SetCaption(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.caption = text
}

// ClearCaption empties the current caption.
func (b *Buffer) ClearCaption() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.caption = ""
}

// Caption returns the caption currently on display.
func (b *Buffer) Caption() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.caption
}

// AppendFinal appends a finalized fragment to both transcript joinings.
func (b *Buffer) AppendFinal(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.flat.Len() > 0 {
		b.flat.WriteString(" ")
	}
	b.flat.WriteString(text)
	if b.structured.Len() > 0 {
		b.structured.WriteString("\n")
	}
	b.structured.WriteString(text)
}

// Transcript returns the space-joined finalized transcript.
func (b *Buffer) Transcript() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flat.String()
}

// FullTranscript returns the newline-joined finalized transcript.
func (b *Buffer) FullTranscript() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.structured.String()
}

// Audio concatenates the captured chunks into one blob.
func (b *Buffer) Audio() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Join(b.chunks, nil)
}

// ChunkCount reports how many chunks were captured.
func (b *Buffer) ChunkCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chunks)
}
