package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/voicetake/voicetake/internal/records"
	"github.com/voicetake/voicetake/internal/storage"
)

// SignedURLTTL is how long generated retrieval URLs stay valid.
const SignedURLTTL = time.Hour

const audioContentType = "audio/mpeg"

var (
	// ErrValidation indicates a required upload field is missing. No side
	// effect has happened when this is returned.
	ErrValidation = errors.New("file and scriptId are required")
	// ErrPersistence indicates the record could not be created. The blob
	// was not written, so no orphaned object exists.
	ErrPersistence = errors.New("failed to create database record")
	// ErrStorage indicates the blob write failed after the record was
	// created. The record exists with a null storage path.
	ErrStorage = errors.New("failed to upload file")
)

// Gateway packages a finished session (audio blob plus transcript) and
// persists it: record first, then blob, then a best-effort update of the
// record with the storage path.
type Gateway struct {
	store records.Store
	blobs storage.BlobStore
}

// New creates a gateway over the given record store and blob store.
func New(store records.Store, blobs storage.BlobStore) *Gateway {
	return &Gateway{store: store, blobs: blobs}
}

// RecordingWithURL is a listing entry: the stored record plus a freshly
// generated retrieval URL when a storage path exists.
type RecordingWithURL struct {
	*records.Recording
	AudioURL string `json:"audio_url,omitempty"`
}

// Submit persists one finished recording. Validation happens before any
// side effect, so a rejected request never leaves an orphaned record.
// If the record update after a successful blob write fails, Submit still
// succeeds: the audio is durable and the path can be reconciled later.
func (g *Gateway) Submit(ctx context.Context, audio []byte, scriptID, scriptText, transcription string) (*records.Recording, error) {
	if len(audio) == 0 || scriptID == "" {
		return nil, ErrValidation
	}

	rec := &records.Recording{
		ID:             uuid.NewString(),
		SubmissionDate: time.Now().UTC(),
		ScriptText:     scriptText,
		Transcription:  transcription,
	}
	if err := g.store.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	key := storage.ObjectKey(scriptID, rec.ID)
	if err := g.blobs.Put(ctx, key, bytes.NewReader(audio), audioContentType); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	if err := g.store.SetFilepath(ctx, rec.ID, key); err != nil {
		// The blob is safely stored; only the metadata pointer is stale.
		// Logged distinctly from hard failures so it can be reconciled.
		log.Printf("Recording %s: blob stored at %s but filepath update failed: %v", rec.ID, key, err)
	} else {
		rec.S3Filepath = &key
	}

	return rec, nil
}

// RecordingURL generates a fresh time-limited retrieval URL for a
// storage key.
func (g *Gateway) RecordingURL(ctx context.Context, key string) (string, error) {
	return g.blobs.SignedURL(ctx, key, SignedURLTTL)
}

// List returns all recordings newest-first, each augmented with a fresh
// retrieval URL when it has a storage path.
func (g *Gateway) List(ctx context.Context) ([]*RecordingWithURL, error) {
	recs, err := g.store.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*RecordingWithURL, 0, len(recs))
	for _, rec := range recs {
		entry := &RecordingWithURL{Recording: rec}
		if rec.S3Filepath != nil {
			url, err := g.blobs.SignedURL(ctx, *rec.S3Filepath, SignedURLTTL)
			if err != nil {
				log.Printf("Recording %s: failed to sign url for %s: %v", rec.ID, *rec.S3Filepath, err)
			} else {
				entry.AudioURL = url
			}
		}
		out = append(out, entry)
	}
	return out, nil
}

// Get returns one recording with a fresh retrieval URL.
func (g *Gateway) Get(ctx context.Context, id string) (*RecordingWithURL, error) {
	rec, err := g.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	entry := &RecordingWithURL{Recording: rec}
	if rec.S3Filepath != nil {
		url, err := g.blobs.SignedURL(ctx, *rec.S3Filepath, SignedURLTTL)
		if err == nil {
			entry.AudioURL = url
		}
	}
	return entry, nil
}
