package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/voicetake/voicetake/internal/gateway"
	"github.com/voicetake/voicetake/internal/records"
	"github.com/voicetake/voicetake/internal/session"
)

type memStore struct {
	mu   sync.Mutex
	recs map[string]*records.Recording
}

func newMemStore() *memStore {
	return &memStore{recs: make(map[string]*records.Recording)}
}

func (s *memStore) Create(ctx context.Context, rec *records.Recording) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *rec
	s.recs[rec.ID] = &clone
	return nil
}

func (s *memStore) SetFilepath(ctx context.Context, id, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return records.ErrNotFound
	}
	rec.S3Filepath = &path
	return nil
}

func (s *memStore) SetAccuracyScore(ctx context.Context, id string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return records.ErrNotFound
	}
	rec.AccuracyScore = &score
	return nil
}

func (s *memStore) Get(ctx context.Context, id string) (*records.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return nil, records.ErrNotFound
	}
	clone := *rec
	return &clone, nil
}

func (s *memStore) List(ctx context.Context) ([]*records.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*records.Recording, 0, len(s.recs))
	for _, rec := range s.recs {
		clone := *rec
		out = append(out, &clone)
	}
	return out, nil
}

func (s *memStore) Close() error { return nil }

type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: make(map[string][]byte)}
}

func (b *memBlobs) Put(ctx context.Context, key string, body io.Reader, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.objects[key] = data
	b.mu.Unlock()
	return nil
}

func (b *memBlobs) SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return fmt.Sprintf("https://blobs.test/%s", key), nil
}

func newTestApp(t *testing.T) (*fiber.App, *memStore) {
	t.Helper()
	store := newMemStore()
	gw := gateway.New(store, newMemBlobs())
	srv := New(gw, nil, session.Config{})
	app := fiber.New()
	srv.Register(app)
	return app, store
}

func uploadRequest(t *testing.T, fields map[string]string, file []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for key, val := range fields {
		if err := w.WriteField(key, val); err != nil {
			t.Fatalf("Failed to write field %s: %v", key, err)
		}
	}
	if file != nil {
		part, err := w.CreateFormFile("file", "audio.mpeg")
		if err != nil {
			t.Fatalf("Failed to create file part: %v", err)
		}
		if _, err := part.Write(file); err != nil {
			t.Fatalf("Failed to write file part: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/recordings", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return out
}

func TestUploadMissingScriptID(t *testing.T) {
	app, store := newTestApp(t)

	resp, err := app.Test(uploadRequest(t, nil, []byte("audio")))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["error"] != "File and scriptId are required" {
		t.Errorf("Unexpected error body: %v", body)
	}
	if len(store.recs) != 0 {
		t.Error("No record may be created on a rejected upload")
	}
}

func TestUploadMissingFile(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(uploadRequest(t, map[string]string{"scriptId": "script-1"}, nil))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", resp.StatusCode)
	}
}

func TestUploadSuccess(t *testing.T) {
	app, store := newTestApp(t)

	fields := map[string]string{
		"scriptId":      "script-1",
		"scriptText":    "hello world",
		"transcription": "hello world",
	}
	resp, err := app.Test(uploadRequest(t, fields, []byte("audio-bytes")))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["success"] != true {
		t.Errorf("Expected success response, got %v", body)
	}

	if len(store.recs) != 1 {
		t.Fatalf("Expected one record, got %d", len(store.recs))
	}
	for _, rec := range store.recs {
		if rec.ScriptText != "hello world" {
			t.Errorf("Unexpected script text %q", rec.ScriptText)
		}
		if rec.S3Filepath == nil {
			t.Error("Expected a storage path on the record")
		}
	}
}

func TestRecordingsList(t *testing.T) {
	app, store := newTestApp(t)

	path := "scripts/script-1/rec-1.mpeg"
	rec := &records.Recording{
		ID:             "rec-1",
		SubmissionDate: time.Now().UTC(),
		ScriptText:     "hello",
		Transcription:  "hello",
		S3Filepath:     &path,
	}
	if err := store.Create(context.Background(), rec); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/recordings", nil))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	entries, ok := body["recordings"].([]interface{})
	if !ok || len(entries) != 1 {
		t.Fatalf("Expected one recording, got %v", body)
	}
	entry := entries[0].(map[string]interface{})
	if entry["id"] != "rec-1" {
		t.Errorf("Unexpected id %v", entry["id"])
	}
	if entry["audio_url"] != "https://blobs.test/"+path {
		t.Errorf("Unexpected audio_url %v", entry["audio_url"])
	}
}

func TestRecordingsListEmpty(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/recordings", nil))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	body := decodeBody(t, resp)
	entries, ok := body["recordings"].([]interface{})
	if !ok {
		t.Fatalf("Expected a recordings array, got %v", body)
	}
	if len(entries) != 0 {
		t.Errorf("Expected empty listing, got %d entries", len(entries))
	}
}

func TestRecordingsSignedURLQuery(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/api/recordings?key=scripts/s/r.mpeg", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["url"] != "https://blobs.test/scripts/s/r.mpeg" {
		t.Errorf("Unexpected url %v", body["url"])
	}
}

func TestRecordingNotFound(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/recordings/nope", nil))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", resp.StatusCode)
	}
}

func TestPalette(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/palette", nil))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	palette, ok := body["palette"].([]interface{})
	if !ok || len(palette) != 256 {
		t.Fatalf("Expected 256 palette entries, got %d", len(palette))
	}
	first := palette[0].(map[string]interface{})
	if first["r"] != float64(19) || first["g"] != float64(239) || first["b"] != float64(147) {
		t.Errorf("Unexpected first palette color: %v", first)
	}
}
