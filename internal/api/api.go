package api

import (
	"errors"
	"io"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/voicetake/voicetake/internal/gateway"
	"github.com/voicetake/voicetake/internal/records"
	"github.com/voicetake/voicetake/internal/session"
	"github.com/voicetake/voicetake/internal/transcribe"
	"github.com/voicetake/voicetake/internal/visual"
)

// ChannelFactory creates a fresh transcription channel per live session.
type ChannelFactory func() transcribe.Channel

// Server registers the HTTP and websocket handlers: recording upload and
// retrieval, the visualization palette, and the live session endpoint.
type Server struct {
	gw       *gateway.Gateway
	channels ChannelFactory
	sessions session.Config
}

// New creates the API server. channels is invoked once per live session.
func New(gw *gateway.Gateway, channels ChannelFactory, sessions session.Config) *Server {
	return &Server{
		gw:       gw,
		channels: channels,
		sessions: sessions,
	}
}

// Register mounts all routes on the fiber app.
func (s *Server) Register(app *fiber.App) {
	app.Post("/api/recordings", s.handleUpload)
	app.Get("/api/recordings", s.handleRecordings)
	app.Get("/api/recordings/:id", s.handleRecording)
	app.Get("/api/palette", s.handlePalette)

	app.Use("/ws/live", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/live", websocket.New(s.handleLive))
}

// handleUpload accepts a multipart form with the finished audio blob and
// transcript and persists it through the gateway.
func (s *Server) handleUpload(c *fiber.Ctx) error {
	scriptID := c.FormValue("scriptId")
	scriptText := c.FormValue("scriptText")
	transcription := c.FormValue("transcription")

	var audio []byte
	if file, err := c.FormFile("file"); err == nil && file != nil {
		f, err := file.Open()
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to read file"})
		}
		defer f.Close()
		buf, err := io.ReadAll(f)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to read file"})
		}
		audio = buf
	}

	if len(audio) == 0 || scriptID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "File and scriptId are required"})
	}

	_, err := s.gw.Submit(c.Context(), audio, scriptID, scriptText, transcription)
	switch {
	case errors.Is(err, gateway.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "File and scriptId are required"})
	case errors.Is(err, gateway.ErrPersistence):
		log.Printf("Upload failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create database record"})
	case err != nil:
		log.Printf("Upload failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to upload file"})
	}

	return c.JSON(fiber.Map{"success": true})
}

// handleRecordings serves the history listing, or a fresh signed URL when
// a key query parameter is present.
func (s *Server) handleRecordings(c *fiber.Ctx) error {
	if key := c.Query("key"); key != "" {
		url, err := s.gw.RecordingURL(c.Context(), key)
		if err != nil {
			log.Printf("Failed to sign url for %s: %v", key, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to generate URL"})
		}
		return c.JSON(fiber.Map{"url": url})
	}

	recs, err := s.gw.List(c.Context())
	if err != nil {
		log.Printf("Failed to list recordings: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch recordings"})
	}
	if recs == nil {
		recs = []*gateway.RecordingWithURL{}
	}
	return c.JSON(fiber.Map{"recordings": recs})
}

// handleRecording serves one recording by id.
func (s *Server) handleRecording(c *fiber.Ctx) error {
	rec, err := s.gw.Get(c.Context(), c.Params("id"))
	if errors.Is(err, records.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Recording not found"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch recording"})
	}
	return c.JSON(rec)
}

// handlePalette serves the precomputed waveform color palette.
func (s *Server) handlePalette(c *fiber.Ctx) error {
	palette := visual.Palette()
	return c.JSON(fiber.Map{"palette": palette[:]})
}
