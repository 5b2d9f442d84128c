package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"

	"github.com/voicetake/voicetake/internal/api"
	"github.com/voicetake/voicetake/internal/config"
	"github.com/voicetake/voicetake/internal/gateway"
	"github.com/voicetake/voicetake/internal/ingest"
	"github.com/voicetake/voicetake/internal/records"
	"github.com/voicetake/voicetake/internal/session"
	"github.com/voicetake/voicetake/internal/storage"
	"github.com/voicetake/voicetake/internal/transcribe"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "config.yaml", "Configuration file path")
	flag.Parse()

	// Load .env if present; real environment variables win.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, falling back to environment variables")
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	// Blob storage.
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Storage.Region))
	if err != nil {
		log.Fatalf("Failed to load AWS config: %v", err)
	}
	blobs := storage.NewS3Store(s3.NewFromConfig(awsCfg), cfg.Storage.Bucket)
	if err := blobs.CheckBucket(ctx); err != nil {
		log.Fatalf("Storage bucket check failed: %v", err)
	}

	// Record store.
	var store records.Store
	switch cfg.Records.Backend {
	case "postgres":
		store, err = records.NewPostgresStore(ctx, cfg.Records.PostgresDSN)
	case "redis":
		store, err = records.NewRedisStore(ctx, cfg.Records.RedisAddr, cfg.Records.RedisPrefix)
	default:
		err = fmt.Errorf("unknown records backend: %s", cfg.Records.Backend)
	}
	if err != nil {
		log.Fatalf("Failed to create record store: %v", err)
	}
	defer store.Close()

	gw := gateway.New(store, blobs)

	sessionCfg := session.Config{
		Live: transcribe.LiveOptions{
			Model:          cfg.Deepgram.Model,
			InterimResults: cfg.Deepgram.InterimResults,
			SmartFormat:    cfg.Deepgram.SmartFormat,
			FillerWords:    cfg.Deepgram.FillerWords,
			UtteranceEndMS: cfg.Deepgram.UtteranceEndMS,
		},
		CaptionTTL:        time.Duration(cfg.Session.CaptionTTLMS) * time.Millisecond,
		KeepAliveInterval: time.Duration(cfg.Session.KeepAliveMS) * time.Millisecond,
	}
	channelFactory := func() transcribe.Channel {
		return transcribe.NewDeepgramChannel(cfg.Deepgram.APIKey)
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 64 * 1024 * 1024, // audio uploads
	})
	api.New(gw, channelFactory, sessionCfg).Register(app)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		if err := app.Listen(addr); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()
	log.Printf("Server listening on %s (records backend: %s)", addr, cfg.Records.Backend)

	// Optional telephony ingest.
	var trunk *ingest.Listener
	if cfg.Ingest.AudioSocketEnabled {
		trunk = ingest.New(ingest.Config{
			Addr:     cfg.Ingest.AudioSocketAddr,
			ScriptID: cfg.Ingest.ScriptID,
			Sessions: sessionCfg,
		}, gw, ingest.ChannelFactory(channelFactory))
		go func() {
			if err := trunk.Start(); err != nil {
				log.Fatalf("AudioSocket ingest error: %v", err)
			}
		}()
	}

	// Wait for interrupt signal.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down server...")
	if trunk != nil {
		trunk.Stop()
	}
	if err := app.Shutdown(); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}
