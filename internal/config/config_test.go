package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
deepgram:
  api_key: dg-key
storage:
  bucket: recordings
records:
  backend: redis
  redis_addr: localhost:6379
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" || cfg.Server.Port != 8080 {
		t.Errorf("Unexpected server defaults: %s:%d", cfg.Server.Host, cfg.Server.Port)
	}
	if cfg.Deepgram.Model != "nova-3" {
		t.Errorf("Expected default model nova-3, got %q", cfg.Deepgram.Model)
	}
	if cfg.Deepgram.UtteranceEndMS != 3000 {
		t.Errorf("Expected default utterance_end_ms 3000, got %d", cfg.Deepgram.UtteranceEndMS)
	}
	if cfg.Session.CaptionTTLMS != 3000 || cfg.Session.KeepAliveMS != 10000 {
		t.Errorf("Unexpected session defaults: %d/%d", cfg.Session.CaptionTTLMS, cfg.Session.KeepAliveMS)
	}
	if cfg.Records.RedisPrefix != "voicetake:" {
		t.Errorf("Expected default redis prefix, got %q", cfg.Records.RedisPrefix)
	}
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 127.0.0.1
  port: 9000
deepgram:
  api_key: dg-key
  model: nova-2
  interim_results: true
  smart_format: true
  filler_words: true
  utterance_end_ms: 2000
storage:
  bucket: recordings
  region: eu-west-1
records:
  backend: postgres
  postgres_dsn: postgres://localhost/voicetake
session:
  caption_ttl_ms: 1500
  keep_alive_ms: 5000
ingest:
  audiosocket_enabled: true
  audiosocket_addr: 0.0.0.0:9090
  script_id: phone
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Deepgram.Model != "nova-2" || !cfg.Deepgram.InterimResults || !cfg.Deepgram.FillerWords {
		t.Errorf("Unexpected deepgram config: %+v", cfg.Deepgram)
	}
	if cfg.Deepgram.UtteranceEndMS != 2000 {
		t.Errorf("Expected utterance_end_ms 2000, got %d", cfg.Deepgram.UtteranceEndMS)
	}
	if cfg.Storage.Region != "eu-west-1" {
		t.Errorf("Expected region eu-west-1, got %q", cfg.Storage.Region)
	}
	if cfg.Session.CaptionTTLMS != 1500 {
		t.Errorf("Expected caption ttl 1500, got %d", cfg.Session.CaptionTTLMS)
	}
	if !cfg.Ingest.AudioSocketEnabled || cfg.Ingest.ScriptID != "phone" {
		t.Errorf("Unexpected ingest config: %+v", cfg.Ingest)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
deepgram:
  api_key: file-key
storage:
  bucket: file-bucket
records:
  backend: redis
  redis_addr: localhost:6379
`)

	t.Setenv("DEEPGRAM_API_KEY", "env-key")
	t.Setenv("S3_BUCKET_NAME", "env-bucket")
	t.Setenv("AWS_REGION", "us-east-2")
	t.Setenv("PORT", "3001")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Deepgram.APIKey != "env-key" {
		t.Errorf("Expected env api key, got %q", cfg.Deepgram.APIKey)
	}
	if cfg.Storage.Bucket != "env-bucket" || cfg.Storage.Region != "us-east-2" {
		t.Errorf("Unexpected storage config: %+v", cfg.Storage)
	}
	if cfg.Server.Port != 3001 {
		t.Errorf("Expected env port 3001, got %d", cfg.Server.Port)
	}
}

func TestLoadMissingAPIKey(t *testing.T) {
	path := writeConfig(t, `
storage:
  bucket: recordings
records:
  backend: redis
  redis_addr: localhost:6379
`)
	t.Setenv("DEEPGRAM_API_KEY", "")

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "api key") {
		t.Fatalf("Expected an api key error, got %v", err)
	}
}

func TestLoadUnknownBackend(t *testing.T) {
	path := writeConfig(t, `
deepgram:
  api_key: dg-key
storage:
  bucket: recordings
records:
  backend: mysql
`)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "unknown records backend") {
		t.Fatalf("Expected a backend error, got %v", err)
	}
}

func TestLoadBackendRequirements(t *testing.T) {
	path := writeConfig(t, `
deepgram:
  api_key: dg-key
storage:
  bucket: recordings
records:
  backend: postgres
`)
	t.Setenv("DATABASE_URL", "")

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "postgres dsn") {
		t.Fatalf("Expected a dsn error, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("Expected an error for a missing config file")
	}
}
