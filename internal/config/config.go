package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the full server configuration, loaded from YAML with
// environment overrides for secrets and deploy-specific values.
type Config struct {
	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"server"`
	Deepgram struct {
		APIKey         string `yaml:"api_key"`
		Model          string `yaml:"model"`
		InterimResults bool   `yaml:"interim_results"`
		SmartFormat    bool   `yaml:"smart_format"`
		FillerWords    bool   `yaml:"filler_words"`
		UtteranceEndMS int    `yaml:"utterance_end_ms"`
	} `yaml:"deepgram"`
	Storage struct {
		Bucket string `yaml:"bucket"`
		Region string `yaml:"region"`
	} `yaml:"storage"`
	Records struct {
		Backend     string `yaml:"backend"` // "postgres" or "redis"
		PostgresDSN string `yaml:"postgres_dsn"`
		RedisAddr   string `yaml:"redis_addr"`
		RedisPrefix string `yaml:"redis_prefix"`
	} `yaml:"records"`
	Session struct {
		CaptionTTLMS int `yaml:"caption_ttl_ms"`
		KeepAliveMS  int `yaml:"keep_alive_ms"`
	} `yaml:"session"`
	Ingest struct {
		AudioSocketEnabled bool   `yaml:"audiosocket_enabled"`
		AudioSocketAddr    string `yaml:"audiosocket_addr"`
		ScriptID           string `yaml:"script_id"`
	} `yaml:"ingest"`
}

// Load reads the YAML config file, applies defaults and environment
// overrides, and validates required fields.
func Load(filename string) (*Config, error) {
	cfg := &Config{}

	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Deepgram.Model == "" {
		c.Deepgram.Model = "nova-3"
	}
	if c.Deepgram.UtteranceEndMS == 0 {
		c.Deepgram.UtteranceEndMS = 3000
	}
	if c.Records.Backend == "" {
		c.Records.Backend = "postgres"
	}
	if c.Records.RedisPrefix == "" {
		c.Records.RedisPrefix = "voicetake:"
	}
	if c.Session.CaptionTTLMS == 0 {
		c.Session.CaptionTTLMS = 3000
	}
	if c.Session.KeepAliveMS == 0 {
		c.Session.KeepAliveMS = 10000
	}
	if c.Ingest.AudioSocketAddr == "" {
		c.Ingest.AudioSocketAddr = "0.0.0.0:8090"
	}
	if c.Ingest.ScriptID == "" {
		c.Ingest.ScriptID = "telephony"
	}
}

// Environment variables take precedence over file values so secrets
// never have to live in the config file.
func (c *Config) applyEnv() {
	if v := os.Getenv("DEEPGRAM_API_KEY"); v != "" {
		c.Deepgram.APIKey = v
	}
	if v := os.Getenv("S3_BUCKET_NAME"); v != "" {
		c.Storage.Bucket = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		c.Storage.Region = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Records.PostgresDSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Records.RedisAddr = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
}

func (c *Config) validate() error {
	if c.Deepgram.APIKey == "" {
		return fmt.Errorf("deepgram api key is required (set DEEPGRAM_API_KEY)")
	}
	if c.Storage.Bucket == "" {
		return fmt.Errorf("storage bucket is required (set S3_BUCKET_NAME)")
	}
	switch c.Records.Backend {
	case "postgres":
		if c.Records.PostgresDSN == "" {
			return fmt.Errorf("postgres dsn is required for the postgres backend (set DATABASE_URL)")
		}
	case "redis":
		if c.Records.RedisAddr == "" {
			return fmt.Errorf("redis address is required for the redis backend (set REDIS_ADDR)")
		}
	default:
		return fmt.Errorf("unknown records backend: %s", c.Records.Backend)
	}
	return nil
}
