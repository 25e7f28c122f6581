// Package config loads service configuration from an optional YAML file, an
// optional .env file and the process environment, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Port          string        `yaml:"port"`
	CORSOrigin    string        `yaml:"cors_origin"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
	// Dev disables HTTPS-only security headers.
	Dev bool `yaml:"dev"`
}

type LLMConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	EmbedModel  string        `yaml:"embed_model"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
	// Breaker trips after this many consecutive transport failures; 0 disables it.
	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown"`
}

type WordPressConfig struct {
	PublishRoute  string        `yaml:"publish_route"`
	PublishAPIKey string        `yaml:"publish_api_key"`
	APIKeyHeader  string        `yaml:"api_key_header"`
	Timeout       time.Duration `yaml:"timeout"`
	RateEvery     time.Duration `yaml:"rate_every"`
	Burst         int           `yaml:"burst"`
}

// Neo4jConfig selects the record store. An empty URL keeps records in memory.
type Neo4jConfig struct {
	URL  string `yaml:"url"`
	User string `yaml:"user"`
	Pass string `yaml:"pass"`
}

// QdrantConfig enables the similar-audit index when URL is set.
type QdrantConfig struct {
	URL        string `yaml:"url"`
	Collection string `yaml:"collection"`
	VectorSize uint64 `yaml:"vector_size"`
}

// NATSConfig enables event publishing when URL is set.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

type VerifyConfig struct {
	Schedule    string `yaml:"schedule"`
	Concurrency int    `yaml:"concurrency"`
}

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	LLM       LLMConfig       `yaml:"llm"`
	WordPress WordPressConfig `yaml:"wordpress"`
	Neo4j     Neo4jConfig     `yaml:"neo4j"`
	Qdrant    QdrantConfig    `yaml:"qdrant"`
	NATS      NATSConfig      `yaml:"nats"`
	Verify    VerifyConfig    `yaml:"verify"`
	LogLevel  string          `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:          "8080",
			CORSOrigin:    "*",
			ReadTimeout:   15 * time.Second,
			WriteTimeout:  60 * time.Second,
			ShutdownGrace: 10 * time.Second,
		},
		LLM: LLMConfig{
			BaseURL:          "https://api.openai.com/v1",
			Model:            "gpt-4",
			EmbedModel:       "text-embedding-3-small",
			MaxTokens:        2000,
			Temperature:      0.3,
			Timeout:          30 * time.Second,
			BreakerThreshold: 5,
			BreakerCooldown:  time.Minute,
		},
		WordPress: WordPressConfig{
			PublishRoute: "/wp-json/geo-audit/v1/schema/{post_id}",
			APIKeyHeader: "X-API-Key",
			Timeout:      15 * time.Second,
			RateEvery:    100 * time.Millisecond,
			Burst:        5,
		},
		Neo4j:    Neo4jConfig{User: "neo4j"},
		Qdrant:   QdrantConfig{Collection: "geoaudit_audits", VectorSize: 1536},
		NATS:     NATSConfig{Subject: "geoaudit.events"},
		Verify:   VerifyConfig{Schedule: "@every 6h", Concurrency: 4},
		LogLevel: "info",
	}
}

// Load builds the configuration. path may be empty or name a missing file;
// both mean "defaults only". A .env file in the working directory is read
// when present and never overrides variables already set.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(b, &c); err != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: .env: %w", err)
	}
	if err := c.applyEnv(); err != nil {
		return Config{}, err
	}
	return c, c.Validate()
}

func (c *Config) applyEnv() error {
	c.Server.Port = envOr("PORT", c.Server.Port)
	c.Server.CORSOrigin = envOr("CORS_ORIGIN", c.Server.CORSOrigin)
	c.LLM.APIKey = envOr("CHATGPT_API_KEY", envOr("OPENAI_API_KEY", c.LLM.APIKey))
	c.LLM.BaseURL = envOr("LLM_BASE_URL", c.LLM.BaseURL)
	c.LLM.Model = envOr("LLM_MODEL", c.LLM.Model)
	c.WordPress.PublishAPIKey = envOr("WP_PUBLISH_API_KEY", c.WordPress.PublishAPIKey)
	c.WordPress.PublishRoute = envOr("WP_PUBLISH_ROUTE", c.WordPress.PublishRoute)
	c.Neo4j.URL = envOr("NEO4J_URL", c.Neo4j.URL)
	c.Neo4j.User = envOr("NEO4J_USER", c.Neo4j.User)
	c.Neo4j.Pass = envOr("NEO4J_PASS", c.Neo4j.Pass)
	c.Qdrant.URL = envOr("QDRANT_URL", c.Qdrant.URL)
	c.Qdrant.Collection = envOr("QDRANT_COLLECTION", c.Qdrant.Collection)
	c.NATS.URL = envOr("NATS_URL", c.NATS.URL)
	c.Verify.Schedule = envOr("VERIFY_SCHEDULE", c.Verify.Schedule)
	c.LogLevel = envOr("LOG_LEVEL", c.LogLevel)

	if v := os.Getenv("LLM_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: LLM_TIMEOUT: %w", err)
		}
		c.LLM.Timeout = d
	}
	if v := os.Getenv("DEV"); v != "" {
		dev, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: DEV: %w", err)
		}
		c.Server.Dev = dev
	}
	return nil
}

// Validate rejects values the services cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is empty"))
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, errors.New("llm.timeout must be positive"))
	}
	if c.LLM.MaxTokens <= 0 {
		errs = append(errs, errors.New("llm.max_tokens must be positive"))
	}
	if c.LLM.Temperature <= 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature %v out of range (0, 2]", c.LLM.Temperature))
	}
	if c.Verify.Concurrency <= 0 {
		errs = append(errs, errors.New("verify.concurrency must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
