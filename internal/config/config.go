package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration loaded from environment variables.
// It is immutable after Load() returns.
type Config struct {
	Port             int
	Environment      string
	DatabaseURL      string
	DatabaseMaxConns int

	GCPProject        string
	VertexAILocation  string
	VertexAIModel     string
	EmbeddingLocation string
	EmbeddingModel    string
	EmbedDim          int

	RedisAddr string

	FrontendURL        string
	InternalAuthSecret string

	// Retrieval and learning tunables (ranking formula + workflow memory).
	RetrieveK       int
	KMax            int
	Beta            float64
	MinMemorySim    float64
	Delta           float64
	WeightMin       float64
	WeightMax       float64
	WorkflowEnabled bool
	WorkflowTopM    int
	QMax            int

	GenMaxRetries         int
	EmbedMaxRetries       int
	WorkflowMemMaxRetries int
}

// Load reads configuration from environment variables.
// Required variables (DATABASE_URL, GOOGLE_CLOUD_PROJECT) cause an error if missing.
// Optional variables use sensible defaults.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("config.Load: DATABASE_URL is required")
	}

	gcpProject := os.Getenv("GOOGLE_CLOUD_PROJECT")
	if gcpProject == "" {
		return nil, fmt.Errorf("config.Load: GOOGLE_CLOUD_PROJECT is required")
	}

	cfg := &Config{
		Port:             envInt("PORT", 8080),
		Environment:      envStr("ENVIRONMENT", "development"),
		DatabaseURL:      dbURL,
		DatabaseMaxConns: envInt("DATABASE_MAX_CONNS", 25),

		GCPProject:        gcpProject,
		VertexAILocation:  envStr("VERTEX_AI_LOCATION", "global"),
		VertexAIModel:     envStr("VERTEX_AI_MODEL", "gemini-3-pro-preview"),
		EmbeddingLocation: envStr("VERTEX_AI_EMBEDDING_LOCATION", "us-east4"),
		EmbeddingModel:    envStr("VERTEX_AI_EMBEDDING_MODEL", "text-embedding-004"),
		EmbedDim:          envInt("EMBED_DIM", 768),

		RedisAddr: envStr("REDIS_ADDR", ""),

		FrontendURL:        envStr("FRONTEND_URL", "http://localhost:3000"),
		InternalAuthSecret: envStr("INTERNAL_AUTH_SECRET", ""),

		RetrieveK:       envInt("RETRIEVE_K", 5),
		KMax:            envInt("K_MAX", 50),
		Beta:            envFloat("BETA", 0.2),
		MinMemorySim:    envFloat("MIN_MEMORY_SIM", 0.75),
		Delta:           envFloat("DELTA", 0.1),
		WeightMin:       envFloat("W_MIN", 0.5),
		WeightMax:       envFloat("W_MAX", 2.0),
		WorkflowEnabled: envBool("WORKFLOW_ENABLED", true),
		WorkflowTopM:    envInt("WORKFLOW_TOP_M", 3),
		QMax:            envInt("Q_MAX", 4000),

		GenMaxRetries:         envInt("GEN_MAX_RETRIES", 2),
		EmbedMaxRetries:       envInt("EMBED_MAX_RETRIES", 3),
		WorkflowMemMaxRetries: envInt("WORKFLOW_MEM_MAX_RETRIES", 3),
	}

	// Internal auth secret is required in non-development environments
	if cfg.Environment != "development" && cfg.InternalAuthSecret == "" {
		return nil, fmt.Errorf("config.Load: INTERNAL_AUTH_SECRET is required in %s environment", cfg.Environment)
	}

	return cfg, nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
