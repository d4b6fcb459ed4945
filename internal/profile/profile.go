// Package profile holds the runtime configuration of the sidekick server.
package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
)

// Profile is configuration to start the main server.
type Profile struct {
	// LLM configuration (OpenAI-compatible protocol).
	// All providers (ollama, openai, deepseek, siliconflow) use the same config.
	LLMProvider    string  // Provider identifier: ollama, openai, deepseek, siliconflow
	LLMModel       string  // Model name: llama3.1, gpt-4o, deepseek-chat, etc.
	LLMAPIKey      string  // API key (unused by local ollama)
	LLMBaseURL     string  // Base URL (optional, has default per provider)
	LLMMaxTokens   int     // Generation budget per request (default: 2048)
	LLMTemperature float32 // Sampling temperature (default: 0.7)
	LLMTimeout     int     // Request timeout in seconds (default: 120)

	// Embedding configuration
	EmbeddingProvider   string
	EmbeddingModel      string
	EmbeddingAPIKey     string
	EmbeddingBaseURL    string
	EmbeddingDimensions int // Fixed vector dimension per deployment (default: 384)

	// Vector store configuration
	VectorDriver     string // memory, postgres, qdrant
	VectorDSN        string // postgres DSN when driver is postgres
	QdrantHost       string
	QdrantPort       int
	QdrantCollection string

	// Retrieval configuration
	TopKResults         int     // default: 5
	SimilarityThreshold float32 // default: 0.7
	ChunkSize           int     // default: 500
	ChunkOverlap        int     // default: 50

	// Conversation persistence. Empty keeps history in memory only.
	ConversationDSN string

	// Persona instructions YAML, optional.
	PersonaFile string

	Mode    string
	Addr    string
	Data    string
	Version string
	Port    int
}

// Provider default base URLs for the LLM gateway.
// Used when SIDEKICK_LLM_BASE_URL is not explicitly set.
var llmProviderDefaults = map[string]struct {
	BaseURL string
	Model   string
}{
	"ollama": {
		BaseURL: "http://localhost:11434/v1",
		Model:   "llama3.1",
	},
	"openai": {
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o-mini",
	},
	"deepseek": {
		BaseURL: "https://api.deepseek.com",
		Model:   "deepseek-chat",
	},
	"siliconflow": {
		BaseURL: "https://api.siliconflow.cn/v1",
		Model:   "Qwen/Qwen2.5-72B-Instruct",
	},
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvOrDefaultFloat(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(f)
		}
	}
	return defaultValue
}

// FromEnv fills AI and retrieval settings from SIDEKICK_* environment variables.
func (p *Profile) FromEnv() {
	p.LLMProvider = getEnvOrDefault("SIDEKICK_LLM_PROVIDER", "ollama")
	p.LLMAPIKey = os.Getenv("SIDEKICK_LLM_API_KEY")
	p.LLMBaseURL = os.Getenv("SIDEKICK_LLM_BASE_URL")
	p.LLMModel = os.Getenv("SIDEKICK_LLM_MODEL")
	p.LLMMaxTokens = getEnvOrDefaultInt("SIDEKICK_LLM_MAX_TOKENS", 2048)
	p.LLMTemperature = getEnvOrDefaultFloat("SIDEKICK_LLM_TEMPERATURE", 0.7)
	p.LLMTimeout = getEnvOrDefaultInt("SIDEKICK_LLM_TIMEOUT", 120)

	p.EmbeddingProvider = getEnvOrDefault("SIDEKICK_EMBEDDING_PROVIDER", p.LLMProvider)
	p.EmbeddingModel = getEnvOrDefault("SIDEKICK_EMBEDDING_MODEL", "all-minilm")
	p.EmbeddingAPIKey = getEnvOrDefault("SIDEKICK_EMBEDDING_API_KEY", p.LLMAPIKey)
	p.EmbeddingBaseURL = getEnvOrDefault("SIDEKICK_EMBEDDING_BASE_URL", p.LLMBaseURL)
	p.EmbeddingDimensions = getEnvOrDefaultInt("SIDEKICK_EMBEDDING_DIMENSIONS", 384)

	p.VectorDriver = getEnvOrDefault("SIDEKICK_VECTOR_DRIVER", "memory")
	p.VectorDSN = os.Getenv("SIDEKICK_VECTOR_DSN")
	p.QdrantHost = getEnvOrDefault("SIDEKICK_QDRANT_HOST", "localhost")
	p.QdrantPort = getEnvOrDefaultInt("SIDEKICK_QDRANT_PORT", 6334)
	p.QdrantCollection = getEnvOrDefault("SIDEKICK_QDRANT_COLLECTION", "sidekick")

	p.TopKResults = getEnvOrDefaultInt("SIDEKICK_TOP_K_RESULTS", 5)
	p.SimilarityThreshold = getEnvOrDefaultFloat("SIDEKICK_SIMILARITY_THRESHOLD", 0.7)
	p.ChunkSize = getEnvOrDefaultInt("SIDEKICK_CHUNK_SIZE", 500)
	p.ChunkOverlap = getEnvOrDefaultInt("SIDEKICK_CHUNK_OVERLAP", 50)

	p.PersonaFile = os.Getenv("SIDEKICK_PERSONA_FILE")

	// Fill provider defaults where explicit values were not given.
	if defaults, ok := llmProviderDefaults[p.LLMProvider]; ok {
		if p.LLMBaseURL == "" {
			p.LLMBaseURL = defaults.BaseURL
		}
		if p.LLMModel == "" {
			p.LLMModel = defaults.Model
		}
	}
}

// Validate checks the profile and normalizes derived fields.
func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	switch p.VectorDriver {
	case "", "memory":
		p.VectorDriver = "memory"
	case "postgres":
		if p.VectorDSN == "" {
			return errors.New("postgres vector driver requires SIDEKICK_VECTOR_DSN")
		}
	case "qdrant":
	default:
		return errors.Errorf("unknown vector driver %q", p.VectorDriver)
	}

	if p.SimilarityThreshold < 0 || p.SimilarityThreshold > 1 {
		return errors.Errorf("similarity threshold %.2f out of range [0,1]", p.SimilarityThreshold)
	}
	if p.ChunkSize <= 0 {
		return errors.Errorf("chunk size must be positive, got %d", p.ChunkSize)
	}
	if p.ChunkOverlap < 0 {
		return errors.Errorf("chunk overlap must be non-negative, got %d", p.ChunkOverlap)
	}
	if p.TopKResults <= 0 {
		p.TopKResults = 5
	}

	if p.Data == "" {
		p.Data = "."
	}
	dataDir, err := filepath.Abs(p.Data)
	if err != nil {
		return errors.Wrapf(err, "unable to resolve data directory %q", p.Data)
	}
	if _, err := os.Stat(dataDir); err != nil {
		return fmt.Errorf("data directory %q not accessible: %w", dataDir, err)
	}
	p.Data = dataDir

	if p.ConversationDSN == "" {
		if v := os.Getenv("SIDEKICK_CONVERSATION_DSN"); v != "" {
			p.ConversationDSN = v
		}
	}

	return nil
}
