package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is built once in main and injected into every component
// constructor. Components never read the environment themselves.
type Config struct {
	Addr        string
	Environment string
	LogFilePath string

	ChatDBPath       string
	EmbeddingsDBPath string
	FileStorageDir   string

	// Generation backends. Ollama is preferred, the OpenAI-compatible
	// endpoint (LM Studio etc.) is the fallback.
	OllamaBaseURL string
	OpenAIBaseURL string
	OpenAIToken   string
	DefaultModel  string

	EmbeddingModel string
	RetrievalTopK  int

	SerpAPIKey       string
	MaxSearchResults int
	SearchCacheTTL   time.Duration

	// Generation tolerates much longer waits than lookup-style calls.
	GenTimeout    time.Duration
	SearchTimeout time.Duration
	EmbedTimeout  time.Duration
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using system environment")
	}

	return &Config{
		Addr:        getEnv("SERVER_ADDR", ":8100"),
		Environment: getEnv("GO_ENV", "development"),
		LogFilePath: getEnv("LOG_FILE_PATH", "local-llm-chat.log"),

		ChatDBPath:       getEnv("CHAT_DB_PATH", "chats.db"),
		EmbeddingsDBPath: getEnv("EMBEDDINGS_DB_PATH", "embeddings.db"),
		FileStorageDir:   getEnv("FILE_STORAGE_DIR", "file_storage"),

		OllamaBaseURL: getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "http://localhost:1234/v1"),
		OpenAIToken:   getEnv("OPENAI_API_KEY", "local"),
		DefaultModel:  getEnv("DEFAULT_MODEL", "mistral:7b"),

		EmbeddingModel: getEnv("EMBEDDING_MODEL", "nomic-embed-text"),
		RetrievalTopK:  getEnvAsInt("RETRIEVAL_TOP_K", 3),

		SerpAPIKey:       getEnv("SERPAPI_KEY", ""),
		MaxSearchResults: getEnvAsInt("MAX_SEARCH_RESULTS", 3),
		SearchCacheTTL:   getEnvAsDuration("SEARCH_CACHE_TTL_SECONDS", 300),

		GenTimeout:    getEnvAsDuration("GEN_TIMEOUT_SECONDS", 120),
		SearchTimeout: getEnvAsDuration("SEARCH_TIMEOUT_SECONDS", 30),
		EmbedTimeout:  getEnvAsDuration("EMBED_TIMEOUT_SECONDS", 30),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallbackSeconds int) time.Duration {
	return time.Duration(getEnvAsInt(key, fallbackSeconds)) * time.Second
}
