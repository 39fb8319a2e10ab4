package main

import (
	"net/http"

	"github.com/tmc/langchaingo/llms/ollama"
	"go.uber.org/zap"

	"local-llm-chat/internal/api"
	"local-llm-chat/internal/assembler"
	"local-llm-chat/internal/chat"
	"local-llm-chat/internal/config"
	"local-llm-chat/internal/db"
	"local-llm-chat/internal/embeddings"
	"local-llm-chat/internal/extract"
	"local-llm-chat/internal/files"
	"local-llm-chat/internal/llm"
	"local-llm-chat/internal/logger"
	"local-llm-chat/internal/search"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogFilePath, cfg.Environment == "production")
	defer log.Sync()

	store, err := db.New(cfg.ChatDBPath)
	if err != nil {
		log.Fatal("failed to open chat database", zap.Error(err))
	}
	defer store.Close()

	fileStore, err := files.New(cfg.FileStorageDir)
	if err != nil {
		log.Fatal("failed to create file storage", zap.Error(err))
	}

	// Generation backends in preference order. Ollama first, the
	// OpenAI-compatible endpoint (LM Studio etc.) as fallback.
	var backends []llm.Backend
	if ollamaBackend, err := llm.NewOllama(cfg.OllamaBaseURL, cfg.DefaultModel); err != nil {
		log.Warn("ollama backend unavailable", zap.Error(err))
	} else {
		backends = append(backends, ollamaBackend)
	}
	if openaiBackend, err := llm.NewOpenAICompat(cfg.OpenAIBaseURL, cfg.OpenAIToken, cfg.DefaultModel); err != nil {
		log.Warn("openai-compatible backend unavailable", zap.Error(err))
	} else {
		backends = append(backends, openaiBackend)
	}
	backend, err := llm.NewFallback(log, backends...)
	if err != nil {
		log.Fatal("no generation backend available", zap.Error(err))
	}

	embedClient, err := ollama.New(
		ollama.WithServerURL(cfg.OllamaBaseURL),
		ollama.WithModel(cfg.EmbeddingModel),
	)
	if err != nil {
		log.Fatal("failed to build embedding client", zap.Error(err))
	}
	embedSvc, err := embeddings.NewService(cfg.EmbeddingsDBPath, embedClient, log)
	if err != nil {
		log.Fatal("failed to open embeddings database", zap.Error(err))
	}
	defer embedSvc.Close()

	var providers []search.Provider
	if cfg.SerpAPIKey != "" {
		providers = append(providers, search.NewSerpAPI(cfg.SerpAPIKey, cfg.MaxSearchResults, cfg.SearchTimeout))
	}
	if ddg, err := search.NewDuckDuckGo(cfg.MaxSearchResults); err != nil {
		log.Warn("duckduckgo provider unavailable", zap.Error(err))
	} else {
		providers = append(providers, ddg)
	}
	searchProvider := search.NewCached(search.NewChain(log, providers...), cfg.SearchCacheTTL)

	asm := assembler.New(searchProvider, embedSvc, extract.New(log), cfg.RetrievalTopK,
		cfg.SearchTimeout, cfg.EmbedTimeout, log)
	chatSvc := chat.New(store, backend, asm, cfg.GenTimeout, log)

	handler := api.NewHandler(store, chatSvc, embedSvc, searchProvider, fileStore,
		cfg.SearchTimeout, cfg.EmbedTimeout, log)

	log.Info("server starting", zap.String("addr", cfg.Addr))
	if err := http.ListenAndServe(cfg.Addr, handler.Routes()); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}
