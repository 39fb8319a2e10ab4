package llm

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"local-llm-chat/internal/models"
)

// Ollama talks to a local Ollama server. It is the only backend with
// image-conditioned generation.
type Ollama struct {
	llm *ollama.LLM
}

func NewOllama(serverURL, model string) (*Ollama, error) {
	llm, err := ollama.New(
		ollama.WithServerURL(serverURL),
		ollama.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("init ollama: %w", err)
	}
	return &Ollama{llm: llm}, nil
}

func (o *Ollama) Name() string { return "ollama" }

func (o *Ollama) SupportsImages() bool { return true }

func (o *Ollama) Generate(ctx context.Context, history []models.Message, opts Options) (string, error) {
	resp, err := o.llm.GenerateContent(ctx, toContent(history), callOptions(opts)...)
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	text, err := firstChoice(resp)
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	return text, nil
}

// GenerateWithImage prepends a user turn carrying the raw image bytes, then
// generates against the full history.
func (o *Ollama) GenerateWithImage(ctx context.Context, history []models.Message, image []byte, opts Options) (string, error) {
	visual := llms.MessageContent{
		Role: llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{
			llms.BinaryPart(http.DetectContentType(image), image),
			llms.TextPart("image"),
		},
	}
	content := append([]llms.MessageContent{visual}, toContent(history)...)

	resp, err := o.llm.GenerateContent(ctx, content, callOptions(opts)...)
	if err != nil {
		return "", fmt.Errorf("ollama generate with image: %w", err)
	}
	text, err := firstChoice(resp)
	if err != nil {
		return "", fmt.Errorf("ollama generate with image: %w", err)
	}
	return text, nil
}
