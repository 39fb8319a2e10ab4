package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms/openai"

	"local-llm-chat/internal/models"
)

// OpenAICompat talks to any OpenAI-compatible endpoint, such as LM Studio.
// It has no image entry point.
type OpenAICompat struct {
	llm *openai.LLM
}

func NewOpenAICompat(baseURL, token, model string) (*OpenAICompat, error) {
	llm, err := openai.New(
		openai.WithToken(token),
		openai.WithBaseURL(baseURL),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("init openai-compatible client: %w", err)
	}
	return &OpenAICompat{llm: llm}, nil
}

func (c *OpenAICompat) Name() string { return "openai-compat" }

func (c *OpenAICompat) SupportsImages() bool { return false }

func (c *OpenAICompat) Generate(ctx context.Context, history []models.Message, opts Options) (string, error) {
	resp, err := c.llm.GenerateContent(ctx, toContent(history), callOptions(opts)...)
	if err != nil {
		return "", fmt.Errorf("openai-compatible generate: %w", err)
	}
	text, err := firstChoice(resp)
	if err != nil {
		return "", fmt.Errorf("openai-compatible generate: %w", err)
	}
	return text, nil
}

func (c *OpenAICompat) GenerateWithImage(ctx context.Context, history []models.Message, image []byte, opts Options) (string, error) {
	return "", ErrImageUnsupported
}
