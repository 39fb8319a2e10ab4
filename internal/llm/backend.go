package llm

import (
	"context"
	"errors"

	"github.com/tmc/langchaingo/llms"

	"local-llm-chat/internal/models"
)

// ErrImageUnsupported is returned by backends that cannot condition
// generation on an image.
var ErrImageUnsupported = errors.New("backend does not support image input")

// Options are per-request generation parameters. Zero values mean "use the
// backend's defaults".
type Options struct {
	Model     string
	MaxTokens int
}

// Backend is a text-generation capability. Generate receives the full
// ordered history; GenerateWithImage additionally conditions on raw image
// bytes for multimodal backends.
type Backend interface {
	Name() string
	SupportsImages() bool
	Generate(ctx context.Context, history []models.Message, opts Options) (string, error)
	GenerateWithImage(ctx context.Context, history []models.Message, image []byte, opts Options) (string, error)
}

func toContent(history []models.Message) []llms.MessageContent {
	content := make([]llms.MessageContent, 0, len(history))
	for _, msg := range history {
		content = append(content, llms.TextParts(toRole(msg.Role), msg.Content))
	}
	return content
}

func toRole(role string) llms.ChatMessageType {
	switch role {
	case models.RoleAssistant:
		return llms.ChatMessageTypeAI
	case models.RoleSystem:
		return llms.ChatMessageTypeSystem
	default:
		return llms.ChatMessageTypeHuman
	}
}

func callOptions(opts Options) []llms.CallOption {
	callOpts := []llms.CallOption{llms.WithTemperature(0.7)}
	if opts.Model != "" {
		callOpts = append(callOpts, llms.WithModel(opts.Model))
	}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
	}
	return callOpts
}

func firstChoice(resp *llms.ContentResponse) (string, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return "", errors.New("response contained no choices")
	}
	return resp.Choices[0].Content, nil
}
