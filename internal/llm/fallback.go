package llm

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"local-llm-chat/internal/models"
)

// Fallback is an ordered list of candidate backends with first-success
// selection. It is assembled at the composition boundary; the orchestrator
// only ever sees a single Backend.
type Fallback struct {
	backends []Backend
	logger   *zap.Logger
}

func NewFallback(logger *zap.Logger, backends ...Backend) (*Fallback, error) {
	if len(backends) == 0 {
		return nil, errors.New("fallback requires at least one backend")
	}
	return &Fallback{backends: backends, logger: logger}, nil
}

func (f *Fallback) Name() string { return "fallback" }

func (f *Fallback) SupportsImages() bool {
	for _, b := range f.backends {
		if b.SupportsImages() {
			return true
		}
	}
	return false
}

func (f *Fallback) Generate(ctx context.Context, history []models.Message, opts Options) (string, error) {
	var lastErr error
	for _, b := range f.backends {
		text, err := b.Generate(ctx, history, opts)
		if err == nil {
			return text, nil
		}
		lastErr = err
		f.logger.Warn("generation backend failed",
			zap.String("backend", b.Name()),
			zap.Error(err))
	}
	return "", fmt.Errorf("all generation backends failed: %w", lastErr)
}

func (f *Fallback) GenerateWithImage(ctx context.Context, history []models.Message, image []byte, opts Options) (string, error) {
	var lastErr error = ErrImageUnsupported
	for _, b := range f.backends {
		if !b.SupportsImages() {
			continue
		}
		text, err := b.GenerateWithImage(ctx, history, image, opts)
		if err == nil {
			return text, nil
		}
		lastErr = err
		f.logger.Warn("multimodal backend failed",
			zap.String("backend", b.Name()),
			zap.Error(err))
	}
	return "", fmt.Errorf("image generation failed: %w", lastErr)
}
