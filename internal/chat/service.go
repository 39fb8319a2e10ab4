package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"local-llm-chat/internal/assembler"
	"local-llm-chat/internal/db"
	"local-llm-chat/internal/llm"
	"local-llm-chat/internal/models"
)

var (
	// ErrGeneration marks any failure of the external generation
	// capability. The user's turn stays persisted when it fires.
	ErrGeneration = errors.New("generation backend failure")
	// ErrEmptyResponse is an empty model result, treated as a generation
	// failure rather than a success with empty content.
	ErrEmptyResponse = fmt.Errorf("%w: model returned an empty response", ErrGeneration)
)

// Request is one user turn plus its augmentation switches.
type Request struct {
	Message       string
	Model         string
	MaxTokens     int
	UseWeb        bool
	UseEmbeddings bool
	Attachment    *assembler.Attachment
}

// Service sequences store writes around one generation call:
// assemble context, append the user turn and any system fragments, read the
// full history back, generate, append the assistant turn. No retries, and a
// failed generation does not retract the already-persisted user turn.
type Service struct {
	store      *db.Database
	backend    llm.Backend
	asm        *assembler.Assembler
	genTimeout time.Duration
	encoder    *tiktoken.Tiktoken
	logger     *zap.Logger
}

func New(store *db.Database, backend llm.Backend, asm *assembler.Assembler,
	genTimeout time.Duration, logger *zap.Logger) *Service {
	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		logger.Warn("token encoder unavailable, prompt sizes will not be logged", zap.Error(err))
		encoder = nil
	}
	return &Service{
		store:      store,
		backend:    backend,
		asm:        asm,
		genTimeout: genTimeout,
		encoder:    encoder,
		logger:     logger,
	}
}

// ProcessMessage handles one inbound request and returns the assistant's
// reply. db.ErrNotFound propagates when the chat does not exist; generation
// failures wrap ErrGeneration.
func (s *Service) ProcessMessage(ctx context.Context, chatID string, req Request) (string, error) {
	assembled := s.asm.Assemble(ctx, req.Message,
		assembler.Flags{UseWeb: req.UseWeb, UseEmbeddings: req.UseEmbeddings},
		req.Attachment, s.backend.SupportsImages())

	userMsg := &models.Message{ChatID: chatID, Role: models.RoleUser, Content: assembled.UserContent}
	if err := s.store.AddMessage(ctx, userMsg); err != nil {
		return "", err
	}
	for _, frag := range assembled.Fragments {
		msg := &models.Message{ChatID: chatID, Role: frag.Role, Content: frag.Content}
		if err := s.store.AddMessage(ctx, msg); err != nil {
			return "", err
		}
	}

	// Read back everything just appended so the model sees the full turn.
	history, err := s.store.GetHistory(ctx, chatID)
	if err != nil {
		return "", err
	}
	s.logPromptSize(chatID, history)

	genCtx, cancel := context.WithTimeout(ctx, s.genTimeout)
	defer cancel()

	opts := llm.Options{Model: req.Model, MaxTokens: req.MaxTokens}
	var reply string
	if assembled.Image != nil && s.backend.SupportsImages() {
		reply, err = s.backend.GenerateWithImage(genCtx, history, assembled.Image, opts)
	} else {
		reply, err = s.backend.Generate(genCtx, history, opts)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	if strings.TrimSpace(reply) == "" {
		return "", ErrEmptyResponse
	}

	assistantMsg := &models.Message{ChatID: chatID, Role: models.RoleAssistant, Content: reply}
	if err := s.store.AddMessage(ctx, assistantMsg); err != nil {
		return "", err
	}
	return reply, nil
}

func (s *Service) logPromptSize(chatID string, history []models.Message) {
	if s.encoder == nil {
		return
	}
	tokens := 0
	for _, msg := range history {
		tokens += len(s.encoder.Encode(msg.Content, nil, nil))
	}
	s.logger.Debug("prompt assembled",
		zap.String("chat_id", chatID),
		zap.Int("messages", len(history)),
		zap.Int("prompt_tokens", tokens))
}
