package assembler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"local-llm-chat/internal/embeddings"
	"local-llm-chat/internal/extract"
	"local-llm-chat/internal/models"
)

// Collaborator interfaces, narrow on purpose so tests can stub them.
type (
	SearchProvider interface {
		Search(ctx context.Context, query string) (string, error)
	}
	Retriever interface {
		SearchSimilar(ctx context.Context, query string, topK int) ([]embeddings.Match, error)
	}
	Extractor interface {
		Extract(data []byte, filename string) (string, error)
	}
)

// Flags are the per-request augmentation switches.
type Flags struct {
	UseWeb        bool
	UseEmbeddings bool
}

// Attachment is an uploaded file riding on a message.
type Attachment struct {
	Name string
	Data []byte
}

// Fragment is one synthetic system message to store and send alongside the
// user's turn.
type Fragment struct {
	Role    string
	Content string
}

// Result is the assembled turn. UserContent is the (possibly file-augmented)
// user message; Fragments follow it in precedence order. A non-nil Image
// means the raw bytes must be forwarded to the image-capable generation
// entry point instead of inlined text.
type Result struct {
	UserContent string
	Fragments   []Fragment
	Image       []byte
}

// Assembler turns a raw message plus augmentation flags into the exact
// content to persist and send. Given the same inputs and collaborator
// responses it produces byte-identical output; the clock is injected to
// keep the web-context label deterministic.
type Assembler struct {
	search        SearchProvider
	retriever     Retriever
	extractor     Extractor
	topK          int
	searchTimeout time.Duration
	embedTimeout  time.Duration
	logger        *zap.Logger
	now           func() time.Time
}

func New(search SearchProvider, retriever Retriever, extractor Extractor, topK int,
	searchTimeout, embedTimeout time.Duration, logger *zap.Logger) *Assembler {
	return &Assembler{
		search:        search,
		retriever:     retriever,
		extractor:     extractor,
		topK:          topK,
		searchTimeout: searchTimeout,
		embedTimeout:  embedTimeout,
		logger:        logger,
		now:           time.Now,
	}
}

// WithClock replaces the timestamp source. Tests use it to pin output.
func (a *Assembler) WithClock(now func() time.Time) *Assembler {
	a.now = now
	return a
}

// Assemble never fails: every collaborator failure degrades to a visible
// placeholder instead of propagating. The one exception is an image
// attachment under a multimodal backend, which is forwarded raw rather
// than OCR-inlined.
func (a *Assembler) Assemble(ctx context.Context, message string, flags Flags, att *Attachment, multimodal bool) Result {
	result := Result{UserContent: message}

	if att != nil {
		a.foldAttachment(&result, message, att, multimodal)
	}

	if flags.UseEmbeddings {
		result.Fragments = append(result.Fragments, Fragment{
			Role:    models.RoleSystem,
			Content: a.retrievalContext(ctx, message),
		})
	}

	if flags.UseWeb {
		result.Fragments = append(result.Fragments, Fragment{
			Role:    models.RoleSystem,
			Content: a.webContext(ctx, message),
		})
	}

	return result
}

func (a *Assembler) foldAttachment(result *Result, message string, att *Attachment, multimodal bool) {
	if extract.IsImage(att.Name) && multimodal {
		// The model sees the pixels; no OCR text is inlined.
		result.Image = att.Data
		result.UserContent = fmt.Sprintf("%s\n\n[Attached file: %s]", message, att.Name)
		return
	}

	if a.extractor == nil {
		result.UserContent = fmt.Sprintf("%s\n\n[Attached file: %s]\nError processing file: no extractor configured", message, att.Name)
		return
	}

	text, err := a.extractor.Extract(att.Data, att.Name)
	if err != nil {
		a.logger.Warn("file extraction degraded",
			zap.String("filename", att.Name),
			zap.Error(err))
		text = fmt.Sprintf("Error processing file: %v", err)
	}
	result.UserContent = fmt.Sprintf("%s\n\n[Attached file: %s]\n%s", message, att.Name, text)
}

func (a *Assembler) retrievalContext(ctx context.Context, message string) string {
	if a.retriever == nil {
		return "Knowledge base lookup is not configured; answering without retrieved context."
	}

	ctx, cancel := context.WithTimeout(ctx, a.embedTimeout)
	defer cancel()

	matches, err := a.retriever.SearchSimilar(ctx, message, a.topK)
	if err != nil {
		a.logger.Warn("embedding retrieval degraded", zap.Error(err))
		return "Knowledge base lookup failed; answering without retrieved context."
	}
	if len(matches) == 0 {
		return "Knowledge base returned no relevant context for this message."
	}

	var b strings.Builder
	b.WriteString("Relevant context from knowledge base:\n")
	for _, m := range matches {
		fmt.Fprintf(&b, "- %s (relevance: %.2f)\n", m.Text, m.Score)
	}
	return b.String()
}

func (a *Assembler) webContext(ctx context.Context, message string) string {
	label := a.now().Format("02.01.2006 15:04")

	if a.search == nil {
		return fmt.Sprintf("Web search results (%s):\nweb search is not configured.", label)
	}

	ctx, cancel := context.WithTimeout(ctx, a.searchTimeout)
	defer cancel()

	results, err := a.search.Search(ctx, message)
	if err != nil || strings.TrimSpace(results) == "" {
		a.logger.Warn("web search degraded", zap.Error(err))
		return fmt.Sprintf("Web search results (%s):\nweb search failed; answering without web context.", label)
	}
	return fmt.Sprintf("Web search results (%s):\n%s", label, results)
}
