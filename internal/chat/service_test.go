package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"local-llm-chat/internal/assembler"
	"local-llm-chat/internal/db"
	"local-llm-chat/internal/llm"
	"local-llm-chat/internal/models"
)

type stubBackend struct {
	reply       string
	err         error
	images      bool
	gotHistory  []models.Message
	gotImage    []byte
	gotOpts     llm.Options
	imageCalled bool
}

func (s *stubBackend) Name() string         { return "stub" }
func (s *stubBackend) SupportsImages() bool { return s.images }

func (s *stubBackend) Generate(ctx context.Context, history []models.Message, opts llm.Options) (string, error) {
	s.gotHistory = history
	s.gotOpts = opts
	return s.reply, s.err
}

func (s *stubBackend) GenerateWithImage(ctx context.Context, history []models.Message, image []byte, opts llm.Options) (string, error) {
	s.imageCalled = true
	s.gotHistory = history
	s.gotImage = image
	return s.reply, s.err
}

type stubSearch struct {
	result string
	err    error
}

func (s *stubSearch) Search(ctx context.Context, query string) (string, error) {
	return s.result, s.err
}

type stubExtractor struct {
	text string
	err  error
}

func (s *stubExtractor) Extract(data []byte, filename string) (string, error) {
	return s.text, s.err
}

func testService(t *testing.T, backend llm.Backend, search assembler.SearchProvider, extractor assembler.Extractor) (*Service, *db.Database, string) {
	t.Helper()
	database, err := db.New(t.TempDir() + "/chats.db")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	asm := assembler.New(search, nil, extractor, 3, time.Second, time.Second, zap.NewNop())
	svc := New(database, backend, asm, time.Minute, zap.NewNop())

	chat, err := database.CreateChat(context.Background())
	require.NoError(t, err)
	return svc, database, chat.ID
}

func TestProcessMessage_AppendsUserAndAssistantTurns(t *testing.T) {
	backend := &stubBackend{reply: "hi there"}
	svc, database, chatID := testService(t, backend, nil, nil)
	ctx := context.Background()

	reply, err := svc.ProcessMessage(ctx, chatID, Request{Message: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hi there", reply)

	history, err := database.GetHistory(ctx, chatID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.RoleUser, history[0].Role)
	assert.Equal(t, "hello", history[0].Content)
	assert.Equal(t, models.RoleAssistant, history[1].Role)
	assert.Equal(t, "hi there", history[1].Content)
}

func TestProcessMessage_UnknownChat(t *testing.T) {
	backend := &stubBackend{reply: "hi"}
	svc, _, _ := testService(t, backend, nil, nil)

	_, err := svc.ProcessMessage(context.Background(), "no-such-chat", Request{Message: "hello"})
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestProcessMessage_WebContextReachesModel(t *testing.T) {
	backend := &stubBackend{reply: "answer"}
	search := &stubSearch{result: "result A"}
	svc, database, chatID := testService(t, backend, search, nil)
	ctx := context.Background()

	_, err := svc.ProcessMessage(ctx, chatID, Request{Message: "ask the web", UseWeb: true})
	require.NoError(t, err)

	// The injected system message is persisted before the assistant turn
	// and included in the prompt the backend received.
	history, err := database.GetHistory(ctx, chatID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, models.RoleUser, history[0].Role)
	assert.Equal(t, models.RoleSystem, history[1].Role)
	assert.Contains(t, history[1].Content, "result A")
	assert.Equal(t, models.RoleAssistant, history[2].Role)

	require.Len(t, backend.gotHistory, 2) // user + system, read before the reply
	assert.Contains(t, backend.gotHistory[1].Content, "result A")
}

func TestProcessMessage_BackendFailureKeepsUserTurn(t *testing.T) {
	backend := &stubBackend{err: errors.New("connection refused")}
	svc, database, chatID := testService(t, backend, nil, nil)
	ctx := context.Background()

	_, err := svc.ProcessMessage(ctx, chatID, Request{Message: "hello"})
	assert.ErrorIs(t, err, ErrGeneration)

	history, err := database.GetHistory(ctx, chatID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.RoleUser, history[0].Role)
}

func TestProcessMessage_EmptyReplyIsFailure(t *testing.T) {
	backend := &stubBackend{reply: "   \n"}
	svc, database, chatID := testService(t, backend, nil, nil)
	ctx := context.Background()

	_, err := svc.ProcessMessage(ctx, chatID, Request{Message: "hello"})
	assert.ErrorIs(t, err, ErrEmptyResponse)
	assert.ErrorIs(t, err, ErrGeneration)

	history, err := database.GetHistory(ctx, chatID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestProcessMessage_FileTextFoldedIntoUserTurn(t *testing.T) {
	backend := &stubBackend{reply: "summarized"}
	extractor := &stubExtractor{text: "page1\npage2"}
	svc, database, chatID := testService(t, backend, nil, extractor)
	ctx := context.Background()

	req := Request{
		Message:    "summarize",
		Attachment: &assembler.Attachment{Name: "report.pdf", Data: []byte("%PDF")},
	}
	_, err := svc.ProcessMessage(ctx, chatID, req)
	require.NoError(t, err)

	history, err := database.GetHistory(ctx, chatID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Contains(t, history[0].Content, "[Attached file: report.pdf]")
	assert.Contains(t, history[0].Content, "page1\npage2")
}

func TestProcessMessage_ImageGoesToMultimodalEntryPoint(t *testing.T) {
	backend := &stubBackend{reply: "a cat", images: true}
	svc, database, chatID := testService(t, backend, nil, &stubExtractor{})
	ctx := context.Background()

	image := []byte{0x89, 0x50, 0x4e, 0x47}
	req := Request{
		Message:    "what is in this picture",
		Attachment: &assembler.Attachment{Name: "photo.png", Data: image},
	}
	reply, err := svc.ProcessMessage(ctx, chatID, req)
	require.NoError(t, err)
	assert.Equal(t, "a cat", reply)
	assert.True(t, backend.imageCalled)
	assert.Equal(t, image, backend.gotImage)

	history, err := database.GetHistory(ctx, chatID)
	require.NoError(t, err)
	// OCR text is not inlined for the multimodal path.
	assert.Equal(t, "what is in this picture\n\n[Attached file: photo.png]", history[0].Content)
}

func TestProcessMessage_OptionsReachBackend(t *testing.T) {
	backend := &stubBackend{reply: "ok"}
	svc, _, chatID := testService(t, backend, nil, nil)

	_, err := svc.ProcessMessage(context.Background(), chatID, Request{
		Message: "hello", Model: "llama3", MaxTokens: 256,
	})
	require.NoError(t, err)
	assert.Equal(t, llm.Options{Model: "llama3", MaxTokens: 256}, backend.gotOpts)
}
