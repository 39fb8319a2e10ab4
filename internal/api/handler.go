package api

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"local-llm-chat/internal/assembler"
	"local-llm-chat/internal/chat"
	"local-llm-chat/internal/db"
	"local-llm-chat/internal/embeddings"
	"local-llm-chat/internal/files"
	"local-llm-chat/internal/models"
	"local-llm-chat/internal/search"
)

//go:embed templates/*.html
var templateFS embed.FS

const maxUploadBytes = 32 << 20

type Handler struct {
	store         *db.Database
	chats         *chat.Service
	embeddings    *embeddings.Service
	search        search.Provider
	files         *files.Storage
	validate      *validator.Validate
	templates     *template.Template
	searchTimeout time.Duration
	embedTimeout  time.Duration
	logger        *zap.Logger
}

func NewHandler(store *db.Database, chats *chat.Service, embedSvc *embeddings.Service,
	searchProvider search.Provider, fileStore *files.Storage,
	searchTimeout, embedTimeout time.Duration, logger *zap.Logger) *Handler {
	return &Handler{
		store:         store,
		chats:         chats,
		embeddings:    embedSvc,
		search:        searchProvider,
		files:         fileStore,
		validate:      validator.New(),
		templates:     template.Must(template.ParseFS(templateFS, "templates/*.html")),
		searchTimeout: searchTimeout,
		embedTimeout:  embedTimeout,
		logger:        logger,
	}
}

// Routes registers every endpoint on a fresh mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Server-rendered pages.
	mux.HandleFunc("GET /{$}", h.ChatsPage)
	mux.HandleFunc("GET /chats", h.ChatsPage)
	mux.HandleFunc("POST /chats/new", h.NewChatRedirect)
	mux.HandleFunc("POST /chats/{chatID}/delete", h.DeleteChatRedirect)
	mux.HandleFunc("GET /chat/{chatID}", h.ChatPage)

	// JSON API.
	mux.HandleFunc("POST /api/chats", h.CreateChat)
	mux.HandleFunc("GET /api/chats", h.ListChats)
	mux.HandleFunc("DELETE /api/chats/{chatID}", h.DeleteChat)
	mux.HandleFunc("GET /api/chats/{chatID}/messages", h.GetMessages)
	mux.HandleFunc("POST /api/chats/{chatID}/messages", h.PostMessage)
	mux.HandleFunc("POST /api/chats/{chatID}/rename", h.RenameChat)
	mux.HandleFunc("GET /api/chats/{chatID}/name", h.GetChatName)
	mux.HandleFunc("POST /api/embeddings", h.CreateEmbedding)
	mux.HandleFunc("GET /api/embeddings/search", h.SearchEmbeddings)
	mux.HandleFunc("POST /api/files", h.UploadFile)
	mux.HandleFunc("GET /api/files/{name}", h.DownloadFile)
	mux.HandleFunc("DELETE /api/files/{name}", h.DeleteFile)
	mux.HandleFunc("GET /api/search", h.WebSearch)

	return mux
}

// error taxonomy → status codes: not found 404, invalid input 400,
// generation failure 502, anything else 500.
func (h *Handler) writeError(w http.ResponseWriter, err error, context string) {
	h.logger.Error(context, zap.Error(err))
	switch {
	case errors.Is(err, db.ErrNotFound) || errors.Is(err, files.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, db.ErrEmptyName):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, chat.ErrGeneration):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

// --- pages ---

type chatsPageData struct {
	Chats []models.ChatSummary
}

func (h *Handler) ChatsPage(w http.ResponseWriter, r *http.Request) {
	chats, err := h.store.ListChats(r.Context())
	if err != nil {
		h.writeError(w, err, "failed to list chats")
		return
	}
	if err := h.templates.ExecuteTemplate(w, "chats.html", chatsPageData{Chats: chats}); err != nil {
		h.logger.Error("failed to render chats page", zap.Error(err))
	}
}

type chatPageData struct {
	ChatID  string
	Name    string
	History []models.Message
}

func (h *Handler) ChatPage(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("chatID")

	history, err := h.store.GetHistory(r.Context(), chatID)
	if err != nil {
		h.writeError(w, err, "failed to load chat page")
		return
	}
	name, err := h.store.GetChatName(r.Context(), chatID)
	if err != nil {
		h.writeError(w, err, "failed to load chat name")
		return
	}

	data := chatPageData{ChatID: chatID, Name: name, History: history}
	if err := h.templates.ExecuteTemplate(w, "chat.html", data); err != nil {
		h.logger.Error("failed to render chat page", zap.Error(err))
	}
}

func (h *Handler) NewChatRedirect(w http.ResponseWriter, r *http.Request) {
	created, err := h.store.CreateChat(r.Context())
	if err != nil {
		h.writeError(w, err, "failed to create chat")
		return
	}
	http.Redirect(w, r, "/chat/"+created.ID, http.StatusSeeOther)
}

func (h *Handler) DeleteChatRedirect(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteChat(r.Context(), r.PathValue("chatID")); err != nil {
		h.writeError(w, err, "failed to delete chat")
		return
	}
	http.Redirect(w, r, "/chats", http.StatusSeeOther)
}

// --- chats API ---

func (h *Handler) CreateChat(w http.ResponseWriter, r *http.Request) {
	created, err := h.store.CreateChat(r.Context())
	if err != nil {
		h.writeError(w, err, "failed to create chat")
		return
	}
	h.writeJSON(w, created)
}

func (h *Handler) ListChats(w http.ResponseWriter, r *http.Request) {
	chats, err := h.store.ListChats(r.Context())
	if err != nil {
		h.writeError(w, err, "failed to list chats")
		return
	}
	h.writeJSON(w, chats)
}

func (h *Handler) DeleteChat(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteChat(r.Context(), r.PathValue("chatID")); err != nil {
		h.writeError(w, err, "failed to delete chat")
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	history, err := h.store.GetHistory(r.Context(), r.PathValue("chatID"))
	if err != nil {
		h.writeError(w, err, "failed to get history")
		return
	}
	h.writeJSON(w, history)
}

type renameRequest struct {
	NewName string `json:"new_name"`
}

func (h *Handler) RenameChat(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.store.RenameChat(r.Context(), r.PathValue("chatID"), req.NewName); err != nil {
		h.writeError(w, err, "failed to rename chat")
		return
	}
	h.writeJSON(w, map[string]string{"status": "success", "new_name": strings.TrimSpace(req.NewName)})
}

func (h *Handler) GetChatName(w http.ResponseWriter, r *http.Request) {
	name, err := h.store.GetChatName(r.Context(), r.PathValue("chatID"))
	if err != nil {
		h.writeError(w, err, "failed to get chat name")
		return
	}
	h.writeJSON(w, map[string]string{"name": name})
}

// --- messages ---

type messageRequest struct {
	Message       string `json:"message" validate:"required"`
	Model         string `json:"model"`
	MaxTokens     int    `json:"max_tokens" validate:"omitempty,min=50,max=4000"`
	UseWeb        bool   `json:"use_web"`
	UseEmbeddings bool   `json:"use_embeddings"`
}

func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	req, attachment, err := h.parseMessageRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	reply, err := h.chats.ProcessMessage(r.Context(), r.PathValue("chatID"), chat.Request{
		Message:       req.Message,
		Model:         req.Model,
		MaxTokens:     req.MaxTokens,
		UseWeb:        req.UseWeb,
		UseEmbeddings: req.UseEmbeddings,
		Attachment:    attachment,
	})
	if err != nil {
		h.writeError(w, err, "failed to process message")
		return
	}
	h.writeJSON(w, map[string]string{"response": reply})
}

// parseMessageRequest accepts either a JSON body or a multipart form with
// an optional file part.
func (h *Handler) parseMessageRequest(r *http.Request) (messageRequest, *assembler.Attachment, error) {
	var req messageRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, nil, fmt.Errorf("invalid request body")
		}
		return req, nil, nil
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return req, nil, fmt.Errorf("invalid multipart form")
	}
	req.Message = r.FormValue("message")
	req.Model = r.FormValue("model")
	if v := r.FormValue("max_tokens"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, nil, fmt.Errorf("invalid max_tokens")
		}
		req.MaxTokens = n
	}
	req.UseWeb = parseFlag(r.FormValue("use_web"))
	req.UseEmbeddings = parseFlag(r.FormValue("use_embeddings"))

	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return req, nil, nil
	}
	if err != nil {
		return req, nil, fmt.Errorf("invalid file part")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return req, nil, fmt.Errorf("failed to read file part")
	}
	return req, &assembler.Attachment{Name: filepath.Base(header.Filename), Data: data}, nil
}

// --- embeddings ---

type embeddingRequest struct {
	Text string `json:"text" validate:"required"`
}

func (h *Handler) CreateEmbedding(w http.ResponseWriter, r *http.Request) {
	var req embeddingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := contextWithTimeout(r, h.embedTimeout)
	defer cancel()

	vector, err := h.embeddings.Create(ctx, req.Text)
	if err != nil {
		h.writeError(w, err, "failed to create embedding")
		return
	}
	h.writeJSON(w, map[string]any{"text": req.Text, "dimension": len(vector)})
}

func (h *Handler) SearchEmbeddings(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		http.Error(w, "query parameter 'q' is required", http.StatusBadRequest)
		return
	}
	topK := 3
	if v := r.URL.Query().Get("top_k"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "invalid top_k", http.StatusBadRequest)
			return
		}
		topK = n
	}

	ctx, cancel := contextWithTimeout(r, h.embedTimeout)
	defer cancel()

	matches, err := h.embeddings.SearchSimilar(ctx, query, topK)
	if err != nil {
		h.writeError(w, err, "failed to search embeddings")
		return
	}
	h.writeJSON(w, matches)
}

// --- files ---

func (h *Handler) UploadFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file part is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, err, "failed to read upload")
		return
	}
	path, err := h.files.Save(data, header.Filename)
	if err != nil {
		h.writeError(w, err, "failed to save upload")
		return
	}
	h.writeJSON(w, map[string]string{"filename": filepath.Base(path)})
}

func (h *Handler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	data, err := h.files.Read(name)
	if err != nil {
		h.writeError(w, err, "failed to read file")
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(name)))
	w.Write(data)
}

func (h *Handler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	if err := h.files.Delete(r.PathValue("name")); err != nil {
		h.writeError(w, err, "failed to delete file")
		return
	}
	w.WriteHeader(http.StatusOK)
}

// --- search passthrough ---

func (h *Handler) WebSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		http.Error(w, "query parameter 'q' is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := contextWithTimeout(r, h.searchTimeout)
	defer cancel()

	results, err := h.search.Search(ctx, query)
	if err != nil {
		h.writeError(w, err, "web search failed")
		return
	}
	h.writeJSON(w, map[string]string{"query": query, "results": results})
}

// parseFlag covers both JSON-style booleans and HTML checkbox values.
func parseFlag(v string) bool {
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return strings.EqualFold(v, "on")
}

func contextWithTimeout(r *http.Request, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return r.Context(), func() {}
	}
	return context.WithTimeout(r.Context(), d)
}
