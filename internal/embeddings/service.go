package embeddings

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Client produces embedding vectors for texts. Satisfied by langchaingo's
// ollama and openai LLM clients.
type Client interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// Match is one retrieval hit, ranked by dot-product similarity.
type Match struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

const schema = `
CREATE TABLE IF NOT EXISTS embeddings (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    text TEXT UNIQUE,
    embedding BLOB,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`

// Service stores embedding vectors as float32 blobs in its own sqlite file
// and answers similarity queries with a linear dot-product scan. The corpus
// is small; nothing fancier is warranted.
type Service struct {
	db     *sql.DB
	client Client
	logger *zap.Logger
}

func NewService(dbPath string, client Client, logger *zap.Logger) (*Service, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Service{db: db, client: client, logger: logger}, nil
}

func (s *Service) Close() error {
	return s.db.Close()
}

// Create embeds the text and upserts it into the store, returning the vector.
func (s *Service) Create(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.client.CreateEmbedding(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, errors.New("create embedding: provider returned no vector")
	}
	vector := vectors[0]

	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO embeddings (text, embedding) VALUES (?, ?)",
		text, encodeVector(vector))
	if err != nil {
		return nil, fmt.Errorf("store embedding: %w", err)
	}
	return vector, nil
}

// SearchSimilar embeds the query, scans every stored vector and returns the
// topK texts ranked by descending dot product. Rows with malformed or
// mismatched vectors are skipped, not fatal.
func (s *Service) SearchSimilar(ctx context.Context, query string, topK int) ([]Match, error) {
	vectors, err := s.client.CreateEmbedding(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, errors.New("embed query: provider returned no vector")
	}
	queryVec := vectors[0]

	rows, err := s.db.QueryContext(ctx, "SELECT text, embedding FROM embeddings")
	if err != nil {
		return nil, fmt.Errorf("scan embeddings: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var text string
		var blob []byte
		if err := rows.Scan(&text, &blob); err != nil {
			return nil, fmt.Errorf("scan embeddings: %w", err)
		}
		vector, err := decodeVector(blob)
		if err != nil || len(vector) != len(queryVec) {
			s.logger.Warn("skipping malformed embedding row", zap.String("text", text), zap.Error(err))
			continue
		}
		matches = append(matches, Match{Text: text, Score: dot(queryVec, vector)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan embeddings: %w", err)
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func encodeVector(vector []float32) []byte {
	buf := make([]byte, 4*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(blob))
	}
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vector, nil
}
