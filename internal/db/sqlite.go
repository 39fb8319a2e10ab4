package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"local-llm-chat/internal/models"
)

var (
	// ErrNotFound is returned when a referenced chat does not exist.
	ErrNotFound = errors.New("chat not found")
	// ErrEmptyName rejects renames whose name is blank after trimming.
	ErrEmptyName = errors.New("chat name must not be empty")
)

const schema = `
CREATE TABLE IF NOT EXISTS chats (
    chat_id TEXT PRIMARY KEY,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    chat_id TEXT NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (chat_id) REFERENCES chats(chat_id)
);

CREATE INDEX IF NOT EXISTS idx_messages_chat_id ON messages(chat_id);

CREATE TABLE IF NOT EXISTS chat_names (
    chat_id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    FOREIGN KEY (chat_id) REFERENCES chats(chat_id)
);`

type Database struct {
	db *sql.DB
}

func New(dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &Database{db: db}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// CreateChat allocates a fresh chat id and persists the chat record.
func (d *Database) CreateChat(ctx context.Context) (*models.Chat, error) {
	chat := &models.Chat{ID: uuid.NewString()}

	query := `
        INSERT INTO chats (chat_id, created_at)
        VALUES (?, CURRENT_TIMESTAMP)
        RETURNING created_at`

	if err := d.db.QueryRowContext(ctx, query, chat.ID).Scan(&chat.CreatedAt); err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	return chat, nil
}

func (d *Database) ChatExists(ctx context.Context, chatID string) (bool, error) {
	var one int
	err := d.db.QueryRowContext(ctx, "SELECT 1 FROM chats WHERE chat_id = ?", chatID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check chat: %w", err)
	}
	return true, nil
}

// AddMessage appends a message to an existing chat. The existence check and
// the insert run in one transaction so the message can never land in a chat
// deleted by a concurrent caller.
func (d *Database) AddMessage(ctx context.Context, msg *models.Message) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("add message: %w", err)
	}
	defer tx.Rollback()

	var one int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM chats WHERE chat_id = ?", msg.ChatID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("add message: %w", err)
	}

	query := `
        INSERT INTO messages (chat_id, role, content, timestamp)
        VALUES (?, ?, ?, CURRENT_TIMESTAMP)
        RETURNING id, timestamp`

	if err := tx.QueryRowContext(ctx, query, msg.ChatID, msg.Role, msg.Content).Scan(&msg.ID, &msg.Timestamp); err != nil {
		return fmt.Errorf("add message: %w", err)
	}

	return tx.Commit()
}

// GetHistory returns every message of the chat in timestamp order, with the
// insertion id breaking same-second ties, so read order always equals append
// order. A chat with no messages yields an empty slice; an unknown chat
// yields ErrNotFound.
func (d *Database) GetHistory(ctx context.Context, chatID string) ([]models.Message, error) {
	exists, err := d.ChatExists(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}

	query := `
        SELECT id, chat_id, role, content, timestamp
        FROM messages
        WHERE chat_id = ?
        ORDER BY timestamp ASC, id ASC`

	rows, err := d.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.Role, &msg.Content, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("get history: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// DeleteChat removes the chat, its messages and its name. Deleting a chat
// that does not exist is not an error.
func (d *Database) DeleteChat(ctx context.Context, chatID string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE chat_id = ?", chatID); err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM chat_names WHERE chat_id = ?", chatID); err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM chats WHERE chat_id = ?", chatID); err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}

	return tx.Commit()
}

// RenameChat upserts the human-readable name of an existing chat.
func (d *Database) RenameChat(ctx context.Context, chatID, newName string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return ErrEmptyName
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("rename chat: %w", err)
	}
	defer tx.Rollback()

	var one int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM chats WHERE chat_id = ?", chatID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("rename chat: %w", err)
	}

	query := `
        INSERT INTO chat_names (chat_id, name) VALUES (?, ?)
        ON CONFLICT(chat_id) DO UPDATE SET name = excluded.name`

	if _, err := tx.ExecContext(ctx, query, chatID, newName); err != nil {
		return fmt.Errorf("rename chat: %w", err)
	}

	return tx.Commit()
}

// GetChatName returns the chat's name, falling back to the first eight
// characters of the id when no name has been set.
func (d *Database) GetChatName(ctx context.Context, chatID string) (string, error) {
	exists, err := d.ChatExists(ctx, chatID)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", ErrNotFound
	}

	var name string
	err = d.db.QueryRowContext(ctx, "SELECT name FROM chat_names WHERE chat_id = ?", chatID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		if len(chatID) > 8 {
			return chatID[:8], nil
		}
		return chatID, nil
	}
	if err != nil {
		return "", fmt.Errorf("get chat name: %w", err)
	}
	return name, nil
}

// ListChats returns an aggregate view across all chats, newest first.
func (d *Database) ListChats(ctx context.Context) ([]models.ChatSummary, error) {
	query := `
        SELECT chats.chat_id,
               chats.created_at,
               COUNT(messages.id) AS message_count,
               COALESCE(chat_names.name, '') AS name
        FROM chats
        LEFT JOIN messages ON chats.chat_id = messages.chat_id
        LEFT JOIN chat_names ON chats.chat_id = chat_names.chat_id
        GROUP BY chats.chat_id
        ORDER BY chats.created_at DESC, chats.rowid DESC`

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	chats := make([]models.ChatSummary, 0)
	for rows.Next() {
		var c models.ChatSummary
		if err := rows.Scan(&c.ID, &c.CreatedAt, &c.MessageCount, &c.Name); err != nil {
			return nil, fmt.Errorf("list chats: %w", err)
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}
