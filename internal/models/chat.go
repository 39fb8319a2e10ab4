package models

import "time"

// Message roles. System messages are synthetic context injected before a
// generation call, never authored by a person or the model.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

type Message struct {
	ID        int64     `json:"id"`
	ChatID    string    `json:"chat_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type Chat struct {
	ID        string    `json:"chat_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatSummary is the aggregate row returned by the chat list.
type ChatSummary struct {
	ID           string    `json:"chat_id"`
	CreatedAt    time.Time `json:"created_at"`
	MessageCount int       `json:"message_count"`
	Name         string    `json:"name,omitempty"`
}
