// Package store persists conversations and their messages in Postgres.
// Every query is scoped by the owning user id; rows belonging to other
// users are indistinguishable from missing rows.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"chatgateway/internal/domain"
)

// Conversation is one persisted exchange thread.
type Conversation struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"-"`
	Title     string    `json:"title"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is one persisted turn. Images holds the data URIs attached to a
// user turn, if any.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	Images         []string  `json:"images,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type ConversationStore struct {
	db *sql.DB
}

func NewConversationStore(db *sql.DB) *ConversationStore {
	return &ConversationStore{db: db}
}

func (s *ConversationStore) CreateConversation(ctx context.Context, userID, title, provider, model string) (*Conversation, error) {
	const query = `
		INSERT INTO conversations (user_id, title, provider, model)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	conv := Conversation{
		UserID:   userID,
		Title:    title,
		Provider: provider,
		Model:    model,
	}
	err := s.db.QueryRowContext(ctx, query, userID, title, provider, model).
		Scan(&conv.ID, &conv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}

	return &conv, nil
}

func (s *ConversationStore) GetConversation(ctx context.Context, userID string, id int64) (*Conversation, error) {
	const query = `
		SELECT id, user_id, title, provider, model, created_at
		FROM conversations
		WHERE id = $1 AND user_id = $2
	`

	var conv Conversation
	err := s.db.QueryRowContext(ctx, query, id, userID).
		Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.Provider, &conv.Model, &conv.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("fetching conversation: %w", err)
	}

	return &conv, nil
}

func (s *ConversationStore) ListConversations(ctx context.Context, userID string, limit, offset int) ([]Conversation, error) {
	const query = `
		SELECT id, user_id, title, provider, model, created_at
		FROM conversations
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var conversations []Conversation
	for rows.Next() {
		var conv Conversation
		if err := rows.Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.Provider, &conv.Model, &conv.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversations: %w", err)
	}

	return conversations, nil
}

func (s *ConversationStore) DeleteConversation(ctx context.Context, userID string, id int64) error {
	const query = `DELETE FROM conversations WHERE id = $1 AND user_id = $2`

	result, err := s.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking deleted rows: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}

	return nil
}

func (s *ConversationStore) AddMessage(ctx context.Context, userID string, conversationID int64, role, content string, images []string) (*Message, error) {
	// Ownership check and insert in one statement: the insert selects the
	// conversation id only when it belongs to the user.
	const query = `
		INSERT INTO messages (conversation_id, role, content, images)
		SELECT id, $3, $4, $5 FROM conversations WHERE id = $1 AND user_id = $2
		RETURNING id, created_at
	`

	encodedImages, err := encodeImages(images)
	if err != nil {
		return nil, err
	}

	msg := Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Images:         images,
	}
	err = s.db.QueryRowContext(ctx, query, conversationID, userID, role, content, encodedImages).
		Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("adding message: %w", err)
	}

	return &msg, nil
}

func (s *ConversationStore) ListMessages(ctx context.Context, userID string, conversationID int64) ([]Message, error) {
	// Ownership is rechecked here so that a foreign conversation id reads as
	// missing rather than leaking an empty history.
	if _, err := s.GetConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	const query = `
		SELECT id, conversation_id, role, content, images, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		var encodedImages sql.NullString
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &encodedImages, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		if msg.Images, err = decodeImages(encodedImages); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}

	return messages, nil
}

func encodeImages(images []string) (sql.NullString, error) {
	if len(images) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(images)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encoding images: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeImages(encoded sql.NullString) ([]string, error) {
	if !encoded.Valid || encoded.String == "" {
		return nil, nil
	}
	var images []string
	if err := json.Unmarshal([]byte(encoded.String), &images); err != nil {
		return nil, fmt.Errorf("decoding images: %w", err)
	}
	return images, nil
}
