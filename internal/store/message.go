package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"courier.chat/relay/core/db"
	"courier.chat/relay/internal/model"
)

type messageStore struct {
	q db.Querier
}

func newMessageStore(q db.Querier) MessageStore {
	return &messageStore{q: q}
}

func (s *messageStore) ListByConversation(ctx context.Context, conversationID int64) ([]model.Message, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, conversation_id, role, content, meta, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *msg)
	}
	return out, rows.Err()
}

func (s *messageStore) Append(ctx context.Context, msg *model.Message) error {
	meta, err := marshalMeta(msg.Meta)
	if err != nil {
		return err
	}

	row := s.q.QueryRow(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, meta, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING created_at`,
		msg.ID, msg.ConversationID, msg.Role, msg.Content, meta)

	return row.Scan(&msg.CreatedAt)
}

func (s *messageStore) AppendPair(ctx context.Context, user, assistant *model.Message) error {
	// Two inserts in one statement keep the pair atomic even when the caller
	// did not bind the store to a transaction.
	userMeta, err := marshalMeta(user.Meta)
	if err != nil {
		return err
	}
	assistantMeta, err := marshalMeta(assistant.Meta)
	if err != nil {
		return err
	}

	rows, err := s.q.Query(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, meta, created_at)
		VALUES
			($1, $2, $3, $4, $5, now()),
			($6, $7, $8, $9, $10, now())
		RETURNING id, created_at`,
		user.ID, user.ConversationID, user.Role, user.Content, userMeta,
		assistant.ID, assistant.ConversationID, assistant.Role, assistant.Content, assistantMeta)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var createdAt time.Time
		if err := rows.Scan(&id, &createdAt); err != nil {
			return err
		}
		switch id {
		case user.ID:
			user.CreatedAt = createdAt
		case assistant.ID:
			assistant.CreatedAt = createdAt
		}
	}
	return rows.Err()
}

func (s *messageStore) CountByConversation(ctx context.Context, conversationID int64) (int, error) {
	var count int
	err := s.q.QueryRow(ctx, `
		SELECT count(*) FROM messages WHERE conversation_id = $1`, conversationID).Scan(&count)
	return count, err
}

func scanMessage(row pgx.Row) (*model.Message, error) {
	var msg model.Message
	var meta []byte
	if err := row.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &meta, &msg.CreatedAt); err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		var m model.MessageMeta
		if err := json.Unmarshal(meta, &m); err != nil {
			return nil, fmt.Errorf("decoding message meta: %w", err)
		}
		msg.Meta = &m
	}
	return &msg, nil
}

func marshalMeta(meta *model.MessageMeta) ([]byte, error) {
	if meta == nil {
		return nil, nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encoding message meta: %w", err)
	}
	return b, nil
}
