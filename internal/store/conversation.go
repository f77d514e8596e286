package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"courier.chat/relay/core/db"
	"courier.chat/relay/internal/model"
)

type conversationStore struct {
	q db.Querier
}

func newConversationStore(q db.Querier) ConversationStore {
	return &conversationStore{q: q}
}

const conversationColumns = `
	id, user_id, project_id, title, provider, model,
	summary, summary_updated_at, summary_message_count,
	created_at, updated_at`

func (s *conversationStore) GetByID(ctx context.Context, id int64) (*model.Conversation, error) {
	row := s.q.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE id = $1 AND deleted_at IS NULL`, id)

	conv, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return conv, nil
}

func (s *conversationStore) Create(ctx context.Context, conv *model.Conversation) error {
	row := s.q.QueryRow(ctx, `
		INSERT INTO conversations (id, user_id, project_id, title, provider, model, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING `+conversationColumns,
		conv.ID, conv.UserID, conv.ProjectID, conv.Title, conv.Provider, conv.Model)

	created, err := scanConversation(row)
	if err != nil {
		return err
	}
	*conv = *created
	return nil
}

func (s *conversationStore) ListByOwnerProject(ctx context.Context, userID, projectID int64) ([]model.Conversation, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE user_id = $1 AND project_id = $2 AND deleted_at IS NULL
		ORDER BY updated_at DESC`, userID, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *conv)
	}
	return out, rows.Err()
}

func (s *conversationStore) UpdateTitleIfPlaceholder(ctx context.Context, id int64, title string) (bool, error) {
	tag, err := s.q.Exec(ctx, `
		UPDATE conversations
		SET title = $2, updated_at = now()
		WHERE id = $1 AND title = $3 AND deleted_at IS NULL`,
		id, title, model.PlaceholderTitle)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *conversationStore) UpdateSummary(ctx context.Context, id int64, summary string, messageCount int, updatedAt time.Time) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE conversations
		SET summary = $2, summary_message_count = $3, summary_updated_at = $4
		WHERE id = $1 AND deleted_at IS NULL`,
		id, summary, messageCount, updatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *conversationStore) ClearSummary(ctx context.Context, id int64) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE conversations
		SET summary = NULL, summary_message_count = NULL, summary_updated_at = NULL
		WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *conversationStore) UpdateSettings(ctx context.Context, id int64, provider, modelName string) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE conversations
		SET provider = $2, model = $3
		WHERE id = $1 AND deleted_at IS NULL`,
		id, provider, modelName)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *conversationStore) Touch(ctx context.Context, id int64, at time.Time) error {
	_, err := s.q.Exec(ctx, `
		UPDATE conversations SET updated_at = $2 WHERE id = $1`, id, at)
	return err
}

func (s *conversationStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE conversations SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanConversation(row pgx.Row) (*model.Conversation, error) {
	var conv model.Conversation
	err := row.Scan(
		&conv.ID, &conv.UserID, &conv.ProjectID, &conv.Title,
		&conv.Provider, &conv.Model,
		&conv.Summary, &conv.SummaryUpdatedAt, &conv.SummaryMessageCount,
		&conv.CreatedAt, &conv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}
