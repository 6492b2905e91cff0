package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/enlighten-ed/backend/core/chat"
)

type chatRepository struct {
	db *sqlx.DB
}

var _ chat.Repository = (*chatRepository)(nil)

func NewChatRepository(db *sqlx.DB) *chatRepository {
	return &chatRepository{db: db}
}

func (repo *chatRepository) CreateMessage(ctx context.Context, msg chat.Message) (chat.Message, error) {
	query := `
		INSERT INTO messages (msg_from, msg_to, msg_from_name, msg_content)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`
	err := repo.db.QueryRowContext(ctx, query,
		msg.From, msg.To, msg.FromName, msg.Content,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return chat.Message{}, errors.Wrap(err, "inserting message")
	}
	return msg, nil
}

func (repo *chatRepository) CreateGroupMessage(ctx context.Context, msg chat.Message) (chat.Message, error) {
	query := `
		INSERT INTO group_messages (msg_from, msg_from_name, msg_content, group_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`
	err := repo.db.QueryRowContext(ctx, query,
		msg.From, msg.FromName, msg.Content, msg.GroupID,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return chat.Message{}, errors.Wrap(err, "inserting group message")
	}
	return msg, nil
}

func (repo *chatRepository) GetConversation(ctx context.Context, userA, userB string) ([]chat.Message, error) {
	var msgs []chat.Message
	query := `
		SELECT id, msg_from, msg_to, msg_from_name, msg_content, created_at
		FROM messages
		WHERE (msg_from = $1 AND msg_to = $2) OR (msg_from = $2 AND msg_to = $1)
		ORDER BY created_at, id`
	if err := repo.db.SelectContext(ctx, &msgs, query, userA, userB); err != nil {
		return nil, errors.Wrap(err, "querying conversation")
	}
	return msgs, nil
}

func (repo *chatRepository) GetGroupMessages(ctx context.Context, groupID string) ([]chat.Message, error) {
	var msgs []chat.Message
	query := `
		SELECT id, msg_from, msg_from_name, msg_content, group_id, created_at
		FROM group_messages
		WHERE group_id = $1
		ORDER BY created_at, id`
	if err := repo.db.SelectContext(ctx, &msgs, query, groupID); err != nil {
		return nil, errors.Wrap(err, "querying group messages")
	}
	return msgs, nil
}
