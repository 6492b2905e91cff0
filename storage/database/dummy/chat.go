package dummydb

import (
	"context"
	"time"

	"github.com/enlighten-ed/backend/core/chat"
)

type chatRepository struct {
	db *chatTables
}

var _ chat.Repository = (*chatRepository)(nil)

func NewChatRepository(db *DB) *chatRepository {
	return &chatRepository{db: db.chat}
}

func (repo *chatRepository) CreateMessage(_ context.Context, msg chat.Message) (chat.Message, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.nextID++
	msg.ID = repo.db.nextID
	msg.CreatedAt = time.Now().UTC()
	repo.db.direct = append(repo.db.direct, msg)
	return msg, nil
}

func (repo *chatRepository) CreateGroupMessage(_ context.Context, msg chat.Message) (chat.Message, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.nextID++
	msg.ID = repo.db.nextID
	msg.CreatedAt = time.Now().UTC()
	repo.db.group = append(repo.db.group, msg)
	return msg, nil
}

func (repo *chatRepository) GetConversation(_ context.Context, userA, userB string) ([]chat.Message, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var msgs []chat.Message
	for _, m := range repo.db.direct {
		if (m.From == userA && m.To == userB) || (m.From == userB && m.To == userA) {
			msgs = append(msgs, m)
		}
	}
	return msgs, nil
}

func (repo *chatRepository) GetGroupMessages(_ context.Context, groupID string) ([]chat.Message, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var msgs []chat.Message
	for _, m := range repo.db.group {
		if m.GroupID == groupID {
			msgs = append(msgs, m)
		}
	}
	return msgs, nil
}
