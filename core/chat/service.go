package chat

import (
	"context"

	"github.com/pkg/errors"
)

type (
	Repository interface {
		CreateMessage(ctx context.Context, msg Message) (Message, error)
		CreateGroupMessage(ctx context.Context, msg Message) (Message, error)
		// GetConversation returns direct messages exchanged between the two
		// users, oldest first.
		GetConversation(ctx context.Context, userA, userB string) ([]Message, error)
		GetGroupMessages(ctx context.Context, groupID string) ([]Message, error)
	}

	Service interface {
		Save(ctx context.Context, sr SendRequest) (Message, error)
		Conversation(ctx context.Context, userA, userB string) ([]Message, error)
		GroupHistory(ctx context.Context, groupID string) ([]Message, error)
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) *service {
	return &service{repo: repo}
}

// Save persists the request in the store matching its kind. The returned
// Message carries the store-assigned ID and timestamp.
func (svc *service) Save(ctx context.Context, sr SendRequest) (Message, error) {
	msg := Message{
		From:     sr.From,
		FromName: sr.FromName,
		Content:  sr.Content,
	}
	switch sr.Kind {
	case KindDirect:
		msg.To = sr.To
		return svc.repo.CreateMessage(ctx, msg)
	case KindGroup:
		msg.GroupID = sr.GroupID
		return svc.repo.CreateGroupMessage(ctx, msg)
	default:
		return Message{}, errors.Wrapf(ErrUnknownKind, "%q", sr.Kind)
	}
}

func (svc *service) Conversation(ctx context.Context, userA, userB string) ([]Message, error) {
	return svc.repo.GetConversation(ctx, userA, userB)
}

func (svc *service) GroupHistory(ctx context.Context, groupID string) ([]Message, error) {
	return svc.repo.GetGroupMessages(ctx, groupID)
}
