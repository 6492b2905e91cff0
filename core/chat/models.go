package chat

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/enlighten-ed/backend/core"
)

// Message kinds. Direct messages go to a single recipient, group messages to
// every member of a group room.
const (
	KindDirect = "direct"
	KindGroup  = "group"
)

var ErrUnknownKind = errors.New("unknown message kind")

type (
	// Message is a persisted chat message. Direct messages carry To, group
	// messages carry GroupID; the two are mutually exclusive.
	Message struct {
		ID        int64     `db:"id" json:"id"`
		From      string    `db:"msg_from" json:"msg_from"`
		To        string    `db:"msg_to" json:"msg_to,omitempty"`
		FromName  string    `db:"msg_from_name" json:"msg_from_name"`
		Content   string    `db:"msg_content" json:"msg_content"`
		GroupID   string    `db:"group_id" json:"group_id,omitempty"`
		CreatedAt time.Time `db:"created_at" json:"created_at"` // UTC
	}

	// SendRequest is an inbound chat message before persistence.
	// CorrelationID is a client-chosen idempotency key echoed back in the
	// delivery acknowledgement; the server never interprets it.
	SendRequest struct {
		Kind          string `json:"kind" validate:"required,oneof=direct group"`
		From          string `json:"from" validate:"required"`
		FromName      string `json:"fromName" validate:"required"`
		To            string `json:"to" validate:"required_if=Kind direct"`
		GroupID       string `json:"groupId" validate:"required_if=Kind group"`
		Content       string `json:"content" validate:"required"`
		CorrelationID string `json:"correlationId"`
	}
)

func (sr *SendRequest) Validate(validate *validator.Validate) error {
	sr.Content = core.CleanString(sr.Content)
	sr.FromName = core.CleanString(sr.FromName)
	return validate.Struct(sr)
}

// Room returns the delivery room key for the request.
func (sr *SendRequest) Room() string {
	if sr.Kind == KindGroup {
		return "group:" + sr.GroupID
	}
	return "user:" + sr.To
}
