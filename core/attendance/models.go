package attendance

import "time"

// Event types reported by the meeting frontend.
const (
	EventJoined = "joined"
	EventLeft   = "left"
)

type (
	// Record is one attendance entry for a meeting participant.
	Record struct {
		ID        int64     `db:"id" json:"id"`
		MeetingID string    `db:"meeting_id" json:"meeting_id"`
		UserID    string    `db:"user_id" json:"user_id"`
		UserName  string    `db:"user_name" json:"user_name"`
		Event     string    `db:"event" json:"event"`
		CreatedAt time.Time `db:"created_at" json:"created_at"` // UTC
	}

	// ReportRequest is an inbound attendance event.
	ReportRequest struct {
		MeetingID string `json:"meetingId" validate:"required"`
		UserID    string `json:"userId" validate:"required"`
		UserName  string `json:"userName"`
		Event     string `json:"event" validate:"required,oneof=joined left"`
	}
)
