package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/enlighten-ed/backend/core/attendance"
)

type attendanceRepository struct {
	db *sqlx.DB
}

var _ attendance.Repository = (*attendanceRepository)(nil)

func NewAttendanceRepository(db *sqlx.DB) *attendanceRepository {
	return &attendanceRepository{db: db}
}

func (repo *attendanceRepository) CreateAttendanceRecord(ctx context.Context, rec attendance.Record) (attendance.Record, error) {
	query := `
		INSERT INTO meeting_attendance (meeting_id, user_id, user_name, event, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	err := repo.db.QueryRowContext(ctx, query,
		rec.MeetingID, rec.UserID, rec.UserName, rec.Event, rec.CreatedAt,
	).Scan(&rec.ID)
	if err != nil {
		return attendance.Record{}, errors.Wrap(err, "inserting attendance record")
	}
	return rec, nil
}

func (repo *attendanceRepository) GetMeetingAttendance(ctx context.Context, meetingID string) ([]attendance.Record, error) {
	var recs []attendance.Record
	query := `
		SELECT id, meeting_id, user_id, user_name, event, created_at
		FROM meeting_attendance
		WHERE meeting_id = $1
		ORDER BY created_at, id`
	if err := repo.db.SelectContext(ctx, &recs, query, meetingID); err != nil {
		return nil, errors.Wrap(err, "querying attendance")
	}
	return recs, nil
}
