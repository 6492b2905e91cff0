package dummydb

import (
	"context"

	"github.com/enlighten-ed/backend/core/attendance"
)

type attendanceRepository struct {
	db *attendanceTable
}

var _ attendance.Repository = (*attendanceRepository)(nil)

func NewAttendanceRepository(db *DB) *attendanceRepository {
	return &attendanceRepository{db: db.attendance}
}

func (repo *attendanceRepository) CreateAttendanceRecord(_ context.Context, rec attendance.Record) (attendance.Record, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.nextID++
	rec.ID = repo.db.nextID
	repo.db.records = append(repo.db.records, rec)
	return rec, nil
}

func (repo *attendanceRepository) GetMeetingAttendance(_ context.Context, meetingID string) ([]attendance.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var recs []attendance.Record
	for _, rec := range repo.db.records {
		if rec.MeetingID == meetingID {
			recs = append(recs, rec)
		}
	}
	return recs, nil
}
