package attendance

import (
	"context"
	"sync"
	"time"
)

// dedupWindow suppresses duplicate reports of the same event for the same
// participant; meeting frontends tend to fire join/leave callbacks more than
// once on flaky connections.
const dedupWindow = 10 * time.Second

type (
	Repository interface {
		CreateAttendanceRecord(ctx context.Context, rec Record) (Record, error)
		GetMeetingAttendance(ctx context.Context, meetingID string) ([]Record, error)
	}

	Service interface {
		Report(ctx context.Context, rr ReportRequest) (Record, bool, error)
		MeetingHistory(ctx context.Context, meetingID string) ([]Record, error)
	}

	service struct {
		repo Repository

		mu   sync.Mutex
		seen map[string]time.Time // "<meeting>|<user>|<event>" -> last report

		nowFunc func() time.Time // mockable
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) *service {
	return &service{
		repo:    repo,
		seen:    make(map[string]time.Time),
		nowFunc: time.Now,
	}
}

// Report persists the event unless an identical one was recorded within the
// dedup window. The bool reports whether a record was written.
func (svc *service) Report(ctx context.Context, rr ReportRequest) (Record, bool, error) {
	key := rr.MeetingID + "|" + rr.UserID + "|" + rr.Event
	now := svc.nowFunc().UTC()

	svc.mu.Lock()
	if last, ok := svc.seen[key]; ok && now.Sub(last) < dedupWindow {
		svc.mu.Unlock()
		return Record{}, false, nil
	}
	svc.seen[key] = now
	svc.mu.Unlock()

	rec, err := svc.repo.CreateAttendanceRecord(ctx, Record{
		MeetingID: rr.MeetingID,
		UserID:    rr.UserID,
		UserName:  rr.UserName,
		Event:     rr.Event,
		CreatedAt: now,
	})
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

func (svc *service) MeetingHistory(ctx context.Context, meetingID string) ([]Record, error) {
	return svc.repo.GetMeetingAttendance(ctx, meetingID)
}
