package tools

import (
	"context"
	"time"
)

// TimeInfo is an event boundary: Date for all-day events, DateTime (RFC 3339)
// plus TimeZone otherwise.
type TimeInfo struct {
	Date     string `json:"date,omitempty"`
	DateTime string `json:"dateTime,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

// IsZero reports whether no field is set.
func (t TimeInfo) IsZero() bool {
	return t.Date == "" && t.DateTime == "" && t.TimeZone == ""
}

// Event is a calendar event as presented to the model.
type Event struct {
	ID          string   `json:"id"`
	Summary     string   `json:"summary"`
	Description string   `json:"description,omitempty"`
	Start       TimeInfo `json:"start"`
	End         TimeInfo `json:"end"`
	IsAllDay    bool     `json:"isAllDay"`
}

// EventInput creates or patches an event. Nil boundaries are left untouched on patch.
type EventInput struct {
	Summary     string
	Description string
	Start       *TimeInfo
	End         *TimeInfo
	IsAllDay    bool
}

// BusySlot is one busy interval from a free/busy query.
type BusySlot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// TaskInput creates a todo.
type TaskInput struct {
	Summary     string
	Description string
	Due         time.Time // zero means no due date
	Priority    int       // 0 none, 1 low .. 4 urgent
}

// Task is a created todo.
type Task struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
}

// CalendarClient is the calendar platform contract used by the schedule tools.
type CalendarClient interface {
	FreeBusy(ctx context.Context, userID string, start, end time.Time) ([]BusySlot, error)
	CreateEvent(ctx context.Context, in EventInput) (Event, error)
	ListEvents(ctx context.Context, start, end time.Time) ([]Event, error)
	PatchEvent(ctx context.Context, eventID string, in EventInput) error
	DeleteEvent(ctx context.Context, eventID string) error
}

// TaskClient creates todos on the task platform.
type TaskClient interface {
	CreateTask(ctx context.Context, in TaskInput) (Task, error)
}
