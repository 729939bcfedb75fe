package feishu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcalendar "github.com/larksuite/oapi-sdk-go/v3/service/calendar/v4"
	larktask "github.com/larksuite/oapi-sdk-go/v3/service/task/v2"

	"github.com/zhouzirui/xiaolang/backend/internal/service/tools"
)

const (
	// PrimaryCalendar resolves to the bot's primary calendar on first use.
	PrimaryCalendar = "primary"
	defaultTimeZone = "Asia/Shanghai"
	userIDType      = "open_id"
	listPageSize    = 500
	maxListPages    = 20
)

// Calendar implements tools.CalendarClient and tools.TaskClient.
type Calendar struct {
	client     *lark.Client
	calendarID string
	loc        *time.Location

	mu       sync.Mutex
	resolved string
}

var (
	_ tools.CalendarClient = (*Calendar)(nil)
	_ tools.TaskClient     = (*Calendar)(nil)
)

// NewCalendar operates on calendarID; "primary" or empty selects the primary calendar.
func NewCalendar(client *lark.Client, calendarID string) *Calendar {
	if calendarID == "" {
		calendarID = PrimaryCalendar
	}
	loc, err := time.LoadLocation(defaultTimeZone)
	if err != nil {
		loc = time.FixedZone("CST", 8*3600)
	}
	return &Calendar{client: client, calendarID: calendarID, loc: loc}
}

func (c *Calendar) id(ctx context.Context) (string, error) {
	if c.calendarID != PrimaryCalendar {
		return c.calendarID, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resolved != "" {
		return c.resolved, nil
	}

	resp, err := c.client.Calendar.V4.Calendar.Primary(ctx, larkcalendar.NewPrimaryCalendarReqBuilder().
		UserIdType(userIDType).
		Build())
	if err != nil {
		return "", fmt.Errorf("feishu primary calendar: %w", err)
	}
	if !resp.Success() {
		return "", apiError("primary calendar", resp.Code, resp.Msg, resp.RequestId())
	}
	if resp.Data == nil {
		return "", errors.New("feishu primary calendar: no calendar returned")
	}
	for _, item := range resp.Data.Calendars {
		if item != nil && item.Calendar != nil && deref(item.Calendar.CalendarId) != "" {
			c.resolved = deref(item.Calendar.CalendarId)
			return c.resolved, nil
		}
	}
	return "", errors.New("feishu primary calendar: no calendar returned")
}

// FreeBusy lists busy intervals of userID (an open_id) between start and end.
func (c *Calendar) FreeBusy(ctx context.Context, userID string, start, end time.Time) ([]tools.BusySlot, error) {
	req := larkcalendar.NewListFreebusyReqBuilder().
		UserIdType(userIDType).
		Body(larkcalendar.NewListFreebusyReqBodyBuilder().
			TimeMin(start.Format(time.RFC3339)).
			TimeMax(end.Format(time.RFC3339)).
			UserId(userID).
			Build()).
		Build()

	resp, err := c.client.Calendar.V4.Freebusy.List(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("feishu freebusy: %w", err)
	}
	if !resp.Success() {
		return nil, apiError("freebusy", resp.Code, resp.Msg, resp.RequestId())
	}
	if resp.Data == nil {
		return nil, nil
	}

	slots := make([]tools.BusySlot, 0, len(resp.Data.FreebusyList))
	for _, fb := range resp.Data.FreebusyList {
		if fb == nil {
			continue
		}
		s, err1 := time.Parse(time.RFC3339, deref(fb.StartTime))
		e, err2 := time.Parse(time.RFC3339, deref(fb.EndTime))
		if err1 != nil || err2 != nil {
			continue
		}
		slots = append(slots, tools.BusySlot{Start: s.In(c.loc), End: e.In(c.loc)})
	}
	return slots, nil
}

// CreateEvent creates an event on the calendar.
func (c *Calendar) CreateEvent(ctx context.Context, in tools.EventInput) (tools.Event, error) {
	calID, err := c.id(ctx)
	if err != nil {
		return tools.Event{}, err
	}
	body, err := c.eventBody(in)
	if err != nil {
		return tools.Event{}, err
	}

	resp, err := c.client.Calendar.V4.CalendarEvent.Create(ctx, larkcalendar.NewCreateCalendarEventReqBuilder().
		CalendarId(calID).
		UserIdType(userIDType).
		CalendarEvent(body).
		Build())
	if err != nil {
		return tools.Event{}, fmt.Errorf("feishu create event: %w", err)
	}
	if !resp.Success() {
		return tools.Event{}, apiError("create event", resp.Code, resp.Msg, resp.RequestId())
	}
	if resp.Data == nil || resp.Data.Event == nil {
		return tools.Event{}, errors.New("feishu create event: empty response")
	}
	return FromCalendarEvent(resp.Data.Event, c.loc), nil
}

// ListEvents returns events overlapping [start, end). Cancelled events are skipped.
func (c *Calendar) ListEvents(ctx context.Context, start, end time.Time) ([]tools.Event, error) {
	calID, err := c.id(ctx)
	if err != nil {
		return nil, err
	}

	var (
		events    []tools.Event
		pageToken string
	)
	for page := 0; page < maxListPages; page++ {
		builder := larkcalendar.NewListCalendarEventReqBuilder().
			CalendarId(calID).
			PageSize(listPageSize).
			StartTime(strconv.FormatInt(start.Unix(), 10)).
			EndTime(strconv.FormatInt(end.Unix(), 10))
		if pageToken != "" {
			builder = builder.PageToken(pageToken)
		}

		resp, err := c.client.Calendar.V4.CalendarEvent.List(ctx, builder.Build())
		if err != nil {
			return nil, fmt.Errorf("feishu list events: %w", err)
		}
		if !resp.Success() {
			return nil, apiError("list events", resp.Code, resp.Msg, resp.RequestId())
		}
		if resp.Data == nil {
			break
		}
		for _, item := range resp.Data.Items {
			if item == nil || deref(item.Status) == "cancelled" {
				continue
			}
			events = append(events, FromCalendarEvent(item, c.loc))
		}
		if resp.Data.HasMore == nil || !*resp.Data.HasMore {
			break
		}
		pageToken = deref(resp.Data.PageToken)
		if pageToken == "" {
			break
		}
	}
	return events, nil
}

// PatchEvent updates the fields set in in.
func (c *Calendar) PatchEvent(ctx context.Context, eventID string, in tools.EventInput) error {
	calID, err := c.id(ctx)
	if err != nil {
		return err
	}
	body, err := c.eventBody(in)
	if err != nil {
		return err
	}

	resp, err := c.client.Calendar.V4.CalendarEvent.Patch(ctx, larkcalendar.NewPatchCalendarEventReqBuilder().
		CalendarId(calID).
		EventId(eventID).
		UserIdType(userIDType).
		CalendarEvent(body).
		Build())
	if err != nil {
		return fmt.Errorf("feishu patch event: %w", err)
	}
	if !resp.Success() {
		return apiError("patch event", resp.Code, resp.Msg, resp.RequestId())
	}
	return nil
}

// DeleteEvent removes eventID without notifying attendees.
func (c *Calendar) DeleteEvent(ctx context.Context, eventID string) error {
	calID, err := c.id(ctx)
	if err != nil {
		return err
	}
	resp, err := c.client.Calendar.V4.CalendarEvent.Delete(ctx, larkcalendar.NewDeleteCalendarEventReqBuilder().
		CalendarId(calID).
		EventId(eventID).
		NeedNotification("false").
		Build())
	if err != nil {
		return fmt.Errorf("feishu delete event: %w", err)
	}
	if !resp.Success() {
		return apiError("delete event", resp.Code, resp.Msg, resp.RequestId())
	}
	return nil
}

// CreateTask files a todo through task v2.
func (c *Calendar) CreateTask(ctx context.Context, in tools.TaskInput) (tools.Task, error) {
	input, err := NewInputTask(in)
	if err != nil {
		return tools.Task{}, err
	}
	resp, err := c.client.Task.V2.Task.Create(ctx, larktask.NewCreateTaskReqBuilder().
		UserIdType(userIDType).
		InputTask(input).
		Build())
	if err != nil {
		return tools.Task{}, fmt.Errorf("feishu create task: %w", err)
	}
	if !resp.Success() {
		return tools.Task{}, apiError("create task", resp.Code, resp.Msg, resp.RequestId())
	}
	task := tools.Task{Summary: in.Summary}
	if resp.Data != nil && resp.Data.Task != nil {
		task.ID = deref(resp.Data.Task.Guid)
	}
	return task, nil
}

func (c *Calendar) eventBody(in tools.EventInput) (*larkcalendar.CalendarEvent, error) {
	b := larkcalendar.NewCalendarEventBuilder()
	if in.Summary != "" {
		b = b.Summary(in.Summary)
	}
	if in.Description != "" {
		b = b.Description(in.Description)
	}
	if in.Start != nil {
		ti, err := ToTimeInfo(*in.Start, c.loc)
		if err != nil {
			return nil, fmt.Errorf("start: %w", err)
		}
		b = b.StartTime(ti)
	}
	if in.End != nil {
		ti, err := ToTimeInfo(*in.End, c.loc)
		if err != nil {
			return nil, fmt.Errorf("end: %w", err)
		}
		b = b.EndTime(ti)
	}
	return b.Build(), nil
}

// ToTimeInfo converts a tool boundary to the calendar API form: a date for
// all-day boundaries, a unix-seconds timestamp plus zone otherwise. Zone-less
// date-times are read in loc.
func ToTimeInfo(t tools.TimeInfo, loc *time.Location) (*larkcalendar.TimeInfo, error) {
	if t.Date != "" {
		return larkcalendar.NewTimeInfoBuilder().Date(t.Date).Build(), nil
	}
	if t.DateTime == "" {
		return nil, errors.New("time boundary has neither date nor dateTime")
	}
	zone := t.TimeZone
	if zone == "" {
		zone = defaultTimeZone
	}
	if l, err := time.LoadLocation(zone); err == nil {
		loc = l
	}
	at, err := time.Parse(time.RFC3339, t.DateTime)
	if err != nil {
		at, err = time.ParseInLocation("2006-01-02T15:04:05", t.DateTime, loc)
		if err != nil {
			return nil, fmt.Errorf("invalid dateTime %q", t.DateTime)
		}
	}
	return larkcalendar.NewTimeInfoBuilder().
		Timestamp(strconv.FormatInt(at.Unix(), 10)).
		Timezone(zone).
		Build(), nil
}

// FromTimeInfo is the inverse of ToTimeInfo; timestamps are rendered as RFC 3339.
func FromTimeInfo(ti *larkcalendar.TimeInfo, loc *time.Location) tools.TimeInfo {
	if ti == nil {
		return tools.TimeInfo{}
	}
	if date := deref(ti.Date); date != "" {
		return tools.TimeInfo{Date: date, TimeZone: deref(ti.Timezone)}
	}
	sec, err := strconv.ParseInt(deref(ti.Timestamp), 10, 64)
	if err != nil {
		return tools.TimeInfo{TimeZone: deref(ti.Timezone)}
	}
	zone := deref(ti.Timezone)
	if l, err := time.LoadLocation(zone); zone != "" && err == nil {
		loc = l
	}
	return tools.TimeInfo{
		DateTime: time.Unix(sec, 0).In(loc).Format(time.RFC3339),
		TimeZone: zone,
	}
}

// FromCalendarEvent converts an API event for the tools.
func FromCalendarEvent(ev *larkcalendar.CalendarEvent, loc *time.Location) tools.Event {
	if ev == nil {
		return tools.Event{}
	}
	out := tools.Event{
		ID:          deref(ev.EventId),
		Summary:     deref(ev.Summary),
		Description: deref(ev.Description),
		Start:       FromTimeInfo(ev.StartTime, loc),
		End:         FromTimeInfo(ev.EndTime, loc),
	}
	out.IsAllDay = out.Start.Date != ""
	return out
}

// NewInputTask converts a todo request. Priority has no native field in task
// v2 and travels in the extra payload.
func NewInputTask(in tools.TaskInput) (*larktask.InputTask, error) {
	b := larktask.NewInputTaskBuilder().Summary(in.Summary)
	if in.Description != "" {
		b = b.Description(in.Description)
	}
	if !in.Due.IsZero() {
		b = b.Due(larktask.NewDueBuilder().
			Timestamp(strconv.FormatInt(in.Due.UnixMilli(), 10)).
			IsAllDay(false).
			Build())
	}
	if in.Priority > 0 {
		extra, err := json.Marshal(map[string]int{"priority": in.Priority})
		if err != nil {
			return nil, fmt.Errorf("encode task extra: %w", err)
		}
		b = b.Extra(string(extra))
	}
	return b.Build(), nil
}
