package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const (
	dateLayout      = "2006-01-02"
	defaultTimeZone = "Asia/Shanghai"
	maxSearchWindow = 366 * 24 * time.Hour

	emptyCalendarText = "您的日程空空如也"
	notFoundText      = "您的日程似乎不存在，是否输入有误？"
)

var shanghai = loadLocation(defaultTimeZone)

func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("CST", 8*3600)
	}
	return loc
}

// parseDateTime accepts RFC 3339 and zone-less ISO-8601 (read as Asia/Shanghai).
func parseDateTime(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", raw, shanghai); err == nil {
		return t, nil
	}
	return time.Time{}, invalidf("%s 必须是 ISO-8601 时间，例如 2024-06-01T10:15:30+08:00，收到 %q", field, raw)
}

func timeInfoParam(desc string, required bool) *schema.ParameterInfo {
	return &schema.ParameterInfo{
		Type:     schema.Object,
		Desc:     desc,
		Required: required,
		SubParams: map[string]*schema.ParameterInfo{
			"date":     {Type: schema.String, Desc: "日期，格式 yyyy-MM-dd。全天日程必须有值，非全天日程必须留空；全天日程的结束日期为 T+1"},
			"dateTime": {Type: schema.String, Desc: "ISO-8601 date-time，例如 2024-06-01T10:15:30+08:00。全天日程必须留空，非全天日程必须有值"},
			"timeZone": {Type: schema.String, Desc: "TZ database 时区名，固定为 Asia/Shanghai。全天日程必须留空"},
		},
	}
}

func timeInfoArg(args map[string]any, key string) (*TimeInfo, bool) {
	obj, ok := objectArg(args, key)
	if !ok {
		return nil, false
	}
	return &TimeInfo{
		Date:     stringArg(obj, "date"),
		DateTime: stringArg(obj, "dateTime"),
		TimeZone: stringArg(obj, "timeZone"),
	}, true
}

// normalizeBoundary checks a boundary against the all-day flag.
func normalizeBoundary(field string, t *TimeInfo, allDay bool) (*TimeInfo, error) {
	if allDay {
		if t.Date == "" {
			return nil, invalidf("全天日程的 %s.date 必须有值", field)
		}
		if _, err := time.Parse(dateLayout, t.Date); err != nil {
			return nil, invalidf("%s.date 必须是 yyyy-MM-dd，收到 %q", field, t.Date)
		}
		return &TimeInfo{Date: t.Date}, nil
	}
	if t.DateTime == "" {
		return nil, invalidf("非全天日程的 %s.dateTime 必须有值", field)
	}
	if _, err := parseDateTime(field+".dateTime", t.DateTime); err != nil {
		return nil, err
	}
	tz := t.TimeZone
	if tz == "" {
		tz = defaultTimeZone
	}
	return &TimeInfo{DateTime: t.DateTime, TimeZone: tz}, nil
}

// searchWindow resolves optional timeMin/timeMax into a bounded interval.
func searchWindow(args map[string]any, now time.Time) (time.Time, time.Time, error) {
	var start, end time.Time
	if raw := stringArg(args, "timeMin"); raw != "" {
		t, err := parseDateTime("timeMin", raw)
		if err != nil {
			return start, end, err
		}
		start = t
	}
	if raw := stringArg(args, "timeMax"); raw != "" {
		t, err := parseDateTime("timeMax", raw)
		if err != nil {
			return start, end, err
		}
		end = t
	}

	switch {
	case start.IsZero() && end.IsZero():
		start, end = now.AddDate(0, -1, 0), now.AddDate(0, 6, 0)
	case start.IsZero():
		start = end.AddDate(0, -6, 0)
	case end.IsZero():
		end = start.AddDate(0, 6, 0)
	}
	if !end.After(start) {
		return start, end, invalidf("timeMax 必须晚于 timeMin")
	}
	if end.Sub(start) > maxSearchWindow {
		return start, end, invalidf("timeMin 与 timeMax 最大差值为一年")
	}
	return start, end, nil
}

func windowParams() map[string]*schema.ParameterInfo {
	return map[string]*schema.ParameterInfo{
		"timeMin": {Type: schema.String, Desc: "日程开始时间的最小值，ISO-8601 date-time，可不填；timeMin 与 timeMax 最大差值为一年"},
		"timeMax": {Type: schema.String, Desc: "日程开始时间的最大值，ISO-8601 date-time，可不填；timeMin 与 timeMax 最大差值为一年"},
	}
}

// CheckScheduleTool queries free/busy state.
type CheckScheduleTool struct {
	definition
	cal CalendarClient
}

func newCheckSchedule(cal CalendarClient, clock func() time.Time) *CheckScheduleTool {
	return &CheckScheduleTool{
		cal: cal,
		definition: definition{
			name:   "check_schedule",
			desc:   "检查用户在某段时间内的忙闲状态。当前时间为{now}",
			action: "查询忙闲状态",
			clock:  clock,
			params: map[string]*schema.ParameterInfo{
				"userIds":   {Type: schema.String, Desc: "用户ID，多个用英文逗号分隔", Required: true},
				"startTime": {Type: schema.String, Desc: "查询开始时间，格式必须为 2020-01-01T10:15:30+08:00", Required: true},
				"endTime":   {Type: schema.String, Desc: "查询结束时间，格式必须为 2020-01-01T10:15:30+08:00", Required: true},
			},
		},
	}
}

type scheduleItem struct {
	Start  string `json:"start"`
	End    string `json:"end"`
	Status string `json:"status"`
}

type scheduleInformation struct {
	UserID        string         `json:"userId"`
	ScheduleItems []scheduleItem `json:"scheduleItems"`
}

func (t *CheckScheduleTool) Run(ctx context.Context, args map[string]any) (string, error) {
	start, err := parseDateTime("startTime", stringArg(args, "startTime"))
	if err != nil {
		return "", err
	}
	end, err := parseDateTime("endTime", stringArg(args, "endTime"))
	if err != nil {
		return "", err
	}
	if !end.After(start) {
		return "", invalidf("endTime 必须晚于 startTime")
	}

	var infos []scheduleInformation
	for _, uid := range strings.Split(stringArg(args, "userIds"), ",") {
		uid = strings.TrimSpace(uid)
		if uid == "" {
			continue
		}
		slots, err := t.cal.FreeBusy(ctx, uid, start, end)
		if err != nil {
			return "", err
		}
		info := scheduleInformation{UserID: uid, ScheduleItems: make([]scheduleItem, 0, len(slots))}
		for _, s := range slots {
			info.ScheduleItems = append(info.ScheduleItems, scheduleItem{
				Start:  s.Start.In(shanghai).Format(time.RFC3339),
				End:    s.End.In(shanghai).Format(time.RFC3339),
				Status: "BUSY",
			})
		}
		infos = append(infos, info)
	}
	if len(infos) == 0 {
		return "", invalidf("userIds 不能为空")
	}
	return toJSON(map[string]any{"scheduleInformation": infos})
}

// SetScheduleTool creates an event.
type SetScheduleTool struct {
	definition
	cal CalendarClient
}

func newSetSchedule(cal CalendarClient, clock func() time.Time) *SetScheduleTool {
	return &SetScheduleTool{
		cal: cal,
		definition: definition{
			name:   "set_schedule",
			desc:   "创建日程。当前时间为{now}",
			action: "创建日程",
			clock:  clock,
			params: map[string]*schema.ParameterInfo{
				"summary":     {Type: schema.String, Desc: "日程标题，最大不超过2048个字符", Required: true},
				"description": {Type: schema.String, Desc: "日程描述，最大不超过5000个字符"},
				"start":       timeInfoParam("日程开始时间", true),
				"end":         timeInfoParam("日程结束时间", true),
				"isAllDay":    {Type: schema.Boolean, Desc: "是否全天日程", Required: true},
			},
		},
	}
}

func (t *SetScheduleTool) Run(ctx context.Context, args map[string]any) (string, error) {
	allDay := boolArg(args, "isAllDay")
	rawStart, _ := timeInfoArg(args, "start")
	rawEnd, _ := timeInfoArg(args, "end")

	start, err := normalizeBoundary("start", rawStart, allDay)
	if err != nil {
		return "", err
	}
	end, err := normalizeBoundary("end", rawEnd, allDay)
	if err != nil {
		return "", err
	}

	summary := stringArg(args, "summary")
	if summary == "" {
		return "", invalidf("summary 不能为空")
	}
	if _, err := t.cal.CreateEvent(ctx, EventInput{
		Summary:     summary,
		Description: stringArg(args, "description"),
		Start:       start,
		End:         end,
		IsAllDay:    allDay,
	}); err != nil {
		return "", err
	}
	return "成功创建日程: " + summary, nil
}

// SearchScheduleTool lists events in a window.
type SearchScheduleTool struct {
	definition
	cal CalendarClient
}

func newSearchSchedule(cal CalendarClient, clock func() time.Time) *SearchScheduleTool {
	return &SearchScheduleTool{
		cal: cal,
		definition: definition{
			name:   "search_schedule",
			desc:   "查询日程。当前时间为{now}",
			action: "查询日程",
			clock:  clock,
			params: windowParams(),
		},
	}
}

func (t *SearchScheduleTool) Run(ctx context.Context, args map[string]any) (string, error) {
	start, end, err := searchWindow(args, t.now())
	if err != nil {
		return "", err
	}
	events, err := t.cal.ListEvents(ctx, start, end)
	if err != nil {
		return "", err
	}
	if len(events) == 0 {
		return emptyCalendarText, nil
	}
	return toJSON(map[string]any{"events": events})
}

// ModifyScheduleTool finds one event and patches it.
type ModifyScheduleTool struct {
	definition
	cal    CalendarClient
	picker model.BaseChatModel
}

func newModifySchedule(cal CalendarClient, picker model.BaseChatModel, clock func() time.Time) *ModifyScheduleTool {
	params := windowParams()
	params["summary"] = &schema.ParameterInfo{Type: schema.String, Desc: "新的日程标题，最大不超过2048个字符"}
	params["description"] = &schema.ParameterInfo{Type: schema.String, Desc: "新的日程描述，最大不超过5000个字符"}
	params["start"] = timeInfoParam("新的日程开始时间", false)
	params["end"] = timeInfoParam("新的日程结束时间", false)

	return &ModifyScheduleTool{
		cal:    cal,
		picker: picker,
		definition: definition{
			name:   "modify_schedule",
			desc:   "修改日程。timeMin/timeMax 用于定位要修改的日程，其余字段为修改后的内容。当前时间为{now}",
			action: "修改日程",
			clock:  clock,
			params: params,
		},
	}
}

func (t *ModifyScheduleTool) Run(ctx context.Context, args map[string]any) (string, error) {
	start, end, err := searchWindow(args, t.now())
	if err != nil {
		return "", err
	}
	events, err := t.cal.ListEvents(ctx, start, end)
	if err != nil {
		return "", err
	}
	if len(events) == 0 {
		return emptyCalendarText, nil
	}

	rawStart, hasStart := timeInfoArg(args, "start")
	rawEnd, hasEnd := timeInfoArg(args, "end")
	request := fmt.Sprintf("description: %s, start: %s, end: %s, summary: %s",
		stringArg(args, "description"), describeTime(rawStart), describeTime(rawEnd), stringArg(args, "summary"))

	match, err := FindPreciseOrder(ctx, t.picker, request, events)
	if errors.Is(err, ErrTargetNotFound) {
		return notFoundText, nil
	}
	if err != nil {
		return "", err
	}

	patch := EventInput{
		Summary:     stringArg(args, "summary"),
		Description: stringArg(args, "description"),
		IsAllDay:    match.IsAllDay,
	}
	if hasStart {
		if patch.Start, err = normalizeBoundary("start", rawStart, match.IsAllDay); err != nil {
			return "", err
		}
	}
	if hasEnd {
		if patch.End, err = normalizeBoundary("end", rawEnd, match.IsAllDay); err != nil {
			return "", err
		}
	}
	if patch.Summary == "" && patch.Description == "" && patch.Start == nil && patch.End == nil {
		return "", invalidf("没有需要修改的内容")
	}

	if err := t.cal.PatchEvent(ctx, match.ID, patch); err != nil {
		return "", err
	}
	return "成功修改日程", nil
}

func describeTime(t *TimeInfo) string {
	if t == nil {
		return ""
	}
	if t.Date != "" {
		return t.Date
	}
	return t.DateTime
}

// DelScheduleTool is the propose half of deletion: it resolves the target and
// asks for confirmation without deleting anything.
type DelScheduleTool struct {
	definition
	cal    CalendarClient
	picker model.BaseChatModel
}

func newDelSchedule(cal CalendarClient, picker model.BaseChatModel, clock func() time.Time) *DelScheduleTool {
	return &DelScheduleTool{
		cal:    cal,
		picker: picker,
		definition: definition{
			name:   "del_schedule",
			desc:   "当用户要求删除日程时调用此工具，返回待确认的日程id，不会真正删除",
			action: "查找待删除日程",
			clock:  clock,
			params: map[string]*schema.ParameterInfo{
				"summary":     {Type: schema.String, Desc: "日程标题", Required: true},
				"description": {Type: schema.String, Desc: "日程描述"},
			},
		},
	}
}

func (t *DelScheduleTool) Run(ctx context.Context, args map[string]any) (string, error) {
	start, end, err := searchWindow(nil, t.now())
	if err != nil {
		return "", err
	}
	events, err := t.cal.ListEvents(ctx, start, end)
	if err != nil {
		return "", err
	}
	if len(events) == 0 {
		return emptyCalendarText, nil
	}

	request := fmt.Sprintf("description: %s, summary: %s", stringArg(args, "description"), stringArg(args, "summary"))
	match, err := FindPreciseOrder(ctx, t.picker, request, events)
	if errors.Is(err, ErrTargetNotFound) {
		return notFoundText, nil
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("记录下日程id，然后询问用户是否确认要删除日程 %s，用户确认后再调用 confirm_del_schedule", match.ID), nil
}

// ConfirmDelScheduleTool deletes an event by explicit id.
type ConfirmDelScheduleTool struct {
	definition
	cal CalendarClient
}

func newConfirmDelSchedule(cal CalendarClient) *ConfirmDelScheduleTool {
	return &ConfirmDelScheduleTool{
		cal: cal,
		definition: definition{
			name:   "confirm_del_schedule",
			desc:   "当用户明确确认删除日程时调用此工具，需要 del_schedule 返回的日程id",
			action: "删除日程",
			params: map[string]*schema.ParameterInfo{
				"eventid": {Type: schema.String, Desc: "日程id", Required: true},
			},
		},
	}
}

func (t *ConfirmDelScheduleTool) Run(ctx context.Context, args map[string]any) (string, error) {
	id := stringArg(args, "eventid")
	if id == "" {
		return "", invalidf("eventid 不能为空")
	}
	if err := t.cal.DeleteEvent(ctx, id); err != nil {
		return "", err
	}
	return "成功删除日程", nil
}

func toJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(raw), nil
}
