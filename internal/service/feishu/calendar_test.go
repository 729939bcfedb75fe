package feishu

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/xiaolang/backend/internal/config"
	"github.com/zhouzirui/xiaolang/backend/internal/service/tools"
)

// newOpenAPI serves the tenant token endpoint plus the routes registered by mount.
func newOpenAPI(t *testing.T, mount func(r chi.Router)) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Post("/open-apis/auth/v3/tenant_access_token/internal", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"code": 0, "msg": "ok", "tenant_access_token": "t-test", "expire": 7200})
	})
	mount(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func newTestCalendar(t *testing.T, calendarID string, mount func(r chi.Router)) *Calendar {
	t.Helper()
	srv := newOpenAPI(t, mount)
	client := NewClient(config.FeishuConfig{AppID: "cli_test", AppSecret: "secret", BaseURL: srv.URL}, 5*time.Second, nil)
	return NewCalendar(client, calendarID)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(v)
}

func success(data any) map[string]any {
	out := map[string]any{"code": 0, "msg": "success"}
	if data != nil {
		out["data"] = data
	}
	return out
}

func apiEvent(id, status string) map[string]any {
	return map[string]any{
		"event_id":   id,
		"summary":    "会议 " + id,
		"status":     status,
		"start_time": map[string]any{"timestamp": "1714528800", "timezone": "Asia/Shanghai"},
		"end_time":   map[string]any{"timestamp": "1714532400", "timezone": "Asia/Shanghai"},
	}
}

type queryLog struct {
	mu    sync.Mutex
	paths []string
	query []url.Values
}

func (l *queryLog) record(r *http.Request) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.paths = append(l.paths, r.URL.Path)
	l.query = append(l.query, r.URL.Query())
}

func (l *queryLog) snapshot() ([]string, []url.Values) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.paths...), append([]url.Values(nil), l.query...)
}

func TestDeleteEventResolvesPrimaryOnceAndSkipsNotification(t *testing.T) {
	var primaryHits atomic.Int32
	var deletes queryLog
	cal := newTestCalendar(t, PrimaryCalendar, func(r chi.Router) {
		r.Post("/open-apis/calendar/v4/calendars/primary", func(w http.ResponseWriter, r *http.Request) {
			primaryHits.Add(1)
			assert.Equal(t, userIDType, r.URL.Query().Get("user_id_type"))
			writeJSON(w, success(map[string]any{
				"calendars": []any{map[string]any{"calendar": map[string]any{"calendar_id": "cal_primary"}}},
			}))
		})
		r.Delete("/open-apis/calendar/v4/calendars/{calendarID}/events/{eventID}", func(w http.ResponseWriter, r *http.Request) {
			deletes.record(r)
			writeJSON(w, success(map[string]any{}))
		})
	})

	ctx := context.Background()
	require.NoError(t, cal.DeleteEvent(ctx, "ev_1"))
	require.NoError(t, cal.DeleteEvent(ctx, "ev_2"))

	assert.Equal(t, int32(1), primaryHits.Load())
	paths, query := deletes.snapshot()
	assert.Equal(t, []string{
		"/open-apis/calendar/v4/calendars/cal_primary/events/ev_1",
		"/open-apis/calendar/v4/calendars/cal_primary/events/ev_2",
	}, paths)
	for _, q := range query {
		assert.Equal(t, "false", q.Get("need_notification"))
	}
}

func TestListEventsFollowsPagesAndSkipsCancelled(t *testing.T) {
	var lists queryLog
	cal := newTestCalendar(t, "cal_team", func(r chi.Router) {
		r.Get("/open-apis/calendar/v4/calendars/{calendarID}/events", func(w http.ResponseWriter, r *http.Request) {
			lists.record(r)
			if r.URL.Query().Get("page_token") == "" {
				writeJSON(w, success(map[string]any{
					"has_more":   true,
					"page_token": "p2",
					"items":      []any{apiEvent("ev_1", "confirmed"), apiEvent("ev_2", "cancelled")},
				}))
				return
			}
			writeJSON(w, success(map[string]any{
				"has_more": false,
				"items":    []any{apiEvent("ev_3", "tentative")},
			}))
		})
	})

	start := time.Date(2024, 5, 1, 0, 0, 0, 0, shanghai)
	end := start.Add(24 * time.Hour)
	events, err := cal.ListEvents(context.Background(), start, end)
	require.NoError(t, err)

	ids := make([]string, 0, len(events))
	for _, ev := range events {
		ids = append(ids, ev.ID)
	}
	assert.Equal(t, []string{"ev_1", "ev_3"}, ids)
	assert.Equal(t, "2024-05-01T10:00:00+08:00", events[0].Start.DateTime)

	paths, query := lists.snapshot()
	require.Len(t, query, 2)
	assert.Equal(t, "/open-apis/calendar/v4/calendars/cal_team/events", paths[0])
	assert.Equal(t, "500", query[0].Get("page_size"))
	assert.Equal(t, "1714492800", query[0].Get("start_time"))
	assert.Equal(t, "1714579200", query[0].Get("end_time"))
	assert.Equal(t, "p2", query[1].Get("page_token"))
}

func TestCalendarToleratesMissingData(t *testing.T) {
	cal := newTestCalendar(t, PrimaryCalendar, func(r chi.Router) {
		r.Post("/open-apis/calendar/v4/calendars/primary", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, success(nil))
		})
	})
	err := cal.DeleteEvent(context.Background(), "ev_1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no calendar returned")

	cal = newTestCalendar(t, "cal_team", func(r chi.Router) {
		r.Get("/open-apis/calendar/v4/calendars/{calendarID}/events", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, success(nil))
		})
		r.Post("/open-apis/calendar/v4/calendars/{calendarID}/events", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, success(nil))
		})
		r.Post("/open-apis/calendar/v4/freebusy/list", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, success(nil))
		})
	})
	ctx := context.Background()
	now := time.Now()

	events, err := cal.ListEvents(ctx, now, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, events)

	slots, err := cal.FreeBusy(ctx, "ou_1", now, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, slots)

	start := tools.TimeInfo{DateTime: "2024-05-01T10:00:00+08:00"}
	_, err = cal.CreateEvent(ctx, tools.EventInput{Summary: "周会", Start: &start, End: &start})
	assert.Error(t, err)
}

func readBody(r *http.Request) map[string]any {
	var body map[string]any
	raw, _ := io.ReadAll(r.Body)
	_ = json.Unmarshal(raw, &body)
	return body
}

func TestCreateEventSendsTimeInfo(t *testing.T) {
	bodies := make(chan map[string]any, 1)
	cal := newTestCalendar(t, "cal_team", func(r chi.Router) {
		r.Post("/open-apis/calendar/v4/calendars/{calendarID}/events", func(w http.ResponseWriter, r *http.Request) {
			bodies <- readBody(r)
			writeJSON(w, success(map[string]any{"event": apiEvent("ev_9", "confirmed")}))
		})
	})

	start := tools.TimeInfo{DateTime: "2024-05-01T10:00:00", TimeZone: "Asia/Shanghai"}
	end := tools.TimeInfo{DateTime: "2024-05-01T11:00:00", TimeZone: "Asia/Shanghai"}
	ev, err := cal.CreateEvent(context.Background(), tools.EventInput{Summary: "周会", Start: &start, End: &end})
	require.NoError(t, err)
	assert.Equal(t, "ev_9", ev.ID)

	body := <-bodies
	assert.Equal(t, "周会", body["summary"])
	startTime, _ := body["start_time"].(map[string]any)
	assert.Equal(t, "1714528800", startTime["timestamp"])
	assert.Equal(t, "Asia/Shanghai", startTime["timezone"])
}

func TestCalendarSurfacesAPIError(t *testing.T) {
	cal := newTestCalendar(t, "cal_team", func(r chi.Router) {
		r.Delete("/open-apis/calendar/v4/calendars/{calendarID}/events/{eventID}", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("X-Tt-Logid", "log-1")
			writeJSON(w, map[string]any{"code": 193001, "msg": "event not found"})
		})
	})

	err := cal.DeleteEvent(context.Background(), "ev_missing")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 193001, apiErr.Code)
	assert.Equal(t, "delete event", apiErr.Op)
	assert.Equal(t, "log-1", apiErr.RequestID)
}

func TestSendTextPostsToChat(t *testing.T) {
	var sent queryLog
	bodies := make(chan map[string]any, 1)
	srv := newOpenAPI(t, func(r chi.Router) {
		r.Post("/open-apis/im/v1/messages", func(w http.ResponseWriter, r *http.Request) {
			sent.record(r)
			bodies <- readBody(r)
			writeJSON(w, success(map[string]any{"message_id": "om_reply"}))
		})
	})
	sender := NewSender(NewClient(config.FeishuConfig{AppID: "cli_test", AppSecret: "secret", BaseURL: srv.URL}, 5*time.Second, nil))

	require.NoError(t, sender.SendText(context.Background(), "oc_1", "你好", "reply_om_1"))
	_, query := sent.snapshot()
	require.Len(t, query, 1)
	assert.Equal(t, "chat_id", query[0].Get("receive_id_type"))
	body := <-bodies
	assert.Equal(t, "oc_1", body["receive_id"])
	assert.Equal(t, "text", body["msg_type"])
	assert.Equal(t, "reply_om_1", body["uuid"])
	assert.JSONEq(t, `{"text":"你好"}`, body["content"].(string))
}
