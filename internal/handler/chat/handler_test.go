package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/xiaolang/backend/internal/model/mood"
	"github.com/zhouzirui/xiaolang/backend/internal/service/agent"
	"github.com/zhouzirui/xiaolang/backend/internal/service/ai"
	"github.com/zhouzirui/xiaolang/backend/internal/service/pipeline"
)

type stubProcessor struct {
	got   pipeline.Event
	reply pipeline.Reply
	err   error
}

func (s *stubProcessor) Process(_ context.Context, ev pipeline.Event) (pipeline.Reply, error) {
	s.got = ev
	return s.reply, s.err
}

func setupRouter(p Processor) *chi.Mux {
	r := chi.NewRouter()
	New(p, nil).RegisterRoutes(r)
	return r
}

func post(r http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestChatReturnsReply(t *testing.T) {
	stub := &stubProcessor{reply: pipeline.Reply{
		Text:    "亲，已经帮您创建待办",
		Feeling: mood.Feeling{Label: mood.Angry, Score: 9},
		Result: agent.Result{
			RunID:     "run-1",
			Model:     "primary",
			ToolCalls: []agent.ToolCallRecord{{Name: "create_todo", Output: "成功创建待办事项: 退款"}},
		},
	}}
	resp := post(setupRouter(stub), `{"userId":"u1","message":"我要退款！"}`)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var body chatResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Reply != "亲，已经帮您创建待办" || body.Feeling != mood.Angry || body.Score != 9 {
		t.Fatalf("unexpected body %+v", body)
	}
	if body.VoiceStyle != "friendly" {
		t.Fatalf("expected friendly voice style, got %q", body.VoiceStyle)
	}
	if len(body.ToolCalls) != 1 || body.ToolCalls[0].Name != "create_todo" {
		t.Fatalf("unexpected tool calls %+v", body.ToolCalls)
	}

	text, err := pipeline.ParseText(stub.got.Content)
	if err != nil || text != "我要退款！" {
		t.Fatalf("unexpected forwarded content %q (%v)", stub.got.Content, err)
	}
	if stub.got.SenderID != "u1" {
		t.Fatalf("unexpected sender %q", stub.got.SenderID)
	}
}

func TestChatValidatesPayload(t *testing.T) {
	r := setupRouter(&stubProcessor{})
	cases := []string{
		`{"message":"hi"}`,
		`{"userId":"u1","message":"  "}`,
		`{"userId":"u1"`,
		`{"userId":"u1","message":"hi","persona":"x"}`,
	}
	for _, body := range cases {
		if resp := post(r, body); resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, resp.Code)
		}
	}
}

func TestChatMapsErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("agent: think step 1: %w", ai.ErrAllModelsFailed), http.StatusBadGateway},
		{agent.ErrMaxIterations, http.StatusGatewayTimeout},
		{pipeline.ErrClosed, http.StatusServiceUnavailable},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		resp := post(setupRouter(&stubProcessor{err: tc.err}), `{"userId":"u1","message":"hi"}`)
		if resp.Code != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, resp.Code)
		}
	}
}
