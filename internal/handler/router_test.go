package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zhouzirui/xiaolang/backend/internal/service/pipeline"
	"github.com/zhouzirui/xiaolang/backend/internal/testutil"
)

type echoProcessor struct{}

func (echoProcessor) Process(_ context.Context, ev pipeline.Event) (pipeline.Reply, error) {
	text, err := pipeline.ParseText(ev.Content)
	return pipeline.Reply{Text: "echo " + text}, err
}

func newTestRouter(t *testing.T, ready func(context.Context) error, webhook http.Handler) http.Handler {
	t.Helper()
	return NewRouter(Deps{
		Personas: testutil.Personas(t),
		Chat:     echoProcessor{},
		Webhook:  webhook,
		Ready:    ready,
	})
}

func TestHealthz(t *testing.T) {
	resp := httptest.NewRecorder()
	newTestRouter(t, nil, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	down := func(context.Context) error { return errors.New("redis down") }
	newTestRouter(t, down, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
}

func TestWebhookMountedOnlyWhenConfigured(t *testing.T) {
	called := false
	webhook := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	resp := httptest.NewRecorder()
	newTestRouter(t, nil, webhook).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader(`{}`)))
	if !called || resp.Code != http.StatusOK {
		t.Fatalf("webhook not served: called=%v code=%d", called, resp.Code)
	}

	resp = httptest.NewRecorder()
	newTestRouter(t, nil, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader(`{}`)))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without webhook, got %d", resp.Code)
	}
}

func TestChatRoute(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"userId":"u1","message":"你好"}`))
	resp := httptest.NewRecorder()
	newTestRouter(t, nil, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), `"reply":"echo 你好"`) {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
	if resp.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("expected CORS headers on /api routes")
	}
}
