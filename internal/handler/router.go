package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/xiaolang/backend/internal/handler/chat"
	"github.com/zhouzirui/xiaolang/backend/internal/handler/persona"
	middlewarePkg "github.com/zhouzirui/xiaolang/backend/internal/middleware"
	personaModel "github.com/zhouzirui/xiaolang/backend/internal/model/persona"
	"github.com/zhouzirui/xiaolang/backend/pkg/utils"
)

// WebhookPath is where the Feishu event subscription posts.
const WebhookPath = "/webhook/event"

// Deps are the collaborators behind the HTTP surface.
type Deps struct {
	Personas personaModel.Store
	Chat     chat.Processor
	// Webhook serves Feishu event callbacks; nil in long-connection mode.
	Webhook http.Handler
	// Ready reports backing store health for /healthz; nil means always ready.
	Ready  func(ctx context.Context) error
	Logger *zap.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.Logger(deps.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", healthz(deps.Ready))

	if deps.Webhook != nil {
		r.Method(http.MethodPost, WebhookPath, deps.Webhook)
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(middlewarePkg.CORS)

		persona.New(deps.Personas).RegisterRoutes(api)
		if deps.Chat != nil {
			chat.New(deps.Chat, deps.Logger).RegisterRoutes(api)
		}
	})

	return r
}

func healthz(ready func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				utils.RespondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
				return
			}
		}
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
