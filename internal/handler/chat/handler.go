package chat

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/xiaolang/backend/internal/logging"
	"github.com/zhouzirui/xiaolang/backend/internal/model/mood"
	"github.com/zhouzirui/xiaolang/backend/internal/service/agent"
	"github.com/zhouzirui/xiaolang/backend/internal/service/ai"
	"github.com/zhouzirui/xiaolang/backend/internal/service/pipeline"
	"github.com/zhouzirui/xiaolang/backend/pkg/utils"
)

// Processor runs one message synchronously.
type Processor interface {
	Process(ctx context.Context, ev pipeline.Event) (pipeline.Reply, error)
}

// Handler 调试用的同步对话接口，绕过飞书直接驱动完整的 agent 流程。
type Handler struct {
	processor Processor
	logger    *zap.Logger
}

// New 创建聊天处理器
func New(processor Processor, logger *zap.Logger) *Handler {
	return &Handler{
		processor: processor,
		logger:    logging.OrNop(logger).Named("http.chat"),
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
}

type chatRequest struct {
	UserID  string `json:"userId"`
	ChatID  string `json:"chatId"`
	Message string `json:"message"`
}

type toolCall struct {
	Name   string `json:"name"`
	Output string `json:"output"`
}

type chatResponse struct {
	Reply      string     `json:"reply"`
	Feeling    mood.Label `json:"feeling"`
	Score      int        `json:"score"`
	VoiceStyle string     `json:"voiceStyle"`
	Model      string     `json:"model,omitempty"`
	RunID      string     `json:"runId,omitempty"`
	ToolCalls  []toolCall `json:"toolCalls,omitempty"`
	Summarized bool       `json:"summarized,omitempty"`
}

// handleChat 处理一次同步对话
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload chatRequest
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	payload.UserID = strings.TrimSpace(payload.UserID)
	if payload.UserID == "" && strings.TrimSpace(payload.ChatID) == "" {
		utils.RespondError(w, http.StatusBadRequest, "userId or chatId is required")
		return
	}
	if strings.TrimSpace(payload.Message) == "" {
		utils.RespondError(w, http.StatusBadRequest, "message is required")
		return
	}

	reply, err := h.processor.Process(r.Context(), pipeline.TextEvent(payload.UserID, payload.ChatID, payload.Message))
	if err != nil {
		status, msg := statusFor(err)
		h.logger.Error("chat request failed", zap.String("user_id", payload.UserID), zap.Error(err))
		utils.RespondError(w, status, msg)
		return
	}

	resp := chatResponse{
		Reply:      reply.Text,
		Feeling:    reply.Feeling.Label,
		Score:      reply.Feeling.Score,
		VoiceStyle: mood.Resolve(reply.Feeling.Label).VoiceStyle,
		Model:      reply.Result.Model,
		RunID:      reply.Result.RunID,
		Summarized: reply.Result.Summarized,
	}
	for _, c := range reply.Result.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, toolCall{Name: c.Name, Output: c.Output})
	}
	utils.RespondJSON(w, http.StatusOK, resp)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, pipeline.ErrEmptyText):
		return http.StatusBadRequest, "message is required"
	case errors.Is(err, pipeline.ErrClosed):
		return http.StatusServiceUnavailable, "service is shutting down"
	case errors.Is(err, ai.ErrAllModelsFailed):
		return http.StatusBadGateway, "language model unavailable"
	case errors.Is(err, agent.ErrMaxIterations), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "agent did not finish in time"
	default:
		return http.StatusInternalServerError, "chat failed"
	}
}
