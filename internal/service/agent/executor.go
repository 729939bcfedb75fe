package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/xiaolang/backend/internal/logging"
	"github.com/zhouzirui/xiaolang/backend/internal/service/ai"
	"github.com/zhouzirui/xiaolang/backend/internal/service/memory"
	"github.com/zhouzirui/xiaolang/backend/internal/service/tools"
)

// Loop guards.
const (
	DefaultMaxIterations = 8
	DefaultRunTimeout    = 2 * time.Minute
)

var (
	// ErrMaxIterations is returned when the model keeps requesting tools past the limit.
	ErrMaxIterations = errors.New("agent: max iterations reached")
	// ErrEmptyAnswer is returned when the model ends the loop without text.
	ErrEmptyAnswer = errors.New("agent: model returned an empty answer")
)

// Config bounds one invocation.
type Config struct {
	MaxIterations int
	RunTimeout    time.Duration
	// TokenLimit bounds the history handed to the model; zero disables trimming.
	TokenLimit int
}

// Request is one user turn.
type Request struct {
	SessionKey string
	Input      string
	Prompt     *ai.Prompt
}

// ToolCallRecord is one executed tool call.
type ToolCallRecord struct {
	ID        string
	Name      string
	Arguments string
	Output    string
}

// Result describes a finished invocation.
type Result struct {
	RunID      string
	Answer     string
	ToolCalls  []ToolCallRecord
	Iterations int
	Model      string
	Summarized bool
}

// Executor drives the THINK/ACT loop: the model either answers or requests
// tools, tool outputs are fed back through the scratchpad, and a final answer
// is written to session memory.
type Executor struct {
	model    *ai.FallbackModel
	registry *tools.Registry
	memory   *memory.Manager
	cfg      Config
	logger   *zap.Logger
}

// NewExecutor wires the loop. Tools are bound to the model on every run so
// time-dependent tool descriptions stay current.
func NewExecutor(m *ai.FallbackModel, registry *tools.Registry, mem *memory.Manager, cfg Config, logger *zap.Logger) *Executor {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = DefaultRunTimeout
	}
	return &Executor{
		model:    m,
		registry: registry,
		memory:   mem,
		cfg:      cfg,
		logger:   logging.OrNop(logger).Named("agent"),
	}
}

// Run executes one invocation for req.SessionKey. Callers must serialize runs
// per session.
func (e *Executor) Run(ctx context.Context, req Request) (Result, error) {
	if req.Prompt == nil {
		return Result{}, fmt.Errorf("agent: prompt is required")
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.RunTimeout)
	defer cancel()

	result := Result{RunID: uuid.NewString()}
	logger := e.logger.With(zap.String("run_id", result.RunID), zap.String("session", req.SessionKey))

	handle := e.memory.Attach(ctx, req.SessionKey)
	result.Summarized = handle.Summarized()
	history := memory.ToSchema(memory.TrimToTokenBudget(handle.History(), e.cfg.TokenLimit))

	bound, err := e.model.BindTools(e.registry.Infos())
	if err != nil {
		return result, fmt.Errorf("agent: %w", err)
	}

	var scratch []*schema.Message
	for turn := 1; turn <= e.cfg.MaxIterations; turn++ {
		result.Iterations = turn

		msgs, err := req.Prompt.Format(ctx, history, req.Input, scratch)
		if err != nil {
			return result, fmt.Errorf("agent: %w", err)
		}

		resp, err := bound.Call(ctx, msgs)
		if err != nil {
			logger.Error("think step failed", zap.Int("turn", turn), zap.Error(err))
			return result, fmt.Errorf("agent: think step %d: %w", turn, err)
		}
		result.Model = resp.Model
		reply := resp.Message

		if len(reply.ToolCalls) == 0 {
			answer := strings.TrimSpace(reply.Content)
			if answer == "" {
				return result, ErrEmptyAnswer
			}
			result.Answer = answer
			if err := handle.Save(ctx, req.Input, answer); err != nil {
				logger.Warn("save exchange failed", zap.Error(err))
			}
			logger.Info("run finished",
				zap.Int("turn", turn), zap.String("model", resp.Model), zap.Int("tool_calls", len(result.ToolCalls)))
			return result, nil
		}

		calls := make([]schema.ToolCall, len(reply.ToolCalls))
		copy(calls, reply.ToolCalls)
		for i := range calls {
			if calls[i].ID == "" {
				calls[i].ID = "call_" + uuid.NewString()
			}
		}
		scratch = append(scratch, schema.AssistantMessage(reply.Content, calls))

		for _, call := range calls {
			name := call.Function.Name
			logger.Info("act", zap.Int("turn", turn), zap.String("tool", name))

			out := e.registry.Invoke(ctx, name, call.Function.Arguments)
			toolMsg := schema.ToolMessage(out, call.ID)
			toolMsg.ToolName = name
			scratch = append(scratch, toolMsg)

			result.ToolCalls = append(result.ToolCalls, ToolCallRecord{
				ID:        call.ID,
				Name:      name,
				Arguments: call.Function.Arguments,
				Output:    out,
			})
		}
	}

	logger.Warn("max iterations reached", zap.Int("limit", e.cfg.MaxIterations))
	return result, ErrMaxIterations
}
