package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/xiaolang/backend/internal/logging"
)

// ErrAllModelsFailed is returned when the primary call and its single fallback both fail.
var ErrAllModelsFailed = errors.New("ai: all models failed")

const defaultCallTimeout = 60 * time.Second

// Response is one model reply plus where it came from.
type Response struct {
	Message *schema.Message
	Model   string
	Cached  bool
}

// Caller is the model-call layer used by the agent loop.
type Caller interface {
	Call(ctx context.Context, input []*schema.Message, opts ...model.Option) (Response, error)
}

// Endpoint names one configured chat model.
type Endpoint struct {
	Name    string
	Model   model.ToolCallingChatModel
	Timeout time.Duration
}

// Options configures a FallbackModel.
type Options struct {
	Primary  Endpoint
	Fallback Endpoint // optional; Model nil disables fallback
	Cache    *ResponseCache
	Logger   *zap.Logger
}

// FallbackModel 封装主模型与备用模型：每次调用先走主模型，失败时对同一步骤只重试一次备用模型。
// 它本身实现 model.ToolCallingChatModel，可直接放进 eino chain 中使用。
type FallbackModel struct {
	primary  Endpoint
	fallback Endpoint
	cache    *ResponseCache
	tools    []*schema.ToolInfo
	logger   *zap.Logger
}

var (
	_ model.ToolCallingChatModel = (*FallbackModel)(nil)
	_ Caller                     = (*FallbackModel)(nil)
)

// NewFallbackModel validates opts and returns a model without bound tools.
func NewFallbackModel(opts Options) (*FallbackModel, error) {
	if opts.Primary.Model == nil {
		return nil, fmt.Errorf("primary chat model is required")
	}
	if opts.Primary.Name == "" {
		opts.Primary.Name = "primary"
	}
	if opts.Fallback.Name == "" {
		opts.Fallback.Name = "fallback"
	}
	if opts.Primary.Timeout <= 0 {
		opts.Primary.Timeout = defaultCallTimeout
	}
	if opts.Fallback.Timeout <= 0 {
		opts.Fallback.Timeout = defaultCallTimeout
	}
	return &FallbackModel{
		primary:  opts.Primary,
		fallback: opts.Fallback,
		cache:    opts.Cache,
		logger:   logging.OrNop(opts.Logger).Named("llm"),
	}, nil
}

// HasFallback reports whether a secondary model is configured.
func (m *FallbackModel) HasFallback() bool {
	return m.fallback.Model != nil
}

// BindTools returns a copy whose underlying models have tools bound.
func (m *FallbackModel) BindTools(tools []*schema.ToolInfo) (*FallbackModel, error) {
	bound := *m
	bound.tools = tools

	primary, err := m.primary.Model.WithTools(tools)
	if err != nil {
		return nil, fmt.Errorf("bind tools to %s: %w", m.primary.Name, err)
	}
	bound.primary.Model = primary

	if m.fallback.Model != nil {
		fallback, err := m.fallback.Model.WithTools(tools)
		if err != nil {
			return nil, fmt.Errorf("bind tools to %s: %w", m.fallback.Name, err)
		}
		bound.fallback.Model = fallback
	}
	return &bound, nil
}

// WithTools implements model.ToolCallingChatModel.
func (m *FallbackModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m.BindTools(tools)
}

// Generate implements model.BaseChatModel.
func (m *FallbackModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	resp, err := m.Call(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return resp.Message, nil
}

// Call runs one model step with cache lookup, per-call timeout and a single fallback attempt.
func (m *FallbackModel) Call(ctx context.Context, input []*schema.Message, opts ...model.Option) (Response, error) {
	key := ""
	if m.cache != nil {
		key = CacheKey(input, m.tools)
		if msg, ok := m.cache.Get(key); ok {
			return Response{Message: msg, Model: m.primary.Name, Cached: true}, nil
		}
	}

	msg, err := m.generate(ctx, m.primary, input, opts)
	if err == nil {
		m.cache.Put(key, msg)
		return Response{Message: msg, Model: m.primary.Name}, nil
	}
	if ctx.Err() != nil {
		return Response{}, fmt.Errorf("%s call aborted: %w", m.primary.Name, ctx.Err())
	}
	if m.fallback.Model == nil {
		return Response{}, fmt.Errorf("%w: %s: %v", ErrAllModelsFailed, m.primary.Name, err)
	}

	m.logger.Warn("primary model failed, trying fallback",
		zap.String("model", m.primary.Name),
		zap.String("fallback", m.fallback.Name),
		zap.Error(err))

	fbMsg, fbErr := m.generate(ctx, m.fallback, input, opts)
	if fbErr != nil {
		return Response{}, fmt.Errorf("%w: %s: %v; %s: %v", ErrAllModelsFailed, m.primary.Name, err, m.fallback.Name, fbErr)
	}
	m.cache.Put(key, fbMsg)
	return Response{Message: fbMsg, Model: m.fallback.Name}, nil
}

func (m *FallbackModel) generate(ctx context.Context, ep Endpoint, input []*schema.Message, opts []model.Option) (*schema.Message, error) {
	callCtx, cancel := context.WithTimeout(ctx, ep.Timeout)
	defer cancel()

	msg, err := ep.Model.Generate(callCtx, input, opts...)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, fmt.Errorf("%s returned no message", ep.Name)
	}
	return msg, nil
}

// Stream implements model.BaseChatModel. Only opening the stream is covered by
// the fallback; the per-call timeout does not apply to reading it.
func (m *FallbackModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	stream, err := m.primary.Model.Stream(ctx, input, opts...)
	if err == nil {
		return stream, nil
	}
	if ctx.Err() != nil || m.fallback.Model == nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrAllModelsFailed, m.primary.Name, err)
	}

	m.logger.Warn("primary stream failed, trying fallback",
		zap.String("model", m.primary.Name), zap.Error(err))

	stream, fbErr := m.fallback.Model.Stream(ctx, input, opts...)
	if fbErr != nil {
		return nil, fmt.Errorf("%w: %s: %v; %s: %v", ErrAllModelsFailed, m.primary.Name, err, m.fallback.Name, fbErr)
	}
	return stream, nil
}
