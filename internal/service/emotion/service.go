package emotion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	analysis "github.com/zhouzirui/xiaolang/backend/internal/analysis/emotion"
	"github.com/zhouzirui/xiaolang/backend/internal/logging"
	"github.com/zhouzirui/xiaolang/backend/internal/model/mood"
)

const defaultTimeout = 15 * time.Second

// Config 控制情绪识别服务的行为。
type Config struct {
	Enabled bool
	Timeout time.Duration
}

// Service 使用大模型对用户输入进行情绪分类，并在不可用时回退到关键词规则。
//
// Estimate never fails: every error path resolves to mood.Neutral().
type Service struct {
	enabled    bool
	timeout    time.Duration
	classifier compose.Runnable[map[string]any, *schema.Message]
	fallback   func(text string) mood.Feeling
	logger     *zap.Logger
}

// NewService 创建情绪识别服务。chatModel 为 nil 或配置关闭时只使用启发式规则。
func NewService(ctx context.Context, chatModel model.BaseChatModel, cfg Config, logger *zap.Logger) (*Service, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	svc := &Service{
		enabled:  cfg.Enabled && chatModel != nil,
		timeout:  timeout,
		fallback: analysis.Analyze,
		logger:   logging.OrNop(logger).Named("emotion"),
	}

	if !svc.enabled {
		return svc, nil
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(classifierSystemPrompt),
		schema.UserMessage("{input}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile emotion classifier chain: %w", err)
	}

	svc.classifier = runnable
	return svc, nil
}

// Enabled 返回是否启用了大模型分类。
func (s *Service) Enabled() bool {
	return s != nil && s.enabled && s.classifier != nil
}

// Estimate 估计 text 的情绪标签与强度。
func (s *Service) Estimate(ctx context.Context, text string) mood.Feeling {
	text = strings.TrimSpace(text)
	if text == "" {
		return mood.Neutral()
	}
	if !s.Enabled() {
		return s.fallback(text)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	msg, err := s.classifier.Invoke(callCtx, map[string]any{"input": text})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.logger.Warn("classifier timed out, use default feeling", zap.Duration("timeout", s.timeout))
		} else {
			s.logger.Warn("classifier invoke failed, use default feeling", zap.Error(err))
		}
		return mood.Neutral()
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		s.logger.Warn("classifier returned empty output, use default feeling")
		return mood.Neutral()
	}

	feeling, err := parseClassifierOutput(msg.Content)
	if err != nil {
		s.logger.Warn("classifier output rejected, use default feeling",
			zap.Error(err), zap.String("output", msg.Content))
		return mood.Neutral()
	}
	return feeling
}

// parseClassifierOutput 解析大模型返回的 JSON，容忍前后多余文本。
func parseClassifierOutput(content string) (mood.Feeling, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return mood.Feeling{}, fmt.Errorf("missing json object")
	}

	var payload classifierPayload
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &payload); err != nil {
		return mood.Feeling{}, err
	}

	label, ok := mood.ParseLabel(payload.Feeling)
	if !ok {
		return mood.Feeling{}, fmt.Errorf("unknown feeling %q", payload.Feeling)
	}

	score := mood.MidpointScore
	if payload.Score != nil {
		score = mood.ClampScore(int(*payload.Score + 0.5))
	}
	return mood.Feeling{Label: label, Score: score}, nil
}

type classifierPayload struct {
	Feeling string   `json:"feeling"`
	Score   *float64 `json:"score"`
}

const classifierSystemPrompt = `根据用户的输入判断用户的情绪，回应的规则如下：
1. 如果用户输入的内容偏向于负面情绪，只返回"depressed",不要有其他内容，否则将受到惩罚。
2. 如果用户输入的内容偏向于正面情绪，只返回"friendly",不要有其他内容，否则将受到惩罚。
3. 如果用户输入的内容偏向于中性情绪，只返回"default",不要有其他内容，否则将受到惩罚。
4. 如果用户输入的内容包含辱骂或者不礼貌词句，或者要求投诉、退款、维权，只返回"angry",不要有其他内容，否则将受到惩罚。
5. 如果用户输入的内容比较兴奋，只返回"upbeat",不要有其他内容，否则将受到惩罚。
6. 如果用户输入的内容比较悲伤，只返回"depressed",不要有其他内容，否则将受到惩罚。
7. 如果用户输入的内容比较开心，只返回"cheerful",不要有其他内容，否则将受到惩罚。
同时给出情绪强度 score，取值 1 到 10 的整数，5 表示平静，数值越大情绪越强烈。
输出要求：只返回一个 JSON 对象，例如 {{"feeling": "default", "score": 5}}，不得输出多余文本。`
