package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/xiaolang/backend/internal/logging"
	"github.com/zhouzirui/xiaolang/backend/internal/model/chat"
)

// DefaultSummaryThreshold is the history length above which compaction runs.
const DefaultSummaryThreshold = 80

// ErrEmptySession is returned when a session id is blank.
var ErrEmptySession = errors.New("memory: session id is required")

// Config controls summarization.
type Config struct {
	// SummaryThreshold triggers compaction when len(history) > SummaryThreshold.
	SummaryThreshold int
	// SummaryInstruction is the summarizer system prompt (persona text plus format contract).
	SummaryInstruction string
}

// Manager 负责会话记忆的读取、追加与超长压缩。
type Manager struct {
	store       Store
	summarizer  model.BaseChatModel
	threshold   int
	instruction string
	logger      *zap.Logger
}

// NewManager wires a store with the model used for summaries. A nil summarizer
// disables compaction.
func NewManager(store Store, summarizer model.BaseChatModel, cfg Config, logger *zap.Logger) *Manager {
	threshold := cfg.SummaryThreshold
	if threshold <= 0 {
		threshold = DefaultSummaryThreshold
	}
	return &Manager{
		store:       store,
		summarizer:  summarizer,
		threshold:   threshold,
		instruction: cfg.SummaryInstruction,
		logger:      logging.OrNop(logger).Named("memory"),
	}
}

// Load returns the session history. Store failures degrade to an empty history.
func (m *Manager) Load(ctx context.Context, sessionID string) []chat.Message {
	messages, err := m.store.Messages(ctx, sessionID)
	if err != nil {
		m.logger.Warn("load history failed, continue without memory",
			zap.String("session", sessionID), zap.Error(err))
		return nil
	}
	return messages
}

// Attach loads the session and compacts it first when it has grown past the
// threshold. It blocks until compaction has finished or failed.
func (m *Manager) Attach(ctx context.Context, sessionID string) *Handle {
	history := m.Load(ctx, sessionID)
	h := &Handle{manager: m, sessionID: sessionID, history: history}

	if len(history) <= m.threshold || m.summarizer == nil {
		return h
	}

	summary, err := m.Summarize(ctx, history)
	if err != nil {
		m.logger.Error("summarize history failed, keep original",
			zap.String("session", sessionID), zap.Int("messages", len(history)), zap.Error(err))
		return h
	}
	if err := m.store.Replace(ctx, sessionID, []chat.Message{summary}); err != nil {
		m.logger.Error("replace history with summary failed, keep original",
			zap.String("session", sessionID), zap.Error(err))
		return h
	}

	m.logger.Info("history compacted",
		zap.String("session", sessionID), zap.Int("from", len(history)))
	h.history = []chat.Message{summary}
	h.summarized = true
	return h
}

// Summarize asks the model for a single first-person summary of msgs.
func (m *Manager) Summarize(ctx context.Context, msgs []chat.Message) (chat.Message, error) {
	if m.summarizer == nil {
		return chat.Message{}, fmt.Errorf("summarizer not configured")
	}

	input := []*schema.Message{
		schema.SystemMessage(m.instruction),
		schema.UserMessage(Transcript(msgs)),
	}
	out, err := m.summarizer.Generate(ctx, input)
	if err != nil {
		return chat.Message{}, fmt.Errorf("generate summary: %w", err)
	}
	content := ""
	if out != nil {
		content = strings.TrimSpace(out.Content)
	}
	if content == "" {
		return chat.Message{}, fmt.Errorf("summary is empty")
	}
	return chat.AssistantMessage(content), nil
}

// Transcript renders msgs as "role: content" lines.
func Transcript(msgs []chat.Message) string {
	var b strings.Builder
	for _, msg := range msgs {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		b.WriteString(string(msg.Role))
		b.WriteString(": ")
		b.WriteString(content)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// Handle is the per-invocation view of one session's memory.
type Handle struct {
	manager    *Manager
	sessionID  string
	history    []chat.Message
	summarized bool
}

// SessionID returns the session the handle is bound to.
func (h *Handle) SessionID() string {
	return h.sessionID
}

// History returns the snapshot loaded at attach time.
func (h *Handle) History() []chat.Message {
	return append([]chat.Message(nil), h.history...)
}

// Summarized reports whether Attach compacted the session.
func (h *Handle) Summarized() bool {
	return h.summarized
}

// Save appends the exchange to the store: user input first, then the answer.
func (h *Handle) Save(ctx context.Context, input, output string) error {
	if h.sessionID == "" {
		return ErrEmptySession
	}
	user := chat.UserMessage(input)
	assistant := chat.AssistantMessage(output)
	if err := h.manager.store.Append(ctx, h.sessionID, user, assistant); err != nil {
		return fmt.Errorf("save exchange: %w", err)
	}
	h.history = append(h.history, user, assistant)
	return nil
}
