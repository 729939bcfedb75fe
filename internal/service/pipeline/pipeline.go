// Package pipeline turns inbound chat events into agent invocations and
// replies, one task per message, serialized per session.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/xiaolang/backend/internal/logging"
	"github.com/zhouzirui/xiaolang/backend/internal/model/chat"
	"github.com/zhouzirui/xiaolang/backend/internal/model/mood"
	"github.com/zhouzirui/xiaolang/backend/internal/service/agent"
	"github.com/zhouzirui/xiaolang/backend/internal/service/ai"
)

// Platform values the filter understands.
const (
	SenderTypeApp   = "app"
	MessageTypeText = "text"
	ReplyUUIDPrefix = "reply_"
)

var (
	// ErrClosed is returned once Shutdown has started.
	ErrClosed = errors.New("pipeline: closed")
	// ErrEmptyText is returned by Process for blank input.
	ErrEmptyText = errors.New("pipeline: empty text")
)

// Event is one inbound message delivery as reported by the messaging platform.
type Event struct {
	SenderID    string
	SenderType  string
	ChatID      string
	MessageID   string
	MessageType string
	// Content is the raw platform payload, {"text": "..."} for text messages.
	Content string
}

// TextEvent builds a text Event from plain input.
func TextEvent(senderID, chatID, text string) Event {
	raw, _ := json.Marshal(textContent{Text: text})
	return Event{
		SenderID:    senderID,
		SenderType:  "user",
		ChatID:      chatID,
		MessageType: MessageTypeText,
		Content:     string(raw),
	}
}

type textContent struct {
	Text string `json:"text"`
}

// Outcome is the filter verdict for one delivery.
type Outcome int

const (
	Dispatched Outcome = iota
	IgnoredSelf
	IgnoredType
	IgnoredEmpty
	IgnoredMalformed
	IgnoredDuplicate
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Dispatched:
		return "dispatched"
	case IgnoredSelf:
		return "ignored_self"
	case IgnoredType:
		return "ignored_type"
	case IgnoredEmpty:
		return "ignored_empty"
	case IgnoredMalformed:
		return "ignored_malformed"
	case IgnoredDuplicate:
		return "ignored_duplicate"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Estimator scores the mood of a message.
type Estimator interface {
	Estimate(ctx context.Context, text string) mood.Feeling
}

// PromptBuilder assembles the persona prompt for a feeling.
type PromptBuilder interface {
	Build(feeling mood.Feeling, memoryKey string) *ai.Prompt
}

// Runner executes one agent invocation.
type Runner interface {
	Run(ctx context.Context, req agent.Request) (agent.Result, error)
}

// Sender delivers a text reply. uuid is the platform idempotency hint.
type Sender interface {
	SendText(ctx context.Context, chatID, text, uuid string) error
}

// Options wires a Pipeline.
type Options struct {
	Estimator Estimator
	Prompts   PromptBuilder
	Runner    Runner
	Sender    Sender

	// BotID is the bot's own sender id; its messages are dropped.
	BotID string
	// Apology is sent when a task fails. Empty means stay silent.
	Apology   string
	MemoryKey string

	DedupSize   int
	DedupWindow time.Duration

	Logger *zap.Logger
	Clock  func() time.Time
}

// Reply is the outcome of one processed message.
type Reply struct {
	SessionKey string
	Text       string
	Feeling    mood.Feeling
	Result     agent.Result
}

// Pipeline filters deliveries and runs each accepted message in its own
// goroutine. Tasks for the same session run one at a time in arrival order
// of lock acquisition.
type Pipeline struct {
	estimator Estimator
	prompts   PromptBuilder
	runner    Runner
	sender    Sender

	botID     string
	apology   string
	memoryKey string

	locker *Locker
	dedup  *Dedup
	clock  func() time.Time
	logger *zap.Logger

	base   context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New validates opts and returns a running Pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Estimator == nil || opts.Prompts == nil || opts.Runner == nil {
		return nil, errors.New("pipeline: estimator, prompts and runner are required")
	}
	dedup, err := NewDedup(opts.DedupSize, opts.DedupWindow)
	if err != nil {
		return nil, fmt.Errorf("pipeline: dedup: %w", err)
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	base, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		estimator: opts.Estimator,
		prompts:   opts.Prompts,
		runner:    opts.Runner,
		sender:    opts.Sender,
		botID:     opts.BotID,
		apology:   strings.TrimSpace(opts.Apology),
		memoryKey: opts.MemoryKey,
		locker:    NewLocker(),
		dedup:     dedup,
		clock:     clock,
		logger:    logging.OrNop(opts.Logger).Named("pipeline"),
		base:      base,
		cancel:    cancel,
	}, nil
}

// Locker exposes the per-session processing records.
func (p *Pipeline) Locker() *Locker {
	return p.locker
}

// Handle filters ev and, when accepted, dispatches it to a background task.
// It never blocks on the agent and never returns an error: the platform must
// not retry a delivery because processing failed.
func (p *Pipeline) Handle(ctx context.Context, ev Event) Outcome {
	logger := p.logger.With(
		zap.String("message_id", ev.MessageID),
		zap.String("user_id", ev.SenderID),
		zap.String("chat_id", ev.ChatID),
	)

	if ev.SenderType == SenderTypeApp || (p.botID != "" && ev.SenderID == p.botID) {
		logger.Debug("drop message from bot")
		return IgnoredSelf
	}
	if ev.MessageType != MessageTypeText {
		logger.Debug("drop unsupported message type", zap.String("type", ev.MessageType))
		return IgnoredType
	}
	text, err := ParseText(ev.Content)
	if err != nil {
		logger.Warn("drop malformed message content", zap.Error(err))
		return IgnoredMalformed
	}
	if text == "" {
		logger.Debug("drop empty text")
		return IgnoredEmpty
	}
	// Track before recording the id: a delivery rejected during shutdown
	// must stay eligible when the platform retries it.
	if !p.track() {
		logger.Warn("drop message during shutdown")
		return Rejected
	}
	if p.dedup.Seen(ev.MessageID, p.clock()) {
		p.wg.Done()
		logger.Info("drop duplicate delivery")
		return IgnoredDuplicate
	}
	go func() {
		defer p.wg.Done()
		p.deliver(ev, text, logger)
	}()
	logger.Info("message dispatched")
	return Dispatched
}

// Process runs ev synchronously and returns the reply without sending it.
func (p *Pipeline) Process(ctx context.Context, ev Event) (Reply, error) {
	text, err := ParseText(ev.Content)
	if err != nil {
		return Reply{}, err
	}
	if text == "" {
		return Reply{}, ErrEmptyText
	}
	if !p.track() {
		return Reply{}, ErrClosed
	}
	defer p.wg.Done()
	return p.process(ctx, chat.SessionKey(ev.SenderID, ev.ChatID), text)
}

// Shutdown stops accepting messages and waits for running tasks. When ctx
// expires first, running tasks are cancelled and ctx.Err() is returned.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

func (p *Pipeline) track() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.wg.Add(1)
	return true
}

func (p *Pipeline) deliver(ev Event, text string, logger *zap.Logger) {
	ctx := p.base
	defer func() {
		if r := recover(); r != nil {
			logger.Error("message task panicked", zap.Any("panic", r), zap.Stack("stack"))
			p.apologize(ctx, ev, logger)
		}
	}()

	reply, err := p.process(ctx, chat.SessionKey(ev.SenderID, ev.ChatID), text)
	if err != nil {
		logger.Error("message task failed", zap.Error(err))
		p.apologize(ctx, ev, logger)
		return
	}
	if err := p.send(ctx, ev, reply.Text); err != nil {
		logger.Error("send reply failed", zap.Error(err))
		return
	}
	logger.Info("reply sent",
		zap.String("feeling", string(reply.Feeling.Label)),
		zap.Int("score", reply.Feeling.Score),
		zap.Int("tool_calls", len(reply.Result.ToolCalls)),
		zap.String("model", reply.Result.Model),
	)
}

func (p *Pipeline) process(ctx context.Context, key, text string) (Reply, error) {
	if key == "" {
		return Reply{}, errors.New("pipeline: event has neither sender nor chat id")
	}
	unlock, err := p.locker.Lock(ctx, key)
	if err != nil {
		return Reply{}, fmt.Errorf("pipeline: wait for session %s: %w", key, err)
	}
	defer unlock()

	feeling := p.estimator.Estimate(ctx, text)
	prompt := p.prompts.Build(feeling, p.memoryKey)

	res, err := p.runner.Run(ctx, agent.Request{SessionKey: key, Input: text, Prompt: prompt})
	if err != nil {
		return Reply{SessionKey: key, Feeling: feeling, Result: res}, err
	}
	return Reply{SessionKey: key, Text: res.Answer, Feeling: feeling, Result: res}, nil
}

func (p *Pipeline) apologize(ctx context.Context, ev Event, logger *zap.Logger) {
	if p.apology == "" {
		return
	}
	if err := p.send(ctx, ev, p.apology); err != nil {
		logger.Warn("send apology failed", zap.Error(err))
	}
}

func (p *Pipeline) send(ctx context.Context, ev Event, text string) error {
	if p.sender == nil {
		return errors.New("pipeline: no sender configured")
	}
	return p.sender.SendText(ctx, ev.ChatID, text, ReplyUUID(ev.MessageID))
}

// ReplyUUID derives the idempotency hint for the reply to messageID.
func ReplyUUID(messageID string) string {
	if messageID == "" {
		return ""
	}
	return ReplyUUIDPrefix + messageID
}

// ParseText extracts the trimmed text of a {"text": "..."} payload.
func ParseText(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", nil
	}
	var body textContent
	if err := json.Unmarshal([]byte(content), &body); err != nil {
		return "", fmt.Errorf("decode text content: %w", err)
	}
	return strings.TrimSpace(body.Text), nil
}
