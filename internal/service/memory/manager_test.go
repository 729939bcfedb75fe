package memory_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/xiaolang/backend/internal/model/chat"
	"github.com/zhouzirui/xiaolang/backend/internal/service/memory"
	"github.com/zhouzirui/xiaolang/backend/internal/testutil"
)

const instruction = "你是小浪。请将以下对话内容进行总结摘要，格式为\"总结摘要 | 过去对话关键信息\"。"

func seed(t *testing.T, store memory.Store, sessionID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		msg := chat.UserMessage(fmt.Sprintf("m%d", i))
		if i%2 == 1 {
			msg = chat.AssistantMessage(fmt.Sprintf("m%d", i))
		}
		require.NoError(t, store.Append(context.Background(), sessionID, msg))
	}
}

func newManager(store memory.Store, summarizer *testutil.ScriptedModel) *memory.Manager {
	return memory.NewManager(store, summarizer, memory.Config{SummaryThreshold: 80, SummaryInstruction: instruction}, nil)
}

func TestAttachAtThresholdDoesNotSummarize(t *testing.T) {
	store := memory.NewMemoryStore()
	seed(t, store, "u1", 80)
	summarizer := testutil.NewScriptedModel()

	h := newManager(store, summarizer).Attach(context.Background(), "u1")
	assert.False(t, h.Summarized())
	assert.Len(t, h.History(), 80)
	assert.Zero(t, summarizer.CallCount())
}

func TestAttachAboveThresholdSummarizesOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStore()
	seed(t, store, "u1", 85)
	summarizer := testutil.NewScriptedModel(testutil.Reply("用户问了很多问题 | 天气,退款"))
	m := newManager(store, summarizer)

	h := m.Attach(ctx, "u1")
	require.True(t, h.Summarized())
	require.Len(t, h.History(), 1)
	assert.Equal(t, chat.RoleAssistant, h.History()[0].Role)
	assert.Equal(t, "用户问了很多问题 | 天气,退款", h.History()[0].Content)

	stored, err := store.Messages(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, stored, 1)

	calls := summarizer.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, instruction, calls[0].Input[0].Content)
	assert.Contains(t, calls[0].Input[1].Content, "user: m0\nassistant: m1")
	assert.Contains(t, calls[0].Input[1].Content, "m84")

	require.NoError(t, h.Save(ctx, "新问题", "新回答"))
	stored, err = store.Messages(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.Equal(t, "新问题", stored[1].Content)
	assert.Equal(t, chat.RoleUser, stored[1].Role)
	assert.Equal(t, "新回答", stored[2].Content)

	// Compacted history is below the threshold, so the next attach is a plain load.
	h = m.Attach(ctx, "u1")
	assert.False(t, h.Summarized())
	assert.Equal(t, 1, summarizer.CallCount())
}

func TestAttachKeepsHistoryWhenSummaryFails(t *testing.T) {
	store := memory.NewMemoryStore()
	seed(t, store, "u1", 85)
	summarizer := testutil.NewScriptedModel(testutil.Fail(errors.New("model down")))

	h := newManager(store, summarizer).Attach(context.Background(), "u1")
	assert.False(t, h.Summarized())
	assert.Len(t, h.History(), 85)

	stored, err := store.Messages(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, stored, 85)
}

func TestAttachKeepsHistoryOnEmptySummary(t *testing.T) {
	store := memory.NewMemoryStore()
	seed(t, store, "u1", 81)
	summarizer := testutil.NewScriptedModel(testutil.Reply("  "))

	h := newManager(store, summarizer).Attach(context.Background(), "u1")
	assert.False(t, h.Summarized())
	assert.Len(t, h.History(), 81)
}

type brokenStore struct {
	memory.Store
	readErr, replaceErr error
}

func (s *brokenStore) Messages(ctx context.Context, id string) ([]chat.Message, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	return s.Store.Messages(ctx, id)
}

func (s *brokenStore) Replace(ctx context.Context, id string, msgs []chat.Message) error {
	if s.replaceErr != nil {
		return s.replaceErr
	}
	return s.Store.Replace(ctx, id, msgs)
}

func TestLoadDegradesToEmptyWhenStoreUnreachable(t *testing.T) {
	store := &brokenStore{Store: memory.NewMemoryStore(), readErr: errors.New("connection refused")}
	m := newManager(store, testutil.NewScriptedModel())

	assert.Empty(t, m.Load(context.Background(), "u1"))
	h := m.Attach(context.Background(), "u1")
	assert.Empty(t, h.History())
}

func TestAttachKeepsHistoryWhenReplaceFails(t *testing.T) {
	inner := memory.NewMemoryStore()
	seed(t, inner, "u1", 81)
	store := &brokenStore{Store: inner, replaceErr: errors.New("READONLY")}

	h := newManager(store, testutil.NewScriptedModel(testutil.Reply("摘要 | 关键"))).Attach(context.Background(), "u1")
	assert.False(t, h.Summarized())
	assert.Len(t, h.History(), 81)
}

func TestSaveRequiresSession(t *testing.T) {
	h := newManager(memory.NewMemoryStore(), nil).Attach(context.Background(), "")
	assert.ErrorIs(t, h.Save(context.Background(), "a", "b"), memory.ErrEmptySession)
}

func TestTranscriptSkipsBlankMessages(t *testing.T) {
	got := memory.Transcript([]chat.Message{
		chat.UserMessage("你好"),
		chat.AssistantMessage("  "),
		chat.AssistantMessage("你好呀"),
	})
	assert.Equal(t, "user: 你好\nassistant: 你好呀", got)
}
