package ai_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/xiaolang/backend/internal/service/ai"
	"github.com/zhouzirui/xiaolang/backend/internal/testutil"
)

func newFallback(t *testing.T, primary, fallback *testutil.ScriptedModel, cache *ai.ResponseCache) *ai.FallbackModel {
	t.Helper()
	opts := ai.Options{
		Primary: ai.Endpoint{Name: "doubao", Model: primary, Timeout: 50 * time.Millisecond},
		Cache:   cache,
	}
	if fallback != nil {
		opts.Fallback = ai.Endpoint{Name: "deepseek", Model: fallback, Timeout: time.Second}
	}
	m, err := ai.NewFallbackModel(opts)
	require.NoError(t, err)
	return m
}

var input = []*schema.Message{schema.UserMessage("你好")}

func TestCallPrimarySucceeds(t *testing.T) {
	primary := testutil.NewScriptedModel(testutil.Reply("主模型"))
	fallback := testutil.NewScriptedModel()

	resp, err := newFallback(t, primary, fallback, nil).Call(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, "主模型", resp.Message.Content)
	assert.Equal(t, "doubao", resp.Model)
	assert.Zero(t, fallback.CallCount())
}

func TestCallFallsBackOnceOnError(t *testing.T) {
	primary := testutil.NewScriptedModel(testutil.Fail(errors.New("429 quota")))
	fallback := testutil.NewScriptedModel(testutil.Reply("备用模型"))

	resp, err := newFallback(t, primary, fallback, nil).Call(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, "备用模型", resp.Message.Content)
	assert.Equal(t, "deepseek", resp.Model)
	assert.Equal(t, 1, primary.CallCount())
	assert.Equal(t, 1, fallback.CallCount())
}

func TestCallFallsBackOnPrimaryTimeout(t *testing.T) {
	primary := testutil.NewScriptedModel(testutil.Step{Message: schema.AssistantMessage("late", nil), Delay: time.Second})
	fallback := testutil.NewScriptedModel(testutil.Reply("备用模型"))

	resp, err := newFallback(t, primary, fallback, nil).Call(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, "备用模型", resp.Message.Content)
	assert.Equal(t, 1, fallback.CallCount())
}

func TestCallBothFail(t *testing.T) {
	primary := testutil.NewScriptedModel(testutil.Fail(errors.New("down")))
	fallback := testutil.NewScriptedModel(testutil.Fail(errors.New("also down")))

	_, err := newFallback(t, primary, fallback, nil).Call(context.Background(), input)
	assert.ErrorIs(t, err, ai.ErrAllModelsFailed)
	assert.Equal(t, 1, fallback.CallCount())
}

func TestCallWithoutFallback(t *testing.T) {
	primary := testutil.NewScriptedModel(testutil.Fail(errors.New("down")))
	m := newFallback(t, primary, nil, nil)
	assert.False(t, m.HasFallback())

	_, err := m.Call(context.Background(), input)
	assert.ErrorIs(t, err, ai.ErrAllModelsFailed)
}

func TestCallSkipsFallbackWhenCallerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	primary := testutil.NewScriptedModel(testutil.Step{Message: schema.AssistantMessage("x", nil), Delay: time.Second})
	fallback := testutil.NewScriptedModel(testutil.Reply("备用模型"))

	_, err := newFallback(t, primary, fallback, nil).Call(ctx, input)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, fallback.CallCount())
}

func TestBindToolsBindsBothModels(t *testing.T) {
	primary := testutil.NewScriptedModel(testutil.Fail(errors.New("down")))
	fallback := testutil.NewScriptedModel(testutil.Reply("ok"))
	tools := []*schema.ToolInfo{{Name: "search", Desc: "搜索"}}

	bound, err := newFallback(t, primary, fallback, nil).BindTools(tools)
	require.NoError(t, err)
	_, err = bound.Generate(context.Background(), input)
	require.NoError(t, err)

	require.Len(t, primary.Calls(), 1)
	assert.Equal(t, tools, primary.Calls()[0].Tools)
	assert.Equal(t, tools, fallback.Calls()[0].Tools)
}

func TestCallUsesCache(t *testing.T) {
	primary := testutil.NewScriptedModel(testutil.Reply("一次"), testutil.Reply("两次"))
	m := newFallback(t, primary, nil, ai.NewResponseCache(8, time.Minute))

	first, err := m.Call(context.Background(), input)
	require.NoError(t, err)
	second, err := m.Call(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, "一次", second.Message.Content)
	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, 1, primary.CallCount())
}

func TestStreamFallsBack(t *testing.T) {
	primary := testutil.NewScriptedModel(testutil.Fail(errors.New("down")))
	fallback := testutil.NewScriptedModel(testutil.Reply("流式"))

	stream, err := newFallback(t, primary, fallback, nil).Stream(context.Background(), input)
	require.NoError(t, err)
	defer stream.Close()
	msg, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "流式", msg.Content)
}
