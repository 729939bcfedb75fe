// Package testutil holds fakes shared by package tests.
package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ErrScriptExhausted is returned when a ScriptedModel has no step left and no Respond func.
var ErrScriptExhausted = errors.New("testutil: scripted model has no more responses")

// Step is one queued model reply.
type Step struct {
	Message *schema.Message
	Err     error
	// Delay blocks the call until it elapses or the context is done.
	Delay time.Duration
}

// Call records one Generate/Stream invocation.
type Call struct {
	Input []*schema.Message
	Tools []*schema.ToolInfo
}

type script struct {
	mu      sync.Mutex
	steps   []Step
	calls   []Call
	respond func(ctx context.Context, input []*schema.Message) (*schema.Message, error)
}

// ScriptedModel is a model.ToolCallingChatModel that replays queued steps.
// Models returned by WithTools share the script and call log with their parent.
type ScriptedModel struct {
	s     *script
	tools []*schema.ToolInfo
}

var _ model.ToolCallingChatModel = (*ScriptedModel)(nil)

// NewScriptedModel queues steps in order.
func NewScriptedModel(steps ...Step) *ScriptedModel {
	return &ScriptedModel{s: &script{steps: steps}}
}

// Reply is shorthand for an assistant text step.
func Reply(content string) Step {
	return Step{Message: schema.AssistantMessage(content, nil)}
}

// ToolCall is shorthand for an assistant step requesting a single tool call.
func ToolCall(id, name, arguments string) Step {
	return Step{Message: schema.AssistantMessage("", []schema.ToolCall{{
		ID:       id,
		Function: schema.FunctionCall{Name: name, Arguments: arguments},
	}})}
}

// Fail is shorthand for an error step.
func Fail(err error) Step {
	return Step{Err: err}
}

// Respond installs fn as the answer source once the queued steps run out.
func (m *ScriptedModel) Respond(fn func(ctx context.Context, input []*schema.Message) (*schema.Message, error)) *ScriptedModel {
	m.s.mu.Lock()
	m.s.respond = fn
	m.s.mu.Unlock()
	return m
}

// Push appends more steps to the script.
func (m *ScriptedModel) Push(steps ...Step) {
	m.s.mu.Lock()
	m.s.steps = append(m.s.steps, steps...)
	m.s.mu.Unlock()
}

// Calls returns a copy of every recorded invocation.
func (m *ScriptedModel) Calls() []Call {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return append([]Call(nil), m.s.calls...)
}

// CallCount returns the number of recorded invocations.
func (m *ScriptedModel) CallCount() int {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return len(m.s.calls)
}

// Generate implements model.BaseChatModel.
func (m *ScriptedModel) Generate(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.s.mu.Lock()
	m.s.calls = append(m.s.calls, Call{Input: append([]*schema.Message(nil), input...), Tools: m.tools})
	var (
		step    Step
		hasStep bool
	)
	if len(m.s.steps) > 0 {
		step, m.s.steps = m.s.steps[0], m.s.steps[1:]
		hasStep = true
	}
	respond := m.s.respond
	m.s.mu.Unlock()

	if !hasStep {
		if respond == nil {
			return nil, ErrScriptExhausted
		}
		return respond(ctx, input)
	}

	if step.Delay > 0 {
		timer := time.NewTimer(step.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if step.Err != nil {
		return nil, step.Err
	}
	return step.Message, nil
}

// Stream implements model.BaseChatModel by wrapping Generate in a one-item stream.
func (m *ScriptedModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// WithTools implements model.ToolCallingChatModel.
func (m *ScriptedModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return &ScriptedModel{s: m.s, tools: tools}, nil
}

// BoundTools reports the tools bound to this view.
func (m *ScriptedModel) BoundTools() []*schema.ToolInfo {
	return m.tools
}
