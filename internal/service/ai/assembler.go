package ai

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/xiaolang/backend/internal/model/mood"
	"github.com/zhouzirui/xiaolang/backend/internal/model/persona"
)

// Template variable names shared by the system prompt and the agent loop.
const (
	DefaultMemoryKey = "chat_history"
	ScratchpadKey    = "agent_scratchpad"
	InputKey         = "input"

	feelScoreKey = "feelScore"
	directiveKey = "who_you_are"
)

// SummaryFormat is the output contract handed to the summarizer.
const SummaryFormat = `请将以下对话内容进行总结摘要，以第一人称"我"的视角输出，格式为"总结摘要 | 过去对话关键信息"，例如"用户张三问我今天的天气，我回答了他今天北京晴 | 张三,天气,北京"。`

// Assembler builds mood-conditioned prompts for one persona.
type Assembler struct {
	persona persona.Persona
	system  string
}

// NewAssembler 从 persona 存储中解析人设并预先渲染系统提示模板。
func NewAssembler(store persona.Store, personaID string) (*Assembler, error) {
	p, err := persona.Resolve(store, personaID)
	if err != nil {
		return nil, err
	}
	return &Assembler{persona: p, system: renderSystemTemplate(p)}, nil
}

// Persona returns the persona this assembler speaks as.
func (a *Assembler) Persona() persona.Persona {
	return a.persona
}

// Build 根据情绪与记忆键构造本轮对话的提示。未知情绪退化为 default，越界分值取中值。
func (a *Assembler) Build(feeling mood.Feeling, memoryKey string) *Prompt {
	feeling = feeling.Normalize()
	if strings.TrimSpace(memoryKey) == "" {
		memoryKey = DefaultMemoryKey
	}

	tpl := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(a.system),
		schema.MessagesPlaceholder(memoryKey, true),
		schema.UserMessage("{"+InputKey+"}"),
		schema.MessagesPlaceholder(ScratchpadKey, true),
	)

	return &Prompt{
		feeling:   feeling,
		mood:      mood.Resolve(feeling.Label),
		memoryKey: memoryKey,
		system:    a.system,
		template:  tpl,
	}
}

// SummaryInstruction returns the summarizer system prompt: the persona rendered
// with a neutral feeling followed by the summary format contract.
func (a *Assembler) SummaryInstruction() string {
	neutral := mood.Neutral()
	return renderSystemText(a.system, neutral, mood.Resolve(neutral.Label)) + "\n" + SummaryFormat
}

// Prompt is the per-invocation prompt. It is immutable once built.
type Prompt struct {
	feeling   mood.Feeling
	mood      mood.Mood
	memoryKey string
	system    string
	template  prompt.ChatTemplate
}

// Format renders the ordered message list: system, history, input, scratch.
func (p *Prompt) Format(ctx context.Context, history []*schema.Message, input string, scratch []*schema.Message) ([]*schema.Message, error) {
	vars := map[string]any{
		feelScoreKey:  strconv.Itoa(p.feeling.Score),
		directiveKey:  p.mood.Directive,
		p.memoryKey:   history,
		InputKey:      input,
		ScratchpadKey: scratch,
	}
	msgs, err := p.template.Format(ctx, vars)
	if err != nil {
		return nil, fmt.Errorf("format prompt: %w", err)
	}
	return msgs, nil
}

// SystemText returns the system instruction with the feeling interpolated.
func (p *Prompt) SystemText() string {
	return renderSystemText(p.system, p.feeling, p.mood)
}

// Feeling returns the normalized feeling the prompt was built with.
func (p *Prompt) Feeling() mood.Feeling {
	return p.feeling
}

// VoiceStyle returns the voice style tag of the selected mood.
func (p *Prompt) VoiceStyle() string {
	return p.mood.VoiceStyle
}

// MemoryKey returns the placeholder name bound to session history.
func (p *Prompt) MemoryKey() string {
	return p.memoryKey
}

func renderSystemText(system string, feeling mood.Feeling, m mood.Mood) string {
	return strings.NewReplacer(
		"{"+feelScoreKey+"}", strconv.Itoa(feeling.Score),
		"{"+directiveKey+"}", m.Directive,
		"{{", "{",
		"}}", "}",
	).Replace(system)
}

// renderSystemTemplate 生成带 {feelScore} 与 {who_you_are} 占位符的系统提示。
func renderSystemTemplate(p persona.Persona) string {
	var b strings.Builder
	fmt.Fprintf(&b, "你是一个非常厉害的%s，你的名字叫%s。\n", escapeBraces(p.Title), escapeBraces(p.Name))
	writeSection(&b, "以下是你的个人设定:", p.Traits)
	writeSection(&b, "以下是你的能力与工具使用规则:", p.Abilities)
	writeSection(&b, "约束条件:", p.Constraints)
	b.WriteString("{" + directiveKey + "}")
	return b.String()
}

func writeSection(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString(title)
	b.WriteString("\n")
	for i, item := range items {
		fmt.Fprintf(b, "%d. %s\n", i+1, escapeBraces(item))
	}
}

// escapeBraces keeps literal braces intact under FString formatting while
// leaving the {feelScore} placeholder live.
func escapeBraces(s string) string {
	const marker = "\x00feel\x00"
	s = strings.ReplaceAll(s, "{"+feelScoreKey+"}", marker)
	s = strings.NewReplacer("{", "{{", "}", "}}").Replace(s)
	return strings.ReplaceAll(s, marker, "{"+feelScoreKey+"}")
}
