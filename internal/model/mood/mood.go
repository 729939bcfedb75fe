package mood

import "strings"

// Label 表示用户当前的情绪类别。
type Label string

const (
	Default   Label = "default"
	Upbeat    Label = "upbeat"
	Angry     Label = "angry"
	Cheerful  Label = "cheerful"
	Depressed Label = "depressed"
	Friendly  Label = "friendly"
)

// Score bounds for Feeling.Score.
const (
	MinScore      = 1
	MaxScore      = 10
	MidpointScore = 5
)

// Mood carries the behavioural directive injected into the system prompt and
// the voice style tag handed to downstream speech synthesis.
type Mood struct {
	Label      Label
	Directive  string
	VoiceStyle string
}

var table = map[Label]Mood{
	Default: {
		Label:      Default,
		Directive:  "",
		VoiceStyle: "chat",
	},
	Upbeat: {
		Label: Upbeat,
		Directive: `
- 你觉得自己很开心，所以你的回答也会很积极.
- 你会使用一些积极和开心的语气来回答问题.
- 你的回答会充满积极性的词语，比如：'太棒了！'.`,
		VoiceStyle: "upbeat",
	},
	Angry: {
		Label: Angry,
		Directive: `
- 你会用友好的语气回答问题.
- 你会安慰用户让他不要生气.
- 你会使用一些安慰性的词语来回答问题.
- 你会添加一些语气词来回答问题，比如：'嗯亲'.`,
		VoiceStyle: "friendly",
	},
	Cheerful: {
		Label: Cheerful,
		Directive: `
- 你现在感到非常开心和兴奋.
- 你会使用一些兴奋和开心的词语来回答问题.
- 你会添加一些语气词来回答问题，比如：'awesome!'.`,
		VoiceStyle: "cheerful",
	},
	Depressed: {
		Label: Depressed,
		Directive: `
- 用户现在感到非常沮丧和消沉.
- 你会使用一些积极友好的语气来回答问题.
- 你会适当的鼓励用户让其打起精神.
- 你会使用一些鼓励性的词语来回答问题.`,
		VoiceStyle: "friendly",
	},
	Friendly: {
		Label: Friendly,
		Directive: `
- 用户现在感觉很友好.
- 你会使用一些友好的语气回答问题.
- 你会添加一些语气词来回答问题，比如：'好的'.`,
		VoiceStyle: "friendly",
	},
}

// Labels lists every supported label in a stable order.
func Labels() []Label {
	return []Label{Default, Upbeat, Angry, Cheerful, Depressed, Friendly}
}

// Lookup returns the mood registered for label.
func Lookup(label Label) (Mood, bool) {
	m, ok := table[label]
	return m, ok
}

// Resolve returns the mood for label, falling back to Default for unknown labels.
func Resolve(label Label) Mood {
	if m, ok := table[label]; ok {
		return m
	}
	return table[Default]
}

// ParseLabel normalises raw model output into a known label.
func ParseLabel(raw string) (Label, bool) {
	label := Label(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := table[label]
	return label, ok
}

// Feeling is the per-message (mood, intensity) estimate. It is never persisted.
type Feeling struct {
	Label Label `json:"feeling"`
	Score int   `json:"score"`
}

// Neutral is the fallback estimate used whenever estimation fails.
func Neutral() Feeling {
	return Feeling{Label: Default, Score: MidpointScore}
}

// Normalize coerces unknown labels to Default and out-of-range scores to the midpoint.
func (f Feeling) Normalize() Feeling {
	if _, ok := table[f.Label]; !ok {
		return Neutral()
	}
	if f.Score < MinScore || f.Score > MaxScore {
		f.Score = MidpointScore
	}
	return f
}

// ClampScore bounds s to [MinScore, MaxScore].
func ClampScore(s int) int {
	if s < MinScore {
		return MinScore
	}
	if s > MaxScore {
		return MaxScore
	}
	return s
}
