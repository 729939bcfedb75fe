package memory

import (
	"unicode"

	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/xiaolang/backend/internal/model/chat"
)

// DefaultTokenLimit bounds the history handed to the model.
const DefaultTokenLimit = 1000

const perMessageOverhead = 4

// EstimateTokens approximates the token count of s: one token per CJK rune,
// roughly four characters per token for everything else.
func EstimateTokens(s string) int {
	cjk, other := 0, 0
	for _, r := range s {
		switch {
		case unicode.Is(unicode.Han, r), unicode.Is(unicode.Hiragana, r),
			unicode.Is(unicode.Katakana, r), unicode.Is(unicode.Hangul, r):
			cjk++
		case unicode.IsSpace(r):
		default:
			other++
		}
	}
	return cjk + (other+3)/4
}

// TrimToTokenBudget keeps the most recent messages whose estimated size fits
// limit. The newest message is always kept. A non-positive limit disables trimming.
func TrimToTokenBudget(msgs []chat.Message, limit int) []chat.Message {
	if limit <= 0 || len(msgs) == 0 {
		return msgs
	}

	total := 0
	start := len(msgs)
	for i := len(msgs) - 1; i >= 0; i-- {
		cost := EstimateTokens(msgs[i].Content) + perMessageOverhead
		if total+cost > limit && start < len(msgs) {
			break
		}
		total += cost
		start = i
	}
	return msgs[start:]
}

// ToSchema converts stored history into eino messages.
func ToSchema(msgs []chat.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case chat.RoleUser:
			out = append(out, schema.UserMessage(msg.Content))
		case chat.RoleAssistant:
			out = append(out, schema.AssistantMessage(msg.Content, nil))
		case chat.RoleSystem:
			out = append(out, schema.SystemMessage(msg.Content))
		}
	}
	return out
}
