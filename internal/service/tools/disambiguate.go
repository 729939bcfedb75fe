package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Match is the event FindPreciseOrder settled on.
type Match struct {
	ID       string `json:"id"`
	IsAllDay bool   `json:"isAllDay"`
}

// FindPreciseOrder resolves a free-text request to exactly one of events.
//
// No candidates yields ErrTargetNotFound. A single candidate is returned
// without calling the model. Otherwise one structured-output call picks an id,
// which must belong to the candidate set; any failure yields ErrTargetNotFound.
func FindPreciseOrder(ctx context.Context, m model.BaseChatModel, request string, events []Event) (Match, error) {
	switch len(events) {
	case 0:
		return Match{}, ErrTargetNotFound
	case 1:
		return Match{ID: events[0].ID, IsAllDay: events[0].IsAllDay}, nil
	}
	if m == nil {
		return Match{}, fmt.Errorf("%w: no model to disambiguate %d events", ErrTargetNotFound, len(events))
	}

	candidates, err := json.Marshal(map[string]any{"events": events})
	if err != nil {
		return Match{}, fmt.Errorf("encode candidates: %w", err)
	}

	out, err := m.Generate(ctx, []*schema.Message{
		schema.SystemMessage(disambiguationPrompt + string(candidates)),
		schema.UserMessage(request),
	})
	if err != nil {
		return Match{}, fmt.Errorf("%w: disambiguation call failed: %v", ErrTargetNotFound, err)
	}
	if out == nil {
		return Match{}, fmt.Errorf("%w: empty disambiguation output", ErrTargetNotFound)
	}

	picked, err := parseMatch(out.Content)
	if err != nil {
		return Match{}, fmt.Errorf("%w: %v", ErrTargetNotFound, err)
	}
	for _, ev := range events {
		if ev.ID == picked.ID {
			return Match{ID: ev.ID, IsAllDay: ev.IsAllDay}, nil
		}
	}
	return Match{}, fmt.Errorf("%w: model picked unknown id %q", ErrTargetNotFound, picked.ID)
}

func parseMatch(content string) (Match, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return Match{}, fmt.Errorf("missing json object")
	}
	var m Match
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &m); err != nil {
		return Match{}, fmt.Errorf("decode match: %w", err)
	}
	m.ID = strings.TrimSpace(m.ID)
	if m.ID == "" {
		return Match{}, fmt.Errorf("match without id")
	}
	return m, nil
}

const disambiguationPrompt = `请根据用户的输入和查询到的日程信息，提取出与用户输入最匹配的1个日程id以及是否为全天事件。
日程id为events中的id字段，是否为全天事件为events中的isAllDay字段，可能存在多个events项，你需要根据用户输入来匹配筛选。
只输出一个JSON对象，格式为 {"id": "日程id", "isAllDay": false}，不要有其他输出；如果没有匹配的日程，输出 {"id": ""}。
查询到的日程信息为：`
