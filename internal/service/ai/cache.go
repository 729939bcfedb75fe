package ai

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ResponseCache memoizes model replies keyed by prompt and tool-schema hash.
// Entries are evicted by size (LRU) and by TTL. A nil cache is a no-op.
type ResponseCache struct {
	lru *expirable.LRU[string, *schema.Message]
}

// NewResponseCache returns nil when size is not positive.
func NewResponseCache(size int, ttl time.Duration) *ResponseCache {
	if size <= 0 {
		return nil
	}
	return &ResponseCache{lru: expirable.NewLRU[string, *schema.Message](size, nil, ttl)}
}

// Get returns a cached reply.
func (c *ResponseCache) Get(key string) (*schema.Message, bool) {
	if c == nil || key == "" {
		return nil, false
	}
	return c.lru.Get(key)
}

// Put stores a reply.
func (c *ResponseCache) Put(key string, msg *schema.Message) {
	if c == nil || key == "" || msg == nil {
		return
	}
	c.lru.Add(key, msg)
}

// Len reports the number of live entries.
func (c *ResponseCache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}

type cacheEntry struct {
	Role       schema.RoleType   `json:"r"`
	Content    string            `json:"c"`
	ToolCalls  []schema.ToolCall `json:"tc,omitempty"`
	ToolCallID string            `json:"id,omitempty"`
}

type toolEntry struct {
	Name   string         `json:"n"`
	Desc   string         `json:"d,omitempty"`
	Extra  map[string]any `json:"x,omitempty"`
	Params any            `json:"p,omitempty"`
}

// CacheKey hashes the message sequence together with the full bound tool
// schemas, so a changed description or parameter set never hits a stale reply.
func CacheKey(input []*schema.Message, tools []*schema.ToolInfo) string {
	entries := make([]cacheEntry, 0, len(input))
	for _, msg := range input {
		if msg == nil {
			continue
		}
		entries = append(entries, cacheEntry{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCalls:  msg.ToolCalls,
			ToolCallID: msg.ToolCallID,
		})
	}
	infos := make([]toolEntry, 0, len(tools))
	for _, t := range tools {
		if t == nil {
			continue
		}
		params, err := canonicalParams(t.ParamsOneOf)
		if err != nil {
			return ""
		}
		infos = append(infos, toolEntry{Name: t.Name, Desc: t.Desc, Extra: t.Extra, Params: params})
	}

	raw, err := json.Marshal(struct {
		Messages []cacheEntry `json:"m"`
		Tools    []toolEntry  `json:"t"`
	}{entries, infos})
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// canonicalParams renders the parameter schema as plain JSON values. Schemas
// built from a params map list properties and required names in map order,
// so objects are re-keyed through encoding/json and required lists sorted.
func canonicalParams(p *schema.ParamsOneOf) (any, error) {
	if p == nil {
		return nil, nil
	}
	js, err := p.ToJSONSchema()
	if err != nil || js == nil {
		return nil, err
	}
	raw, err := json.Marshal(js)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	sortRequired(v)
	return v, nil
}

func sortRequired(v any) {
	switch node := v.(type) {
	case map[string]any:
		for k, child := range node {
			if list, ok := child.([]any); ok && k == "required" {
				sort.Slice(list, func(i, j int) bool { return fmt.Sprint(list[i]) < fmt.Sprint(list[j]) })
				continue
			}
			sortRequired(child)
		}
	case []any:
		for _, child := range node {
			sortRequired(child)
		}
	}
}
