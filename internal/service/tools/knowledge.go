package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/schema"
)

// Knowledge answers questions from the local knowledge base. Retrieval and
// reformulation happen behind this interface.
type Knowledge interface {
	Query(ctx context.Context, question string) (string, error)
}

// HTTPKnowledge calls a retrieval service: POST {"query": ...} -> {"answer": ...}.
type HTTPKnowledge struct {
	endpoint string
	client   *http.Client
}

// NewHTTPKnowledge returns nil when endpoint is empty.
func NewHTTPKnowledge(endpoint string, client *http.Client) *HTTPKnowledge {
	if strings.TrimSpace(endpoint) == "" {
		return nil
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPKnowledge{endpoint: endpoint, client: client}
}

// Query implements Knowledge.
func (k *HTTPKnowledge) Query(ctx context.Context, question string) (string, error) {
	body, err := json.Marshal(map[string]string{"query": question})
	if err != nil {
		return "", fmt.Errorf("encode query: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := k.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("knowledge request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read knowledge response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("knowledge service status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var payload struct {
		Answer string `json:"answer"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("decode knowledge response: %w", err)
	}
	return strings.TrimSpace(payload.Answer), nil
}

// KnowledgeTool exposes Knowledge to the model.
type KnowledgeTool struct {
	definition
	kb Knowledge
}

func newKnowledge(kb Knowledge) *KnowledgeTool {
	return &KnowledgeTool{
		kb: kb,
		definition: definition{
			name:   "get_info_from_local",
			desc:   "从本地知识库获取信息，适用于 langchain 等专业领域问题",
			action: "查询知识库",
			params: map[string]*schema.ParameterInfo{
				"query": {Type: schema.String, Desc: "用户的查询问题", Required: true},
			},
		},
	}
}

func (t *KnowledgeTool) Run(ctx context.Context, args map[string]any) (string, error) {
	if t.kb == nil {
		return "", errors.New("知识库未配置")
	}
	answer, err := t.kb.Query(ctx, stringArg(args, "query"))
	if err != nil {
		return "", err
	}
	if answer == "" {
		return "知识库中没有找到相关内容", nil
	}
	return answer, nil
}
