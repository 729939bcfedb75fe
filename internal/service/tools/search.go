package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/cloudwego/eino/schema"
)

// DefaultSerpAPIEndpoint is the public SerpAPI search URL.
const DefaultSerpAPIEndpoint = "https://serpapi.com/search"

// SearchTool answers real-time questions through SerpAPI.
type SearchTool struct {
	definition
	client   *http.Client
	endpoint string
	apiKey   string
}

func newSearch(client *http.Client, endpoint, apiKey string) *SearchTool {
	if endpoint == "" {
		endpoint = DefaultSerpAPIEndpoint
	}
	return &SearchTool{
		client:   client,
		endpoint: endpoint,
		apiKey:   apiKey,
		definition: definition{
			name:   "search",
			desc:   "只有需要了解实时信息或不知道的事情的时候才会使用这个工具",
			action: "搜索",
			params: map[string]*schema.ParameterInfo{
				"query": {Type: schema.String, Desc: "搜索关键词", Required: true},
			},
		},
	}
}

type serpResponse struct {
	Error     string `json:"error"`
	AnswerBox *struct {
		Answer  string `json:"answer"`
		Snippet string `json:"snippet"`
	} `json:"answer_box"`
	KnowledgeGraph *struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"knowledge_graph"`
	OrganicResults []struct {
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
	} `json:"organic_results"`
}

func (t *SearchTool) Run(ctx context.Context, args map[string]any) (string, error) {
	if t.apiKey == "" {
		return "", errors.New("未配置 SERPAPI_API_KEY")
	}
	query := stringArg(args, "query")
	if query == "" {
		return "", invalidf("query 不能为空")
	}

	params := url.Values{}
	params.Set("engine", "google")
	params.Set("q", query)
	params.Set("api_key", t.apiKey)
	params.Set("hl", "zh-cn")
	params.Set("gl", "cn")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("serpapi request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read serpapi response: %w", err)
	}
	var payload serpResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("decode serpapi response (status %d): %w", resp.StatusCode, err)
	}
	if payload.Error != "" {
		return "", fmt.Errorf("serpapi: %s", payload.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("serpapi status %d", resp.StatusCode)
	}
	return summarizeSerp(payload), nil
}

func summarizeSerp(p serpResponse) string {
	if p.AnswerBox != nil {
		if a := strings.TrimSpace(p.AnswerBox.Answer); a != "" {
			return a
		}
		if s := strings.TrimSpace(p.AnswerBox.Snippet); s != "" {
			return s
		}
	}
	if p.KnowledgeGraph != nil && strings.TrimSpace(p.KnowledgeGraph.Description) != "" {
		return strings.TrimSpace(p.KnowledgeGraph.Description)
	}

	var lines []string
	for _, r := range p.OrganicResults {
		if len(lines) == 3 {
			break
		}
		if s := strings.TrimSpace(r.Snippet); s != "" {
			lines = append(lines, fmt.Sprintf("%s: %s", strings.TrimSpace(r.Title), s))
		}
	}
	if len(lines) == 0 {
		return "没有找到相关结果"
	}
	return strings.Join(lines, "\n")
}
