package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
)

// 支持的模型供应商。
const (
	ProviderArk      = "ark"
	ProviderOpenAI   = "openai"
	ProviderDeepSeek = "deepseek"
)

const defaultArkBaseURL = "https://ark.cn-beijing.volces.com/api/v3"

// Feishu 事件接入模式。
const (
	FeishuModeWebhook   = "webhook"
	FeishuModeWebsocket = "websocket"
)

// ErrPrimaryModelMissing is returned when the primary model name or key is absent.
var ErrPrimaryModelMissing = errors.New("config: LLM_PRIMARY_MODEL and LLM_PRIMARY_API_KEY are required")

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Primary  ModelConfig `envPrefix:"LLM_PRIMARY_"`
	Fallback ModelConfig `envPrefix:"LLM_FALLBACK_"`
	Cache    CacheConfig
	Memory   MemoryConfig
	Agent    AgentConfig
	Emotion  EmotionConfig
	Feishu   FeishuConfig
	Tools    ToolsConfig
	Pipeline PipelineConfig

	PersonaID string `env:"PERSONA_ID" envDefault:"xiaolang"`
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	return LoadFrom(nil)
}

// LoadFrom parses configuration from the given variables instead of the
// process environment. A nil map reads os.Environ.
func LoadFrom(environ map[string]string) (*Config, error) {
	var cfg Config
	opts := env.Options{Environment: environ}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if cfg.Primary.Provider == "" {
		cfg.Primary.Provider = ProviderArk
	}
	if cfg.Fallback.Provider == "" {
		cfg.Fallback.Provider = ProviderDeepSeek
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if !c.Primary.Enabled() {
		return ErrPrimaryModelMissing
	}
	for _, m := range []ModelConfig{c.Primary, c.Fallback} {
		switch m.Provider {
		case ProviderArk, ProviderOpenAI, ProviderDeepSeek:
		default:
			return fmt.Errorf("config: unsupported model provider %q", m.Provider)
		}
	}
	switch c.Feishu.Mode {
	case FeishuModeWebhook, FeishuModeWebsocket:
	default:
		return fmt.Errorf("config: invalid FEISHU_MODE %q", c.Feishu.Mode)
	}
	if c.Memory.SummaryThreshold < 1 {
		return fmt.Errorf("config: MEMORY_SUMMARY_THRESHOLD must be positive, got %d", c.Memory.SummaryThreshold)
	}
	if c.Agent.MaxIterations < 1 {
		return fmt.Errorf("config: AGENT_MAX_ITERATIONS must be positive, got %d", c.Agent.MaxIterations)
	}
	if _, err := c.Server.Addr(); err != nil {
		return err
	}
	return nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Port string `env:"PORT" envDefault:"8080"`
}

// Addr 解析服务器监听地址。
func (s ServerConfig) Addr() (string, error) {
	port := strings.TrimSpace(s.Port)
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	return ":" + port, nil
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level       string `env:"LOG_LEVEL" envDefault:"info"`
	Development bool   `env:"LOG_DEVELOPMENT" envDefault:"false"`
}

// ModelConfig 描述一个大模型实例（主模型或备用模型）。
type ModelConfig struct {
	Provider    string        `env:"PROVIDER"`
	Model       string        `env:"MODEL"`
	APIKey      string        `env:"API_KEY"`
	BaseURL     string        `env:"BASE_URL"`
	Region      string        `env:"REGION" envDefault:"cn-beijing"`
	Temperature *float32      `env:"TEMPERATURE"`
	Timeout     time.Duration `env:"TIMEOUT" envDefault:"60s"`
}

// Enabled 表示是否提供了必需的模型名与密钥。
func (c ModelConfig) Enabled() bool {
	return strings.TrimSpace(c.Model) != "" && strings.TrimSpace(c.APIKey) != ""
}

// NewChatModel 使用配置创建一个支持工具调用的模型实例。
func (c ModelConfig) NewChatModel(ctx context.Context) (model.ToolCallingChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("%s 模型配置缺失，需要提供 MODEL 与 API_KEY", c.Provider)
	}

	switch c.Provider {
	case ProviderArk:
		baseURL := c.BaseURL
		if baseURL == "" {
			baseURL = defaultArkBaseURL
		}
		timeout := c.Timeout
		return ark.NewChatModel(ctx, &ark.ChatModelConfig{
			BaseURL:     baseURL,
			Region:      c.Region,
			APIKey:      c.APIKey,
			Model:       c.Model,
			Temperature: c.Temperature,
			Timeout:     &timeout,
		})
	case ProviderOpenAI:
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:      c.APIKey,
			BaseURL:     c.BaseURL,
			Model:       c.Model,
			Temperature: c.Temperature,
			Timeout:     c.Timeout,
		})
	case ProviderDeepSeek:
		return deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
			APIKey:  c.APIKey,
			BaseURL: c.BaseURL,
			Model:   c.Model,
			Timeout: c.Timeout,
		})
	default:
		return nil, fmt.Errorf("unsupported model provider %q", c.Provider)
	}
}

// CacheConfig 描述模型响应缓存。Size 为 0 时关闭缓存。
type CacheConfig struct {
	Size int           `env:"LLM_CACHE_SIZE" envDefault:"256"`
	TTL  time.Duration `env:"LLM_CACHE_TTL" envDefault:"10m"`
}

// MemoryConfig 描述会话记忆的存储与压缩策略。
type MemoryConfig struct {
	Key              string        `env:"MEMORY_KEY" envDefault:"chat_history"`
	RedisURL         string        `env:"REDIS_URL"`
	KeyPrefix        string        `env:"MEMORY_KEY_PREFIX" envDefault:"message_store:"`
	SummaryThreshold int           `env:"MEMORY_SUMMARY_THRESHOLD" envDefault:"80"`
	TokenLimit       int           `env:"MEMORY_TOKEN_LIMIT" envDefault:"1000"`
	TTL              time.Duration `env:"MEMORY_TTL" envDefault:"0s"`
}

// AgentConfig bounds a single reasoning loop.
type AgentConfig struct {
	MaxIterations int           `env:"AGENT_MAX_ITERATIONS" envDefault:"8"`
	RunTimeout    time.Duration `env:"AGENT_RUN_TIMEOUT" envDefault:"2m"`
}

// EmotionConfig 控制情绪识别。
type EmotionConfig struct {
	LLMEnabled bool          `env:"EMOTION_LLM_ENABLED" envDefault:"true"`
	Timeout    time.Duration `env:"EMOTION_TIMEOUT" envDefault:"15s"`
}

// FeishuConfig 描述飞书开放平台凭证与接入方式。
type FeishuConfig struct {
	AppID             string `env:"FEISHU_APP_ID,required"`
	AppSecret         string `env:"FEISHU_APP_SECRET,required"`
	VerificationToken string `env:"FEISHU_VERIFICATION_TOKEN"`
	EncryptKey        string `env:"FEISHU_ENCRYPT_KEY"`
	Mode              string `env:"FEISHU_MODE" envDefault:"webhook"`
	CalendarID        string `env:"FEISHU_CALENDAR_ID" envDefault:"primary"`
	BotOpenID         string `env:"FEISHU_BOT_OPEN_ID"`
	// BaseURL 覆盖开放平台域名，例如国际版 https://open.larksuite.com。
	BaseURL string `env:"FEISHU_BASE_URL"`
}

// ToolsConfig 描述外部工具的访问配置。
type ToolsConfig struct {
	SerpAPIKey        string        `env:"SERPAPI_API_KEY"`
	SerpAPIEndpoint   string        `env:"SERPAPI_ENDPOINT" envDefault:"https://serpapi.com/search"`
	KnowledgeEndpoint string        `env:"KNOWLEDGE_ENDPOINT"`
	HTTPTimeout       time.Duration `env:"TOOLS_HTTP_TIMEOUT" envDefault:"20s"`
}

// PipelineConfig 描述入站消息处理策略。
type PipelineConfig struct {
	Apology     string        `env:"PIPELINE_APOLOGY"`
	DedupSize   int           `env:"PIPELINE_DEDUP_SIZE" envDefault:"1024"`
	DedupWindow time.Duration `env:"PIPELINE_DEDUP_WINDOW" envDefault:"10m"`
}
