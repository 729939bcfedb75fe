// Package feishu adapts the Feishu (Lark) open platform: inbound message
// events, text replies and the calendar/task APIs used by the tools.
package feishu

import (
	"context"
	"fmt"
	"time"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"go.uber.org/zap"

	"github.com/zhouzirui/xiaolang/backend/internal/config"
	"github.com/zhouzirui/xiaolang/backend/internal/logging"
)

const defaultRequestTimeout = 20 * time.Second

// NewClient builds an API client for the configured app. SDK logs go to logger.
func NewClient(cfg config.FeishuConfig, timeout time.Duration, logger *zap.Logger) *lark.Client {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	opts := []lark.ClientOptionFunc{
		lark.WithReqTimeout(timeout),
		lark.WithLogger(NewLogger(logger)),
		lark.WithLogLevel(larkcore.LogLevelInfo),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, lark.WithOpenBaseUrl(cfg.BaseURL))
	}
	return lark.NewClient(cfg.AppID, cfg.AppSecret, opts...)
}

// APIError is a non-success response from the open platform.
type APIError struct {
	Op        string
	Code      int
	Msg       string
	RequestID string
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("feishu %s: code=%d msg=%s request_id=%s", e.Op, e.Code, e.Msg, e.RequestID)
	}
	return fmt.Sprintf("feishu %s: code=%d msg=%s", e.Op, e.Code, e.Msg)
}

func apiError(op string, code int, msg, requestID string) error {
	return &APIError{Op: op, Code: code, Msg: msg, RequestID: requestID}
}

// Logger forwards SDK logs to zap.
type Logger struct {
	logger *zap.SugaredLogger
}

var _ larkcore.Logger = (*Logger)(nil)

// NewLogger wraps logger for the SDK.
func NewLogger(logger *zap.Logger) *Logger {
	return &Logger{logger: logging.OrNop(logger).Named("feishu.sdk").Sugar()}
}

func (l *Logger) Debug(_ context.Context, args ...interface{}) { l.logger.Debug(args...) }
func (l *Logger) Info(_ context.Context, args ...interface{})  { l.logger.Info(args...) }
func (l *Logger) Warn(_ context.Context, args ...interface{})  { l.logger.Warn(args...) }
func (l *Logger) Error(_ context.Context, args ...interface{}) { l.logger.Error(args...) }

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
