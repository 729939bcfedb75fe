package feishu

import (
	"context"
	"net/http"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"github.com/larksuite/oapi-sdk-go/v3/core/httpserverext"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"
	"go.uber.org/zap"

	"github.com/zhouzirui/xiaolang/backend/internal/config"
	"github.com/zhouzirui/xiaolang/backend/internal/logging"
	"github.com/zhouzirui/xiaolang/backend/internal/service/pipeline"
)

// Handler receives converted message events.
type Handler interface {
	Handle(ctx context.Context, ev pipeline.Event) pipeline.Outcome
}

// NewEventDispatcher routes im.message.receive_v1 into h. The callback returns
// as soon as h has filtered the event, so the platform never waits on the agent.
func NewEventDispatcher(verificationToken, encryptKey string, h Handler, logger *zap.Logger) *dispatcher.EventDispatcher {
	logger = logging.OrNop(logger).Named("feishu")
	return dispatcher.NewEventDispatcher(verificationToken, encryptKey).
		OnP2MessageReceiveV1(func(ctx context.Context, event *larkim.P2MessageReceiveV1) error {
			ev, ok := ToEvent(event)
			if !ok {
				logger.Warn("drop message event without payload")
				return nil
			}
			outcome := h.Handle(ctx, ev)
			logger.Debug("message event handled",
				zap.String("message_id", ev.MessageID), zap.Stringer("outcome", outcome))
			return nil
		})
}

// WebhookHandler serves event callbacks over HTTP.
func WebhookHandler(cfg config.FeishuConfig, h Handler, logger *zap.Logger) http.HandlerFunc {
	return httpserverext.NewEventHandlerFunc(NewEventDispatcher(cfg.VerificationToken, cfg.EncryptKey, h, logger))
}

// NewLongConnClient receives events over the platform's long connection
// instead of a public webhook. Start blocks until ctx is done or the
// connection fails permanently.
func NewLongConnClient(cfg config.FeishuConfig, h Handler, logger *zap.Logger) *larkws.Client {
	opts := []larkws.ClientOption{
		larkws.WithEventHandler(NewEventDispatcher("", "", h, logger)),
		larkws.WithLogger(NewLogger(logger)),
		larkws.WithLogLevel(larkcore.LogLevelInfo),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, larkws.WithDomain(cfg.BaseURL))
	}
	return larkws.NewClient(cfg.AppID, cfg.AppSecret, opts...)
}

// ToEvent flattens an SDK message event. ok is false when the sender or
// message block is missing.
func ToEvent(event *larkim.P2MessageReceiveV1) (pipeline.Event, bool) {
	if event == nil || event.Event == nil || event.Event.Message == nil || event.Event.Sender == nil {
		return pipeline.Event{}, false
	}
	sender := event.Event.Sender
	msg := event.Event.Message

	var senderID string
	if sender.SenderId != nil {
		senderID = deref(sender.SenderId.OpenId)
		if senderID == "" {
			senderID = deref(sender.SenderId.UserId)
		}
	}
	return pipeline.Event{
		SenderID:    senderID,
		SenderType:  deref(sender.SenderType),
		ChatID:      deref(msg.ChatId),
		MessageID:   deref(msg.MessageId),
		MessageType: deref(msg.MessageType),
		Content:     deref(msg.Content),
	}, true
}

// RunLongConn keeps the long connection open until ctx is done. The SDK's
// Start never returns once connected, so it is left running in the background
// and the process exit reclaims it.
func RunLongConn(ctx context.Context, client *larkws.Client) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- client.Start(ctx)
	}()
	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}
