package feishu

import (
	"context"
	"encoding/json"
	"fmt"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
)

// Sender posts text replies into chats.
type Sender struct {
	client *lark.Client
}

// NewSender returns a Sender using client.
func NewSender(client *lark.Client) *Sender {
	return &Sender{client: client}
}

// SendText sends text to chatID. uuid deduplicates retries on the platform
// side for one hour; empty disables it.
func (s *Sender) SendText(ctx context.Context, chatID, text, uuid string) error {
	body, err := NewTextMessageBody(chatID, text, uuid)
	if err != nil {
		return err
	}
	resp, err := s.client.Im.V1.Message.Create(ctx, larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(larkim.ReceiveIdTypeChatId).
		Body(body).
		Build())
	if err != nil {
		return fmt.Errorf("feishu send message: %w", err)
	}
	if !resp.Success() {
		return apiError("send message", resp.Code, resp.Msg, resp.RequestId())
	}
	return nil
}

// NewTextMessageBody builds the im.v1.message.create body for a text reply
// addressed by chat_id.
func NewTextMessageBody(chatID, text, uuid string) (*larkim.CreateMessageReqBody, error) {
	content, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("encode message content: %w", err)
	}
	body := larkim.NewCreateMessageReqBodyBuilder().
		ReceiveId(chatID).
		MsgType(larkim.MsgTypeText).
		Content(string(content))
	if uuid != "" {
		body = body.Uuid(uuid)
	}
	return body.Build(), nil
}
