package chat

import "strings"

// SessionKey 返回会话的稳定标识：优先使用用户 ID，缺失时退回到会话所在的 chat ID。
func SessionKey(userID, chatID string) string {
	if id := strings.TrimSpace(userID); id != "" {
		return id
	}
	return strings.TrimSpace(chatID)
}
