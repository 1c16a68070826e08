package redis

import (
	"strconv"

	"roomchat_server/pkg/constants"
)

// UserTokenKey 当前有效 refresh token 的 id
func UserTokenKey(userID string) string {
	return constants.USER_TOKEN_PREFIX + userID
}

// ConversationListKey 用户的会话列表缓存
func ConversationListKey(userID string) string {
	return constants.CONVERSATION_LIST_PREFIX + userID
}

// MessageListKey 房间最近消息缓存，不同 limit 分开存
func MessageListKey(roomID string, limit int) string {
	return constants.MESSAGE_LIST_PREFIX + roomID + "_" + strconv.Itoa(limit)
}

// MessageListPattern 房间所有 limit 的消息缓存
func MessageListPattern(roomID string) string {
	return constants.MESSAGE_LIST_PREFIX + roomID + "_*"
}
