package constants

import "time"

const (
	CHANNEL_SIZE               = 100  // 通道大小
	SEND_QUEUE_SIZE            = 256  // 每个连接的出站队列长度
	MAX_CONTENT_CHARS          = 4000 // 单条消息最大字符数
	HISTORY_LIMIT              = 40   // 加入房间时下发的历史消息条数
	MAX_HISTORY_LIMIT          = 200  // /room/messages 允许的最大 limit
	REFRESH_TOKEN_EXPIRY_HOURS = 168  // Refresh Token 有效期（小时），168小时 = 7天

	FLOOD_INTERVAL   = 200 * time.Millisecond // 同一连接两次发送的最小间隔
	PERSIST_TIMEOUT  = 10 * time.Second       // 单次持久化调用超时
	GROUP_TIMEOUT    = 15 * time.Second       // 建群事务超时
	CACHE_TIMEOUT    = 2 * time.Second        // 缓存调用超时
	HANDSHAKE_WINDOW = 5 * time.Second        // 等待首帧 auth 的时间
)

// 缓存 key 前缀
const (
	USER_TOKEN_PREFIX        = "user_token:"
	CONVERSATION_LIST_PREFIX = "conversation_list_"
	MESSAGE_LIST_PREFIX      = "message_list_"
)

// 房间成员角色
const (
	ROLE_OWNER  = "owner"
	ROLE_MEMBER = "member"
)
