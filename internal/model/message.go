package model

import "time"

// Message 聊天消息，创建后不可修改
// (room_id, client_msg_id) 唯一，客户端重试同一条消息只会落一行
type Message struct {
	ID          string    `gorm:"column:id;primaryKey;type:varchar(20);comment:雪花id"`
	RoomID      string    `gorm:"column:room_id;type:varchar(64);not null;uniqueIndex:idx_message_room_client,priority:1;index:idx_message_room_created,priority:1"`
	SenderID    string    `gorm:"column:sender_id;type:varchar(64);not null;index"`
	Content     string    `gorm:"column:content;type:TEXT"`
	ClientMsgID *string   `gorm:"column:client_msg_id;type:varchar(64);uniqueIndex:idx_message_room_client,priority:2"`
	ReplyToID   *string   `gorm:"column:reply_to_id;type:varchar(20)"`
	CreatedAt   time.Time `gorm:"column:created_at;type:datetime(3);index:idx_message_room_created,priority:2"`
}

func (Message) TableName() string {
	return "message"
}
