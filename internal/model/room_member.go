package model

import "time"

// RoomMember 房间成员关系，(user_id, room_id) 唯一
type RoomMember struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement"`
	UserID    string    `gorm:"column:user_id;type:varchar(64);not null;uniqueIndex:idx_member_user_room,priority:1"`
	RoomID    string    `gorm:"column:room_id;type:varchar(64);not null;uniqueIndex:idx_member_user_room,priority:2;index"`
	Role      string    `gorm:"column:role;type:varchar(16);not null;default:member;comment:owner | member"`
	CreatedAt time.Time `gorm:"column:created_at;type:datetime(3)"`
}

func (RoomMember) TableName() string {
	return "room_member"
}
