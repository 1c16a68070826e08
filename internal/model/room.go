package model

import (
	"sort"
	"strings"
	"time"
)

// Room 会话容器，单聊(IsGroup=false)或群聊
// 单聊房间的 DirectKey 为排序后的两个用户 id，唯一索引保证同一对用户只有一个单聊
type Room struct {
	ID        string    `gorm:"column:id;primaryKey;type:varchar(64);comment:房间id"`
	Name      string    `gorm:"column:name;type:varchar(64);comment:群名称"`
	IsGroup   bool      `gorm:"column:is_group;not null;default:false"`
	DirectKey *string   `gorm:"column:direct_key;uniqueIndex;type:varchar(140);comment:单聊唯一键"`
	CreatedAt time.Time `gorm:"column:created_at;type:datetime(3)"`
}

func (Room) TableName() string {
	return "room"
}

// DirectKeyOf 无序用户对的规范化键
func DirectKeyOf(userA, userB string) string {
	pair := []string{userA, userB}
	sort.Strings(pair)
	return strings.Join(pair, ":")
}
