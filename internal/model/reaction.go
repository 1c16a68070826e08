package model

import (
	"sort"
	"time"
)

// Reaction 表情回应，每个用户对每条消息最多一条
type Reaction struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement"`
	MessageID string    `gorm:"column:message_id;type:varchar(20);not null;uniqueIndex:idx_reaction_message_user,priority:1"`
	UserID    string    `gorm:"column:user_id;type:varchar(64);not null;uniqueIndex:idx_reaction_message_user,priority:2"`
	Emoji     string    `gorm:"column:emoji;type:varchar(32);not null"`
	CreatedAt time.Time `gorm:"column:created_at;type:datetime(3)"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:datetime(3)"`
}

func (Reaction) TableName() string {
	return "reaction"
}

// ReactionGroup 同一个表情的聚合结果
type ReactionGroup struct {
	Emoji string   `json:"emoji"`
	Count int      `json:"count"`
	By    []string `json:"by"`
}

// AggregateReactions 按表情分组
// 组按表情排序，组内用户按回应时间先后排列，时间相同再按用户 id
func AggregateReactions(rows []Reaction) []ReactionGroup {
	sorted := make([]Reaction, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Emoji != sorted[j].Emoji {
			return sorted[i].Emoji < sorted[j].Emoji
		}
		if !sorted[i].UpdatedAt.Equal(sorted[j].UpdatedAt) {
			return sorted[i].UpdatedAt.Before(sorted[j].UpdatedAt)
		}
		return sorted[i].UserID < sorted[j].UserID
	})

	groups := make([]ReactionGroup, 0)
	for _, r := range sorted {
		n := len(groups)
		if n == 0 || groups[n-1].Emoji != r.Emoji {
			groups = append(groups, ReactionGroup{Emoji: r.Emoji})
			n++
		}
		groups[n-1].Count++
		groups[n-1].By = append(groups[n-1].By, r.UserID)
	}
	return groups
}
