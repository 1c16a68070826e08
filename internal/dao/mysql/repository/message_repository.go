package repository

import (
	"context"

	"roomchat_server/internal/model"

	"gorm.io/gorm"
)

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository 创建消息 Repository
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(ctx context.Context, message *model.Message) error {
	if err := r.db.WithContext(ctx).Create(message).Error; err != nil {
		return wrapDBErrorf(err, "创建消息 room=%s", message.RoomID)
	}
	return nil
}

func (r *messageRepository) FindByID(ctx context.Context, id string) (*model.Message, error) {
	var message model.Message
	if err := r.db.WithContext(ctx).First(&message, "id = ?", id).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询消息 id=%s", id)
	}
	return &message, nil
}

func (r *messageRepository) FindByClientMsgID(ctx context.Context, roomID, clientMsgID string) (*model.Message, error) {
	var message model.Message
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND client_msg_id = ?", roomID, clientMsgID).
		First(&message).Error
	if err != nil {
		return nil, wrapDBErrorf(err, "查询消息 room=%s client_msg_id=%s", roomID, clientMsgID)
	}
	return &message, nil
}

func (r *messageRepository) FindRecent(ctx context.Context, roomID string, limit int) ([]model.Message, error) {
	var messages []model.Message
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, wrapDBErrorf(err, "查询最近消息 room=%s", roomID)
	}
	// 倒序查出最近 N 条，再翻转成从旧到新
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
